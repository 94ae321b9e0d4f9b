package auth

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/fpang/tennis-analyzer/internal/metrics"
	"google.golang.org/genai"
)

func TestGetAPIKeyFromEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", " test-api-key-12345\n")

	key, err := GetAPIKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "test-api-key-12345" {
		t.Errorf("expected trimmed key, got %q", key)
	}
}

func TestGetAPIKeyNoSource(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("HOME", t.TempDir())

	_, err := GetAPIKey()
	var valErr *ValidationError
	if !errors.As(err, &valErr) || valErr.Type != ErrTypeNoKey {
		t.Errorf("expected no-key validation error, got %v", err)
	}
}

func TestGetCredentialPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path, err := getCredentialPath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := filepath.Join(home, ".tennis-analyzer", "credentials.gpg"); path != want {
		t.Errorf("expected path %q, got %q", want, path)
	}
}

func TestPassphrasePathSkipsInsecureFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())

	dir := filepath.Join(home, ".tennis-analyzer")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(dir, ".gpg-passphrase")
	if err := os.WriteFile(p, []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := passphrasePath(); ok {
		t.Error("expected world-readable passphrase file to be skipped")
	}

	if err := os.Chmod(p, 0o600); err != nil {
		t.Fatal(err)
	}
	if got, ok := passphrasePath(); !ok || got != p {
		t.Errorf("expected %q, got %q (%v)", p, got, ok)
	}
}

type fakeModels struct {
	resp *genai.GenerateContentResponse
	err  error
}

func (f fakeModels) GenerateContent(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return f.resp, f.err
}

func TestValidateAPIKey(t *testing.T) {
	metrics.SetOutput(io.Discard)

	ok := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}
	tests := []struct {
		name     string
		models   fakeModels
		wantType ValidationErrorType
		wantErr  bool
	}{
		{"valid", fakeModels{resp: ok}, 0, false},
		{"empty response", fakeModels{resp: &genai.GenerateContentResponse{}}, ErrTypeUnknown, true},
		{"forbidden", fakeModels{err: genai.APIError{Code: 403, Message: "denied"}}, ErrTypeInvalidKey, true},
		{"rate limited", fakeModels{err: genai.APIError{Code: 429, Message: "slow down"}}, ErrTypeQuotaExceeded, true},
		{"server error", fakeModels{err: genai.APIError{Code: 503, Message: "unavailable"}}, ErrTypeNetworkError, true},
		{"dial failure", fakeModels{err: errors.New("dial tcp: no such host")}, ErrTypeNetworkError, true},
		{"bad key text", fakeModels{err: errors.New("API key not valid. Please pass a valid API key.")}, ErrTypeInvalidKey, true},
		{"other", fakeModels{err: errors.New("boom")}, ErrTypeUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAPIKey(context.Background(), tt.models, "gemini-2.5-flash")
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var valErr *ValidationError
			if !errors.As(err, &valErr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if valErr.Type != tt.wantType {
				t.Errorf("expected type %s, got %s", tt.wantType, valErr.Type)
			}
		})
	}
}
