package analysis

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("analyze: %w", Inference("Stroke analysis failed", cause))

	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable through Unwrap")
	}
	kind, ok := KindOf(err)
	if !ok || kind != KindInference {
		t.Errorf("KindOf = %v, %v; want inference", kind, ok)
	}
	if got := PublicMessage(err); got != "Stroke analysis failed" {
		t.Errorf("PublicMessage = %q", got)
	}
	if got := err.Error(); got != "analyze: Stroke analysis failed: connection reset" {
		t.Errorf("Error() = %q", got)
	}
}

func TestPublicMessage_PlainError(t *testing.T) {
	if got := PublicMessage(errors.New("Missing blobUrl or playerSide")); got != "Missing blobUrl or playerSide" {
		t.Errorf("PublicMessage = %q", got)
	}
	if got := PublicMessage(nil); got != "" {
		t.Errorf("PublicMessage(nil) = %q", got)
	}
}

func TestKindString(t *testing.T) {
	if KindIngestionTimeout.String() != "ingestion_timeout" {
		t.Errorf("unexpected %q", KindIngestionTimeout.String())
	}
	if Kind(99).String() != "unknown" {
		t.Errorf("unexpected %q", Kind(99).String())
	}
}

func TestParsePlayerSide(t *testing.T) {
	tests := []struct {
		in      string
		want    PlayerSide
		wantErr bool
	}{
		{"near", SideNear, false},
		{"FAR", SideFar, false},
		{" far ", SideFar, false},
		{"", "", true},
		{"left", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePlayerSide(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePlayerSide(%q) err = %v", tt.in, err)
			continue
		}
		if tt.wantErr && !IsKind(err, KindValidation) {
			t.Errorf("ParsePlayerSide(%q) error kind = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParsePlayerSide(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
