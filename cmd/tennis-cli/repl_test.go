package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fpang/tennis-analyzer/internal/analysis"
	"github.com/fpang/tennis-analyzer/internal/cli"
	"github.com/fpang/tennis-analyzer/internal/client"
	"github.com/fpang/tennis-analyzer/internal/filehandler"
	"github.com/fpang/tennis-analyzer/internal/session"
)

type fakeBackend struct {
	analyzeErr error
	techniques []string
	released   []string
}

func (f *fakeBackend) UploadVideo(_ context.Context, vf *filehandler.VideoFile) (string, error) {
	return "0b8e5f6a-1c2d-4e3f-8a9b-0c1d2e3f4a5b/" + vf.Name, nil
}

func (f *fakeBackend) Analyze(context.Context, string, analysis.PlayerSide) (*analysis.AnalysisResult, error) {
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	return &analysis.AnalysisResult{
		TotalStrokes: 42,
		Strokes: []analysis.StrokeTally{
			{StrokeType: "Serve", Count: 12},
			{StrokeType: "Forehand groundstroke", Count: 30},
		},
		GeminiFileName: "files/abc",
		GeminiFileURI:  "https://files/abc",
	}, nil
}

func (f *fakeBackend) Technique(_ context.Context, _ analysis.RemoteVideoHandle, strokeType string, _ analysis.PlayerSide) (*analysis.TechniqueAnalysis, error) {
	f.techniques = append(f.techniques, strokeType)
	return &analysis.TechniqueAnalysis{StrokeType: strokeType, OverallRating: "Advanced"}, nil
}

func (f *fakeBackend) Release(_ context.Context, name string) error {
	f.released = append(f.released, name)
	return nil
}

func (f *fakeBackend) DiscardUpload(context.Context, string) error {
	return nil
}

func writeVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rally.mp4")
	if err := os.WriteFile(path, []byte("not really a video"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runScript(t *testing.T, backend *fakeBackend, side analysis.PlayerSide, videos []string, input string) string {
	t.Helper()
	var out bytes.Buffer
	next := func() (string, error) {
		if len(videos) == 0 {
			return "", cli.ErrCanceled
		}
		v := videos[0]
		videos = videos[1:]
		return v, nil
	}
	a := newApp(session.NewDriver(backend), cli.NewPrompter(strings.NewReader(input), &out), &out, side, next)
	if err := a.run(context.Background()); err != nil {
		t.Fatalf("run() error: %v", err)
	}
	return out.String()
}

func TestApp_TechniqueRoundTrip(t *testing.T) {
	backend := &fakeBackend{}
	out := runScript(t, backend, analysis.SideNear, []string{writeVideo(t)}, "2\n\nserve\nq\n")

	for _, want := range []string{"Total strokes: 42", "Forehand groundstroke technique", "Serve technique", "Overall rating: Advanced"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if len(backend.techniques) != 2 || backend.techniques[0] != "Forehand groundstroke" || backend.techniques[1] != "Serve" {
		t.Errorf("unexpected technique requests %v", backend.techniques)
	}
	if len(backend.released) != 1 || backend.released[0] != "files/abc" {
		t.Errorf("expected release on quit, got %v", backend.released)
	}
}

func TestApp_AsksForSide(t *testing.T) {
	backend := &fakeBackend{}
	out := runScript(t, backend, "", []string{writeVideo(t)}, "far\nq\n")
	if !strings.Contains(out, "Which player? near/far") {
		t.Errorf("expected side prompt:\n%s", out)
	}
}

func TestApp_ServerErrorShownThenNextVideo(t *testing.T) {
	backend := &fakeBackend{analyzeErr: &client.APIError{Status: 400, Message: "Missing blobUrl or playerSide"}}
	out := runScript(t, backend, analysis.SideNear, []string{writeVideo(t)}, "")

	if !strings.Contains(out, "Error: Missing blobUrl or playerSide") {
		t.Errorf("expected server message verbatim:\n%s", out)
	}
}

func TestApp_RejectsUnsupportedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := runScript(t, &fakeBackend{}, analysis.SideNear, []string{path}, "")
	if !strings.Contains(out, "please select a valid video file") {
		t.Errorf("expected validation message:\n%s", out)
	}
}

func TestApp_UnknownStroke(t *testing.T) {
	out := runScript(t, &fakeBackend{}, analysis.SideNear, []string{writeVideo(t)}, "9\nq\n")
	if !strings.Contains(out, `No stroke "9" in this analysis.`) {
		t.Errorf("expected unknown stroke message:\n%s", out)
	}
}

func TestPickStroke(t *testing.T) {
	r := &analysis.AnalysisResult{Strokes: []analysis.StrokeTally{{StrokeType: "Serve"}, {StrokeType: "Lob"}}}
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"1", "Serve", true},
		{"2", "Lob", true},
		{"0", "", false},
		{"3", "", false},
		{"LOB", "Lob", true},
		{"Smash", "", false},
	}
	for _, tt := range tests {
		got, ok := pickStroke(r, tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("pickStroke(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
