package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fpang/tennis-analyzer/internal/analysis"
	"github.com/fpang/tennis-analyzer/internal/chat"
	"github.com/fpang/tennis-analyzer/internal/metrics"
	"github.com/fpang/tennis-analyzer/internal/s3util"
	"github.com/google/go-cmp/cmp"
	"google.golang.org/genai"
)

const testKey = "0b8e5f6a-1c2d-4e3f-8a9b-0c1d2e3f4a5b/rally.mov"

// recorder keeps the order of collaborator calls across fakes.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

type fakeStorage struct {
	rec       *recorder
	fetchErr  error
	deleteErr error
	ticket    *s3util.UploadTicket
	presign   error
}

func (f *fakeStorage) PresignUpload(_ context.Context, filename, contentType string, size int64) (*s3util.UploadTicket, error) {
	f.rec.add("presign:" + filename + ":" + contentType)
	if f.presign != nil {
		return nil, f.presign
	}
	return f.ticket, nil
}

func (f *fakeStorage) Fetch(_ context.Context, key string) (*s3util.Object, error) {
	f.rec.add("fetch:" + key)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return &s3util.Object{Key: key, ContentType: "video/quicktime", Data: []byte("video")}, nil
}

func (f *fakeStorage) Delete(_ context.Context, key string) error {
	f.rec.add("delete:" + key)
	return f.deleteErr
}

type fakeIngestor struct {
	rec *recorder
	err error
}

func (f *fakeIngestor) Ingest(_ context.Context, video []byte, contentType, hint string) (analysis.RemoteVideoHandle, error) {
	f.rec.add("ingest:" + contentType)
	if f.err != nil {
		return analysis.RemoteVideoHandle{}, f.err
	}
	return analysis.RemoteVideoHandle{Name: "files/abc", URI: "https://files/abc", MIMEType: "video/mov"}, nil
}

func (f *fakeIngestor) Release(_ context.Context, name string) {
	f.rec.add("release:" + name)
}

type fakeInferrer struct {
	rec    *recorder
	raw    string
	err    error
	params chat.Params
	handle analysis.RemoteVideoHandle
}

func (f *fakeInferrer) Run(_ context.Context, handle analysis.RemoteVideoHandle, kind chat.TaskKind, params chat.Params) (string, error) {
	f.rec.add("infer:" + kind.String())
	f.params = params
	f.handle = handle
	return f.raw, f.err
}

type fixture struct {
	rec      *recorder
	storage  *fakeStorage
	ingestor *fakeIngestor
	inferrer *fakeInferrer
	handler  http.Handler
}

func newFixture(t *testing.T, secret string) *fixture {
	t.Helper()
	metrics.SetOutput(io.Discard)

	rec := &recorder{}
	f := &fixture{
		rec: rec,
		storage: &fakeStorage{rec: rec, ticket: &s3util.UploadTicket{
			UploadURL: "https://media.s3.amazonaws.com/" + testKey + "?sig",
			Key:       testKey,
			ExpiresAt: time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC),
		}},
		ingestor: &fakeIngestor{rec: rec},
		inferrer: &fakeInferrer{rec: rec, raw: `{"playerDescription":"Blue shirt","totalStrokes":2,"strokes":[{"strokeType":"Serve","count":2,"spinBreakdown":{"flat":1,"topspin":0,"slice":1,"sidespin":0}}],"summary":"Two serves"}`},
	}
	f.handler = NewServer(Config{
		Storage:            f.storage,
		Ingestor:           f.ingestor,
		Inferrer:           f.inferrer,
		OriginVerifySecret: secret,
		Commit:             "abc1234",
		BuildTime:          "2026-03-01T00:00:00Z",
	}).Handler()
	return f
}

func (f *fixture) do(method, target, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not JSON: %v (%s)", err, w.Body.String())
	}
	return body["error"]
}

func TestAnalyze_Success(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(http.MethodPost, "/api/analyze", `{"blobUrl":"`+testKey+`","playerSide":"near"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var got analysis.AnalysisResult
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	want := analysis.AnalysisResult{
		PlayerDescription: "Blue shirt",
		TotalStrokes:      2,
		Strokes: []analysis.StrokeTally{{
			StrokeType:    "Serve",
			Count:         2,
			SpinBreakdown: analysis.SpinBreakdown{Flat: 1, Slice: 1},
		}},
		Summary:            "Two serves",
		GeminiFileName:     "files/abc",
		GeminiFileURI:      "https://files/abc",
		GeminiFileMIMEType: "video/mov",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	wantCalls := []string{
		"fetch:" + testKey,
		"ingest:video/quicktime",
		"delete:" + testKey,
		"infer:stroke_counting",
	}
	if diff := cmp.Diff(wantCalls, f.rec.calls); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
	if f.inferrer.params.Side != analysis.SideNear {
		t.Errorf("expected near side, got %q", f.inferrer.params.Side)
	}
}

func TestAnalyze_StorageLocatorAlias(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(http.MethodPost, "/api/analyze", `{"storageLocator":"`+testKey+`","playerSide":"FAR"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if f.inferrer.params.Side != analysis.SideFar {
		t.Errorf("expected far side, got %q", f.inferrer.params.Side)
	}
}

func TestAnalyze_MissingFields(t *testing.T) {
	bodies := []string{
		`{"playerSide":"near"}`,
		`{"blobUrl":"` + testKey + `"}`,
		`{}`,
		`not json`,
	}

	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			f := newFixture(t, "")
			w := f.do(http.MethodPost, "/api/analyze", body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			if msg := errorMessage(t, w); msg != "Missing blobUrl or playerSide" {
				t.Errorf("unexpected error %q", msg)
			}
			if len(f.rec.calls) != 0 {
				t.Errorf("no collaborator should be called, got %v", f.rec.calls)
			}
		})
	}
}

func TestAnalyze_InvalidSide(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(http.MethodPost, "/api/analyze", `{"blobUrl":"`+testKey+`","playerSide":"baseline"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if msg := errorMessage(t, w); msg != "playerSide must be 'near' or 'far'" {
		t.Errorf("unexpected error %q", msg)
	}
}

func TestAnalyze_DeleteFailureIgnored(t *testing.T) {
	f := newFixture(t, "")
	f.storage.deleteErr = errors.New("access denied")

	w := f.do(http.MethodPost, "/api/analyze", `{"blobUrl":"`+testKey+`","playerSide":"near"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 despite delete failure, got %d", w.Code)
	}
}

func TestAnalyze_ErrorStatus(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(f *fixture)
		wantStatus int
		wantMsg    string
		wantLast   string
	}{
		{
			name: "fetch fails",
			setup: func(f *fixture) {
				f.storage.fetchErr = analysis.Storage("Uploaded video was not found", errors.New("NoSuchKey"))
			},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Uploaded video was not found",
			wantLast:   "fetch:" + testKey,
		},
		{
			name: "ingestion fails",
			setup: func(f *fixture) {
				f.ingestor.err = analysis.Ingestion("Gemini video processing failed", nil)
			},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Gemini video processing failed",
			wantLast:   "ingest:video/quicktime",
		},
		{
			name: "ingestion times out",
			setup: func(f *fixture) {
				f.ingestor.err = analysis.IngestionTimeout("Video processing did not finish within 10m0s")
			},
			wantStatus: http.StatusGatewayTimeout,
			wantMsg:    "Video processing did not finish within 10m0s",
			wantLast:   "ingest:video/quicktime",
		},
		{
			name: "inference fails",
			setup: func(f *fixture) {
				f.inferrer.err = analysis.Inference("Analysis request failed", errors.New("429"))
			},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Analysis request failed",
			wantLast:   "release:files/abc",
		},
		{
			name: "malformed result",
			setup: func(f *fixture) {
				f.inferrer.raw = "I could not see the video"
			},
			wantStatus: http.StatusBadGateway,
			wantMsg:    "Analysis response was not valid JSON",
			wantLast:   "release:files/abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "")
			tt.setup(f)

			w := f.do(http.MethodPost, "/api/analyze", `{"blobUrl":"`+testKey+`","playerSide":"near"}`)
			if w.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, w.Code)
			}
			if msg := errorMessage(t, w); msg != tt.wantMsg {
				t.Errorf("expected error %q, got %q", tt.wantMsg, msg)
			}
			if last := f.rec.calls[len(f.rec.calls)-1]; last != tt.wantLast {
				t.Errorf("expected last call %q, got %q (all: %v)", tt.wantLast, last, f.rec.calls)
			}
		})
	}
}

// stuckFiles is a Gemini Files API whose uploads never leave PROCESSING.
type stuckFiles struct {
	mu      sync.Mutex
	deleted []string
}

func (s *stuckFiles) Upload(context.Context, io.Reader, string) (*genai.File, error) {
	return &genai.File{Name: "files/stuck", URI: "https://files/stuck", State: genai.FileStateProcessing}, nil
}

func (s *stuckFiles) Get(_ context.Context, name string) (*genai.File, error) {
	return &genai.File{Name: name, URI: "https://files/stuck", State: genai.FileStateProcessing}, nil
}

func (s *stuckFiles) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, name)
	return nil
}

func TestAnalyze_StuckIngestionTimesOut(t *testing.T) {
	f := newFixture(t, "")
	files := &stuckFiles{}
	// Same ordering as production: the request deadline comes before the
	// ingest max wait.
	f.handler = NewServer(Config{
		Storage:        f.storage,
		Ingestor:       chat.NewIngester(files, chat.WithPollInterval(2*time.Millisecond), chat.WithMaxWait(600*time.Millisecond)),
		Inferrer:       f.inferrer,
		RequestTimeout: 300 * time.Millisecond,
	}).Handler()

	w := f.do(http.MethodPost, "/api/analyze", `{"blobUrl":"`+testKey+`","playerSide":"near"}`)
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d: %s", w.Code, w.Body.String())
	}
	if msg := errorMessage(t, w); !strings.HasPrefix(msg, "Video processing did not finish within") {
		t.Errorf("unexpected error %q", msg)
	}

	files.mu.Lock()
	defer files.mu.Unlock()
	if diff := cmp.Diff([]string{"files/stuck"}, files.deleted); diff != "" {
		t.Errorf("stuck file should be released (-want +got):\n%s", diff)
	}
	for _, call := range f.rec.calls {
		if strings.HasPrefix(call, "infer:") {
			t.Errorf("inference must not run after a timeout, got %v", f.rec.calls)
		}
	}
}

const techniqueJSON = `{
  "strokeType": "Serve",
  "grip": {"observed": "Continental", "feedback": "Keep it"},
  "footwork": {"observed": "Pinpoint", "feedback": "Load more"},
  "contactPoint": {"observed": "In front", "feedback": "Higher"},
  "swingPath": {"observed": "Low to high", "feedback": "Pronate"},
  "followThrough": {"observed": "Across body", "feedback": "Finish left"},
  "bodyRotation": {"observed": "Good coil", "feedback": "Use hips"},
  "strengths": ["Toss"],
  "improvements": ["Leg drive"],
  "overallRating": "Intermediate"
}`

func TestTechnique_Success(t *testing.T) {
	f := newFixture(t, "")
	f.inferrer.raw = techniqueJSON

	w := f.do(http.MethodPost, "/api/technique", `{"geminiFileUri":"https://files/abc","geminiFileMimeType":"video/mov","strokeType":"Serve","playerSide":"far"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var got analysis.TechniqueAnalysis
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode technique: %v", err)
	}
	if got.StrokeType != "Serve" || got.Grip.Observed != "Continental" || got.OverallRating != "Intermediate" {
		t.Errorf("unexpected technique %+v", got)
	}

	wantHandle := analysis.RemoteVideoHandle{URI: "https://files/abc", MIMEType: "video/mov"}
	if diff := cmp.Diff(wantHandle, f.inferrer.handle); diff != "" {
		t.Errorf("handle mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(chat.Params{Side: analysis.SideFar, StrokeType: "Serve"}, f.inferrer.params); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
}

func TestTechnique_MissingFields(t *testing.T) {
	bodies := []string{
		`{"strokeType":"Serve","playerSide":"near"}`,
		`{"geminiFileUri":"https://files/abc","playerSide":"near"}`,
		`{"geminiFileUri":"https://files/abc","strokeType":"Serve"}`,
		`[]`,
	}

	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			f := newFixture(t, "")
			w := f.do(http.MethodPost, "/api/technique", body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			if msg := errorMessage(t, w); msg != "Missing required fields" {
				t.Errorf("unexpected error %q", msg)
			}
		})
	}
}

func TestTechnique_Malformed(t *testing.T) {
	f := newFixture(t, "")
	f.inferrer.raw = `{"strokeType":"Serve"}`

	w := f.do(http.MethodPost, "/api/technique", `{"geminiFileUri":"https://files/abc","strokeType":"Serve","playerSide":"near"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	if msg := errorMessage(t, w); !strings.HasPrefix(msg, "Technique response is missing fields") {
		t.Errorf("unexpected error %q", msg)
	}
}

func TestUploadURL(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(http.MethodGet, "/api/upload-url?filename=rally.mov&contentType=video/quicktime&size=2048", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var got map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if got["blobUrl"] != testKey || got["uploadUrl"] == "" || got["expiresAt"] != "2026-03-01T12:15:00Z" {
		t.Errorf("unexpected ticket %v", got)
	}
	if diff := cmp.Diff([]string{"presign:rally.mov:video/quicktime"}, f.rec.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestUploadURL_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		target string
		status int
	}{
		{"missing filename", "/api/upload-url?contentType=video/mp4", http.StatusBadRequest},
		{"bad size", "/api/upload-url?filename=a.mp4&contentType=video/mp4&size=-1", http.StatusBadRequest},
		{"non numeric size", "/api/upload-url?filename=a.mp4&contentType=video/mp4&size=big", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "")
			w := f.do(http.MethodGet, tt.target, "")
			if w.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, w.Code)
			}
			if len(f.rec.calls) != 0 {
				t.Errorf("storage should not be called, got %v", f.rec.calls)
			}
		})
	}
}

func TestUploadURL_PolicyViolation(t *testing.T) {
	f := newFixture(t, "")
	f.storage.presign = analysis.Validation("unsupported content type: image/png")

	w := f.do(http.MethodGet, "/api/upload-url?filename=a.png&contentType=image/png", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if msg := errorMessage(t, w); msg != "unsupported content type: image/png" {
		t.Errorf("unexpected error %q", msg)
	}
}

func TestRelease(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(http.MethodPost, "/api/release", `{"geminiFileName":"files/abc"}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if diff := cmp.Diff([]string{"release:files/abc"}, f.rec.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}

	w = f.do(http.MethodPost, "/api/release", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing name, got %d", w.Code)
	}
}

func TestRelease_DiscardsUpload(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(http.MethodPost, "/api/release", `{"blobUrl":"`+testKey+`"}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}
	if diff := cmp.Diff([]string{"delete:" + testKey}, f.rec.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestRelease_DiscardFailureIgnored(t *testing.T) {
	f := newFixture(t, "")
	f.storage.deleteErr = errors.New("access denied")

	w := f.do(http.MethodPost, "/api/release", `{"geminiFileName":"files/abc","blobUrl":"`+testKey+`"}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if diff := cmp.Diff([]string{"release:files/abc", "delete:" + testKey}, f.rec.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestRelease_RejectsForeignKey(t *testing.T) {
	for _, key := range []string{"../secrets/key.pem", "uploads/rally.mp4", "/etc/passwd"} {
		t.Run(key, func(t *testing.T) {
			f := newFixture(t, "")
			w := f.do(http.MethodPost, "/api/release", `{"blobUrl":"`+key+`"}`)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			if len(f.rec.calls) != 0 {
				t.Errorf("storage should not be touched, got %v", f.rec.calls)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, "secret")

	w := f.do(http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if diff := cmp.Diff(HealthResponse{Status: "ok", Commit: "abc1234", BuildTime: "2026-03-01T00:00:00Z"}, got); diff != "" {
		t.Errorf("health mismatch (-want +got):\n%s", diff)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, "")

	for _, target := range []string{"/api/analyze", "/api/technique", "/api/release"} {
		if w := f.do(http.MethodGet, target, ""); w.Code != http.StatusMethodNotAllowed {
			t.Errorf("GET %s: expected 405, got %d", target, w.Code)
		}
	}
	if w := f.do(http.MethodPost, "/api/upload-url", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /api/upload-url: expected 405, got %d", w.Code)
	}
}
