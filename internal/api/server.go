// Package api is the HTTP surface of the tennis analyzer. The same handler
// serves the local web server and the Lambda function.
//
// Endpoints:
//
//	GET  /api/health      health check (no origin verification)
//	GET  /api/upload-url  presigned S3 PUT URL for a direct video upload
//	POST /api/analyze     ingest an uploaded video and count strokes
//	POST /api/technique   technique breakdown for one stroke type
//	POST /api/release     delete an ingested video or an abandoned upload
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/fpang/tennis-analyzer/internal/analysis"
	"github.com/fpang/tennis-analyzer/internal/chat"
	"github.com/fpang/tennis-analyzer/internal/s3util"
	"github.com/klauspost/compress/gzhttp"
)

// DefaultRequestTimeout bounds a single analysis request end to end. It also
// caps the ingest wait when it is shorter than chat.DefaultMaxWait.
const DefaultRequestTimeout = 5 * time.Minute

// Storage issues upload URLs and moves uploaded videos.
type Storage interface {
	PresignUpload(ctx context.Context, filename, contentType string, size int64) (*s3util.UploadTicket, error)
	Fetch(ctx context.Context, key string) (*s3util.Object, error)
	Delete(ctx context.Context, key string) error
}

// Ingestor hands videos to the inference provider.
type Ingestor interface {
	Ingest(ctx context.Context, video []byte, declaredContentType, sourceHint string) (analysis.RemoteVideoHandle, error)
	Release(ctx context.Context, name string)
}

// Inferrer runs one analysis prompt against an ingested video.
type Inferrer interface {
	Run(ctx context.Context, handle analysis.RemoteVideoHandle, kind chat.TaskKind, params chat.Params) (string, error)
}

// Config wires the server's collaborators.
type Config struct {
	Storage  Storage
	Ingestor Ingestor
	Inferrer Inferrer

	// OriginVerifySecret, when set, is required in the x-origin-verify header.
	OriginVerifySecret string
	// AllowLocalCORS enables CORS for localhost origins (local development).
	AllowLocalCORS bool
	// RequestTimeout defaults to DefaultRequestTimeout.
	RequestTimeout time.Duration

	Commit    string
	BuildTime string
}

// Server holds the configured handlers.
type Server struct {
	cfg Config
}

// NewServer creates a Server.
func NewServer(cfg Config) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &Server{cfg: cfg}
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/upload-url", s.handleUploadURL)
	mux.HandleFunc("/api/analyze", s.handleAnalyze)
	mux.HandleFunc("/api/technique", s.handleTechnique)
	mux.HandleFunc("/api/release", s.handleRelease)

	var h http.Handler = withOriginVerify(s.cfg.OriginVerifySecret, mux)
	if s.cfg.AllowLocalCORS {
		h = withCORS(h)
	}
	h = withMetrics(h)
	h = withLogging(h)
	h = withRequestID(h)
	return gzhttp.GzipHandler(h)
}
