package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/fpang/tennis-analyzer/internal/analysis"
	"github.com/fpang/tennis-analyzer/internal/metrics"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const (
	// DefaultPollInterval is how long to wait between file state checks.
	DefaultPollInterval = 2 * time.Second

	// DefaultMaxWait bounds how long a file may stay in PROCESSING.
	DefaultMaxWait = 10 * time.Minute

	// DefaultVideoMIMEType is used when nothing else identifies the container.
	DefaultVideoMIMEType = "video/mp4"
)

// AcceptedVideoMIMETypes is the set of video types the Gemini API accepts.
var AcceptedVideoMIMETypes = map[string]bool{
	"video/mp4":   true,
	"video/mpeg":  true,
	"video/mov":   true,
	"video/avi":   true,
	"video/x-flv": true,
	"video/mpg":   true,
	"video/webm":  true,
	"video/wmv":   true,
	"video/3gpp":  true,
	"video/mkv":   true,
}

// contentTypeAliases maps container types browsers and S3 report to the
// names the Gemini API expects.
var contentTypeAliases = map[string]string{
	"video/quicktime":          "video/mov",
	"video/x-msvideo":          "video/avi",
	"video/x-matroska":         "video/mkv",
	"video/x-ms-wmv":           "video/wmv",
	"video/mp2t":               "video/mpeg",
	"application/octet-stream": DefaultVideoMIMEType,
}

var extensionTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/mov",
	".webm": "video/webm",
	".avi":  "video/avi",
	".mkv":  "video/mkv",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpg",
	".wmv":  "video/wmv",
	".3gp":  "video/3gpp",
	".flv":  "video/x-flv",
}

// NormalizeVideoMIMEType maps a declared content type to one the Gemini API
// accepts. Aliases are translated, accepted types pass through, and
// anything else is guessed from the source's file extension, falling back to
// DefaultVideoMIMEType. The result is always a member of AcceptedVideoMIMETypes.
func NormalizeVideoMIMEType(contentType, source string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}

	if alias, ok := contentTypeAliases[ct]; ok {
		return alias
	}
	if AcceptedVideoMIMETypes[ct] {
		return ct
	}
	if guessed, ok := extensionTypes[sourceExtension(source)]; ok {
		return guessed
	}
	return DefaultVideoMIMEType
}

// sourceExtension returns the lower-cased extension of a URL or key,
// ignoring any query string or fragment.
func sourceExtension(source string) string {
	p := source
	if u, err := url.Parse(source); err == nil && u.Path != "" {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return strings.ToLower(path.Ext(p))
}

// FileService is the subset of the Gemini Files API used for ingestion.
type FileService interface {
	Upload(ctx context.Context, r io.Reader, mimeType string) (*genai.File, error)
	Get(ctx context.Context, name string) (*genai.File, error)
	Delete(ctx context.Context, name string) error
}

type genaiFiles struct {
	files *genai.Files
}

// NewFileService adapts a Gemini client's Files API to FileService.
func NewFileService(client *genai.Client) FileService {
	return genaiFiles{files: client.Files}
}

func (g genaiFiles) Upload(ctx context.Context, r io.Reader, mimeType string) (*genai.File, error) {
	return g.files.Upload(ctx, r, &genai.UploadFileConfig{MIMEType: mimeType})
}

func (g genaiFiles) Get(ctx context.Context, name string) (*genai.File, error) {
	return g.files.Get(ctx, name, nil)
}

func (g genaiFiles) Delete(ctx context.Context, name string) error {
	_, err := g.files.Delete(ctx, name, nil)
	return err
}

// Ingester uploads videos to the Gemini Files API and waits until they are
// ready for inference.
type Ingester struct {
	files        FileService
	pollInterval time.Duration
	maxWait      time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// IngesterOption configures an Ingester.
type IngesterOption func(*Ingester)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) IngesterOption {
	return func(in *Ingester) {
		if d > 0 {
			in.pollInterval = d
		}
	}
}

// WithMaxWait overrides DefaultMaxWait.
func WithMaxWait(d time.Duration) IngesterOption {
	return func(in *Ingester) {
		if d > 0 {
			in.maxWait = d
		}
	}
}

// NewIngester creates an Ingester backed by files.
func NewIngester(files FileService, opts ...IngesterOption) *Ingester {
	in := &Ingester{
		files:        files,
		pollInterval: DefaultPollInterval,
		maxWait:      DefaultMaxWait,
		now:          time.Now,
		sleep:        sleepContext,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Ingest uploads video once and polls until the provider reports it ACTIVE.
// The declared content type is normalized first (sourceHint supplies the
// extension for guessing). Any terminal state other than ACTIVE fails with
// KindIngestion. The wait is bounded by the max wait and by ctx's deadline,
// whichever comes first; running out fails with KindIngestionTimeout. A file
// that uploaded but never became ACTIVE is released before returning.
func (in *Ingester) Ingest(ctx context.Context, video []byte, declaredContentType, sourceHint string) (handle analysis.RemoteVideoHandle, err error) {
	if len(video) == 0 {
		return handle, analysis.Ingestion("Video is empty", nil)
	}

	mimeType := NormalizeVideoMIMEType(declaredContentType, sourceHint)
	log.Debug().
		Int("size_bytes", len(video)).
		Str("declared_type", declaredContentType).
		Str("mime_type", mimeType).
		Msg("Starting Gemini Files API upload for video")

	uploadStart := time.Now()
	file, err := in.files.Upload(ctx, bytes.NewReader(video), mimeType)
	if err != nil {
		return handle, analysis.Ingestion("Failed to upload video for analysis", err)
	}
	if file == nil || file.Name == "" || file.URI == "" {
		return handle, analysis.Ingestion("Gemini file upload failed - no name/uri returned", nil)
	}

	log.Debug().
		Str("name", file.Name).
		Str("uri", file.URI).
		Dur("upload_duration", time.Since(uploadStart)).
		Msg("Video uploaded, waiting for processing...")

	name, uri := file.Name, file.URI
	defer func() {
		if err != nil {
			in.Release(context.WithoutCancel(ctx), name)
		}
	}()

	limit := in.maxWait
	if dl, ok := ctx.Deadline(); ok {
		limit = min(limit, time.Until(dl))
	}
	deadline := in.now().Add(limit)
	timedOut := analysis.IngestionTimeout(fmt.Sprintf("Video processing did not finish within %v", limit.Round(100*time.Millisecond)))
	pollIteration := 0

	for file.State == genai.FileStateProcessing {
		remaining := deadline.Sub(in.now())
		if remaining <= 0 {
			return handle, timedOut
		}

		pollIteration++
		log.Debug().
			Str("state", string(file.State)).
			Int("poll_iteration", pollIteration).
			Dur("remaining", remaining).
			Msg("Video still processing, waiting...")

		if err := in.sleep(ctx, min(in.pollInterval, remaining)); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return handle, timedOut
			}
			return handle, analysis.Ingestion("Video processing was interrupted", err)
		}

		file, err = in.files.Get(ctx, name)
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return handle, timedOut
			}
			return handle, analysis.Ingestion("Failed to check video processing state", err)
		}
		if file == nil {
			return handle, analysis.Ingestion("Video processing state unavailable", nil)
		}
	}

	switch file.State {
	case genai.FileStateActive:
	case genai.FileStateFailed:
		return handle, analysis.Ingestion("Gemini video processing failed", fileError(file))
	default:
		return handle, analysis.Ingestion(fmt.Sprintf("Unexpected video state %q", file.State), nil)
	}

	total := time.Since(uploadStart)
	log.Info().
		Str("name", name).
		Str("state", string(file.State)).
		Dur("total_time", total).
		Int("poll_iterations", pollIteration).
		Msg("Video ready for inference")

	metrics.New().
		Dimension("Operation", "filesApiUpload").
		Duration("GeminiFilesApiUploadMs", total).
		Metric("GeminiFilesApiUploadBytes", float64(len(video)), metrics.UnitBytes).
		Count("GeminiApiCalls").
		Flush()

	return analysis.RemoteVideoHandle{Name: name, URI: uri, MIMEType: mimeType}, nil
}

func fileError(f *genai.File) error {
	if f.Error != nil && f.Error.Message != "" {
		return errors.New(f.Error.Message)
	}
	return nil
}

// Release deletes an ingested file. Files expire on their own after 48
// hours, so failures are logged and otherwise ignored.
func (in *Ingester) Release(ctx context.Context, name string) {
	if name == "" {
		return
	}
	if err := in.files.Delete(ctx, name); err != nil {
		log.Debug().Err(err).Str("name", name).Msg("Failed to delete Gemini file (may have expired)")
		return
	}
	log.Info().Str("name", name).Msg("Gemini file deleted")
}
