package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fpang/tennis-analyzer/internal/analysis"
	"github.com/fpang/tennis-analyzer/internal/filehandler"
	"github.com/rs/zerolog/log"
)

// releaseTimeout bounds a background cleanup call.
const releaseTimeout = 30 * time.Second

// Backend performs the network operations of a session. *client.Client
// implements it.
type Backend interface {
	UploadVideo(ctx context.Context, vf *filehandler.VideoFile) (string, error)
	Analyze(ctx context.Context, blobURL string, side analysis.PlayerSide) (*analysis.AnalysisResult, error)
	Technique(ctx context.Context, handle analysis.RemoteVideoHandle, strokeType string, side analysis.PlayerSide) (*analysis.TechniqueAnalysis, error)
	Release(ctx context.Context, geminiFileName string) error
	DiscardUpload(ctx context.Context, blobURL string) error
}

// UploadInput is a video and the side of the court to analyze.
type UploadInput struct {
	Video *filehandler.VideoFile
	Side  analysis.PlayerSide
}

// Driver owns one session. It is safe for concurrent use; the mutex guards
// transitions only and is never held across a network call.
type Driver struct {
	backend Backend

	mu        sync.Mutex
	state     State
	observers []func(State)

	releases sync.WaitGroup
}

// NewDriver creates a Driver in Idle.
func NewDriver(backend Backend) *Driver {
	return &Driver{backend: backend}
}

// OnChange registers fn to receive every new state. Observers run on the
// goroutine that caused the change.
func (d *Driver) OnChange(fn func(State)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, fn)
}

// Snapshot returns the current state.
func (d *Driver) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// apply runs one transition and notifies observers when it succeeds.
func (d *Driver) apply(e Event) (before, after State, err error) {
	d.mu.Lock()
	before = d.state
	after, err = Transition(d.state, e)
	if err != nil {
		d.mu.Unlock()
		return before, before, err
	}
	d.state = after
	observers := append([]func(State){}, d.observers...)
	d.mu.Unlock()

	log.Debug().
		Str("event", e.eventName()).
		Str("from", before.Stage.String()).
		Str("to", after.Stage.String()).
		Str("loadingStroke", after.LoadingStroke).
		Uint64("generation", after.Generation).
		Msg("Session transition")

	for _, fn := range observers {
		fn(after)
	}
	return before, after, nil
}

// Upload uploads the video, then ingests and analyzes it. It returns once
// the session reaches Results or falls back to Idle. If the session is
// reset meanwhile, the late outcome is discarded and ErrStale is returned.
func (d *Driver) Upload(ctx context.Context, in UploadInput) error {
	if in.Video == nil {
		return errors.New("no video selected")
	}
	if !in.Side.Valid() {
		return analysis.Validation("playerSide must be 'near' or 'far'")
	}

	_, started, err := d.apply(UploadStarted{})
	if err != nil {
		return err
	}
	gen := started.Generation

	blobURL, err := d.backend.UploadVideo(ctx, in.Video)
	if err != nil {
		if _, _, terr := d.apply(UploadFailed{Generation: gen, Err: err.Error()}); terr != nil {
			return terr
		}
		return err
	}
	if _, _, err := d.apply(UploadSucceeded{Generation: gen, BlobURL: blobURL, Side: in.Side}); err != nil {
		// Nothing will analyze this upload now.
		d.discardAsync(blobURL)
		return err
	}

	result, err := d.backend.Analyze(ctx, blobURL, in.Side)
	if err != nil {
		if _, _, terr := d.apply(AnalysisFailed{Generation: gen, Err: err.Error()}); terr != nil {
			return terr
		}
		return err
	}
	if _, _, err := d.apply(AnalysisSucceeded{Generation: gen, Result: result}); err != nil {
		// Nobody will ever ask about this video.
		d.releaseAsync(result.GeminiFileName)
		return err
	}
	return nil
}

// SelectStroke requests the technique breakdown of strokeType. Only one
// request may be in flight; a second selection fails with ErrBusy and issues
// no request.
func (d *Driver) SelectStroke(ctx context.Context, strokeType string) error {
	_, selected, err := d.apply(StrokeSelected{StrokeType: strokeType})
	if err != nil {
		return err
	}
	handle, _ := selected.Handle()
	gen := selected.Generation

	technique, err := d.backend.Technique(ctx, handle, strokeType, selected.Side)
	if err != nil {
		if _, _, terr := d.apply(TechniqueFailed{Generation: gen, StrokeType: strokeType, Err: err.Error()}); terr != nil {
			return terr
		}
		return err
	}
	_, _, err = d.apply(TechniqueSucceeded{Generation: gen, StrokeType: strokeType, Technique: technique})
	return err
}

// Close leaves the technique detail view.
func (d *Driver) Close() error {
	_, _, err := d.apply(Closed{})
	return err
}

// DismissError clears the error banner.
func (d *Driver) DismissError() {
	if _, _, err := d.apply(ErrorDismissed{}); err != nil {
		log.Warn().Err(err).Msg("Failed to dismiss error")
	}
}

// Reset returns the session to Idle. In-flight work is not cancelled; its
// outcome is discarded when it arrives. An ingested video is released in the
// background.
func (d *Driver) Reset() {
	before, _, err := d.apply(Reset{})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to reset session")
		return
	}
	if handle, ok := before.Handle(); ok {
		d.releaseAsync(handle.Name)
	}
}

// Drain waits for background releases and discards to finish.
func (d *Driver) Drain() {
	d.releases.Wait()
}

func (d *Driver) releaseAsync(name string) {
	if name == "" {
		return
	}
	d.background(func(ctx context.Context) {
		if err := d.backend.Release(ctx, name); err != nil {
			log.Debug().Err(err).Str("name", name).Msg("Failed to release Gemini file")
		}
	})
}

func (d *Driver) discardAsync(blobURL string) {
	if blobURL == "" {
		return
	}
	d.background(func(ctx context.Context) {
		if err := d.backend.DiscardUpload(ctx, blobURL); err != nil {
			log.Debug().Err(err).Str("blobUrl", blobURL).Msg("Failed to discard uploaded video")
		}
	})
}

func (d *Driver) background(fn func(ctx context.Context)) {
	d.releases.Add(1)
	go func() {
		defer d.releases.Done()
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		fn(ctx)
	}()
}
