// Package session sequences one user's pass through upload, analysis, and
// technique drill-downs.
//
// State is a plain value and Transition is a pure function over it, so every
// guard can be tested without a network. Driver runs the network operations
// and feeds their outcomes back through Transition.
package session

import (
	"errors"
	"fmt"

	"github.com/fpang/tennis-analyzer/internal/analysis"
)

// Stage is the coarse position of a session.
type Stage int

const (
	Idle Stage = iota
	Uploading
	Analyzing
	Results
	TechniqueDetail
)

func (s Stage) String() string {
	switch s {
	case Idle:
		return "idle"
	case Uploading:
		return "uploading"
	case Analyzing:
		return "analyzing"
	case Results:
		return "results"
	case TechniqueDetail:
		return "technique_detail"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

var (
	// ErrInvalidTransition means the event is not accepted in the current stage.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrBusy means another technique request is already in flight.
	ErrBusy = errors.New("another stroke is loading")
	// ErrStale means the event belongs to work abandoned by a reset.
	ErrStale = errors.New("stale event")
)

// State is one session's complete state. Result and Technique are shared
// with observers and must be treated as read-only.
type State struct {
	Stage     Stage
	Side      analysis.PlayerSide
	BlobURL   string
	Result    *analysis.AnalysisResult
	Technique *analysis.TechniqueAnalysis

	// LoadingStroke is the stroke type whose technique request is in flight.
	LoadingStroke string
	// Err is the message of the last failure, shown until dismissed or reset.
	Err string
	// Generation increases on every reset that abandons work.
	Generation uint64
}

// Busy reports whether a network operation is in flight.
func (s State) Busy() bool {
	return s.Stage == Uploading || s.Stage == Analyzing || s.LoadingStroke != ""
}

// Handle returns the remote video handle from the analysis result, if any.
func (s State) Handle() (analysis.RemoteVideoHandle, bool) {
	if s.Result == nil {
		return analysis.RemoteVideoHandle{}, false
	}
	return s.Result.Handle(), true
}

// Describe summarizes the state in one line for logs and prompts.
func (s State) Describe() string {
	switch {
	case s.Err != "":
		return fmt.Sprintf("%s (error: %s)", s.Stage, s.Err)
	case s.LoadingStroke != "":
		return fmt.Sprintf("%s (loading %s)", s.Stage, s.LoadingStroke)
	default:
		return s.Stage.String()
	}
}

// Event is an input to Transition.
type Event interface {
	eventName() string
}

// UploadStarted begins a new session from Idle.
type UploadStarted struct{}

// UploadSucceeded reports that the video reached storage.
type UploadSucceeded struct {
	Generation uint64
	BlobURL    string
	Side       analysis.PlayerSide
}

// UploadFailed reports a failed upload or upload authorization.
type UploadFailed struct {
	Generation uint64
	Err        string
}

// AnalysisSucceeded delivers the stroke analysis.
type AnalysisSucceeded struct {
	Generation uint64
	Result     *analysis.AnalysisResult
}

// AnalysisFailed reports a failed ingestion or analysis.
type AnalysisFailed struct {
	Generation uint64
	Err        string
}

// StrokeSelected asks for the technique breakdown of one stroke type.
type StrokeSelected struct {
	StrokeType string
}

// TechniqueSucceeded delivers a technique breakdown.
type TechniqueSucceeded struct {
	Generation uint64
	StrokeType string
	Technique  *analysis.TechniqueAnalysis
}

// TechniqueFailed reports a failed technique request.
type TechniqueFailed struct {
	Generation uint64
	StrokeType string
	Err        string
}

// Closed leaves the technique detail view.
type Closed struct{}

// Reset abandons the session and returns to Idle.
type Reset struct{}

// ErrorDismissed clears the error banner.
type ErrorDismissed struct{}

func (UploadStarted) eventName() string      { return "upload started" }
func (UploadSucceeded) eventName() string    { return "upload succeeded" }
func (UploadFailed) eventName() string       { return "upload failed" }
func (AnalysisSucceeded) eventName() string  { return "analysis succeeded" }
func (AnalysisFailed) eventName() string     { return "analysis failed" }
func (StrokeSelected) eventName() string     { return "stroke selected" }
func (TechniqueSucceeded) eventName() string { return "technique succeeded" }
func (TechniqueFailed) eventName() string    { return "technique failed" }
func (Closed) eventName() string             { return "close" }
func (Reset) eventName() string              { return "reset" }
func (ErrorDismissed) eventName() string     { return "error dismissed" }

// generation returns the generation a completion event was issued under.
func generation(e Event) (uint64, bool) {
	switch e := e.(type) {
	case UploadSucceeded:
		return e.Generation, true
	case UploadFailed:
		return e.Generation, true
	case AnalysisSucceeded:
		return e.Generation, true
	case AnalysisFailed:
		return e.Generation, true
	case TechniqueSucceeded:
		return e.Generation, true
	case TechniqueFailed:
		return e.Generation, true
	}
	return 0, false
}

func invalid(s State, e Event) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, e.eventName(), s.Stage)
}

// Transition applies e to s. On error the returned state equals s.
func Transition(s State, e Event) (State, error) {
	if gen, ok := generation(e); ok && gen != s.Generation {
		return s, fmt.Errorf("%w: %s from generation %d, now %d", ErrStale, e.eventName(), gen, s.Generation)
	}

	next := s
	switch e := e.(type) {
	case UploadStarted:
		if s.Stage != Idle {
			return s, invalid(s, e)
		}
		next = State{Stage: Uploading, Generation: s.Generation}

	case UploadSucceeded:
		if s.Stage != Uploading {
			return s, invalid(s, e)
		}
		if !e.Side.Valid() || e.BlobURL == "" {
			return s, fmt.Errorf("%w: upload succeeded without locator or side", ErrInvalidTransition)
		}
		next.Stage = Analyzing
		next.BlobURL = e.BlobURL
		next.Side = e.Side

	case UploadFailed:
		if s.Stage != Uploading {
			return s, invalid(s, e)
		}
		next = State{Stage: Idle, Err: e.Err, Generation: s.Generation}

	case AnalysisSucceeded:
		if s.Stage != Analyzing {
			return s, invalid(s, e)
		}
		if e.Result == nil {
			return s, fmt.Errorf("%w: analysis succeeded without a result", ErrInvalidTransition)
		}
		next.Stage = Results
		next.Result = e.Result

	case AnalysisFailed:
		if s.Stage != Analyzing {
			return s, invalid(s, e)
		}
		next = State{Stage: Idle, Err: e.Err, Generation: s.Generation}

	case StrokeSelected:
		if s.Stage != Results {
			return s, invalid(s, e)
		}
		if s.LoadingStroke != "" {
			return s, fmt.Errorf("%w: %s is still loading", ErrBusy, s.LoadingStroke)
		}
		if e.StrokeType == "" {
			return s, fmt.Errorf("%w: stroke selected without a stroke type", ErrInvalidTransition)
		}
		next.LoadingStroke = e.StrokeType
		next.Err = ""

	case TechniqueSucceeded:
		if s.Stage != Results || s.LoadingStroke == "" || s.LoadingStroke != e.StrokeType {
			return s, invalid(s, e)
		}
		if e.Technique == nil {
			return s, fmt.Errorf("%w: technique succeeded without a result", ErrInvalidTransition)
		}
		next.Stage = TechniqueDetail
		next.Technique = e.Technique
		next.LoadingStroke = ""

	case TechniqueFailed:
		if s.Stage != Results || s.LoadingStroke == "" || s.LoadingStroke != e.StrokeType {
			return s, invalid(s, e)
		}
		next.LoadingStroke = ""
		next.Err = e.Err

	case Closed:
		if s.Stage != TechniqueDetail {
			return s, invalid(s, e)
		}
		// The breakdown stays until the next one replaces it or a reset.
		next.Stage = Results

	case Reset:
		if s.Stage == Idle {
			next.Err = ""
			break
		}
		next = State{Stage: Idle, Generation: s.Generation + 1}

	case ErrorDismissed:
		next.Err = ""

	default:
		return s, fmt.Errorf("%w: unknown event %T", ErrInvalidTransition, e)
	}
	return next, nil
}
