package analysis

import "errors"

// Kind categorizes a failure by the stage that produced it.
type Kind int

const (
	// KindValidation means the request was missing or had malformed fields.
	KindValidation Kind = iota
	// KindStorage means the object store rejected an upload, fetch, or delete.
	KindStorage
	// KindIngestion means the provider could not accept or process the video.
	KindIngestion
	// KindIngestionTimeout means the provider did not finish processing in time.
	KindIngestionTimeout
	// KindInference means the model call itself failed.
	KindInference
	// KindMalformedResult means the model answered with something we cannot use.
	KindMalformedResult
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindStorage:
		return "storage"
	case KindIngestion:
		return "ingestion"
	case KindIngestionTimeout:
		return "ingestion_timeout"
	case KindInference:
		return "inference"
	case KindMalformedResult:
		return "malformed_result"
	default:
		return "unknown"
	}
}

// Error is a failure scoped to one user action. Message is safe to show to
// the user; Err carries the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation builds a KindValidation error.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Storage builds a KindStorage error.
func Storage(msg string, err error) *Error {
	return &Error{Kind: KindStorage, Message: msg, Err: err}
}

// Ingestion builds a KindIngestion error.
func Ingestion(msg string, err error) *Error {
	return &Error{Kind: KindIngestion, Message: msg, Err: err}
}

// IngestionTimeout builds a KindIngestionTimeout error.
func IngestionTimeout(msg string) *Error {
	return &Error{Kind: KindIngestionTimeout, Message: msg}
}

// Inference builds a KindInference error.
func Inference(msg string, err error) *Error {
	return &Error{Kind: KindInference, Message: msg, Err: err}
}

// MalformedResult builds a KindMalformedResult error.
func MalformedResult(msg string, err error) *Error {
	return &Error{Kind: KindMalformedResult, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool {
	got, ok := KindOf(err)
	return ok && got == k
}

// PublicMessage returns the text to surface to the user. For *Error this is
// Message alone so wrapped causes (bucket names, provider internals) stay in
// the logs; anything else falls back to err.Error().
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
