package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnknownModel = errors.New("unknown model")
)

// ErrorKind classifies job failures for the error taxonomy.
type ErrorKind string

const (
	ErrKindValidation   ErrorKind = "validation"
	ErrKindAnalyzerStep ErrorKind = "analyzer_step"
	ErrKindBackend      ErrorKind = "backend"
	ErrKindPollTimeout  ErrorKind = "poll_timeout"
	ErrKindExpired      ErrorKind = "expired"
	ErrKindUnknownTag   ErrorKind = "unknown_tag"
)

// JobError is the failure detail recorded on a job's error field. Only fatal
// kinds ever land here; transient kinds surface as observability events.
type JobError struct {
	Kind    ErrorKind         `json:"kind"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func (e *JobError) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Kind) + ": " + e.Message
}

// NewJobError builds a JobError for the given kind.
func NewJobError(kind ErrorKind, msg string) *JobError {
	return &JobError{Kind: kind, Message: msg}
}
