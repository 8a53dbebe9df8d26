package apperr

import (
	"errors"
	"fmt"
)

// Stable error kinds exposed to API clients. These strings are part of the
// wire contract and must not change between releases.
const (
	KindEmbedding         = "embedding_error"
	KindAllBackendsFailed = "all_backends_failed"
	KindExtraction        = "extraction_error"
	KindValidation        = "validation_error"
	KindIndexUnavailable  = "index_unavailable"
	KindInternal          = "internal_error"
)

// Error is the application error type. Kind is a stable machine-readable
// string, Message is safe to show to clients, Err carries the cause.
type Error struct {
	Kind    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error with the given kind and client-safe message.
func New(kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Kind extracts the stable kind string from an error chain.
// Returns KindInternal for errors that carry no kind.
func Kind(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// IsKind reports whether the error chain contains an Error of the given kind.
func IsKind(err error, kind string) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}
