package omr

import (
	"errors"
	"fmt"
)

// Kind classifies a conversion failure. Validation kinds are rejected
// before any filesystem or process work happens.
type Kind string

const (
	KindUnsupportedMedia Kind = "unsupported_media"
	KindInvalidEngine    Kind = "invalid_engine"
	KindIncompatible     Kind = "incompatible_input"
	KindConfiguration    Kind = "configuration"
	KindTimeout          Kind = "timeout"
	KindProcessing       Kind = "processing"
	KindNotFound         Kind = "output_not_found"
	KindNoContent        Kind = "no_content"

	// KindArtifactMissing is a retrieval miss on the durable output
	// store, not a conversion failure.
	KindArtifactMissing Kind = "artifact_missing"
)

// Error is a two-tier conversion error: Message is safe to return to
// callers, Detail carries raw diagnostics (subprocess stderr, directory
// listings) and must only reach logs.
type Error struct {
	Kind    Kind
	Message string
	Detail  string
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

// Public returns the sanitized message for callers.
func (e *Error) Public() string {
	return e.Message
}

// E builds an Error of the given kind.
func E(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the failure kind from err, or KindProcessing if err is
// not a conversion error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindProcessing
}

// DetailOf extracts the diagnostic detail from err, if any.
func DetailOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	return ""
}

// PublicMessage returns the caller-safe message for err.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Public()
	}
	return "conversion failed"
}

// IsValidation reports whether the kind is a pre-processing input
// validation failure (HTTP 4xx territory).
func (k Kind) IsValidation() bool {
	switch k {
	case KindUnsupportedMedia, KindInvalidEngine, KindIncompatible:
		return true
	}
	return false
}
