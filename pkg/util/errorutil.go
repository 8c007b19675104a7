package util

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies pipeline errors for retry and routing decisions.
type ErrorKind string

const (
	// KindTransient marks failures worth retrying (network, 5xx, busy).
	KindTransient ErrorKind = "TRANSIENT"
	// KindPermanent marks failures that retrying cannot fix.
	KindPermanent ErrorKind = "PERMANENT"
	// KindCircuitOpen marks calls rejected without a network attempt.
	KindCircuitOpen ErrorKind = "CIRCUIT_OPEN"
	// KindMalformed marks input that can never be processed.
	KindMalformed ErrorKind = "MALFORMED"
	// KindDuplicate marks redeliveries absorbed by the idempotency store.
	KindDuplicate ErrorKind = "DUPLICATE"
	// KindTimeout marks deadline overruns; treated as transient for retries.
	KindTimeout ErrorKind = "TIMEOUT"
)

// PipelineError standardizes application errors across the pipeline.
type PipelineError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError constructs a PipelineError.
func NewPipelineError(kind ErrorKind, code, message string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Code: code, Message: message, Err: err}
}

func NewTransient(code, message string, err error) error {
	return NewPipelineError(KindTransient, code, message, err)
}

func NewPermanent(code, message string, err error) error {
	return NewPipelineError(KindPermanent, code, message, err)
}

func NewCircuitOpen(dependency string) error {
	return NewPipelineError(KindCircuitOpen, "CIRCUIT_OPEN",
		fmt.Sprintf("circuit open for %s", dependency), nil)
}

func NewMalformed(message string, err error) error {
	return NewPipelineError(KindMalformed, "MALFORMED_INPUT", message, err)
}

func NewTimeout(dependency string, err error) error {
	return NewPipelineError(KindTimeout, "DEADLINE_EXCEEDED",
		fmt.Sprintf("call to %s exceeded its deadline", dependency), err)
}

// KindOf extracts the classification from an error chain. Context deadline
// overruns map to KindTimeout. Anything unclassified is permanent: adapters
// are responsible for wrapping errors they know to be retryable, and an
// unknown failure must not cause blind retry storms.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindPermanent
}

// IsTransient reports whether the error should be retried.
func IsTransient(err error) bool {
	kind := KindOf(err)
	return kind == KindTransient || kind == KindTimeout
}

// IsCircuitOpen reports whether the error is a fast-fail circuit rejection.
func IsCircuitOpen(err error) bool {
	return KindOf(err) == KindCircuitOpen
}

// HTTPStatus maps an error to a response status for the API layer.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindMalformed:
		return http.StatusBadRequest
	case KindDuplicate:
		return http.StatusConflict
	case KindCircuitOpen, KindTransient, KindTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ToPipelineError converts generic errors, preserving classification.
func ToPipelineError(err error) *PipelineError {
	if err == nil {
		return nil
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	return &PipelineError{
		Kind:    KindOf(err),
		Code:    "INTERNAL_ERROR",
		Message: "internal error",
		Err:     err,
	}
}
