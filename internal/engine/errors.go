package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/microsim/internal/event"
)

// RuntimeError represents a fatal error detected by the scheduler.
//
// Runtime errors include:
//   - Duplicate registration: a second model registered for the same kind
//   - Unregistered kind: an event reached dispatch with no model for its kind
//   - Model failure: a model callback returned an error
//   - Sink failure: the year result could not be written
//
// Soft failures (no vacant dwelling, no vacant job) are never RuntimeErrors;
// they are counted in diag.Counters.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Year is the simulated year, 0 for configuration errors.
	Year int

	// Model names the model involved, if any.
	Model string

	// Kind is the event kind involved, if any.
	Kind event.Kind

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeDuplicateRegistration indicates a kind already has a model.
	ErrCodeDuplicateRegistration RuntimeErrorCode = "DUPLICATE_REGISTRATION"

	// ErrCodeInvalidRegistration indicates a nil model or an unknown kind.
	ErrCodeInvalidRegistration RuntimeErrorCode = "INVALID_REGISTRATION"

	// ErrCodeUnregisteredKind indicates an event kind with no registered model.
	ErrCodeUnregisteredKind RuntimeErrorCode = "UNREGISTERED_KIND"

	// ErrCodeModelFailed indicates a model callback returned an error.
	ErrCodeModelFailed RuntimeErrorCode = "MODEL_FAILED"

	// ErrCodeSinkFailed indicates the results sink rejected a year.
	ErrCodeSinkFailed RuntimeErrorCode = "SINK_FAILED"

	// ErrCodeInvalidYearRange indicates Run was asked to go backwards.
	ErrCodeInvalidYearRange RuntimeErrorCode = "INVALID_YEAR_RANGE"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Year != 0 && e.Model != "":
		msg += fmt.Sprintf(" (year=%d, model=%s)", e.Year, e.Model)
	case e.Year != 0:
		msg += fmt.Sprintf(" (year=%d)", e.Year)
	case e.Model != "":
		msg += fmt.Sprintf(" (model=%s)", e.Model)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// ErrorCode extracts the RuntimeErrorCode from err, if it wraps a RuntimeError.
func ErrorCode(err error) (RuntimeErrorCode, bool) {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code, true
	}
	return "", false
}

// IsFatal reports whether err must abort the run. Every RuntimeError is fatal;
// soft failures never surface as errors. Cancellation is not fatal.
func IsFatal(err error) bool {
	_, ok := ErrorCode(err)
	return ok
}

// IsDuplicateRegistration returns true if err is a duplicate registration error.
// Uses errors.As to handle wrapped errors.
func IsDuplicateRegistration(err error) bool {
	code, ok := ErrorCode(err)
	return ok && code == ErrCodeDuplicateRegistration
}

// IsUnregisteredKind returns true if err reports an event kind with no model.
func IsUnregisteredKind(err error) bool {
	code, ok := ErrorCode(err)
	return ok && code == ErrCodeUnregisteredKind
}

// IsModelFailure returns true if err originates from a model callback.
func IsModelFailure(err error) bool {
	code, ok := ErrorCode(err)
	return ok && code == ErrCodeModelFailed
}

// IsSinkFailure returns true if err originates from the results sink.
func IsSinkFailure(err error) bool {
	code, ok := ErrorCode(err)
	return ok && code == ErrCodeSinkFailed
}

func newDuplicateError(k event.Kind, existing, incoming string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeDuplicateRegistration,
		Message: fmt.Sprintf("kind %s already handled by %s", k, existing),
		Model:   incoming,
		Kind:    k,
	}
}

func newUnregisteredError(year int, k event.Kind) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnregisteredKind,
		Message: fmt.Sprintf("no model registered for kind %s", k),
		Year:    year,
		Kind:    k,
	}
}

func newModelError(year int, model, phase string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeModelFailed,
		Message: phase + " failed",
		Year:    year,
		Model:   model,
		Err:     err,
	}
}
