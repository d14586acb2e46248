// Package ferrors defines the status taxonomy for the fabrics transport core.
//
// Every failure that crosses a package boundary in this module is one of the
// Status values below, wrapped in an *Error carrying the operation that
// failed, the underlying cause (if any), and actionable detail. This mirrors
// the teacher's internal/errors package (NetworkError/ValidationError/
// WireFormatError), generalised to the taxonomy the fabrics core needs.
package ferrors

import (
	"errors"
	"fmt"
)

// Status enumerates the fabrics core's error taxonomy.
type Status int

const (
	// StatusOK is never carried by an *Error; it exists so zero-value Status
	// reads as "no error" rather than aliasing a real failure.
	StatusOK Status = iota

	// StatusInvalidArg covers malformed inputs, unknown providers, and nil handles.
	StatusInvalidArg

	// StatusInvalidState covers operations attempted on an uninitialised or closed handle.
	StatusInvalidState

	// StatusNoFabric means no provider met the requested capabilities.
	StatusNoFabric

	// StatusNotReady is a signalling value, not an error: the non-blocking path has
	// nothing to report yet.
	StatusNotReady

	// StatusTimeout means a blocking wait expired without progress.
	StatusTimeout

	// StatusInterrupted means a peer shutdown was observed during a wait.
	StatusInterrupted

	// StatusNotFound means removeTarget (or similar) was given an unknown target.
	StatusNotFound

	// StatusExists means addTarget was given an id that is already registered.
	StatusExists

	// StatusBufferTooSmall means a caller-supplied buffer could not hold the result.
	StatusBufferTooSmall

	// StatusInternal covers invariant violations inside this module.
	StatusInternal

	// StatusUnknown is the residual case for errors this module can't classify.
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusInvalidArg:
		return "InvalidArg"
	case StatusInvalidState:
		return "InvalidState"
	case StatusNoFabric:
		return "NoFabric"
	case StatusNotReady:
		return "NotReady"
	case StatusTimeout:
		return "Timeout"
	case StatusInterrupted:
		return "Interrupted"
	case StatusNotFound:
		return "NotFound"
	case StatusExists:
		return "Exists"
	case StatusBufferTooSmall:
		return "BufferTooSmall"
	case StatusInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned across fabrics package boundaries.
type Error struct {
	Status    Status
	Operation string
	Detail    string
	Err       error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Detail != "":
		return fmt.Sprintf("%s: %s during %s: %v", e.Status, e.Detail, e.Operation, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s during %s: %v", e.Status, e.Operation, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s during %s: %s", e.Status, e.Operation, e.Detail)
	default:
		return fmt.Sprintf("%s during %s", e.Status, e.Operation)
	}
}

// Unwrap enables errors.Is/As to see through to the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an *Error with no underlying cause.
func New(status Status, operation, detail string) *Error {
	return &Error{Status: status, Operation: operation, Detail: detail}
}

// Wrap creates an *Error around an underlying cause.
func Wrap(status Status, operation string, err error) *Error {
	return &Error{Status: status, Operation: operation, Err: err}
}

// WrapDetail creates an *Error around an underlying cause with additional detail.
func WrapDetail(status Status, operation, detail string, err error) *Error {
	return &Error{Status: status, Operation: operation, Detail: detail, Err: err}
}

// Is reports whether err carries the given Status, anywhere in its chain.
func Is(err error, status Status) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Status == status
	}
	return false
}

// StatusOf extracts the Status from err, or StatusUnknown if err isn't an *Error.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Status
	}
	return StatusUnknown
}
