package capi

import "github.com/mxl-media/fabrics/internal/ferrors"

// Status mirrors internal/ferrors.Status at the C boundary: a plain integer
// a cgo shim can return by value instead of propagating a Go error.
type Status = ferrors.Status

const (
	StatusOK             = ferrors.StatusOK
	StatusInvalidArg     = ferrors.StatusInvalidArg
	StatusInvalidState   = ferrors.StatusInvalidState
	StatusNoFabric       = ferrors.StatusNoFabric
	StatusNotReady       = ferrors.StatusNotReady
	StatusTimeout        = ferrors.StatusTimeout
	StatusInterrupted    = ferrors.StatusInterrupted
	StatusNotFound       = ferrors.StatusNotFound
	StatusExists         = ferrors.StatusExists
	StatusBufferTooSmall = ferrors.StatusBufferTooSmall
	StatusInternal       = ferrors.StatusInternal
	StatusUnknown        = ferrors.StatusUnknown
)

// statusOf extracts the Status a cgo shim would return from err, the way the
// teacher's validator layer reduces a Go error to a single classification
// rather than a full error chain.
func statusOf(err error) Status {
	return ferrors.StatusOf(err)
}
