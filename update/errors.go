package update

import (
	"errors"
	"fmt"
)

var (
	// ErrFlashWriteFailed matches any *FlashWriteError.
	ErrFlashWriteFailed = errors.New("firmware write failed")

	// ErrRadioPatchFailed matches any *RadioPatchError.
	ErrRadioPatchFailed = errors.New("radio patch failed")
)

// FailedError is the terminal Failed state of an execution. State is the
// step that failed; Err carries the typed cause (*FlashWriteError,
// *firmware.InvalidImageError, ...). Flashed is set when the firmware
// write had been attempted before the failure.
type FailedError struct {
	State   State
	Flashed bool
	Err     error
}

func (e *FailedError) Error() string {
	msg := fmt.Sprintf("update failed while %s: %v", e.State, e.Err)
	if e.FirmwareMayBeWritten() {
		msg += " (the firmware write may already have taken effect)"
	}
	return msg
}

func (e *FailedError) Unwrap() error { return e.Err }

// FirmwareMayBeWritten reports whether the device can no longer be assumed
// to run its previous firmware. Radio-only plans never write firmware.
func (e *FailedError) FirmwareMayBeWritten() bool {
	return e.Flashed
}

// FlashWriteError indicates that the flashing primitive failed. The write
// is never retried: a partially written image is not resumable.
type FlashWriteError struct {
	Err error
}

func (e *FlashWriteError) Error() string {
	return fmt.Sprintf("firmware write failed: %v", e.Err)
}

func (e *FlashWriteError) Unwrap() error { return e.Err }

func (e *FlashWriteError) Is(target error) bool { return target == ErrFlashWriteFailed }

// RadioPatchError indicates that the radio patch could not be applied.
// An already flashed firmware is not rolled back.
type RadioPatchError struct {
	Err error
}

func (e *RadioPatchError) Error() string {
	return fmt.Sprintf("radio patch failed: %v", e.Err)
}

func (e *RadioPatchError) Unwrap() error { return e.Err }

func (e *RadioPatchError) Is(target error) bool { return target == ErrRadioPatchFailed }

// AcquireError indicates that an image could not be downloaded or read.
type AcquireError struct {
	Source Source
	Err    error
}

func (e *AcquireError) Error() string {
	return fmt.Sprintf("cannot acquire %s: %v", e.Source, e.Err)
}

func (e *AcquireError) Unwrap() error { return e.Err }

// SessionCloseError indicates that a live device session did not
// acknowledge Close in time.
type SessionCloseError struct {
	Err error
}

func (e *SessionCloseError) Error() string {
	return fmt.Sprintf("device session did not close: %v", e.Err)
}

func (e *SessionCloseError) Unwrap() error { return e.Err }

// TransitionError indicates an attempt to leave the execution path.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// InvalidTargetError indicates a positional argument that is neither a
// URL nor a local path.
type InvalidTargetError struct {
	Target string
}

func (e *InvalidTargetError) Error() string {
	return fmt.Sprintf("%q is neither a URL nor a local path (local paths start with ./, ../ or /)", e.Target)
}
