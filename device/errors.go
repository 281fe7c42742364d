package device

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDFUDevice indicates that DFU mode was requested but no
	// bootloader endpoint is attached.
	ErrNoDFUDevice = errors.New("no device in DFU mode found")

	// ErrDeviceUnreachable matches any *UnreachableError.
	ErrDeviceUnreachable = errors.New("device unreachable")

	// ErrNotFound is returned by transports when nothing is attached.
	// Sessions emit it in EventError to mean "cannot connect locally".
	ErrNotFound = errors.New("device not found")
)

// UnreachableError indicates that neither the bootloader probe nor the
// normal session probe reached a device.
type UnreachableError struct {
	// BootloaderErr is the bootloader enumeration error, if any
	BootloaderErr error

	// SessionErr is the session probe error
	SessionErr error
}

func (e *UnreachableError) Error() string {
	if e.BootloaderErr != nil {
		return fmt.Sprintf("device unreachable: bootloader probe: %v; session probe: %v", e.BootloaderErr, e.SessionErr)
	}
	return fmt.Sprintf("device unreachable: %v", e.SessionErr)
}

func (e *UnreachableError) Unwrap() []error {
	errs := make([]error, 0, 2)
	for _, err := range []error{e.BootloaderErr, e.SessionErr} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (e *UnreachableError) Is(target error) bool { return target == ErrDeviceUnreachable }
