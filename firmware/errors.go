package firmware

import (
	"errors"
	"fmt"
)

// ErrInvalidImage matches any *InvalidImageError.
var ErrInvalidImage = errors.New("invalid firmware image")

// InvalidImageError indicates that an image failed structural validation
// and must not be flashed.
type InvalidImageError struct {
	// Reason describes the failed check
	Reason string

	// Err is the underlying decode error, if any
	Err error
}

func (e *InvalidImageError) Error() string {
	if e.Reason == "" {
		return "file is not a valid firmware image"
	}
	return fmt.Sprintf("file is not a valid firmware image: %s", e.Reason)
}

func (e *InvalidImageError) Unwrap() error { return e.Err }

func (e *InvalidImageError) Is(target error) bool { return target == ErrInvalidImage }

// DigestMismatchError indicates that an image does not hash to the digest
// the catalog published for it.
type DigestMismatchError struct {
	Expected string
	Actual   string
}

func (e *DigestMismatchError) Error() string {
	return fmt.Sprintf("digest mismatch: catalog lists %s, image hashes to %s", e.Expected, e.Actual)
}

func (e *DigestMismatchError) Is(target error) bool { return target == ErrInvalidImage }
