package catalog

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is matching against the typed errors below.
var (
	ErrCatalogUnavailable = errors.New("build catalog unavailable")
	ErrBuildNotFound      = errors.New("build not found")
	ErrIncompatibleCLI    = errors.New("incompatible CLI version")
)

// UnavailableError indicates that the build list could not be fetched or
// decoded. Callers treat it as "no builds known".
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("build catalog unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrCatalogUnavailable }

// BuildNotFoundError indicates that no catalog entry matches an explicit
// build name.
type BuildNotFoundError struct {
	Name string
}

func (e *BuildNotFoundError) Error() string {
	return fmt.Sprintf("no build named %q in the catalog", e.Name)
}

func (e *BuildNotFoundError) Is(target error) bool { return target == ErrBuildNotFound }

// IncompatibleCLIError indicates that the running tool version falls
// outside the range a build declares.
type IncompatibleCLIError struct {
	Min  string
	Max  string
	Self string
}

func (e *IncompatibleCLIError) Error() string {
	return fmt.Sprintf("CLI version %s is not supported with this firmware build: CLI must be between %s and %s",
		displayVersion(e.Self), displayBound(e.Min), displayBound(e.Max))
}

func (e *IncompatibleCLIError) Is(target error) bool { return target == ErrIncompatibleCLI }

func displayBound(bound string) string {
	if bound == "" {
		return Unbounded
	}
	return bound
}

func displayVersion(v string) string {
	if v == "" {
		return "(unknown)"
	}
	return v
}
