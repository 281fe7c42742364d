// Package version provides build version information for fwupdate.
//
// Version information is injected at build time via -ldflags, for example:
//
//	go build -ldflags "-X github.com/moffa90/go-fwupdate/version.Version=0.4.2"
//
// Nothing in the update packages reads these variables directly. The CLI
// passes Short() into update.Selector so compatibility checks stay free of
// hidden global state.
package version

import (
	"fmt"
	"runtime"
)

// These variables are set via -ldflags at build time.
var (
	// Version is the released tool version compared against a build's
	// min_cli/max_cli range.
	Version = "0.0.0-dev"

	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"
)

// Short returns just the version number.
func Short() string {
	return Version
}

// Info returns a formatted version string suitable for --version output.
func Info() string {
	return fmt.Sprintf("%s (%s, %s %s/%s)", Version, GitCommit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
