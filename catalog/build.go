package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Catalog layout constants.
const (
	// FirmwareDir is the catalog-relative directory holding main firmware builds
	FirmwareDir = "firmware/"

	// RadioDir is the catalog-relative directory holding radio patches
	RadioDir = "wifi/"

	// ImageExt is the extension of every published image
	ImageExt = ".bin"
)

var datePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// Build is one published artifact as listed in builds.json.
type Build struct {
	// URL is the catalog-relative location, e.g. "firmware/tessel-firmware-2014-05-20.bin"
	URL string `json:"url"`

	// MinCLI is the lowest tool version allowed to flash this build ("" or "*" for none)
	MinCLI string `json:"min_cli,omitempty"`

	// MaxCLI is the highest tool version allowed to flash this build ("" or "*" for none)
	MaxCLI string `json:"max_cli,omitempty"`

	// Wifi is the radio patch version this firmware expects (optional)
	Wifi RadioVersion `json:"wifi,omitempty"`

	// Digest is the BLAKE3 hex digest of the image (optional)
	Digest string `json:"digest,omitempty"`
}

// Name returns the base file name without its extension.
func (b Build) Name() string {
	base := path.Base(b.URL)
	return strings.TrimSuffix(base, path.Ext(base))
}

// Tag returns the release date embedded in the URL, or "" for an undated
// (current) build.
func (b Build) Tag() string {
	return datePattern.FindString(b.URL)
}

// IsFirmware reports whether the build is a main firmware image rather
// than a radio-only artifact.
func (b Build) IsFirmware() bool {
	return len(b.URL) > len(FirmwareDir) &&
		strings.HasPrefix(b.URL, FirmwareDir) &&
		strings.HasSuffix(b.URL, ImageExt)
}

// Matches reports whether id names this build by URL, name or date tag.
func (b Build) Matches(id string) bool {
	if id == "" {
		return false
	}
	if id == b.URL || id == b.Name() {
		return true
	}
	tag := b.Tag()
	return tag != "" && id == tag
}

// RadioPath returns the catalog-relative location of the radio patch
// with the given version.
func RadioPath(version RadioVersion) string {
	return RadioDir + string(version) + ImageExt
}

// RadioVersion is a radio patch version tag. The build server has
// published it both as a JSON string and as a bare number.
type RadioVersion string

// UnmarshalJSON accepts "1.28", 1.28 and null.
func (v *RadioVersion) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = RadioVersion(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("wifi version must be a string or number: %w", err)
	}
	*v = RadioVersion(n.String())
	return nil
}
