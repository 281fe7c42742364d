package update

import (
	"fmt"
	"time"

	"github.com/moffa90/go-fwupdate/catalog"
)

// Radio patch timing defaults. The radio module gives no completion
// signal, so these are fixed waits.
const (
	// DefaultSettleDelay is the wait after flashing for the device to reboot
	DefaultSettleDelay = 1 * time.Second

	// DefaultPollInterval is the heartbeat interval while the patch settles
	DefaultPollInterval = 2500 * time.Millisecond

	// DefaultPollCount is the number of heartbeats in the settle window
	DefaultPollCount = 5
)

// SourceKind says where an image comes from.
type SourceKind int

const (
	// SourceURL is downloaded over HTTP
	SourceURL SourceKind = iota

	// SourceFile is read from the local filesystem
	SourceFile
)

func (k SourceKind) String() string {
	switch k {
	case SourceURL:
		return "url"
	case SourceFile:
		return "file"
	default:
		return fmt.Sprintf("SourceKind(%d)", int(k))
	}
}

// Source locates one image.
type Source struct {
	Kind SourceKind

	// Location is an absolute URL or a local path
	Location string

	// Digest is the expected BLAKE3 hex digest, empty when unpublished
	Digest string
}

func (s Source) String() string {
	return s.Location
}

// RadioTiming is the post-flash wait contract for a radio patch.
type RadioTiming struct {
	// SettleDelay is waited after flashing, before the patch is uploaded
	SettleDelay time.Duration

	// PollInterval is the heartbeat interval after the upload
	PollInterval time.Duration

	// PollCount is the number of heartbeats; the settle window is
	// PollInterval * PollCount
	PollCount int
}

// DefaultRadioTiming returns the timing used when nothing is configured.
func DefaultRadioTiming() RadioTiming {
	return RadioTiming{
		SettleDelay:  DefaultSettleDelay,
		PollInterval: DefaultPollInterval,
		PollCount:    DefaultPollCount,
	}
}

// RadioPatch is a radio co-processor image and its wait contract.
type RadioPatch struct {
	Source  Source
	Version catalog.RadioVersion
	RadioTiming
}

// SettleWindow is the total fixed wait after the patch is uploaded.
func (r RadioPatch) SettleWindow() time.Duration {
	return r.PollInterval * time.Duration(r.PollCount)
}

// Plan is the fully resolved outcome of selection. The concrete types are
// NoOp, ApplyFirmware, ApplyRadioOnly and ListBuilds.
type Plan interface {
	isPlan()
	String() string
}

// NoOpReason explains why nothing will be flashed.
type NoOpReason int

const (
	// NoOpAlreadyLatest means the device runs the newest build
	NoOpAlreadyLatest NoOpReason = iota

	// NoOpCatalogUnavailable means the build list could not be fetched
	NoOpCatalogUnavailable

	// NoOpNoBuilds means the catalog is empty
	NoOpNoBuilds
)

func (r NoOpReason) String() string {
	switch r {
	case NoOpAlreadyLatest:
		return "already latest"
	case NoOpCatalogUnavailable:
		return "catalog unavailable"
	case NoOpNoBuilds:
		return "no builds"
	default:
		return fmt.Sprintf("NoOpReason(%d)", int(r))
	}
}

// NoOp leaves the device alone.
type NoOp struct {
	Reason NoOpReason

	// Current is the device firmware version, for NoOpAlreadyLatest
	Current string

	// Err is the catalog error, for NoOpCatalogUnavailable
	Err error
}

// ApplyFirmware flashes a main firmware image, optionally followed by a
// radio patch.
type ApplyFirmware struct {
	Source Source

	// Build is the catalog entry, nil for explicit URLs and local files
	Build *catalog.Build

	// Radio is applied after the firmware, nil when not needed
	Radio *RadioPatch
}

// ApplyRadioOnly applies a radio patch without touching the firmware.
type ApplyRadioOnly struct {
	Radio RadioPatch
}

// ListBuilds shows the available builds.
type ListBuilds struct {
	Listing catalog.Listing
}

func (NoOp) isPlan()           {}
func (ApplyFirmware) isPlan()  {}
func (ApplyRadioOnly) isPlan() {}
func (ListBuilds) isPlan()     {}

func (p NoOp) String() string {
	return fmt.Sprintf("no-op (%s)", p.Reason)
}

func (p ApplyFirmware) String() string {
	if p.Radio != nil {
		return fmt.Sprintf("apply firmware %s, then radio patch %s", p.Source, p.Radio.Source)
	}
	return fmt.Sprintf("apply firmware %s", p.Source)
}

func (p ApplyRadioOnly) String() string {
	return fmt.Sprintf("apply radio patch %s", p.Radio.Source)
}

func (p ListBuilds) String() string {
	return fmt.Sprintf("list %d builds", len(p.Listing.Entries))
}
