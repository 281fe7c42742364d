package device

import (
	"context"
	"fmt"
)

// Mode is the state a device was found in.
type Mode int

const (
	// ModeNormal means the application is running and reachable by Session
	ModeNormal Mode = iota

	// ModeBootloader means only the flashing endpoint is exposed
	ModeBootloader
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeBootloader:
		return "bootloader"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// State is what a probe learned about the target device. Bootloader
// devices report no versions.
type State struct {
	Mode            Mode
	FirmwareVersion string
	RadioVersion    string
}

// EventKind classifies session events.
type EventKind int

const (
	// EventError reports a transport error while the session is live
	EventError EventKind = iota

	// EventClose acknowledges that the session is closed
	EventClose
)

// Event is emitted by a Session on its Events channel.
type Event struct {
	Kind EventKind
	Err  error
}

// Session is a live connection to a device running its application.
type Session interface {
	// Listen starts delivering device events on Events.
	Listen(ctx context.Context) error

	// Events delivers error and close events. An EventClose follows Close.
	Events() <-chan Event

	// FirmwareVersion returns the running firmware build identifier.
	FirmwareVersion(ctx context.Context) (string, error)

	// RadioVersion returns the wifi co-processor patch version.
	RadioVersion(ctx context.Context) (string, error)

	// InBootloader reports whether the endpoint is in bootloader state.
	InBootloader(ctx context.Context) (bool, error)

	// Close ends the session. Completion is signalled by EventClose.
	Close() error
}

// Connector opens sessions to running devices.
type Connector interface {
	Connect(ctx context.Context) (Session, error)
}

// Handle identifies a device found in bootloader mode.
type Handle struct {
	// Path is the transport-specific address (USB path, directory, ...)
	Path string

	// Serial is the device serial number, if reported
	Serial string
}

// Flasher is the write primitive for devices in bootloader mode.
type Flasher interface {
	// Write programs a firmware image into flash. Not resumable.
	Write(ctx context.Context, image []byte) error

	// ApplyTransient loads an image into RAM and runs it without
	// persisting it (radio patches).
	ApplyTransient(ctx context.Context, image []byte) error

	// DetectBootloaderDevice returns the attached bootloader endpoint,
	// or nil when none is present.
	DetectBootloaderDevice(ctx context.Context) (*Handle, error)
}

// Logger is an optional logging interface. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}
