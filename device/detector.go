package device

import (
	"context"
	"errors"
	"fmt"
)

// errNoTransport is reported when no Connector is configured.
var errNoTransport = errors.New("no device transport configured")

// Hint carries the user's intent into a probe.
type Hint struct {
	// DFU requires the device to be found in bootloader mode
	DFU bool
}

// Detector determines whether the target device is running or sitting in
// its bootloader.
type Detector struct {
	connector Connector
	flasher   Flasher
	logger    Logger
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithLogger sets a logger for probe decisions and session events.
func WithLogger(logger Logger) DetectorOption {
	return func(d *Detector) {
		d.logger = logger
	}
}

// NewDetector creates a Detector. Either collaborator may be nil, which
// disables the corresponding probe.
func NewDetector(connector Connector, flasher Flasher, opts ...DetectorOption) *Detector {
	d := &Detector{
		connector: connector,
		flasher:   flasher,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Probe tries the bootloader endpoint first, then a normal session.
//
// A device found on the bootloader endpoint is returned with a nil
// Monitor. Otherwise the Monitor owns the session, including one that
// reports bootloader state; the caller must close it and wait for Done
// before flashing.
//
// With hint.DFU set, a missing bootloader endpoint is ErrNoDFUDevice and
// the session probe is not attempted.
func (d *Detector) Probe(ctx context.Context, hint Hint) (State, *Monitor, error) {
	// Probe (a): locally attached bootloader endpoints.
	var bootErr error
	if d.flasher != nil {
		handle, err := d.flasher.DetectBootloaderDevice(ctx)
		switch {
		case err != nil:
			bootErr = err
			d.logDebug("bootloader probe failed", "error", err)
		case handle != nil:
			d.logDebug("found device in bootloader mode", "path", handle.Path, "serial", handle.Serial)
			return State{Mode: ModeBootloader}, nil, nil
		}
	}

	if hint.DFU {
		if bootErr != nil {
			return State{}, nil, fmt.Errorf("%w: %v", ErrNoDFUDevice, bootErr)
		}
		return State{}, nil, ErrNoDFUDevice
	}

	// Probe (b): a session to the running application.
	if d.connector == nil {
		return State{}, nil, &UnreachableError{BootloaderErr: bootErr, SessionErr: errNoTransport}
	}

	session, err := d.connector.Connect(ctx)
	if err != nil {
		return State{}, nil, &UnreachableError{BootloaderErr: bootErr, SessionErr: err}
	}

	inBootloader, err := session.InBootloader(ctx)
	if err != nil {
		_ = session.Close()
		return State{}, nil, &UnreachableError{BootloaderErr: bootErr, SessionErr: fmt.Errorf("query device mode: %w", err)}
	}
	if inBootloader {
		d.logDebug("session endpoint reports bootloader mode")
		return State{Mode: ModeBootloader}, Watch(session, d.logger), nil
	}

	firmwareVersion, err := session.FirmwareVersion(ctx)
	if err != nil {
		_ = session.Close()
		return State{}, nil, &UnreachableError{BootloaderErr: bootErr, SessionErr: fmt.Errorf("query firmware version: %w", err)}
	}

	// A device that cannot report its radio version still gets updated;
	// the radio comparison is simply skipped.
	radioVersion, err := session.RadioVersion(ctx)
	if err != nil {
		d.logDebug("radio version unavailable", "error", err)
		radioVersion = ""
	}

	if err := session.Listen(ctx); err != nil {
		_ = session.Close()
		return State{}, nil, &UnreachableError{BootloaderErr: bootErr, SessionErr: fmt.Errorf("listen: %w", err)}
	}

	state := State{
		Mode:            ModeNormal,
		FirmwareVersion: firmwareVersion,
		RadioVersion:    radioVersion,
	}
	d.logDebug("device running", "firmware", firmwareVersion, "radio", radioVersion)

	return state, Watch(session, d.logger), nil
}

func (d *Detector) logDebug(msg string, keysAndValues ...interface{}) {
	if d.logger != nil {
		d.logger.Debug(msg, keysAndValues...)
	}
}
