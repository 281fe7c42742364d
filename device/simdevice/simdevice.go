// Package simdevice is a directory-backed device for development and
// tests. It implements device.Connector and device.Flasher against files:
//
//	<dir>/state.yaml   mode, firmware and radio versions, serial
//	<dir>/flash.bin    the last image written to flash
//	<dir>/radio.bin    the last radio patch applied to RAM
//
// A written image is identified by the first 12 hex characters of its
// BLAKE3 digest, which becomes the reported firmware version.
package simdevice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/moffa90/go-fwupdate/device"
	"github.com/moffa90/go-fwupdate/firmware"
)

// File names inside a device directory.
const (
	StateFile = "state.yaml"
	FlashFile = "flash.bin"
	RadioFile = "radio.bin"

	versionDigestLength = 12
)

// Modes stored in state.yaml.
const (
	ModeNormal     = "normal"
	ModeBootloader = "bootloader"
)

// ErrSessionOpen is returned by Write and ApplyTransient while a session
// to the running application is still open.
var ErrSessionOpen = errors.New("device busy: a session is still open")

// State is the content of state.yaml.
type State struct {
	Mode     string `yaml:"mode"`
	Firmware string `yaml:"firmware,omitempty"`
	Radio    string `yaml:"radio,omitempty"`
	Serial   string `yaml:"serial,omitempty"`
}

// Device is a simulated device rooted at a directory.
//
// Device is safe for concurrent use.
type Device struct {
	dir string

	mu       sync.Mutex
	sessions int
}

// Init creates dir and writes an initial state.
func Init(dir string, st State) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create device directory: %w", err)
	}
	if st.Mode == "" {
		st.Mode = ModeNormal
	}
	return writeState(dir, st)
}

// Open attaches to the device rooted at dir. The directory need not hold
// a state yet; probes report device.ErrNotFound until it does.
func Open(dir string) *Device {
	return &Device{dir: dir}
}

// Dir returns the device directory.
func (d *Device) Dir() string {
	return d.dir
}

// State reads state.yaml.
func (d *Device) State() (State, error) {
	return readState(d.dir)
}

// Connect opens a session to the device.
func (d *Device) Connect(ctx context.Context) (device.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := readState(d.dir); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.sessions++
	d.mu.Unlock()

	return &session{
		device: d,
		events: make(chan device.Event, 1),
	}, nil
}

// DetectBootloaderDevice reports the device when its state is bootloader.
func (d *Device) DetectBootloaderDevice(ctx context.Context) (*device.Handle, error) {
	st, err := readState(d.dir)
	if errors.Is(err, device.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if st.Mode != ModeBootloader {
		return nil, nil
	}
	return &device.Handle{Path: d.dir, Serial: st.Serial}, nil
}

// Write stores image as the flash content. The device then reboots into
// its application.
func (d *Device) Write(ctx context.Context, image []byte) error {
	if err := d.checkIdle(); err != nil {
		return err
	}

	st, err := readState(d.dir)
	if err != nil {
		return err
	}

	if err := writeFileAtomic(filepath.Join(d.dir, FlashFile), image); err != nil {
		return fmt.Errorf("write flash: %w", err)
	}

	st.Mode = ModeNormal
	st.Firmware = firmware.Digest(image)[:versionDigestLength]
	return writeState(d.dir, st)
}

// ApplyTransient stores image as the RAM-applied radio patch.
func (d *Device) ApplyTransient(ctx context.Context, image []byte) error {
	if err := d.checkIdle(); err != nil {
		return err
	}

	st, err := readState(d.dir)
	if err != nil {
		return err
	}
	if st.Mode != ModeNormal {
		return fmt.Errorf("apply radio patch: device is in %s mode", st.Mode)
	}

	if err := writeFileAtomic(filepath.Join(d.dir, RadioFile), image); err != nil {
		return fmt.Errorf("write radio patch: %w", err)
	}

	st.Radio = firmware.Digest(image)[:versionDigestLength]
	return writeState(d.dir, st)
}

func (d *Device) checkIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sessions > 0 {
		return ErrSessionOpen
	}
	return nil
}

func (d *Device) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sessions > 0 {
		d.sessions--
	}
}

// session is a device.Session on a simulated device.
type session struct {
	device *Device
	events chan device.Event

	closeOnce sync.Once
}

func (s *session) Listen(ctx context.Context) error {
	return ctx.Err()
}

func (s *session) Events() <-chan device.Event {
	return s.events
}

func (s *session) FirmwareVersion(ctx context.Context) (string, error) {
	st, err := readState(s.device.dir)
	if err != nil {
		return "", err
	}
	return st.Firmware, nil
}

func (s *session) RadioVersion(ctx context.Context) (string, error) {
	st, err := readState(s.device.dir)
	if err != nil {
		return "", err
	}
	return st.Radio, nil
}

func (s *session) InBootloader(ctx context.Context) (bool, error) {
	st, err := readState(s.device.dir)
	if err != nil {
		return false, err
	}
	return st.Mode == ModeBootloader, nil
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.device.release()
		s.events <- device.Event{Kind: device.EventClose}
		close(s.events)
	})
	return nil
}

func readState(dir string) (State, error) {
	data, err := os.ReadFile(filepath.Join(dir, StateFile))
	if errors.Is(err, os.ErrNotExist) {
		return State{}, fmt.Errorf("%w: no %s in %s", device.ErrNotFound, StateFile, dir)
	}
	if err != nil {
		return State{}, fmt.Errorf("read device state: %w", err)
	}

	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("parse device state: %w", err)
	}
	switch st.Mode {
	case ModeNormal, ModeBootloader:
	default:
		return State{}, fmt.Errorf("parse device state: unknown mode %q", st.Mode)
	}
	return st, nil
}

func writeState(dir string, st State) error {
	data, err := yaml.Marshal(&st)
	if err != nil {
		return fmt.Errorf("encode device state: %w", err)
	}
	return writeFileAtomic(filepath.Join(dir, StateFile), data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
