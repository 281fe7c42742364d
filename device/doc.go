// Package device defines the contracts the updater needs from a device
// and decides which mode a device is in.
//
// This package does NOT implement hardware communication. A transport
// provides three pieces:
//
//   - Connector opens a Session to a running device
//   - Session answers version queries and emits error/close events
//   - Flasher writes images to a device in bootloader (DFU) mode
//
// Detector combines them:
//
//	det := device.NewDetector(connector, flasher, device.WithLogger(logger))
//	state, session, err := det.Probe(ctx, device.Hint{DFU: dfuFlag})
//	if session != nil {
//	    defer session.Close()
//	}
//
// Package simdevice provides a directory-backed implementation for
// development and tests.
package device
