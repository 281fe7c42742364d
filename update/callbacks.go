package update

import "time"

// Progress describes where an execution is. It is passed to
// ProgressCallback on every state transition and on every settle
// heartbeat.
type Progress struct {
	// State is the step now running:
	//   acquiring            - downloading or reading images
	//   validating           - decoding and checking images
	//   disconnecting        - closing the live device session
	//   flashing             - writing the main firmware
	//   awaiting-reboot      - waiting for the device to restart
	//   applying-radio-patch - uploading the radio patch to RAM
	//   settling             - waiting for the radio patch to take effect
	//   done / failed        - terminal
	State State

	// Percentage is the share of the execution path completed (0.0 to 100.0)
	Percentage float64

	// BytesWritten is the number of image bytes handed to the flasher so far
	BytesWritten int

	// Heartbeat is the settle heartbeat just emitted (1-based), 0 outside Settling
	Heartbeat int

	// Heartbeats is the number of heartbeats in the settle window
	Heartbeats int

	// ElapsedTime is the time since execution started
	ElapsedTime time.Duration
}

// ProgressCallback is called as an execution advances. Implementations
// should return quickly; Settling heartbeats are timed around them.
//
// Example:
//
//	orch := update.New(flasher, source,
//	    update.WithProgressCallback(func(p update.Progress) {
//	        fmt.Fprintf(os.Stderr, "[%s] %.0f%%\n", p.State, p.Percentage)
//	    }),
//	)
type ProgressCallback func(Progress)

// Logger is an optional logging interface. *slog.Logger satisfies it.
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}
