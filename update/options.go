package update

import "time"

// DefaultCloseTimeout bounds the wait for a live session to acknowledge
// Close before flashing.
const DefaultCloseTimeout = 10 * time.Second

// Config holds the orchestrator configuration.
type Config struct {
	// ProgressCallback is called on every transition and heartbeat (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging execution steps (optional)
	Logger Logger

	// CloseTimeout is how long Disconnecting waits for the session's
	// close acknowledgment
	CloseTimeout time.Duration
}

func defaultConfig() Config {
	return Config{
		CloseTimeout: DefaultCloseTimeout,
	}
}

// Option is a functional option for configuring the Orchestrator.
type Option func(*Config)

// WithProgressCallback sets a callback function to track execution progress.
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets a logger for the orchestrator.
//
// Example:
//
//	orch := update.New(flasher, source, update.WithLogger(slog.Default()))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithCloseTimeout sets the session close acknowledgment timeout.
// Non-positive values are ignored.
func WithCloseTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.CloseTimeout = timeout
		}
	}
}

// selectorConfig holds the selector configuration.
type selectorConfig struct {
	radioTiming RadioTiming
	logger      Logger
}

// SelectorOption is a functional option for configuring the Selector.
type SelectorOption func(*selectorConfig)

// WithRadioTiming sets the wait contract attached to every radio patch
// the selector plans. Zero fields keep their defaults.
func WithRadioTiming(timing RadioTiming) SelectorOption {
	return func(c *selectorConfig) {
		if timing.SettleDelay > 0 {
			c.radioTiming.SettleDelay = timing.SettleDelay
		}
		if timing.PollInterval > 0 {
			c.radioTiming.PollInterval = timing.PollInterval
		}
		if timing.PollCount > 0 {
			c.radioTiming.PollCount = timing.PollCount
		}
	}
}

// WithSelectorLogger sets a logger for selection decisions.
func WithSelectorLogger(logger Logger) SelectorOption {
	return func(c *selectorConfig) {
		c.logger = logger
	}
}
