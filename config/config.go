// Package config loads the fwupdate configuration file.
//
// The file is named by the --config flag or, failing that, the
// FWUPDATE_CONFIG environment variable. There is no automatic discovery:
// without either, the built-in defaults apply.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/moffa90/go-fwupdate/catalog"
	"github.com/moffa90/go-fwupdate/update"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "FWUPDATE_CONFIG"

// Config is the fwupdate configuration.
type Config struct {
	// Catalog configures where builds are published.
	Catalog CatalogConfig `yaml:"catalog"`

	// Radio configures the radio patch wait contract.
	Radio RadioConfig `yaml:"radio"`

	// Device configures the device transport.
	Device DeviceConfig `yaml:"device"`

	// Log configures CLI output.
	Log LogConfig `yaml:"log"`
}

// CatalogConfig configures the build catalog.
type CatalogConfig struct {
	// BaseURL is the build server root; builds.json and the images are
	// resolved against it.
	// Default: https://builds.tessel.io/
	BaseURL string `yaml:"base_url"`

	// Timeout bounds each catalog or image request.
	// Default: 30s
	Timeout Duration `yaml:"timeout"`
}

// RadioConfig configures the fixed waits around a radio patch.
type RadioConfig struct {
	// SettleDelay is waited after flashing before the patch is uploaded.
	// Default: 1s
	SettleDelay Duration `yaml:"settle_delay"`

	// PollInterval is the heartbeat interval while the patch settles.
	// Default: 2.5s
	PollInterval Duration `yaml:"poll_interval"`

	// PollCount is the number of heartbeats in the settle window.
	// Default: 5
	PollCount int `yaml:"poll_count"`
}

// DeviceConfig configures the device transport.
type DeviceConfig struct {
	// SimDir is the directory of a simulated device. ${HOME}-style
	// variables are expanded.
	SimDir string `yaml:"sim_dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// Color enables styled output on terminals.
	// Default: true
	Color bool `yaml:"color"`
}

// Duration is a time.Duration written as a Go duration string ("2.5s").
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string like \"2.5s\"", node.Line)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Catalog: CatalogConfig{
			BaseURL: catalog.DefaultBaseURL,
			Timeout: Duration(catalog.DefaultTimeout),
		},
		Radio: RadioConfig{
			SettleDelay:  Duration(update.DefaultSettleDelay),
			PollInterval: Duration(update.DefaultPollInterval),
			PollCount:    update.DefaultPollCount,
		},
		Log: LogConfig{
			Level: "info",
			Color: true,
		},
	}
}

// Load reads the configuration from path, or from the file named by
// FWUPDATE_CONFIG when path is empty. With neither, it returns Default().
// Values missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}

	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.Device.SimDir = os.ExpandEnv(cfg.Device.SimDir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the configuration for values the update flow cannot use.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Catalog.BaseURL)
	switch {
	case c.Catalog.BaseURL == "":
		errs = append(errs, errors.New("catalog.base_url is required"))
	case err != nil:
		errs = append(errs, fmt.Errorf("catalog.base_url: %w", err))
	case (u.Scheme != "http" && u.Scheme != "https") || u.Host == "":
		errs = append(errs, fmt.Errorf("catalog.base_url %q must be an absolute http(s) URL", c.Catalog.BaseURL))
	}

	if c.Catalog.Timeout <= 0 {
		errs = append(errs, errors.New("catalog.timeout must be positive"))
	}
	if c.Radio.SettleDelay <= 0 {
		errs = append(errs, errors.New("radio.settle_delay must be positive"))
	}
	if c.Radio.PollInterval <= 0 {
		errs = append(errs, errors.New("radio.poll_interval must be positive"))
	}
	if c.Radio.PollCount <= 0 {
		errs = append(errs, errors.New("radio.poll_count must be positive"))
	}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Errorf("log.level %q must be one of debug, info, warn, error", c.Log.Level))
	}

	return errors.Join(errs...)
}
