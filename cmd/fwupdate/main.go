// fwupdate checks for, selects and flashes firmware builds onto a device,
// following up with the radio patch a build expects.
//
// Usage:
//
//	fwupdate [flags] [URL | ./local/path]
//
// Without arguments the newest compatible build is flashed when the device
// is not already running it. --list shows the published builds, --build
// selects one by name or date, --wifi applies a radio patch on its own.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/moffa90/go-fwupdate/catalog"
	"github.com/moffa90/go-fwupdate/config"
	"github.com/moffa90/go-fwupdate/device"
	"github.com/moffa90/go-fwupdate/device/simdevice"
	"github.com/moffa90/go-fwupdate/update"
	"github.com/moffa90/go-fwupdate/version"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

// ExitError carries a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func (e *ExitError) ExitCode() int { return e.Code }

// exitUsage is the status for flag and argument errors.
const exitUsage = 2

type options struct {
	intent     update.Intent
	configPath string
	logLevel   string
	noColor    bool
	deviceDir  string
	version    bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	var opts options

	flagSet := pflag.NewFlagSet("fwupdate", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.Usage = func() {
		fmt.Fprintf(stderr, "Usage: fwupdate [flags] [URL | ./local/path]\n\nFlags:\n")
		flagSet.PrintDefaults()
	}

	flagSet.BoolVarP(&opts.intent.List, "list", "l", false, "list the available firmware builds")
	flagSet.StringVarP(&opts.intent.Wifi, "wifi", "w", "", "apply the radio patch with this version")
	flagSet.StringVarP(&opts.intent.Build, "build", "b", "", "flash the build with this name or date")
	flagSet.BoolVarP(&opts.intent.Force, "force", "f", false, "update even when already on the latest build")
	flagSet.BoolVarP(&opts.intent.DFU, "dfu", "d", false, "require a device in bootloader (DFU) mode")
	flagSet.StringVar(&opts.configPath, "config", "", "path to the config file (default: $"+config.EnvVar+")")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flagSet.BoolVar(&opts.noColor, "no-color", false, "disable styled output")
	flagSet.StringVar(&opts.deviceDir, "device-dir", "", "use the simulated device in this directory")
	flagSet.BoolVar(&opts.version, "version", false, "print version information and exit")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, &ExitError{Code: exitUsage, Err: err}
	}

	rest := flagSet.Args()
	switch len(rest) {
	case 0:
	case 1:
		opts.intent.Target = rest[0]
	default:
		return nil, &ExitError{Code: exitUsage, Err: fmt.Errorf("expected at most one URL or path, got %d arguments", len(rest))}
	}

	return &opts, nil
}

func run(args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	if opts.version {
		fmt.Fprintf(stdout, "fwupdate %s\n", version.Info())
		return nil
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.deviceDir != "" {
		cfg.Device.SimDir = opts.deviceDir
	}
	levelName := cfg.Log.Level
	if opts.logLevel != "" {
		levelName = opts.logLevel
	}
	level, err := parseLevel(levelName)
	if err != nil {
		return &ExitError{Code: exitUsage, Err: err}
	}
	color := cfg.Log.Color && !opts.noColor

	logger := newLogger(stderr, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return execute(ctx, opts.intent, cfg, logger, stdout, color)
}

// execute runs one invocation: probe, select, then list, report or flash.
func execute(ctx context.Context, intent update.Intent, cfg *config.Config, logger *slog.Logger, stdout io.Writer, color bool) error {
	source, err := catalog.NewHTTPSource(cfg.Catalog.BaseURL, catalog.WithTimeout(cfg.Catalog.Timeout.Std()))
	if err != nil {
		return err
	}

	selector := update.NewSelector(catalog.New(source), source, version.Short(),
		update.WithRadioTiming(update.RadioTiming{
			SettleDelay:  cfg.Radio.SettleDelay.Std(),
			PollInterval: cfg.Radio.PollInterval.Std(),
			PollCount:    cfg.Radio.PollCount,
		}),
		update.WithSelectorLogger(logger),
	)

	if intent.List {
		plan, err := selector.Select(ctx, intent, device.State{})
		if err != nil {
			return err
		}
		return renderListing(stdout, plan.(update.ListBuilds).Listing, color)
	}

	// Both stay untyped nil without a transport so the detector reports
	// the device as unreachable.
	var (
		connector device.Connector
		flasher   device.Flasher
	)
	if cfg.Device.SimDir != "" {
		sim := simdevice.Open(cfg.Device.SimDir)
		connector = sim
		flasher = sim
	}

	detector := device.NewDetector(connector, flasher, device.WithLogger(logger))
	state, monitor, err := detector.Probe(ctx, device.Hint{DFU: intent.DFU})
	if err != nil {
		return err
	}

	var session update.LiveSession
	if monitor != nil {
		defer monitor.Close()
		session = monitor
	}

	if state.Mode == device.ModeBootloader {
		logger.Info("Device is in bootloader mode")
	} else {
		logger.Info("Device found", "firmware", state.FirmwareVersion, "radio", state.RadioVersion)
	}

	logger.Info("Checking for latest firmware...")
	plan, err := selector.Select(ctx, intent, state)
	if err != nil {
		return err
	}

	if noop, ok := plan.(update.NoOp); ok {
		reportNoOp(logger, noop)
		return nil
	}

	if flasher == nil {
		return errors.New("no flashing transport available")
	}

	orch := update.New(flasher, source,
		update.WithLogger(logger),
		update.WithProgressCallback(func(p update.Progress) {
			logger.Debug("progress", "state", p.State.String(), "percent", p.Percentage,
				"bytes", p.BytesWritten, "elapsed", p.ElapsedTime)
		}),
	)
	return orch.Execute(ctx, plan, session)
}

func reportNoOp(logger *slog.Logger, noop update.NoOp) {
	switch noop.Reason {
	case update.NoOpAlreadyLatest:
		logger.Info("Device is already on the latest firmware build. You can force an update with \"fwupdate --force\"",
			"current", noop.Current)
	case update.NoOpCatalogUnavailable:
		logger.Warn("Could not reach the build server, not updating", "error", noop.Err)
	case update.NoOpNoBuilds:
		logger.Warn("The build server lists no builds, not updating")
	}
}
