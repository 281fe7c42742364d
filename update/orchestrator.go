package update

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/moffa90/go-fwupdate/device"
	"github.com/moffa90/go-fwupdate/firmware"
)

// Fetcher downloads images named by URL.
type Fetcher interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// LiveSession is an open device session that must be closed before
// flashing. *device.Monitor satisfies it.
type LiveSession interface {
	// Close asks the session to close
	Close() error

	// Done is closed once the close has been acknowledged
	Done() <-chan struct{}
}

// Orchestrator executes plans against a device.
type Orchestrator struct {
	flasher device.Flasher
	fetcher Fetcher
	config  Config
}

// New creates a new Orchestrator.
//
// Example:
//
//	orch := update.New(flasher, source,
//	    update.WithLogger(logger),
//	    update.WithProgressCallback(func(p update.Progress) { ... }),
//	)
func New(flasher device.Flasher, fetcher Fetcher, opts ...Option) *Orchestrator {
	if flasher == nil {
		panic("flasher cannot be nil")
	}
	if fetcher == nil {
		panic("fetcher cannot be nil")
	}

	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return &Orchestrator{
		flasher: flasher,
		fetcher: fetcher,
		config:  config,
	}
}

// execution is the in-flight state of one Execute call.
type execution struct {
	machine      *machine
	startTime    time.Time
	bytesWritten int

	// flashed is set once the firmware write has been attempted
	flashed bool

	firmwareData []byte
	patchData    []byte
}

// Execute runs an ApplyFirmware or ApplyRadioOnly plan. NoOp and
// ListBuilds need no device work and return nil immediately.
//
// session is the live device session, or nil when the device was found
// in bootloader mode. A failing step returns *FailedError wrapping the
// typed cause; once Flashing has begun, cancelling ctx takes effect only
// after the write returns.
func (o *Orchestrator) Execute(ctx context.Context, plan Plan, session LiveSession) error {
	var (
		path  []State
		fw    *Source
		radio *RadioPatch
	)

	switch p := plan.(type) {
	case ApplyFirmware:
		fw = &p.Source
		radio = p.Radio
		path = firmwarePath
		if radio != nil {
			path = firmwareRadioPath
		}
	case ApplyRadioOnly:
		radio = &p.Radio
		path = radioOnlyPath
	case NoOp, ListBuilds:
		return nil
	default:
		return fmt.Errorf("unsupported plan %T", plan)
	}

	exec := &execution{startTime: time.Now()}
	exec.machine = newMachine(path, func(from, to State) {
		o.logDebug("state transition", "from", from.String(), "to", to.String())
		o.reportProgress(exec, 0, 0)
	})

	o.logInfo("Starting update", "plan", plan.String())

	if err := o.run(ctx, exec, fw, radio, session); err != nil {
		var transition *TransitionError
		if errors.As(err, &transition) {
			return err
		}
		at := exec.machine.fail()
		o.logError("update failed", "state", at.String(), "error", err)
		return &FailedError{State: at, Flashed: exec.flashed, Err: err}
	}

	o.logInfo("Update complete", "elapsed", time.Since(exec.startTime))
	return nil
}

func (o *Orchestrator) run(ctx context.Context, exec *execution, fw *Source, radio *RadioPatch, session LiveSession) error {
	// Acquiring
	if err := o.step(ctx, exec, StateAcquiring); err != nil {
		return err
	}
	if fw != nil {
		data, err := o.acquire(ctx, *fw)
		if err != nil {
			return err
		}
		exec.firmwareData = data
	}
	if radio != nil {
		data, err := o.acquire(ctx, radio.Source)
		if err != nil {
			return err
		}
		exec.patchData = data
	}

	// Validating
	if err := o.step(ctx, exec, StateValidating); err != nil {
		return err
	}
	if fw != nil {
		img, err := firmware.Decode(exec.firmwareData)
		if err != nil {
			return err
		}
		if err := firmware.VerifyDigest(img.Data, fw.Digest); err != nil {
			return err
		}
		o.logDebug("firmware image valid", "size", len(img.Data),
			"compression", string(img.Compression), "digest", img.Digest)
		exec.firmwareData = img.Data
	}
	if radio != nil {
		patch, err := firmware.DecodePatch(exec.patchData)
		if err != nil {
			return err
		}
		if err := firmware.VerifyDigest(patch.Data, radio.Source.Digest); err != nil {
			return err
		}
		o.logDebug("radio patch valid", "size", len(patch.Data), "version", string(radio.Version))
		exec.patchData = patch.Data
	}

	// Disconnecting
	if err := o.step(ctx, exec, StateDisconnecting); err != nil {
		return err
	}
	if err := o.disconnect(ctx, session); err != nil {
		return err
	}

	// Flashing
	if fw != nil {
		if err := o.step(ctx, exec, StateFlashing); err != nil {
			return err
		}
		o.logInfo("Writing firmware", "bytes", len(exec.firmwareData))
		exec.flashed = true
		if err := o.flasher.Write(context.WithoutCancel(ctx), exec.firmwareData); err != nil {
			return &FlashWriteError{Err: err}
		}
		exec.bytesWritten += len(exec.firmwareData)
		o.logInfo("Firmware written")

		if radio == nil {
			return o.step(ctx, exec, StateDone)
		}

		// AwaitingReboot. The write is done; a cancellation that arrived
		// during it is reported by the wait.
		if err := exec.machine.advance(StateAwaitingReboot); err != nil {
			return err
		}
		o.logInfo("Waiting for device to reboot", "delay", radio.SettleDelay)
		if err := sleep(ctx, radio.SettleDelay); err != nil {
			return err
		}
	}

	// ApplyingRadioPatch
	if err := o.step(ctx, exec, StateApplyingRadioPatch); err != nil {
		return err
	}
	o.logInfo("Applying radio patch", "version", string(radio.Version))
	if err := o.flasher.ApplyTransient(ctx, exec.patchData); err != nil {
		return &RadioPatchError{Err: err}
	}
	exec.bytesWritten += len(exec.patchData)

	// Settling
	if err := o.step(ctx, exec, StateSettling); err != nil {
		return err
	}
	if err := o.settle(ctx, exec, radio.RadioTiming); err != nil {
		return err
	}

	return o.step(ctx, exec, StateDone)
}

// step is a step boundary: cancellation is observed here and nowhere
// inside a step. Reaching Done is never cancelled.
func (o *Orchestrator) step(ctx context.Context, exec *execution, to State) error {
	if to != StateDone {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return exec.machine.advance(to)
}

func (o *Orchestrator) acquire(ctx context.Context, source Source) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch source.Kind {
	case SourceFile:
		o.logInfo("Reading image", "path", source.Location)
		data, err = firmware.ReadFile(source.Location)
	default:
		o.logInfo("Downloading image", "url", source.Location)
		data, err = o.fetcher.Download(ctx, source.Location)
	}
	if err != nil {
		return nil, &AcquireError{Source: source, Err: err}
	}
	return data, nil
}

// disconnect closes the live session and waits for its acknowledgment.
func (o *Orchestrator) disconnect(ctx context.Context, session LiveSession) error {
	if session == nil {
		return nil
	}

	o.logDebug("closing device session")
	if err := session.Close(); err != nil {
		return &SessionCloseError{Err: err}
	}

	timer := time.NewTimer(o.config.CloseTimeout)
	defer timer.Stop()

	select {
	case <-session.Done():
		o.logDebug("device session closed")
		return nil
	case <-timer.C:
		return &SessionCloseError{Err: fmt.Errorf("no close acknowledgment after %s", o.config.CloseTimeout)}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// settle waits out the radio patch window, one heartbeat per interval.
func (o *Orchestrator) settle(ctx context.Context, exec *execution, timing RadioTiming) error {
	if timing.PollInterval <= 0 || timing.PollCount <= 0 {
		return nil
	}

	ticker := time.NewTicker(timing.PollInterval)
	defer ticker.Stop()

	for beat := 1; beat <= timing.PollCount; beat++ {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
		o.logInfo("...", "heartbeat", beat, "of", timing.PollCount)
		o.reportProgress(exec, beat, timing.PollCount)
	}
	o.logInfo("... Done")
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) reportProgress(exec *execution, beat, beats int) {
	if o.config.ProgressCallback == nil {
		return
	}
	o.config.ProgressCallback(Progress{
		State:        exec.machine.current(),
		Percentage:   exec.machine.progress(),
		BytesWritten: exec.bytesWritten,
		Heartbeat:    beat,
		Heartbeats:   beats,
		ElapsedTime:  time.Since(exec.startTime),
	})
}

func (o *Orchestrator) logDebug(msg string, keysAndValues ...interface{}) {
	if o.config.Logger != nil {
		o.config.Logger.Debug(msg, keysAndValues...)
	}
}

func (o *Orchestrator) logInfo(msg string, keysAndValues ...interface{}) {
	if o.config.Logger != nil {
		o.config.Logger.Info(msg, keysAndValues...)
	}
}

func (o *Orchestrator) logError(msg string, keysAndValues ...interface{}) {
	if o.config.Logger != nil {
		o.config.Logger.Error(msg, keysAndValues...)
	}
}
