package update

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/moffa90/go-fwupdate/device"
	"github.com/moffa90/go-fwupdate/firmware"
)

// validImage returns a minimal image with a sane vector table.
func validImage() []byte {
	img := make([]byte, firmware.MinImageSize)
	binary.LittleEndian.PutUint32(img[0:4], 0x10008000)
	binary.LittleEndian.PutUint32(img[4:8], 0x00000101)
	return img
}

// MockFlasher records writes and transient applies.
type MockFlasher struct {
	mu sync.Mutex

	writeErr error
	applyErr error

	// onWrite runs inside Write with the context Write received
	onWrite func(ctx context.Context)

	writes     [][]byte
	applies    [][]byte
	writeDone  time.Time
	applyStart time.Time
	events     *[]string
}

func (m *MockFlasher) Write(ctx context.Context, image []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("write")
	if m.onWrite != nil {
		m.onWrite(ctx)
	}
	m.writes = append(m.writes, image)
	m.writeDone = time.Now()
	return m.writeErr
}

func (m *MockFlasher) ApplyTransient(ctx context.Context, image []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("apply")
	m.applyStart = time.Now()
	m.applies = append(m.applies, image)
	return m.applyErr
}

func (m *MockFlasher) DetectBootloaderDevice(ctx context.Context) (*device.Handle, error) {
	return nil, nil
}

func (m *MockFlasher) record(event string) {
	if m.events != nil {
		*m.events = append(*m.events, event)
	}
}

// MockFetcher serves images from a map.
type MockFetcher struct {
	images map[string][]byte
	err    error
	calls  []string
}

func (m *MockFetcher) Download(ctx context.Context, url string) ([]byte, error) {
	m.calls = append(m.calls, url)
	if m.err != nil {
		return nil, m.err
	}
	data, ok := m.images[url]
	if !ok {
		return nil, errors.New("404 not found")
	}
	return data, nil
}

// MockLiveSession acknowledges Close unless silent is set.
type MockLiveSession struct {
	silent bool
	closed int
	done   chan struct{}
	events *[]string
}

func newMockLiveSession(events *[]string) *MockLiveSession {
	return &MockLiveSession{done: make(chan struct{}), events: events}
}

func (m *MockLiveSession) Close() error {
	m.closed++
	if m.events != nil {
		*m.events = append(*m.events, "close")
	}
	if !m.silent && m.closed == 1 {
		go close(m.done)
	}
	return nil
}

func (m *MockLiveSession) Done() <-chan struct{} {
	return m.done
}

// MockLogger collects messages.
type MockLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *MockLogger) Debug(msg string, kv ...interface{}) { l.add(msg) }
func (l *MockLogger) Info(msg string, kv ...interface{})  { l.add(msg) }
func (l *MockLogger) Error(msg string, kv ...interface{}) { l.add(msg) }

func (l *MockLogger) add(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

func (l *MockLogger) count(msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.messages {
		if m == msg {
			n++
		}
	}
	return n
}

const (
	firmwareURL = testBaseURL + "firmware/a.bin"
	radioURL    = testBaseURL + "wifi/1.28.bin"
)

func testTiming() RadioTiming {
	return RadioTiming{
		SettleDelay:  40 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
		PollCount:    3,
	}
}

func testFetcher() *MockFetcher {
	return &MockFetcher{images: map[string][]byte{
		firmwareURL: validImage(),
		radioURL:    []byte("radio patch bytes"),
	}}
}

func firmwarePlan() ApplyFirmware {
	return ApplyFirmware{Source: Source{Kind: SourceURL, Location: firmwareURL}}
}

func firmwareRadioPlan() ApplyFirmware {
	plan := firmwarePlan()
	plan.Radio = &RadioPatch{
		Source:      Source{Kind: SourceURL, Location: radioURL},
		Version:     "1.28",
		RadioTiming: testTiming(),
	}
	return plan
}

// recordStates returns an option collecting every state reported on a
// transition, and the heartbeat count.
func recordStates(states *[]State, heartbeats *int) Option {
	return WithProgressCallback(func(p Progress) {
		if p.Heartbeat > 0 {
			*heartbeats++
			return
		}
		*states = append(*states, p.State)
	})
}

func equalStates(a, b []State) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestExecutePaths(t *testing.T) {
	tests := []struct {
		name           string
		plan           Plan
		wantStates     []State
		wantWrites     int
		wantApplies    int
		wantHeartbeats int
		wantEvents     []string
	}{
		{
			name:       "firmware only",
			plan:       firmwarePlan(),
			wantStates: firmwarePath[1:],
			wantWrites: 1,
			wantEvents: []string{"close", "write"},
		},
		{
			name:           "firmware and radio",
			plan:           firmwareRadioPlan(),
			wantStates:     firmwareRadioPath[1:],
			wantWrites:     1,
			wantApplies:    1,
			wantHeartbeats: 3,
			wantEvents:     []string{"close", "write", "apply"},
		},
		{
			name: "radio only",
			plan: ApplyRadioOnly{Radio: RadioPatch{
				Source:      Source{Kind: SourceURL, Location: radioURL},
				Version:     "1.28",
				RadioTiming: testTiming(),
			}},
			wantStates:     radioOnlyPath[1:],
			wantApplies:    1,
			wantHeartbeats: 3,
			wantEvents:     []string{"close", "apply"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var events []string
			var states []State
			var heartbeats int

			flasher := &MockFlasher{events: &events}
			session := newMockLiveSession(&events)
			logger := &MockLogger{}
			orch := New(flasher, testFetcher(), WithLogger(logger), recordStates(&states, &heartbeats))

			if err := orch.Execute(context.Background(), tt.plan, session); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if !equalStates(states, tt.wantStates) {
				t.Errorf("states = %v, want %v", states, tt.wantStates)
			}
			if len(flasher.writes) != tt.wantWrites {
				t.Errorf("writes = %d, want %d", len(flasher.writes), tt.wantWrites)
			}
			if len(flasher.applies) != tt.wantApplies {
				t.Errorf("applies = %d, want %d", len(flasher.applies), tt.wantApplies)
			}
			if heartbeats != tt.wantHeartbeats {
				t.Errorf("heartbeats = %d, want %d", heartbeats, tt.wantHeartbeats)
			}
			if strings.Join(events, ",") != strings.Join(tt.wantEvents, ",") {
				t.Errorf("events = %v, want %v", events, tt.wantEvents)
			}
			if tt.wantHeartbeats > 0 {
				if logger.count("...") != tt.wantHeartbeats {
					t.Errorf("logged %d heartbeats, want %d", logger.count("..."), tt.wantHeartbeats)
				}
				if logger.count("... Done") != 1 {
					t.Error("settle completion not logged")
				}
			}
		})
	}
}

func TestExecuteRadioWaitsForSettleDelay(t *testing.T) {
	flasher := &MockFlasher{}
	orch := New(flasher, testFetcher())

	if err := orch.Execute(context.Background(), firmwareRadioPlan(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	gap := flasher.applyStart.Sub(flasher.writeDone)
	if gap < testTiming().SettleDelay {
		t.Errorf("radio patch started %v after flashing, want at least %v", gap, testTiming().SettleDelay)
	}
}

func TestExecuteFailures(t *testing.T) {
	writeErr := errors.New("usb transfer stalled")
	applyErr := errors.New("radio did not respond")

	tests := []struct {
		name        string
		plan        Plan
		fetcher     *MockFetcher
		flasher     *MockFlasher
		wantState   State
		wantErr     error
		wantWrites  int
		wantApplies int
		wantClosed  bool
		wantNote    bool
	}{
		{
			name:      "download failure",
			plan:      firmwarePlan(),
			fetcher:   &MockFetcher{err: errors.New("connection reset")},
			flasher:   &MockFlasher{},
			wantState: StateAcquiring,
		},
		{
			name: "invalid image",
			plan: firmwarePlan(),
			fetcher: &MockFetcher{images: map[string][]byte{
				firmwareURL: []byte("definitely not firmware"),
			}},
			flasher:   &MockFlasher{},
			wantState: StateValidating,
			wantErr:   firmware.ErrInvalidImage,
		},
		{
			name: "digest mismatch",
			plan: ApplyFirmware{Source: Source{
				Kind:     SourceURL,
				Location: firmwareURL,
				Digest:   strings.Repeat("0", 64),
			}},
			fetcher:   testFetcher(),
			flasher:   &MockFlasher{},
			wantState: StateValidating,
			wantErr:   firmware.ErrInvalidImage,
		},
		{
			name: "empty radio patch",
			plan: firmwareRadioPlan(),
			fetcher: &MockFetcher{images: map[string][]byte{
				firmwareURL: validImage(),
				radioURL:    {},
			}},
			flasher:   &MockFlasher{},
			wantState: StateValidating,
			wantErr:   firmware.ErrInvalidImage,
		},
		{
			name:       "flash write failure",
			plan:       firmwareRadioPlan(),
			fetcher:    testFetcher(),
			flasher:    &MockFlasher{writeErr: writeErr},
			wantState:  StateFlashing,
			wantErr:    ErrFlashWriteFailed,
			wantWrites: 1,
			wantClosed: true,
			wantNote:   true,
		},
		{
			name: "radio-only patch failure",
			plan: ApplyRadioOnly{Radio: RadioPatch{
				Source:      Source{Kind: SourceURL, Location: radioURL},
				Version:     "1.28",
				RadioTiming: testTiming(),
			}},
			fetcher:     testFetcher(),
			flasher:     &MockFlasher{applyErr: applyErr},
			wantState:   StateApplyingRadioPatch,
			wantErr:     ErrRadioPatchFailed,
			wantApplies: 1,
			wantClosed:  true,
		},
		{
			name:        "radio patch failure",
			plan:        firmwareRadioPlan(),
			fetcher:     testFetcher(),
			flasher:     &MockFlasher{applyErr: applyErr},
			wantState:   StateApplyingRadioPatch,
			wantErr:     ErrRadioPatchFailed,
			wantWrites:  1,
			wantApplies: 1,
			wantClosed:  true,
			wantNote:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var states []State
			var heartbeats int
			session := newMockLiveSession(nil)
			orch := New(tt.flasher, tt.fetcher, recordStates(&states, &heartbeats))

			err := orch.Execute(context.Background(), tt.plan, session)

			var failed *FailedError
			if !errors.As(err, &failed) {
				t.Fatalf("error = %v, want *FailedError", err)
			}
			if failed.State != tt.wantState {
				t.Errorf("failed state = %v, want %v", failed.State, tt.wantState)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if len(tt.flasher.writes) != tt.wantWrites {
				t.Errorf("writes = %d, want %d", len(tt.flasher.writes), tt.wantWrites)
			}
			if len(tt.flasher.applies) != tt.wantApplies {
				t.Errorf("applies = %d, want %d", len(tt.flasher.applies), tt.wantApplies)
			}
			if (session.closed > 0) != tt.wantClosed {
				t.Errorf("session closed = %v, want %v", session.closed > 0, tt.wantClosed)
			}
			if got := strings.Contains(err.Error(), "may already have taken effect"); got != tt.wantNote {
				t.Errorf("firmware note in %q = %v, want %v", err.Error(), got, tt.wantNote)
			}
			if len(states) == 0 || states[len(states)-1] != StateFailed {
				t.Errorf("last reported state = %v, want failed", states)
			}
			for _, s := range states {
				if tt.wantErr == ErrFlashWriteFailed && s == StateAwaitingReboot {
					t.Error("reached awaiting-reboot after a failed write")
				}
			}
		})
	}
}

func TestExecuteAcquireErrorNamesSource(t *testing.T) {
	orch := New(&MockFlasher{}, &MockFetcher{})
	err := orch.Execute(context.Background(), firmwarePlan(), nil)

	var acquire *AcquireError
	if !errors.As(err, &acquire) {
		t.Fatalf("error = %v, want *AcquireError", err)
	}
	if acquire.Source.Location != firmwareURL {
		t.Errorf("source = %q, want %q", acquire.Source.Location, firmwareURL)
	}
}

func TestExecuteLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fw.bin")
	if err := os.WriteFile(path, validImage(), 0o644); err != nil {
		t.Fatal(err)
	}

	flasher := &MockFlasher{}
	fetcher := &MockFetcher{}
	orch := New(flasher, fetcher)

	plan := ApplyFirmware{Source: Source{Kind: SourceFile, Location: path}}
	if err := orch.Execute(context.Background(), plan, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fetcher.calls) != 0 {
		t.Errorf("local file was downloaded: %v", fetcher.calls)
	}
	if len(flasher.writes) != 1 || len(flasher.writes[0]) != firmware.MinImageSize {
		t.Errorf("writes = %d, want one image", len(flasher.writes))
	}
}

func TestExecuteSessionCloseTimeout(t *testing.T) {
	flasher := &MockFlasher{}
	session := newMockLiveSession(nil)
	session.silent = true
	orch := New(flasher, testFetcher(), WithCloseTimeout(20*time.Millisecond))

	err := orch.Execute(context.Background(), firmwarePlan(), session)

	var closeErr *SessionCloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("error = %v, want *SessionCloseError", err)
	}
	var failed *FailedError
	if errors.As(err, &failed) && failed.State != StateDisconnecting {
		t.Errorf("failed state = %v, want disconnecting", failed.State)
	}
	if len(flasher.writes) != 0 {
		t.Error("flashed while the session was still live")
	}
}

func TestExecuteCancellation(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		fetcher := testFetcher()
		flasher := &MockFlasher{}
		err := New(flasher, fetcher).Execute(ctx, firmwarePlan(), nil)

		if !errors.Is(err, context.Canceled) {
			t.Fatalf("error = %v, want context.Canceled", err)
		}
		if len(fetcher.calls) != 0 || len(flasher.writes) != 0 {
			t.Error("work started after cancellation")
		}
	})

	t.Run("during write is deferred", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var writeCtxErr error
		flasher := &MockFlasher{onWrite: func(wctx context.Context) {
			cancel()
			writeCtxErr = wctx.Err()
		}}

		err := New(flasher, testFetcher()).Execute(ctx, firmwareRadioPlan(), nil)

		if writeCtxErr != nil {
			t.Errorf("write saw cancellation: %v", writeCtxErr)
		}
		var failed *FailedError
		if !errors.As(err, &failed) {
			t.Fatalf("error = %v, want *FailedError", err)
		}
		if failed.State != StateAwaitingReboot {
			t.Errorf("failed state = %v, want awaiting-reboot", failed.State)
		}
		if !failed.FirmwareMayBeWritten() {
			t.Error("completed write not reported")
		}
		if errors.Is(err, ErrFlashWriteFailed) {
			t.Errorf("successful write reported as failed: %v", err)
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
		if len(flasher.applies) != 0 {
			t.Error("radio patch applied after cancellation")
		}
	})

	t.Run("write completes to done", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		flasher := &MockFlasher{onWrite: func(context.Context) { cancel() }}
		if err := New(flasher, testFetcher()).Execute(ctx, firmwarePlan(), nil); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestExecuteNothingToDo(t *testing.T) {
	flasher := &MockFlasher{}
	orch := New(flasher, &MockFetcher{})
	for _, plan := range []Plan{NoOp{Reason: NoOpAlreadyLatest}, ListBuilds{}} {
		if err := orch.Execute(context.Background(), plan, nil); err != nil {
			t.Errorf("Execute(%v) = %v, want nil", plan, err)
		}
	}
	if len(flasher.writes) != 0 {
		t.Error("flashed for a plan with nothing to do")
	}
}

func TestMachine(t *testing.T) {
	t.Run("radio patch before flashing is rejected", func(t *testing.T) {
		m := newMachine(firmwareRadioPath, nil)
		for _, s := range []State{StateAcquiring, StateValidating, StateDisconnecting} {
			if err := m.advance(s); err != nil {
				t.Fatalf("advance(%v): %v", s, err)
			}
		}
		err := m.advance(StateApplyingRadioPatch)
		var transition *TransitionError
		if !errors.As(err, &transition) {
			t.Fatalf("error = %v, want *TransitionError", err)
		}
		if transition.From != StateDisconnecting || transition.To != StateApplyingRadioPatch {
			t.Errorf("transition = %v -> %v", transition.From, transition.To)
		}
	})

	t.Run("no transition out of done", func(t *testing.T) {
		m := newMachine(firmwarePath, nil)
		for _, s := range firmwarePath[1:] {
			if err := m.advance(s); err != nil {
				t.Fatalf("advance(%v): %v", s, err)
			}
		}
		if !m.current().Terminal() {
			t.Errorf("current = %v, want terminal", m.current())
		}
		if err := m.advance(StateFlashing); err == nil {
			t.Error("expected error leaving done")
		}
		if m.progress() != 100 {
			t.Errorf("progress = %v, want 100", m.progress())
		}
	})

	t.Run("no transition out of failed", func(t *testing.T) {
		m := newMachine(firmwarePath, nil)
		if err := m.advance(StateAcquiring); err != nil {
			t.Fatal(err)
		}
		if at := m.fail(); at != StateAcquiring {
			t.Errorf("fail() = %v, want acquiring", at)
		}
		if err := m.advance(StateValidating); err == nil {
			t.Error("expected error leaving failed")
		}
		if m.current() != StateFailed {
			t.Errorf("current = %v, want failed", m.current())
		}
	})
}

func TestFailedErrorMessage(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name     string
		state    State
		flashed  bool
		wantNote bool
	}{
		{name: "acquiring", state: StateAcquiring},
		{name: "validating", state: StateValidating},
		{name: "disconnecting", state: StateDisconnecting},
		{name: "flashing", state: StateFlashing, flashed: true, wantNote: true},
		{name: "awaiting reboot", state: StateAwaitingReboot, flashed: true, wantNote: true},
		{name: "radio after flash", state: StateApplyingRadioPatch, flashed: true, wantNote: true},
		{name: "radio only", state: StateApplyingRadioPatch},
		{name: "settling radio only", state: StateSettling},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &FailedError{State: tt.state, Flashed: tt.flashed, Err: cause}
			if got := strings.Contains(err.Error(), "may already have taken effect"); got != tt.wantNote {
				t.Errorf("%q: note = %v, want %v", err.Error(), got, tt.wantNote)
			}
			if !errors.Is(err, cause) {
				t.Error("cause not unwrapped")
			}
		})
	}
}
