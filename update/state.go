package update

import "fmt"

// State is a step of plan execution.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateValidating
	StateDisconnecting
	StateFlashing
	StateAwaitingReboot
	StateApplyingRadioPatch
	StateSettling
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateValidating:
		return "validating"
	case StateDisconnecting:
		return "disconnecting"
	case StateFlashing:
		return "flashing"
	case StateAwaitingReboot:
		return "awaiting-reboot"
	case StateApplyingRadioPatch:
		return "applying-radio-patch"
	case StateSettling:
		return "settling"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Execution paths. Each plan runs exactly one of these, front to back.
var (
	firmwarePath = []State{
		StateIdle, StateAcquiring, StateValidating, StateDisconnecting,
		StateFlashing, StateDone,
	}

	firmwareRadioPath = []State{
		StateIdle, StateAcquiring, StateValidating, StateDisconnecting,
		StateFlashing, StateAwaitingReboot, StateApplyingRadioPatch, StateSettling, StateDone,
	}

	radioOnlyPath = []State{
		StateIdle, StateAcquiring, StateValidating, StateDisconnecting,
		StateApplyingRadioPatch, StateSettling, StateDone,
	}
)

// machine walks one execution path. Any step may fail; otherwise the only
// legal transition is to the next state on the path.
type machine struct {
	path   []State
	pos    int
	failed bool

	onTransition func(from, to State)
}

func newMachine(path []State, onTransition func(from, to State)) *machine {
	return &machine{
		path:         path,
		onTransition: onTransition,
	}
}

func (m *machine) current() State {
	if m.failed {
		return StateFailed
	}
	return m.path[m.pos]
}

// advance moves to the next state. It rejects anything else, including
// leaving a terminal state.
func (m *machine) advance(to State) error {
	from := m.current()
	if m.failed || m.pos+1 >= len(m.path) || m.path[m.pos+1] != to {
		return &TransitionError{From: from, To: to}
	}
	m.pos++
	if m.onTransition != nil {
		m.onTransition(from, to)
	}
	return nil
}

// fail moves to Failed and returns the state that failed.
func (m *machine) fail() State {
	at := m.current()
	if m.failed {
		return at
	}
	m.failed = true
	if m.onTransition != nil {
		m.onTransition(at, StateFailed)
	}
	return at
}

// progress is the fraction of the path completed, 0 to 100.
func (m *machine) progress() float64 {
	if len(m.path) < 2 {
		return 100
	}
	return float64(m.pos) / float64(len(m.path)-1) * 100
}
