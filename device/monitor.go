package device

import (
	"errors"
	"sync"
)

// Monitor owns a live Session. It drains the session's events, logging
// transport errors, and closes Done once the session acknowledges Close
// (or its event stream ends).
type Monitor struct {
	session Session
	logger  Logger
	done    chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// Watch starts consuming session events.
func Watch(session Session, logger Logger) *Monitor {
	m := &Monitor{
		session: session,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *Monitor) run() {
	defer close(m.done)
	for event := range m.session.Events() {
		switch event.Kind {
		case EventClose:
			return
		case EventError:
			m.logError(event.Err)
		}
	}
}

func (m *Monitor) logError(err error) {
	if m.logger == nil || err == nil {
		return
	}
	if errors.Is(err, ErrNotFound) {
		m.logger.Error("Cannot connect to device locally.")
		return
	}
	m.logger.Error("device session error", "error", err)
}

// Close asks the session to close. It is safe to call more than once.
func (m *Monitor) Close() error {
	m.closeOnce.Do(func() {
		m.closeErr = m.session.Close()
	})
	return m.closeErr
}

// Done is closed once the session has acknowledged Close.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}
