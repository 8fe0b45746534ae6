// Package timer provides cancellable scheduled tasks. Components take a
// Scheduler so reconnect backoff, heartbeats and status expiry can be driven
// deterministically in tests.
package timer

import (
	"sync"
	"time"
)

type (
	Task interface {
		// Stop cancels the task. It reports false if the task already ran or was stopped.
		Stop() bool
	}

	Scheduler interface {
		AfterFunc(d time.Duration, f func()) Task
	}
)

// Real schedules on the runtime timer.
type Real struct{}

func (Real) AfterFunc(d time.Duration, f func()) Task {
	return time.AfterFunc(d, f)
}

// Manual is a Scheduler whose tasks only run when fired explicitly.
type Manual struct {
	mx      *sync.Mutex
	pending []*manualTask
}

type manualTask struct {
	m       *Manual
	delay   time.Duration
	f       func()
	stopped bool
}

func NewManual() *Manual {
	return &Manual{mx: &sync.Mutex{}}
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Task {
	m.mx.Lock()
	defer m.mx.Unlock()
	t := &manualTask{m: m, delay: d, f: f}
	m.pending = append(m.pending, t)
	return t
}

func (t *manualTask) Stop() bool {
	t.m.mx.Lock()
	defer t.m.mx.Unlock()
	for i, p := range t.m.pending {
		if p == t {
			t.m.pending = append(t.m.pending[:i], t.m.pending[i+1:]...)
			t.stopped = true
			return true
		}
	}
	return false
}

// Pending returns the delays of tasks that are scheduled and not yet run.
func (m *Manual) Pending() []time.Duration {
	m.mx.Lock()
	defer m.mx.Unlock()
	out := make([]time.Duration, 0, len(m.pending))
	for _, t := range m.pending {
		out = append(out, t.delay)
	}
	return out
}

// Fire runs the oldest pending task on the calling goroutine.
// It reports false when nothing is pending.
func (m *Manual) Fire() bool {
	m.mx.Lock()
	if len(m.pending) == 0 {
		m.mx.Unlock()
		return false
	}
	t := m.pending[0]
	m.pending = m.pending[1:]
	m.mx.Unlock()

	t.f()
	return true
}
