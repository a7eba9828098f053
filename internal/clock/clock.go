// Package clock lets services, the live registry and the outbox relay read
// time through an injectable source.
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

// System reads the wall clock in UTC.
type System struct{}

func NewSystem() Clock { return System{} }

func (System) Now() time.Time { return time.Now().UTC() }

// NewFixed returns a clock frozen at t.
func NewFixed(t time.Time) Clock {
	return NewManual(t)
}

// Manual is a test clock that only moves when told to. It is safe for
// concurrent use, so idle reaping and heartbeats can be driven from tests.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start.UTC()}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t.UTC()
	m.mu.Unlock()
}
