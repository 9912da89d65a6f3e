package mock

import (
	"context"
	"sync"
	"time"
)

// Clock is a controllable clock.Clock. Sleep does not block: it advances the
// clock by the requested duration, which lets tests run device-grant polling
// loops and expiry checks instantly.
type Clock struct {
	mu      sync.RWMutex
	current time.Time
	sleeps  []time.Duration
}

// NewClock creates a mock clock initialized to the given time.
// If t is zero, the clock is initialized to the current time.
func NewClock(t time.Time) *Clock {
	if t.IsZero() {
		t = time.Now()
	}
	return &Clock{current: t}
}

// Now returns the current time according to this mock clock.
func (m *Clock) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Sleep records d and advances the clock by it.
func (m *Clock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sleeps = append(m.sleeps, d)
	m.current = m.current.Add(d)
	return nil
}

// Advance moves the clock forward by the given duration.
func (m *Clock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
}

// Set sets the clock to a specific time.
func (m *Clock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = t
}

// Sleeps returns a copy of every duration passed to Sleep.
func (m *Clock) Sleeps() []time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]time.Duration, len(m.sleeps))
	copy(out, m.sleeps)
	return out
}
