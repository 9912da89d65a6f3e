package mock

import (
	"context"
	"testing"
	"time"

	"tld/internal/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ clock.Clock = (*Clock)(nil)

func TestClock_AdvanceAndSet(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewClock(start)

	assert.Equal(t, start, c.Now())

	c.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), c.Now())

	later := start.Add(24 * time.Hour)
	c.Set(later)
	assert.Equal(t, later, c.Now())
}

func TestClock_SleepAdvances(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewClock(start)

	require.NoError(t, c.Sleep(context.Background(), time.Second))
	require.NoError(t, c.Sleep(context.Background(), 2*time.Second))

	assert.Equal(t, start.Add(3*time.Second), c.Now())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, c.Sleeps())
}

func TestClock_SleepHonoursCancelledContext(t *testing.T) {
	c := NewClock(time.Time{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	before := c.Now()
	err := c.Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, before, c.Now())
}
