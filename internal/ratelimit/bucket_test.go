package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func TestBucket_DrainAndRefill(t *testing.T) {
	clock := newClock()
	b := New(10, 0.5, WithClock(clock.Now))

	for i := 0; i < 10; i++ {
		require.True(t, b.Take(1), "take #%d should succeed", i+1)
	}
	assert.False(t, b.Take(1), "eleventh take must fail")

	// 1/rate секунд: ровно один токен
	clock.Advance(2 * time.Second)
	assert.True(t, b.Take(1))
	assert.False(t, b.Take(1))
}

func TestBucket_FailedTakeDoesNotDebit(t *testing.T) {
	clock := newClock()
	b := New(3, 1, WithClock(clock.Now))

	require.True(t, b.Take(2))
	assert.False(t, b.Take(2))
	assert.InDelta(t, 1.0, b.State().Tokens, 1e-9)
	assert.True(t, b.Take(1))
}

func TestBucket_NeverExceedsCapacity(t *testing.T) {
	clock := newClock()
	b := New(5, 100, WithClock(clock.Now))

	clock.Advance(time.Hour)
	st := b.State()
	assert.Equal(t, 5, st.Capacity)
	assert.InDelta(t, 5.0, st.Tokens, 1e-9)
	assert.False(t, b.Take(6), "request larger than capacity can never succeed")
	assert.True(t, b.Take(5))
}

func TestBucket_PartialRefill(t *testing.T) {
	clock := newClock()
	b := New(2, 1, WithClock(clock.Now))

	require.True(t, b.Take(2))
	clock.Advance(500 * time.Millisecond)
	assert.False(t, b.Take(1))
	clock.Advance(500 * time.Millisecond)
	assert.True(t, b.Take(1))
}

func TestBucket_ZeroTakeAlwaysSucceeds(t *testing.T) {
	b := New(0, 0)
	assert.True(t, b.Take(0))
	assert.False(t, b.Take(1))
}
