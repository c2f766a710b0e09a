package gateway

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taleforge/sceneengine/internal/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var errBoom = errors.New("boom")

func TestBreaker_OpensAtThreshold(t *testing.T) {
	clk := newFakeClock()
	b := NewBreaker(3, time.Minute, clk.Now)

	for i := 0; i < 2; i++ {
		require.True(t, b.CanAttempt())
		b.RecordFailure(errBoom)
	}
	assert.Equal(t, domain.BreakerClosed, b.State())

	require.True(t, b.CanAttempt())
	b.RecordFailure(errBoom)
	assert.Equal(t, domain.BreakerOpen, b.State())
	assert.Equal(t, 3, b.Failures())
	assert.False(t, b.CanAttempt())

	clk.Advance(59 * time.Second)
	assert.False(t, b.CanAttempt(), "still inside reset timeout")
}

func TestBreaker_HalfOpenAdmitsOneProbe(t *testing.T) {
	clk := newFakeClock()
	b := NewBreaker(1, time.Minute, clk.Now)
	b.RecordFailure(errBoom)
	require.Equal(t, domain.BreakerOpen, b.State())

	clk.Advance(time.Minute)
	assert.True(t, b.CanAttempt())
	assert.Equal(t, domain.BreakerHalfOpen, b.State())
	assert.False(t, b.CanAttempt(), "second probe must wait")

	b.RecordSuccess()
	assert.Equal(t, domain.BreakerClosed, b.State())
	assert.Equal(t, 0, b.Failures())
	assert.True(t, b.CanAttempt())
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	clk := newFakeClock()
	b := NewBreaker(2, 30*time.Second, clk.Now)
	b.RecordFailure(errBoom)
	b.RecordFailure(errBoom)

	clk.Advance(30 * time.Second)
	require.True(t, b.CanAttempt())
	b.RecordFailure(errBoom)

	assert.Equal(t, domain.BreakerOpen, b.State())
	assert.False(t, b.CanAttempt())
	assert.Equal(t, "boom", b.Snapshot().LastError)

	clk.Advance(30 * time.Second)
	assert.True(t, b.CanAttempt(), "timeout restarts from the failed probe")
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b := NewBreaker(3, time.Minute, nil)
	b.RecordFailure(errBoom)
	b.RecordFailure(errBoom)
	b.RecordSuccess()
	b.RecordFailure(errBoom)
	assert.Equal(t, domain.BreakerClosed, b.State())
	assert.Equal(t, 1, b.Failures())
}

func TestBreaker_OnTransition(t *testing.T) {
	clk := newFakeClock()
	b := NewBreaker(1, time.Second, clk.Now)
	var seen []domain.BreakerState
	b.OnTransition = func(_, to domain.BreakerState, _ BreakerSnapshot) {
		seen = append(seen, to)
	}

	b.RecordFailure(errBoom)
	clk.Advance(time.Second)
	b.CanAttempt()
	b.RecordSuccess()

	assert.Equal(t, []domain.BreakerState{domain.BreakerOpen, domain.BreakerHalfOpen, domain.BreakerClosed}, seen)
}
