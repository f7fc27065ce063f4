package ai

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestFailoverState(order []string, cooldown time.Duration) (*FailoverState, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := NewFailoverState(order, cooldown)
	s.now = clock.Now
	s.windowStart = clock.Now()
	return s, clock
}

func TestFailoverState_Candidates(t *testing.T) {
	s, clock := newTestFailoverState([]string{"anthropic", "cohere"}, time.Minute)

	assert.Equal(t, []string{"anthropic", "cohere"}, s.Candidates())

	s.MarkFailed("anthropic", errors.New("boom"))
	assert.Equal(t, []string{"cohere"}, s.Candidates())

	clock.Advance(30 * time.Second)
	assert.Equal(t, []string{"cohere"}, s.Candidates(), "still cooling down")

	clock.Advance(31 * time.Second)
	assert.Equal(t, []string{"anthropic", "cohere"}, s.Candidates(), "cooldown elapsed")
}

func TestFailoverState_AllFailed(t *testing.T) {
	s, _ := newTestFailoverState([]string{"anthropic", "cohere"}, time.Minute)
	s.MarkFailed("anthropic", nil)
	s.MarkFailed("cohere", nil)

	assert.Empty(t, s.Candidates())
}

func TestFailoverState_MarkSuccessClearsFailure(t *testing.T) {
	s, _ := newTestFailoverState([]string{"anthropic", "cohere"}, time.Hour)
	s.MarkFailed("anthropic", errors.New("boom"))
	s.MarkSuccess("anthropic")

	assert.Equal(t, []string{"anthropic", "cohere"}, s.Candidates())
	assert.Equal(t, "anthropic", s.Stats().Current)
}

func TestFailoverState_Stats(t *testing.T) {
	s, _ := newTestFailoverState([]string{"anthropic", "cohere"}, time.Hour)
	s.RecordRequest("anthropic")
	s.RecordRequest("anthropic")
	s.RecordRequest("cohere")
	s.MarkFailed("anthropic", errors.New("rate limited"))
	s.MarkSuccess("cohere")

	stats := s.Stats()
	require.Len(t, stats.Providers, 2)

	a := stats.Providers[0]
	assert.Equal(t, "anthropic", a.Name)
	assert.Equal(t, 1, a.Priority)
	assert.Equal(t, int64(2), a.Requests)
	assert.Equal(t, int64(1), a.Failures)
	assert.True(t, a.Failed)
	assert.NotNil(t, a.FailedAt)
	assert.Equal(t, "rate limited", a.LastError)

	c := stats.Providers[1]
	assert.Equal(t, int64(1), c.Requests)
	assert.False(t, c.Failed)
	assert.Equal(t, "cohere", stats.Current)
}

func TestFailoverState_HourlyCounterReset(t *testing.T) {
	s, clock := newTestFailoverState([]string{"anthropic"}, time.Hour)
	s.RecordRequest("anthropic")
	s.RecordRequest("anthropic")

	clock.Advance(time.Hour)
	stats := s.Stats()
	assert.Zero(t, stats.Providers[0].Requests)
	assert.Equal(t, clock.Now(), stats.WindowStart)
}

func TestFailoverState_Reset(t *testing.T) {
	s, _ := newTestFailoverState([]string{"anthropic", "cohere"}, time.Hour)
	s.RecordRequest("anthropic")
	s.MarkFailed("anthropic", errors.New("x"))
	s.MarkSuccess("cohere")

	s.Reset()

	assert.Equal(t, []string{"anthropic", "cohere"}, s.Candidates())
	stats := s.Stats()
	assert.Empty(t, stats.Current)
	assert.Zero(t, stats.Providers[0].Requests)
	assert.False(t, stats.Providers[0].Failed)
}

func TestFailoverState_IsolatedInstances(t *testing.T) {
	a, _ := newTestFailoverState([]string{"anthropic"}, time.Hour)
	b, _ := newTestFailoverState([]string{"anthropic"}, time.Hour)

	a.MarkFailed("anthropic", nil)

	assert.Empty(t, a.Candidates())
	assert.Equal(t, []string{"anthropic"}, b.Candidates())
}
