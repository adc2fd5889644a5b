package ui

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock is a manually advanced clock.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time           { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestProgressTracker_StartsLoading(t *testing.T) {
	p := NewProgressTracker()

	stats := p.Stats()
	assert.Equal(t, StageLoading, stats.Stage)
	assert.Zero(t, stats.Progress)
	assert.Zero(t, stats.ETA)
}

func TestProgressTracker_ProgressClampsAtOne(t *testing.T) {
	p := NewProgressTracker()
	p.SetStage(StageDispatching, 10)

	p.Update(5, "a")
	assert.InDelta(t, 0.5, p.Stats().Progress, 1e-9)

	p.Update(15, "b")
	assert.InDelta(t, 1.0, p.Stats().Progress, 1e-9)
	assert.Equal(t, "b", p.Stats().LastItem)
}

func TestProgressTracker_RateAndETA(t *testing.T) {
	// Given: a tracker on a fake clock
	clock := &fakeClock{t: time.Unix(1000, 0)}
	p := newProgressTracker(clock.now)
	p.SetStage(StageDispatching, 100)

	// When: 20 items complete in one second
	clock.advance(time.Second)
	p.Update(20, "x")

	// Then: rate is 20/s and the remaining 80 items take about 4s
	stats := p.Stats()
	assert.InDelta(t, 20.0, stats.Rate.Current, 1e-9)
	assert.InDelta(t, 20.0, stats.Rate.Avg, 1e-9)
	assert.InDelta(t, 20.0, stats.Rate.Peak, 1e-9)
	assert.InDelta(t, 4.0, stats.ETA.Seconds(), 1e-6)
}

func TestProgressTracker_RateIgnoresRapidUpdates(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	p := newProgressTracker(clock.now)
	p.SetStage(StageDispatching, 100)

	clock.advance(10 * time.Millisecond)
	p.Update(1, "")

	assert.Zero(t, p.Stats().Rate.Current)
}

func TestProgressTracker_SetStageResets(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	p := newProgressTracker(clock.now)
	p.SetStage(StageDispatching, 10)
	clock.advance(time.Second)
	p.Update(5, "x")

	p.SetStage(StageRebuilding, 0)

	stats := p.Stats()
	assert.Equal(t, StageRebuilding, stats.Stage)
	assert.Zero(t, stats.Current)
	assert.Empty(t, stats.LastItem)
	assert.Zero(t, stats.Rate.Current)
}

func TestProgressTracker_SeparatesErrorsAndWarnings(t *testing.T) {
	p := NewProgressTracker()

	p.AddError(ErrorEvent{ItemID: "a", Err: errors.New("boom")})
	p.AddError(ErrorEvent{ItemID: "b", Err: errors.New("gone"), IsWarn: true})

	stats := p.Stats()
	assert.Equal(t, 1, stats.ErrorCount)
	assert.Equal(t, 1, stats.WarnCount)
	assert.Equal(t, "a", p.Errors()[0].ItemID)
}
