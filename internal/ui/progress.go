package ui

import (
	"sync"
	"time"
)

// rateInterval is the minimum gap between throughput samples.
const rateInterval = 250 * time.Millisecond

// etaSmoothingFactor weights each new ETA against the previous one.
const etaSmoothingFactor = 0.3

// Rate holds throughput in items per second.
type Rate struct {
	Current float64
	Avg     float64
	Peak    float64
}

// ProgressStats is a snapshot of a tracker.
type ProgressStats struct {
	Stage      Stage
	Current    int
	Total      int
	Progress   float64
	ETA        time.Duration
	LastItem   string
	ErrorCount int
	WarnCount  int
	Rate       Rate
}

// ProgressTracker accumulates progress events. It is safe for concurrent use.
type ProgressTracker struct {
	mu         sync.Mutex
	stage      Stage
	current    int
	total      int
	lastItem   string
	stageStart time.Time
	errors     []ErrorEvent
	warnings   []ErrorEvent
	lastETA    time.Duration

	sampleAt      time.Time
	sampleCurrent int
	samples       int
	rate          Rate
	now           func() time.Time
}

// NewProgressTracker creates a tracker in StageLoading.
func NewProgressTracker() *ProgressTracker {
	return newProgressTracker(time.Now)
}

func newProgressTracker(now func() time.Time) *ProgressTracker {
	t := now()
	return &ProgressTracker{
		stage:      StageLoading,
		stageStart: t,
		sampleAt:   t,
		now:        now,
	}
}

// SetStage moves to stage and resets counters.
func (p *ProgressTracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := p.now()
	p.stage = stage
	p.total = total
	p.current = 0
	p.lastItem = ""
	p.stageStart = t
	p.lastETA = 0
	p.sampleAt = t
	p.sampleCurrent = 0
	p.samples = 0
	p.rate = Rate{}
}

// Update records that current items of the stage are done.
func (p *ProgressTracker) Update(current int, item string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
	if item != "" {
		p.lastItem = item
	}

	t := p.now()
	elapsed := t.Sub(p.sampleAt)
	if elapsed < rateInterval {
		return
	}
	if delta := current - p.sampleCurrent; delta > 0 {
		r := float64(delta) / elapsed.Seconds()
		p.rate.Current = r
		p.samples++
		if p.samples == 1 {
			p.rate.Avg = r
		} else {
			p.rate.Avg = 0.2*r + 0.8*p.rate.Avg
		}
		if r > p.rate.Peak {
			p.rate.Peak = r
		}
	}
	p.sampleCurrent = current
	p.sampleAt = t
}

// AddError records an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.IsWarn {
		p.warnings = append(p.warnings, event)
	} else {
		p.errors = append(p.errors, event)
	}
}

// Stats returns a snapshot.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return ProgressStats{
		Stage:      p.stage,
		Current:    p.current,
		Total:      p.total,
		Progress:   p.fraction(),
		ETA:        p.etaLocked(),
		LastItem:   p.lastItem,
		ErrorCount: len(p.errors),
		WarnCount:  len(p.warnings),
		Rate:       p.rate,
	}
}

// Errors returns the recorded errors.
func (p *ProgressTracker) Errors() []ErrorEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]ErrorEvent, len(p.errors))
	copy(out, p.errors)
	return out
}

func (p *ProgressTracker) fraction() float64 {
	if p.total == 0 {
		return 0
	}
	f := float64(p.current) / float64(p.total)
	if f > 1 {
		return 1
	}
	return f
}

// etaLocked extrapolates the stage's elapsed time, smoothed against the
// previous estimate.
func (p *ProgressTracker) etaLocked() time.Duration {
	f := p.fraction()
	if f <= 0 || f >= 1 {
		return 0
	}

	elapsed := p.now().Sub(p.stageStart)
	raw := time.Duration(float64(elapsed)/f) - elapsed
	if raw < 0 {
		return 0
	}
	if p.lastETA == 0 {
		p.lastETA = raw
		return raw
	}
	p.lastETA = time.Duration(etaSmoothingFactor*float64(raw) + (1-etaSmoothingFactor)*float64(p.lastETA))
	return p.lastETA
}
