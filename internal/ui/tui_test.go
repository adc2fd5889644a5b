package ui

import (
	"bytes"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

func TestNewTUIRenderer_FailsForNonTTY(t *testing.T) {
	r, err := NewTUIRenderer(NewConfig(&bytes.Buffer{}))

	assert.ErrorIs(t, err, errNotTTY)
	assert.Nil(t, r)
}

func TestFlushModel_StageIndicators(t *testing.T) {
	// Given: a model in the dispatch stage
	tracker := NewProgressTracker()
	tracker.SetStage(StageDispatching, 100)
	m := newFlushModel(tracker, "stratoindex flush")
	m.styles = NoColorStyles()

	// When: rendering
	view := m.View()

	// Then: every stage and the title are shown
	assert.Contains(t, view, "stratoindex flush")
	assert.Contains(t, view, "Loading")
	assert.Contains(t, view, "Dispatching")
	assert.Contains(t, view, "Rebuilding")
}

func TestFlushModel_ProgressDisplay(t *testing.T) {
	tracker := NewProgressTracker()
	tracker.SetStage(StageDispatching, 200)
	tracker.Update(50, "/docs/contract.pdf")
	m := newFlushModel(tracker, "")
	m.styles = NoColorStyles()

	view := m.View()

	assert.Contains(t, view, "25%")
	assert.Contains(t, view, "50 / 200 items")
	assert.Contains(t, view, "/docs/contract.pdf")
}

func TestFlushModel_UnknownTotalShowsStage(t *testing.T) {
	m := newFlushModel(NewProgressTracker(), "")
	m.styles = NoColorStyles()

	assert.Contains(t, m.View(), "Loading...")
}

func TestFlushModel_CompleteQuits(t *testing.T) {
	// Given: a running model
	m := newFlushModel(NewProgressTracker(), "")
	m.styles = NoColorStyles()

	// When: the completion message arrives
	_, cmd := m.Update(completeMsg(CompletionStats{Status: "ok", Attempted: 3, Processed: 3, Duration: 2 * time.Second}))

	// Then: the summary is rendered and the program quits
	assert.NotNil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "Flush ok")
	assert.Contains(t, view, "3 / 3")
}

func TestFlushModel_CompleteWithFailures(t *testing.T) {
	m := newFlushModel(NewProgressTracker(), "")
	m.styles = NoColorStyles()

	m.Update(completeMsg(CompletionStats{Status: "partial", Attempted: 3, Processed: 1, Failed: 1, Dropped: 1, Remaining: 2}))

	view := m.View()
	assert.Contains(t, view, "Flush partial")
	assert.Contains(t, view, "1 failed")
	assert.Contains(t, view, "1 dropped")
	assert.Contains(t, view, "2 items still queued")
}

func TestFlushModel_QuitKey(t *testing.T) {
	m := newFlushModel(NewProgressTracker(), "")

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

	assert.Equal(t, "Cancelled.\n", m.View())
}

func TestFlushModel_WindowResize(t *testing.T) {
	m := newFlushModel(NewProgressTracker(), "")

	m.Update(tea.WindowSizeMsg{Width: 30, Height: 10})

	assert.Equal(t, 30, m.width)
	assert.Equal(t, 20, m.bar.Width)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{42 * time.Second, "42s"},
		{2 * time.Minute, "2m"},
		{2*time.Minute + 5*time.Second, "2m 5s"},
		{90 * time.Minute, "1h 30m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in))
	}
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "short", truncateID("short", 10))
	assert.Equal(t, "...ef.pdf", truncateID("/abc/def.pdf", 9))
	assert.Equal(t, "...", truncateID("/abc/def.pdf", 2))
}
