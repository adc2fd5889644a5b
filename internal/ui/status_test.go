package ui

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/stratoindex/internal/embed"
	"github.com/Aman-CERP/stratoindex/internal/queue"
	"github.com/Aman-CERP/stratoindex/internal/search"
	"github.com/Aman-CERP/stratoindex/internal/store"
)

func sampleStatus(now time.Time) StatusInfo {
	return StatusInfo{
		DataDir: "/var/lib/stratoindex",
		Queue: queue.Stats{
			Queued:      4,
			Failed:      1,
			DeadLetters: 2,
			Processed:   120,
			LastFlush:   now.Add(-3 * time.Minute),
		},
		Vectors: store.Stats{
			Files:       10,
			Folders:     2,
			Chunks:      31,
			Dimension:   256,
			Durable:     true,
			LastUpdated: now.Add(-2 * time.Hour),
		},
		Lexical: &search.IndexStats{Backend: "bleve", Indexed: 12, Built: true, Stale: true},
		Embedder: &embed.EmbedderInfo{
			Provider:  "static",
			Model:     "static-hash",
			Available: true,
			Cache:     &embed.CacheStats{Size: 3, Hits: 5, Misses: 3},
		},
		DBSize: 3 * 1024 * 1024,
	}
}

func TestStatusRenderer_Render(t *testing.T) {
	// Given: a renderer with a fixed clock
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)
	r.now = func() time.Time { return now }

	// When: rendering a full status
	require.NoError(t, r.Render(sampleStatus(now)))

	// Then: every section is present
	out := buf.String()
	assert.Contains(t, out, "stratoindex status: /var/lib/stratoindex")
	assert.Contains(t, out, "Queued:       4")
	assert.Contains(t, out, "Dead letters: 2")
	assert.Contains(t, out, "Last flush:   3 minutes ago")
	assert.Contains(t, out, "Chunks:       31")
	assert.Contains(t, out, "Size:         3.0 MB")
	assert.Contains(t, out, "Updated:      2 hours ago")
	assert.Contains(t, out, "Lexical index (bleve):")
	assert.Contains(t, out, "stale, rebuild pending")
	assert.Contains(t, out, "Status:       ready")
	assert.Contains(t, out, "3 entries, 5 hits, 3 misses")
	assert.NotContains(t, out, "\x1b[")
}

func TestStatusRenderer_Render_OptionalSectionsOmitted(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	require.NoError(t, r.Render(StatusInfo{DataDir: "/tmp/x"}))

	out := buf.String()
	assert.Contains(t, out, "Dimension:    unset")
	assert.Contains(t, out, "no (memory)")
	assert.NotContains(t, out, "Lexical index")
	assert.NotContains(t, out, "Embedder:")
	assert.NotContains(t, out, "Last flush")
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	buf := &bytes.Buffer{}

	require.NoError(t, NewStatusRenderer(buf, true).RenderJSON(sampleStatus(now)))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "/var/lib/stratoindex", decoded["dataDir"])
	assert.Contains(t, decoded, "queue")
	assert.Contains(t, decoded, "lexical")
	assert.EqualValues(t, 3*1024*1024, decoded["dbSize"])
}

func TestStatusRenderer_FormatTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewStatusRenderer(&bytes.Buffer{}, true)
	r.now = func() time.Time { return now }

	assert.Equal(t, "just now", r.formatTime(now.Add(-10*time.Second)))
	assert.Equal(t, "1 minute ago", r.formatTime(now.Add(-time.Minute)))
	assert.Equal(t, "1 day ago", r.formatTime(now.Add(-25*time.Hour)))
	assert.Equal(t, "3 days ago", r.formatTime(now.Add(-72*time.Hour)))
	assert.Equal(t, "2026-02-01 12:00", r.formatTime(now.AddDate(0, -1, 0)))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2.0 MB", FormatBytes(2*1024*1024))
	assert.Equal(t, "1.0 GB", FormatBytes(1024*1024*1024))
}
