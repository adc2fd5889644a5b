package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/stratoindex/internal/embed"
	"github.com/Aman-CERP/stratoindex/internal/queue"
	"github.com/Aman-CERP/stratoindex/internal/search"
	"github.com/Aman-CERP/stratoindex/internal/store"
)

// StatusInfo collects the health of every component.
type StatusInfo struct {
	DataDir  string              `json:"dataDir"`
	Queue    queue.Stats         `json:"queue"`
	Vectors  store.Stats         `json:"vectors"`
	Lexical  *search.IndexStats  `json:"lexical,omitempty"`
	Embedder *embed.EmbedderInfo `json:"embedder,omitempty"`
	// DBSize is the size of the vector database file in bytes.
	DBSize int64 `json:"dbSize"`
}

// StatusRenderer displays StatusInfo.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
	now    func() time.Time
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:    out,
		styles: GetStyles(noColor),
		now:    time.Now,
	}
}

// Render writes a human-readable report.
func (r *StatusRenderer) Render(info StatusInfo) error {
	p := func(format string, args ...any) {
		_, _ = fmt.Fprintf(r.out, format, args...)
	}

	p("%s\n\n", r.styles.Header.Render("stratoindex status: "+info.DataDir))

	p("  Queue:\n")
	p("    Queued:       %d\n", info.Queue.Queued)
	p("    Failed:       %s\n", r.count(info.Queue.Failed, r.styles.Warning))
	p("    Parked:       %s\n", r.count(info.Queue.Parked, r.styles.Warning))
	p("    Dead letters: %s\n", r.count(info.Queue.DeadLetters, r.styles.Error))
	p("    Processed:    %d\n", info.Queue.Processed)
	if !info.Queue.LastFlush.IsZero() {
		p("    Last flush:   %s\n", r.formatTime(info.Queue.LastFlush))
	}
	p("\n")

	v := info.Vectors
	p("  Vectors:\n")
	p("    Files:        %d\n", v.Files)
	p("    Folders:      %d\n", v.Folders)
	p("    Chunks:       %d\n", v.Chunks)
	p("    Dimension:    %s\n", dimension(v.Dimension))
	p("    Durable:      %s\n", r.status(v.Durable, "yes", "no (memory)"))
	if info.DBSize > 0 {
		p("    Size:         %s\n", FormatBytes(info.DBSize))
	}
	if !v.LastUpdated.IsZero() {
		p("    Updated:      %s\n", r.formatTime(v.LastUpdated))
	}
	p("\n")

	if l := info.Lexical; l != nil {
		p("  Lexical index (%s):\n", l.Backend)
		p("    Built:        %s\n", r.status(l.Built, "yes", "no"))
		p("    Documents:    %d\n", l.Indexed)
		if l.Stale {
			p("    %s\n", r.styles.Warning.Render("stale, rebuild pending"))
		}
		if l.LastErr != "" {
			p("    Last error:   %s\n", r.styles.Error.Render(l.LastErr))
		}
		p("\n")
	}

	if e := info.Embedder; e != nil {
		p("  Embedder:\n")
		p("    Provider:     %s\n", e.Provider)
		p("    Model:        %s\n", e.Model)
		p("    Status:       %s\n", r.status(e.Available, "ready", "offline"))
		if e.Cache != nil {
			p("    Cache:        %d entries, %d hits, %d misses\n", e.Cache.Size, e.Cache.Hits, e.Cache.Misses)
		}
	}
	return nil
}

// RenderJSON writes info as indented JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func (r *StatusRenderer) count(n int, style lipgloss.Style) string {
	s := fmt.Sprintf("%d", n)
	if n == 0 {
		return s
	}
	return style.Render(s)
}

func (r *StatusRenderer) status(ok bool, yes, no string) string {
	if ok {
		return r.styles.Success.Render(yes)
	}
	return r.styles.Warning.Render(no)
}

func dimension(d int) string {
	if d == 0 {
		return "unset"
	}
	return fmt.Sprintf("%d", d)
}

// formatTime renders t relative to now for the first week.
func (r *StatusRenderer) formatTime(t time.Time) string {
	diff := r.now().Sub(t)
	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable form.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
