// Package output provides consistent CLI output formatting.
package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/stratoindex/internal/search"
	"github.com/Aman-CERP/stratoindex/internal/ui"
)

// Writer writes status lines, tables and search results for the CLI.
type Writer struct {
	out    io.Writer
	styles ui.Styles
}

// New creates a Writer. Color is used only for terminals without NO_COLOR.
func New(out io.Writer) *Writer {
	return NewWithColor(out, ui.IsTTY(out) && !ui.DetectNoColor())
}

// NewWithColor creates a Writer with explicit color handling.
func NewWithColor(out io.Writer, color bool) *Writer {
	return &Writer{out: out, styles: ui.GetStyles(!color)}
}

// Status prints a message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "  %s\n", msg)
	}
}

// Statusf prints a formatted status message.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	w.Status(w.styles.Success.Render("✓"), msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status(w.styles.Warning.Render("⚠"), msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status(w.styles.Error.Render("✗"), msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Code prints an indented block.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Table prints rows with left-aligned columns. The first row is the header.
func (w *Writer) Table(rows [][]string) {
	if len(rows) == 0 {
		return
	}

	widths := make([]int, 0)
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	for n, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			pad := strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
			if i == len(row)-1 {
				pad = ""
			}
			cells[i] = cell + pad
		}
		line := strings.Join(cells, "  ")
		if n == 0 {
			line = w.styles.Label.Render(line)
		}
		_, _ = fmt.Fprintln(w.out, line)
	}
}

// SearchResults prints a ranked result list with its serving notes.
func (w *Writer) SearchResults(resp *search.Response) {
	if resp == nil || len(resp.Results) == 0 {
		w.Warning("No results")
		w.searchNotes(resp)
		return
	}

	for i, r := range resp.Results {
		label := r.Path
		if label == "" {
			label = r.ID
		}
		_, _ = fmt.Fprintf(w.out, "%2d. %s  %s\n", i+1,
			w.styles.Active.Render(fmt.Sprintf("%.3f", r.Score)), label)

		var why []string
		if r.InBothLists {
			why = append(why, "vector+lexical")
		} else if r.VectorRank > 0 {
			why = append(why, fmt.Sprintf("vector #%d", r.VectorRank))
		} else if r.LexicalRank > 0 {
			why = append(why, fmt.Sprintf("lexical #%d", r.LexicalRank))
		}
		if len(r.MatchedTerms) > 0 {
			why = append(why, "terms: "+strings.Join(r.MatchedTerms, ", "))
		}
		if r.Source == search.SourceGraph {
			why = append(why, fmt.Sprintf("graph %s via %s", r.Edge, r.Via))
		}
		if len(why) > 0 {
			_, _ = fmt.Fprintf(w.out, "    %s\n", w.styles.Dim.Render(strings.Join(why, " | ")))
		}
	}
	w.searchNotes(resp)
}

func (w *Writer) searchNotes(resp *search.Response) {
	if resp == nil {
		return
	}
	m := resp.Meta
	if len(m.Degraded) > 0 {
		w.Warningf("Degraded: %s unavailable", strings.Join(m.Degraded, ", "))
	}
	if m.LexicalStale {
		w.Warning("Lexical index is stale; a rebuild is pending")
	}
	_, _ = fmt.Fprintln(w.out, w.styles.Dim.Render(fmt.Sprintf(
		"%s search, %d vector / %d lexical hits in %s",
		m.Mode, m.VectorHits, m.LexicalHits, m.Duration.Round(100*time.Microsecond))))
}
