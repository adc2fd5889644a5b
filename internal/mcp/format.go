package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/stratoindex/internal/search"
)

// FormatSearchResults renders a search response as markdown.
func FormatSearchResults(query string, resp *search.Response) string {
	if resp == nil || len(resp.Results) == 0 {
		msg := fmt.Sprintf("No files found for \"%s\"", query)
		if resp != nil && len(resp.Meta.Degraded) > 0 {
			msg += fmt.Sprintf(" (degraded: %s unavailable)", strings.Join(resp.Meta.Degraded, ", "))
		}
		return msg
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Files matching \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d file", len(resp.Results))
	if len(resp.Results) != 1 {
		sb.WriteString("s")
	}
	fmt.Fprintf(&sb, " (mode: %s)\n\n", resp.Meta.Mode)

	if len(resp.Meta.Degraded) > 0 {
		fmt.Fprintf(&sb, "> Degraded: %s search unavailable, results come from the remaining leg.\n\n",
			strings.Join(resp.Meta.Degraded, ", "))
	}
	if resp.Meta.LexicalStale {
		sb.WriteString("> Keyword index is being rebuilt; recent changes may be missing.\n\n")
	}

	for i, r := range resp.Results {
		formatResult(&sb, i+1, r)
	}
	return sb.String()
}

func formatResult(sb *strings.Builder, num int, r *search.Result) {
	if r == nil {
		return
	}
	name := r.Name
	if name == "" {
		name = r.ID
	}
	fmt.Fprintf(sb, "### %d. %s (score: %.2f)\n", num, name, r.Score)
	if r.Path != "" {
		fmt.Fprintf(sb, "`%s`\n", r.Path)
	}
	fmt.Fprintf(sb, "%s\n\n", matchReason(r))
}

// matchReason explains in one line why a result was returned.
func matchReason(r *search.Result) string {
	if r.Source == search.SourceGraph {
		reason := fmt.Sprintf("related to %s", r.Via)
		if r.Edge != "" {
			reason += fmt.Sprintf(" (%s)", r.Edge)
		}
		return reason
	}

	var parts []string
	if len(r.MatchedTerms) > 0 {
		terms := r.MatchedTerms
		if len(terms) > 5 {
			terms = terms[:5]
		}
		parts = append(parts, "matched: "+strings.Join(terms, ", "))
	}
	if r.InBothLists {
		parts = append(parts, "found by both keyword and semantic search")
	} else if r.VectorRank > 0 {
		parts = append(parts, "semantic match")
	} else if r.LexicalRank > 0 {
		parts = append(parts, "keyword match")
	}
	if len(parts) == 0 {
		return "matched content"
	}
	return strings.Join(parts, "; ")
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}
