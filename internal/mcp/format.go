package mcp

import (
	"fmt"
	"strings"

	"github.com/openclaw/openclaw-memory/internal/search"
	"github.com/openclaw/openclaw-memory/internal/writer"
)

// noResultsReply is returned when a search matches nothing. The budget
// trailer still follows so callers always get the telemetry line.
const noResultsReply = "No memories found."

// formatSearch renders a search response as blocks with salience headers
// and a budget trailer:
//
//	[salience: 0.83 | reinforcement: 4 | user/preferences.md]
//	<content>
//
//	[total tokens: 612 | budget remaining: 888]
func formatSearch(resp *search.Response) string {
	var sb strings.Builder
	if len(resp.Results) == 0 {
		sb.WriteString(noResultsReply)
		sb.WriteString("\n")
	}
	for i, r := range resp.Results {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "[salience: %.2f | reinforcement: %d | %s]\n", r.Salience, r.Reinforcement, r.URI)
		sb.WriteString(strings.TrimRight(r.Content, "\n"))
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "\n[total tokens: %d | budget remaining: %d]", resp.TotalTokens, resp.BudgetRemaining)
	if resp.Partial {
		sb.WriteString("\n(embedding provider unavailable; full-text results only)")
	}
	return sb.String()
}

// formatLog renders a write outcome as its canonical one-liner.
func formatLog(out *writer.Outcome) string {
	switch out.Action {
	case writer.ActionReinforced:
		return fmt.Sprintf("Existing memory reinforced (score=%.2f) in %s", out.Score, out.Path)
	case writer.ActionUpdated:
		return fmt.Sprintf("Conflicting memory updated (score=%.2f) in %s", out.Score, out.Path)
	default:
		return fmt.Sprintf("Memory saved to %s (type: %s)", out.Path, out.Type)
	}
}
