// ABOUTME: Single-line status footer: project, model, connection state, token usage
// ABOUTME: Left and right segments are fitted to the terminal width with go-runewidth

package tui

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/mauromedda/openagent-go/internal/backend"
)

// footerInfo is everything the footer shows.
type footerInfo struct {
	project  string
	model    string
	online   bool
	ragCount int
	tokens   backend.TokenStats
}

// formatTokens renders a token count compactly (950, 1.2k, 3.4M).
func formatTokens(n uint64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

func (f footerInfo) left() string {
	parts := []string{"openagent"}
	if f.project != "" {
		parts = append(parts, f.project)
	}
	if f.model != "" {
		parts = append(parts, f.model)
	}
	if f.online {
		parts = append(parts, "online")
	} else {
		parts = append(parts, "offline")
	}
	return strings.Join(parts, " · ")
}

func (f footerInfo) right() string {
	parts := []string{
		formatTokens(f.tokens.TotalTokens) + " tok",
		fmt.Sprintf("$%.4f", f.tokens.TotalCost),
	}
	if f.tokens.BudgetPercentage != nil {
		parts = append(parts, fmt.Sprintf("budget %.0f%%", *f.tokens.BudgetPercentage))
	}
	if f.ragCount > 0 {
		parts = append(parts, fmt.Sprintf("rag %d", f.ragCount))
	}
	return strings.Join(parts, " · ")
}

// renderFooter lays out the footer in exactly width cells. The right side
// wins when space is short; the left side is truncated with an ellipsis.
func renderFooter(f footerInfo, width int) string {
	if width <= 0 {
		return ""
	}
	right := f.right()
	rw := runewidth.StringWidth(right)
	if rw >= width {
		return runewidth.Truncate(right, width, "…")
	}

	avail := width - rw - 1
	left := runewidth.Truncate(f.left(), avail, "…")
	return runewidth.FillRight(left, avail) + " " + right
}
