package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/abelbrown/topicstream/internal/otel"
)

// debugPanelChrome is the number of terminal lines consumed by DebugPanel's
// border (top + bottom = 2) and vertical padding (top + bottom = 2).
// Must be updated if DebugPanel style changes.
const debugPanelChrome = 4

// debugOverlay renders event counters and the most recent events.
// Returns "" if ring is nil.
func debugOverlay(ring *otel.RingBuffer, width, height int) string {
	if ring == nil {
		return ""
	}

	stats := ring.Stats()
	recent := ring.Last(12)

	var lines []string
	lines = append(lines, DebugHeaderStyle.Render("Run Stats"))
	lines = append(lines, fmt.Sprintf("  Runs:       %d started, %d complete, %d cancelled",
		stats[otel.KindRunStart], stats[otel.KindRunComplete], stats[otel.KindRunCancel]))
	lines = append(lines, fmt.Sprintf("  Embeds:     %d complete, %d batch, %d errors",
		stats[otel.KindEmbedComplete], stats[otel.KindEmbedBatch], stats[otel.KindEmbedError]))
	lines = append(lines, fmt.Sprintf("  Clustering: %d batches, %d complete",
		stats[otel.KindClusterBatch], stats[otel.KindClusterComplete]))
	lines = append(lines, fmt.Sprintf("  Scoring:    %d scored, %d skipped, %d store errors",
		stats[otel.KindEvalScore], stats[otel.KindEvalSkip], stats[otel.KindStoreError]))
	lines = append(lines, fmt.Sprintf("  Buffer:     %d / %d events", ring.Len(), ring.Cap()))
	lines = append(lines, "")

	lines = append(lines, DebugHeaderStyle.Render("Recent Events"))
	for _, e := range recent {
		line := fmt.Sprintf("  %6s  %-18s", formatAge(time.Since(e.Time)), string(e.Kind))
		if e.Model != "" {
			line += fmt.Sprintf("  %s@%g", e.Model, e.Threshold)
		}
		if e.Msg != "" {
			line += "  " + truncateRunes(e.Msg, 40)
		}
		if e.Err != "" {
			line += "  ERR:" + truncateRunes(e.Err, 30)
		}
		if e.RunID != "" {
			line += "  run:" + truncateRunes(e.RunID, 8)
		}
		lines = append(lines, line)
	}

	maxHeight := max(height-debugPanelChrome, 1)
	if len(lines) > maxHeight {
		lines = lines[:maxHeight]
	}

	panelWidth := min(76, width-4)
	panelWidth = max(panelWidth, 20)

	return DebugPanel.Width(panelWidth).Render(strings.Join(lines, "\n"))
}

// formatAge formats a duration as a compact human string.
// Negative durations from clock skew clamp to "0ms".
func formatAge(d time.Duration) string {
	if d < 0 {
		return "0ms"
	}
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
}

// truncateRunes cuts s to n runes without splitting a character.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
