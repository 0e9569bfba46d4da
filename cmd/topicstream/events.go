package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// eventRecord mirrors otel.Event for JSON decoding, so older event files
// still read after the schema grows.
type eventRecord struct {
	Time      time.Time      `json:"t"`
	Level     string         `json:"level"`
	Kind      string         `json:"kind"`
	Comp      string         `json:"comp"`
	SessionID string         `json:"session_id"`
	RunID     string         `json:"run_id"`
	Model     string         `json:"model"`
	Threshold float64        `json:"threshold"`
	Batch     int            `json:"batch"`
	DurMs     float64        `json:"dur_ms"`
	Count     int            `json:"count"`
	Clusters  int            `json:"clusters"`
	Dims      int            `json:"dims"`
	Err       string         `json:"err"`
	Msg       string         `json:"msg"`
	Extra     map[string]any `json:"extra"`
}

// eventFilter selects events by kind prefix, minimum level, component and run.
type eventFilter struct {
	kind  string
	level string
	comp  string
	run   string
}

func (f eventFilter) match(ev eventRecord) bool {
	if f.kind != "" && !strings.HasPrefix(ev.Kind, f.kind) {
		return false
	}
	if f.level != "" && levelRank(ev.Level) < levelRank(f.level) {
		return false
	}
	if f.comp != "" && ev.Comp != f.comp {
		return false
	}
	if f.run != "" && !strings.HasPrefix(ev.RunID, f.run) {
		return false
	}
	return true
}

var eventsFlags struct {
	tail    int
	follow  bool
	filter  eventFilter
	rawJSON bool
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent run events",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(eventsLog)
		if err != nil {
			return fmt.Errorf("event log not found at %s (run an experiment first): %w", eventsLog, err)
		}
		defer f.Close()

		out := cmd.OutOrStdout()
		for _, l := range readTailLines(f, eventsFlags.tail, eventsFlags.filter.match) {
			fmt.Fprintln(out, formatEvent(l.ev, l.raw, eventsFlags.rawJSON))
		}
		if !eventsFlags.follow {
			return nil
		}
		return followEvents(cmd, f)
	},
}

func init() {
	f := eventsCmd.Flags()
	f.IntVar(&eventsFlags.tail, "tail", 50, "number of recent lines to show")
	f.BoolVarP(&eventsFlags.follow, "follow", "f", false, "follow mode (like tail -f)")
	f.StringVar(&eventsFlags.filter.kind, "kind", "", "filter by event kind prefix (e.g. 'cluster')")
	f.StringVar(&eventsFlags.filter.level, "level", "", "minimum level: debug, info, warn, error")
	f.StringVar(&eventsFlags.filter.comp, "comp", "", "filter by component name")
	f.StringVar(&eventsFlags.filter.run, "run", "", "filter by run id prefix")
	f.BoolVar(&eventsFlags.rawJSON, "json", false, "output raw JSON lines")
	rootCmd.AddCommand(eventsCmd)
}

// followEvents polls f for appended lines until the command is cancelled.
func followEvents(cmd *cobra.Command, f *os.File) error {
	ctx := cmd.Context()
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		if err != nil {
			return err
		}
		line = trimLine(line)
		var ev eventRecord
		if len(line) == 0 || json.Unmarshal(line, &ev) != nil {
			continue
		}
		if eventsFlags.filter.match(ev) {
			fmt.Fprintln(cmd.OutOrStdout(), formatEvent(ev, line, eventsFlags.rawJSON))
		}
	}
}

// levelRank returns a numeric rank for filtering (higher = more severe).
func levelRank(level string) int {
	switch level {
	case "info":
		return 1
	case "warn":
		return 2
	case "error":
		return 3
	default:
		return 0
	}
}

func formatEvent(ev eventRecord, raw []byte, rawJSON bool) string {
	if rawJSON {
		return string(raw)
	}
	lvl := strings.ToUpper(ev.Level)
	if lvl == "" {
		lvl = "?"
	}
	parts := []string{fmt.Sprintf("%s %-5s [%-8s] %-18s", ev.Time.Format("15:04:05.000"), lvl, ev.Comp, ev.Kind)}

	if ev.Model != "" {
		parts = append(parts, fmt.Sprintf("%s@%g", ev.Model, ev.Threshold))
	}
	if ev.Msg != "" {
		parts = append(parts, "- "+ev.Msg)
	}
	if ev.DurMs > 0 {
		parts = append(parts, fmt.Sprintf("(%.*fms)", durPrecision(ev.DurMs), ev.DurMs))
	}
	if ev.Batch > 0 {
		parts = append(parts, fmt.Sprintf("batch=%d", ev.Batch))
	}
	if ev.Count > 0 {
		parts = append(parts, fmt.Sprintf("n=%d", ev.Count))
	}
	if ev.Clusters > 0 {
		parts = append(parts, fmt.Sprintf("clusters=%d", ev.Clusters))
	}
	if ev.Dims > 0 {
		parts = append(parts, fmt.Sprintf("dims=%d", ev.Dims))
	}
	if ev.Err != "" {
		parts = append(parts, "err="+ev.Err)
	}
	if ev.RunID != "" {
		parts = append(parts, "run="+shortID(ev.RunID))
	}
	return strings.Join(parts, " ")
}

type parsedLine struct {
	ev  eventRecord
	raw []byte
}

// readTailLines reads r and returns the last n lines matching the filter.
func readTailLines(r io.Reader, n int, match func(eventRecord) bool) []parsedLine {
	scanner := bufio.NewScanner(r)
	// Allow large lines (some events may have big Extra maps)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)

	var ring []parsedLine
	if n > 0 {
		ring = make([]parsedLine, 0, n)
	}

	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ev eventRecord
		if json.Unmarshal(raw, &ev) != nil {
			continue
		}
		if !match(ev) {
			continue
		}
		// scanner reuses its buffer
		rawCopy := make([]byte, len(raw))
		copy(rawCopy, raw)

		if len(ring) < n {
			ring = append(ring, parsedLine{ev: ev, raw: rawCopy})
		} else if n > 0 {
			copy(ring, ring[1:])
			ring[n-1] = parsedLine{ev: ev, raw: rawCopy}
		}
	}
	return ring
}

func trimLine(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

func durPrecision(ms float64) int {
	if ms >= 100 {
		return 0
	}
	if ms >= 1 {
		return 1
	}
	return 2
}
