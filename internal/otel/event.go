// Package otel records structured run telemetry for topicstream.
//
// Events are typed structs written as JSONL lines. The Logger writes them
// asynchronously through a buffered channel drained by one goroutine. An
// optional RingBuffer keeps the most recent events in memory for the
// progress view.
package otel

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EventKind identifies the category of an event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// Experiment lifecycle
	KindRunStart    EventKind = "run.start"
	KindRunComplete EventKind = "run.complete"
	KindRunCancel   EventKind = "run.cancel"

	// Inputs
	KindDatasetLoad   EventKind = "dataset.load"
	KindEmbedStart    EventKind = "embed.start"
	KindEmbedBatch    EventKind = "embed.batch"
	KindEmbedCache    EventKind = "embed.cache"
	KindEmbedComplete EventKind = "embed.complete"
	KindEmbedError    EventKind = "embed.error"

	// Clustering
	KindClusterBatch    EventKind = "cluster.batch"
	KindClusterComplete EventKind = "cluster.complete"

	// Scoring and output
	KindEvalScore   EventKind = "eval.score"
	KindEvalSkip    EventKind = "eval.skip"
	KindReportWrite EventKind = "report.write"
	KindStoreError  EventKind = "store.error"

	// Process
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
	KindError    EventKind = "sys.error"
)

// Event is the universal telemetry record. Every field except Kind and
// Time is optional. Serialized as a single JSONL line.
type Event struct {
	Time      time.Time      `json:"t"`
	Level     Level          `json:"level,omitempty"`
	Kind      EventKind      `json:"kind"`
	Comp      string         `json:"comp,omitempty"`       // component: "pipeline", "embed", "cluster", "main"
	SessionID string         `json:"session_id,omitempty"` // same for one process
	RunID     string         `json:"run_id,omitempty"`     // one (model, threshold) run
	Model     string         `json:"model,omitempty"`
	Threshold float64        `json:"threshold,omitempty"`
	Batch     int            `json:"batch,omitempty"`
	Dur       time.Duration  `json:"-"`                // not serialized directly
	DurMs     float64        `json:"dur_ms,omitempty"` // computed from Dur at marshal time
	Count     int            `json:"count,omitempty"`
	Clusters  int            `json:"clusters,omitempty"`
	Dims      int            `json:"dims,omitempty"`
	Err       string         `json:"err,omitempty"`
	Msg       string         `json:"msg,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type alias Event
	a := alias(e)
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}
