// Package ui provides the Bubble Tea progress view for topicstream runs.
package ui

import (
	"github.com/abelbrown/topicstream/internal/cluster"
	"github.com/abelbrown/topicstream/internal/eval"
)

// StageChanged is sent when the pipeline enters a new stage.
type StageChanged struct {
	Model string
	Stage string
}

// EmbedProgress is sent as texts are embedded.
type EmbedProgress struct {
	Model string
	Done  int
	Total int
}

// BatchDone is sent after a clustering batch.
type BatchDone struct {
	Model     string
	Threshold float64
	Stats     cluster.BatchStats
	Total     int // items in the stream
}

// RunScored is sent when one (model, threshold) run has been scored.
type RunScored struct {
	Result eval.Result
}

// ExperimentsDone is sent when every experiment has finished or failed.
type ExperimentsDone struct {
	Err error
}
