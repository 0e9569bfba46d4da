package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/topicstream/internal/cluster"
	"github.com/abelbrown/topicstream/internal/eval"
)

// batchInterval throttles batch messages; the last batch of a stream is
// always sent.
const batchInterval = 50 * time.Millisecond

// Sender is the part of *tea.Program a Reporter needs.
type Sender interface {
	Send(msg tea.Msg)
}

// Reporter forwards pipeline progress to a running program as messages.
// Used from a single goroutine.
type Reporter struct {
	p        Sender
	lastSent time.Time
}

// NewReporter creates a Reporter sending to p.
func NewReporter(p Sender) *Reporter {
	return &Reporter{p: p}
}

func (r *Reporter) Stage(model, stage string) {
	r.p.Send(StageChanged{Model: model, Stage: stage})
}

func (r *Reporter) Embedded(model string, done, total int) {
	r.p.Send(EmbedProgress{Model: model, Done: done, Total: total})
}

func (r *Reporter) Batch(model string, threshold float64, s cluster.BatchStats, total int) {
	now := time.Now()
	if s.Items < total && now.Sub(r.lastSent) < batchInterval {
		return
	}
	r.lastSent = now
	r.p.Send(BatchDone{Model: model, Threshold: threshold, Stats: s, Total: total})
}

func (r *Reporter) Scored(res eval.Result) {
	r.p.Send(RunScored{Result: res})
}
