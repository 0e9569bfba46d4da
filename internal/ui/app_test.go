package ui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/topicstream/internal/cluster"
	"github.com/abelbrown/topicstream/internal/eval"
)

func update(t *testing.T, a App, msg tea.Msg) (App, tea.Cmd) {
	t.Helper()
	m, cmd := a.Update(msg)
	app, ok := m.(App)
	if !ok {
		t.Fatalf("Update returned %T, want App", m)
	}
	return app, cmd
}

func TestAppInit(t *testing.T) {
	app := NewApp(nil, nil)
	if app.Init() == nil {
		t.Error("Init should start the spinner")
	}
}

func TestAppBatchProgress(t *testing.T) {
	app := NewApp(nil, nil)
	app, _ = update(t, app, StageChanged{Model: "tfidf_dataset", Stage: "clustering t=0.7"})
	app, _ = update(t, app, BatchDone{
		Model:     "tfidf_dataset",
		Threshold: 0.7,
		Stats:     cluster.BatchStats{Items: 25, Clusters: 9, Active: 6},
		Total:     100,
	})

	if got := app.Fraction(); got != 0.25 {
		t.Errorf("expected fraction 0.25, got %v", got)
	}
	view := app.View()
	for _, want := range []string{"clustering t=0.7", "tfidf_dataset", "items 25/100", "clusters 9", "active 6"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestAppEmbedProgress(t *testing.T) {
	app := NewApp(nil, nil)
	app, _ = update(t, app, EmbedProgress{Model: "jina", Done: 50, Total: 200})
	if !strings.Contains(app.View(), "embedded 50/200") {
		t.Errorf("view should show embedding progress:\n%s", app.View())
	}
}

func TestAppScoredAndDone(t *testing.T) {
	app := NewApp(nil, nil)
	app, _ = update(t, app, RunScored{Result: eval.Result{Model: "jina", Threshold: 0.4}})
	if len(app.Results()) != 1 {
		t.Fatalf("expected 1 result, got %d", len(app.Results()))
	}

	app, cmd := update(t, app, ExperimentsDone{Err: errors.New("embed: jina unavailable")})
	if cmd == nil {
		t.Fatal("ExperimentsDone should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected a quit command")
	}
	if app.Err() == nil {
		t.Error("expected the error to be kept")
	}
	view := app.View()
	if !strings.Contains(view, "done") || !strings.Contains(view, "jina unavailable") {
		t.Errorf("view should show completion and error:\n%s", view)
	}
}

func TestAppQuitCancels(t *testing.T) {
	tests := []struct {
		name       string
		done       bool
		wantCancel bool
	}{
		{"running", false, true},
		{"finished", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cancelled := false
			app := NewApp(nil, func() { cancelled = true })
			if tt.done {
				app, _ = update(t, app, ExperimentsDone{})
			}
			_, cmd := update(t, app, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
			if cmd == nil {
				t.Fatal("q should quit")
			}
			if cancelled != tt.wantCancel {
				t.Errorf("cancelled = %v, want %v", cancelled, tt.wantCancel)
			}
		})
	}
}

func TestAppToggleDebug(t *testing.T) {
	app := NewApp(nil, nil)
	app, _ = update(t, app, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	if !app.showDebug {
		t.Error("d should show the events panel")
	}
	app, _ = update(t, app, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	if app.showDebug {
		t.Error("second d should hide the events panel")
	}
}

func TestAppWindowSize(t *testing.T) {
	app := NewApp(nil, nil)
	app, _ = update(t, app, tea.WindowSizeMsg{Width: 120, Height: 40})
	if app.width != 120 || app.height != 40 {
		t.Errorf("expected 120x40, got %dx%d", app.width, app.height)
	}
	if app.bar.Width != 60 {
		t.Errorf("expected bar width capped at 60, got %d", app.bar.Width)
	}
}

type captureSender struct {
	msgs []tea.Msg
}

func (c *captureSender) Send(msg tea.Msg) { c.msgs = append(c.msgs, msg) }

func TestReporterThrottlesBatches(t *testing.T) {
	c := &captureSender{}
	r := NewReporter(c)

	r.Stage("m", "clustering")
	for i := 1; i <= 10; i++ {
		r.Batch("m", 0.5, cluster.BatchStats{Items: i * 10}, 100)
	}
	r.Scored(eval.Result{Model: "m"})

	var batches []BatchDone
	for _, m := range c.msgs {
		if b, ok := m.(BatchDone); ok {
			batches = append(batches, b)
		}
	}
	// first batch passes the zero lastSent, the final batch is forced
	if len(batches) < 2 {
		t.Fatalf("expected at least first and last batch, got %d", len(batches))
	}
	if last := batches[len(batches)-1]; last.Stats.Items != 100 {
		t.Errorf("expected the final batch to be sent, got items=%d", last.Stats.Items)
	}
	if _, ok := c.msgs[0].(StageChanged); !ok {
		t.Errorf("expected StageChanged first, got %T", c.msgs[0])
	}
	if _, ok := c.msgs[len(c.msgs)-1].(RunScored); !ok {
		t.Errorf("expected RunScored last, got %T", c.msgs[len(c.msgs)-1])
	}
}
