package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/abelbrown/topicstream/internal/eval"
	"github.com/abelbrown/topicstream/internal/otel"
)

// App is the progress view of a topicstream run. It is driven entirely by
// messages; the experiments run elsewhere and report through a Reporter.
type App struct {
	spinner spinner.Model
	bar     progress.Model
	ring    *otel.RingBuffer
	cancel  func()

	model     string
	stage     string
	threshold float64

	embedded, embedTotal int
	items, total         int
	clusters, active     int

	results   []eval.Result
	err       error
	done      bool
	showDebug bool

	width, height int
}

// NewApp creates the view. cancel is called when the user quits early;
// ring may be nil.
func NewApp(ring *otel.RingBuffer, cancel func()) App {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = StageStyle
	return App{
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		ring:    ring,
		cancel:  cancel,
		stage:   "starting",
		width:   80,
		height:  24,
	}
}

// Init starts the spinner.
func (a App) Init() tea.Cmd {
	return a.spinner.Tick
}

// Update handles messages.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		a.bar.Width = min(max(msg.Width-20, 10), 60)
		return a, nil

	case spinner.TickMsg:
		if a.done {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case StageChanged:
		a.model, a.stage = msg.Model, msg.Stage
		return a, nil

	case EmbedProgress:
		a.model = msg.Model
		a.embedded, a.embedTotal = msg.Done, msg.Total
		return a, nil

	case BatchDone:
		a.model, a.threshold = msg.Model, msg.Threshold
		a.items, a.total = msg.Stats.Items, msg.Total
		a.clusters, a.active = msg.Stats.Clusters, msg.Stats.Active
		return a, nil

	case RunScored:
		a.results = append(a.results, msg.Result)
		return a, nil

	case ExperimentsDone:
		a.done, a.err = true, msg.Err
		a.stage = "done"
		return a, tea.Quit
	}
	return a, nil
}

func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		if !a.done && a.cancel != nil {
			a.cancel()
		}
		return a, tea.Quit
	case "d":
		a.showDebug = !a.showDebug
	}
	return a, nil
}

// View renders the current state.
func (a App) View() string {
	var b strings.Builder
	b.WriteString(Title.Render("topicstream"))
	b.WriteString("\n\n")

	if a.done {
		b.WriteString(DoneStyle.Render("✓ done"))
	} else {
		b.WriteString(a.spinner.View() + " ")
		b.WriteString(StageStyle.Render(a.stage))
	}
	if a.model != "" {
		b.WriteString(CountStyle.Render(a.model))
	}
	b.WriteString("\n")

	switch {
	case a.total > 0:
		b.WriteString(a.bar.ViewAs(a.Fraction()) + "\n")
		b.WriteString(CountStyle.Render(fmt.Sprintf("t=%g  items %d/%d  clusters %d  active %d",
			a.threshold, a.items, a.total, a.clusters, a.active)))
		b.WriteString("\n")
	case a.embedTotal > 0:
		b.WriteString(a.bar.ViewAs(float64(a.embedded)/float64(a.embedTotal)) + "\n")
		b.WriteString(CountStyle.Render(fmt.Sprintf("embedded %d/%d", a.embedded, a.embedTotal)))
		b.WriteString("\n")
	}

	if a.err != nil {
		b.WriteString("\n" + ErrorStyle.Render(a.err.Error()) + "\n")
	}
	if t := ScoreTable(a.results); t != "" {
		b.WriteString("\n" + t + "\n")
	}
	if a.showDebug {
		b.WriteString("\n" + debugOverlay(a.ring, a.width, a.height) + "\n")
	}

	b.WriteString("\n" + statusBar(a.width))
	return b.String()
}

// Fraction is the share of the current stream clustered so far.
func (a App) Fraction() float64 {
	if a.total == 0 {
		return 0
	}
	return float64(a.items) / float64(a.total)
}

// Results returns the runs scored so far.
func (a App) Results() []eval.Result { return a.results }

// Err returns the error that ended the experiments, if any.
func (a App) Err() error { return a.err }

func statusBar(width int) string {
	keys := StatusBarKey.Render("q") + StatusBarText.Render(":quit  ") +
		StatusBarKey.Render("d") + StatusBarText.Render(":events")
	return StatusBar.Width(width).Render(keys)
}
