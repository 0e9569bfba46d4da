package ui

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/abelbrown/topicstream/internal/eval"
)

var scoreColumns = []string{"model", "t", "items", "clusters", "P", "R", "F1", "mcF1", "AMI", "ARI"}

// f1Column is the index of F1 in scoreColumns.
const f1Column = 6

// ScoreTable renders results as a table, highlighting the best F1.
// Returns "" when there is nothing to show.
func ScoreTable(results []eval.Result) string {
	if len(results) == 0 {
		return ""
	}
	best := 0
	rows := make([][]string, len(results))
	for i, r := range results {
		if r.Match.F1 > results[best].Match.F1 {
			best = i
		}
		mc := "-"
		if r.McMinn != nil {
			mc = score(r.McMinn.F1)
		}
		rows[i] = []string{
			r.Model,
			strconv.FormatFloat(r.Threshold, 'g', -1, 64),
			strconv.Itoa(r.Stats.Items),
			strconv.Itoa(r.Stats.Clusters),
			score(r.Match.P),
			score(r.Match.R),
			score(r.Match.F1),
			mc,
			score(r.AMI),
			score(r.ARI),
		}
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorMuted)).
		Headers(scoreColumns...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeader
			case row == best && col == f1Column:
				return TableBest
			}
			return TableCell
		})
	return t.Render()
}

func score(f float64) string { return strconv.FormatFloat(f, 'f', 3, 64) }
