package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/abelbrown/topicstream/internal/store"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(dbPath)
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.Runs(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}
		printRuns(cmd.OutOrStdout(), runs)
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "number of runs to show (0 = all)")
	rootCmd.AddCommand(runsCmd)
}

func printRuns(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}
	rows := make([][]string, len(runs))
	for i, r := range runs {
		mc := "-"
		if r.McMinn != nil {
			mc = fmt.Sprintf("%.3f", r.McMinn[2])
		}
		rows[i] = []string{
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			shortID(r.ID),
			r.Dataset,
			r.Model,
			strconv.FormatFloat(r.Threshold, 'g', -1, 64),
			strconv.Itoa(r.Items),
			strconv.Itoa(r.Clusters),
			fmt.Sprintf("%.3f", r.F1),
			mc,
			fmt.Sprintf("%.3f", r.AMI),
			fmt.Sprintf("%.3f", r.ARI),
		}
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("started", "run", "dataset", "model", "t", "items", "clusters", "F1", "mcF1", "AMI", "ARI").
		Rows(rows...)
	fmt.Fprintln(w, t.Render())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
