package eval

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func column(rows [][]string, name string) int {
	for i, h := range rows[0] {
		if h == name {
			return i
		}
	}
	return -1
}

func TestAppendCSVUnionsColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results_clustering.csv")
	at := time.Date(2026, 3, 1, 14, 5, 0, 0, time.UTC)

	first := Result{
		Model: "tfidf_dataset", Threshold: 0.7, RunAt: at,
		McMinn: &PRF{P: 0.5, R: 0.25, F1: 1.0 / 3},
		Params: map[string]string{"batch_size": "8"},
	}
	second := Result{
		Model: "jina", Threshold: 0.3, RunAt: at,
		Params: map[string]string{"batch_size": "16", "sub_model": "v3"},
	}
	if err := AppendCSV(path, first); err != nil {
		t.Fatalf("AppendCSV failed: %v", err)
	}
	if err := AppendCSV(path, second); err != nil {
		t.Fatalf("AppendCSV failed: %v", err)
	}

	rows := readAll(t, path)
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	sub := column(rows, "sub_model")
	if sub < 0 || sub != len(rows[0])-1 {
		t.Fatalf("new column should be appended last, header %v", rows[0])
	}
	if rows[1][sub] != "" || rows[2][sub] != "v3" {
		t.Errorf("sub_model cells = %q, %q", rows[1][sub], rows[2][sub])
	}
	mcp := column(rows, "mcp")
	if rows[1][mcp] != "0.5" || rows[2][mcp] != "" {
		t.Errorf("mcp cells = %q, %q", rows[1][mcp], rows[2][mcp])
	}
	if got := rows[2][column(rows, "datetime_of_run")]; got != "2026-03-01-14-05" {
		t.Errorf("datetime_of_run = %q", got)
	}
	if got := rows[2][column(rows, "model")]; got != "jina" {
		t.Errorf("model = %q", got)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
}

func TestAppendCSVKeepsForeignRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	if err := os.WriteFile(path, []byte("legacy,t\nx,0.9\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := AppendCSV(path, Result{Model: "ollama", Threshold: 0.4}); err != nil {
		t.Fatalf("AppendCSV failed: %v", err)
	}

	rows := readAll(t, path)
	if rows[0][0] != "legacy" || rows[0][1] != "t" {
		t.Fatalf("existing header reordered: %v", rows[0])
	}
	if rows[1][0] != "x" || rows[1][1] != "0.9" {
		t.Errorf("existing row changed: %v", rows[1])
	}
	if rows[2][0] != "" || rows[2][1] != "0.4" {
		t.Errorf("new row misplaced: %v", rows[2])
	}
	if len(rows[1]) != len(rows[0]) {
		t.Errorf("old row not padded to the new header")
	}
}
