package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// resultColumns are written in this order when the dataset has them; pred
// is always written.
var resultColumns = []string{"date", "time", "label", "pred", "user_id_str", "id"}

// ResultsPath derives "<dir>/<name>_results<ext>" from a dataset path.
func ResultsPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_results" + ext
}

// WriteResults writes one row per record with its predicted cluster.
func (d *Dataset) WriteResults(path string, pred []int) error {
	if len(pred) != len(d.Records) {
		return fmt.Errorf("dataset: %d predictions for %d records", len(pred), len(d.Records))
	}

	var cols []string
	for _, c := range resultColumns {
		if c == "pred" || d.Has(c) {
			cols = append(cols, c)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("dataset: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'
	if err := w.Write(cols); err != nil {
		return fmt.Errorf("dataset: write header: %w", err)
	}
	row := make([]string, len(cols))
	for i, r := range d.Records {
		for j, c := range cols {
			switch c {
			case "date":
				row[j] = r.Date
			case "time":
				row[j] = r.Time
			case "label":
				row[j] = r.Label
			case "pred":
				row[j] = strconv.Itoa(pred[i])
			case "user_id_str":
				row[j] = r.UserID
			case "id":
				row[j] = r.ID
			}
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("dataset: write row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("dataset: flush %s: %w", path, err)
	}
	return f.Close()
}
