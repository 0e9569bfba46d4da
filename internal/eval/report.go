package eval

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"
)

// RunTimeLayout formats the datetime_of_run column.
const RunTimeLayout = "2006-01-02-15-04"

// Result is the scored outcome of one (model, threshold) run.
type Result struct {
	RunID     string
	Dataset   string
	Model     string
	Threshold float64
	Stats     Stats
	Match     PRF
	McMinn    *PRF // nil when there were no candidate clusters
	AMI       float64
	ARI       float64
	Params    map[string]string
	RunAt     time.Time
}

// Score computes every metric for one run. McMinn is left nil when it
// has no candidates; other errors are returned.
func Score(truth []string, pred []int) (Result, error) {
	var r Result
	r.Stats = GeneralStatistics(pred)

	var err error
	if r.Match, err = EventMatch(truth, pred); err != nil {
		return r, err
	}
	if r.AMI, err = AdjustedMutualInfo(truth, pred); err != nil {
		return r, err
	}
	if r.ARI, err = AdjustedRandIndex(truth, pred); err != nil {
		return r, err
	}
	mc, err := McMinn(truth, pred)
	switch {
	case err == nil:
		r.McMinn = &mc
	case !errors.Is(err, ErrNoCandidates):
		return r, err
	}
	return r, nil
}

func ftoa(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

// Row flattens r into ordered column names and values.
func (r Result) Row() ([]string, []string) {
	var cols, vals []string
	add := func(c, v string) {
		cols = append(cols, c)
		vals = append(vals, v)
	}
	add("n_items", strconv.Itoa(r.Stats.Items))
	add("n_clusters", strconv.Itoa(r.Stats.Clusters))
	add("n_singletons", strconv.Itoa(r.Stats.Singletons))
	add("mean_size", ftoa(r.Stats.MeanSize))
	add("median_size", ftoa(r.Stats.MedianSize))
	add("max_size", strconv.Itoa(r.Stats.MaxSize))
	add("t", ftoa(r.Threshold))
	add("p", ftoa(r.Match.P))
	add("r", ftoa(r.Match.R))
	add("f1", ftoa(r.Match.F1))
	if r.McMinn != nil {
		add("mcp", ftoa(r.McMinn.P))
		add("mcr", ftoa(r.McMinn.R))
		add("mcf1", ftoa(r.McMinn.F1))
	} else {
		add("mcp", "")
		add("mcr", "")
		add("mcf1", "")
	}
	add("ami", ftoa(r.AMI))
	add("ari", ftoa(r.ARI))
	add("model", r.Model)
	add("dataset", r.Dataset)
	add("run_id", r.RunID)

	keys := make([]string, 0, len(r.Params))
	for k := range r.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(k, r.Params[k])
	}
	add("datetime_of_run", r.RunAt.Format(RunTimeLayout))
	return cols, vals
}

// AppendCSV adds r to the results file at path, keeping earlier rows. The
// header becomes the union of the existing columns and r's columns;
// cells a row never had are left empty.
func AppendCSV(path string, r Result) error {
	header, rows, err := readCSV(path)
	if err != nil {
		return err
	}

	cols, vals := r.Row()
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[h] = i
	}
	for _, c := range cols {
		if _, ok := pos[c]; !ok {
			pos[c] = len(header)
			header = append(header, c)
		}
	}
	row := make([]string, len(header))
	for i, c := range cols {
		row[pos[c]] = vals[i]
	}
	rows = append(rows, row)

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("eval: create %s: %w", tmp, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("eval: write header: %w", err)
	}
	for _, row := range rows {
		for len(row) < len(header) {
			row = append(row, "")
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return fmt.Errorf("eval: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("eval: flush %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("eval: close %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("eval: open %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("eval: read %s: %w", path, err)
	}
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("eval: read %s: %w", path, err)
	}
	return header, rows, nil
}
