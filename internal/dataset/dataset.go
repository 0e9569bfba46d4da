// Package dataset reads annotated tweet collections and writes per-item
// cluster assignments back next to them.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/abelbrown/topicstream/internal/logging"
)

// ErrNoRows is returned when a dataset has no rows left after filtering.
var ErrNoRows = errors.New("dataset: no rows")

// Annotation filters which rows take part in a run.
type Annotation string

const (
	AllRows   Annotation = "no"
	Annotated Annotation = "annotated" // rows with an event label
	Examined  Annotation = "examined"  // rows an annotator looked at
)

// ParseAnnotation accepts "", "no", "annotated" and "examined".
func ParseAnnotation(s string) (Annotation, error) {
	switch a := Annotation(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return AllRows, nil
	case AllRows, Annotated, Examined:
		return a, nil
	}
	return "", fmt.Errorf("dataset: unknown annotation %q (want no, annotated or examined)", s)
}

// Record is one row of a dataset.
type Record struct {
	ID       string
	Label    string // event id, "" when unlabelled
	Date     string
	Time     string
	Text     string
	UserID   string
	Examined bool
	At       time.Time // Date and Time parsed, zero when absent
}

// Labelled reports whether the row belongs to an annotated event.
func (r Record) Labelled() bool { return r.Label != "" }

// Dataset is a loaded file in arrival order.
type Dataset struct {
	Path    string
	Columns []string // header as read
	Records []Record
}

// Options controls Load.
type Options struct {
	Annotation     Annotation
	RemoveMentions bool
}

var columnAliases = map[string]string{
	"id":          "id",
	"id_str":      "id",
	"label":       "label",
	"event":       "label",
	"date":        "date",
	"time":        "time",
	"text":        "text",
	"user_id_str": "user_id_str",
	"examined":    "examined",
}

// Load reads a tab-separated dataset with a header row. The id and text
// columns are required; the rest are optional.
func Load(path string, opts Options) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	defer f.Close()

	ds, err := Read(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, path)
	}
	ds.Path = path
	logging.Info("Dataset loaded", "path", path, "rows", len(ds.Records), "annotation", opts.Annotation)
	return ds, nil
}

// Read is Load for an already open stream.
func Read(r io.Reader, opts Options) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("dataset: read header: %w", err)
	}
	ds := &Dataset{Columns: append([]string(nil), header...)}

	col := make(map[string]int)
	for i, h := range header {
		if name, ok := columnAliases[strings.ToLower(strings.TrimSpace(h))]; ok {
			if _, dup := col[name]; !dup {
				col[name] = i
			}
		}
	}
	for _, req := range []string{"id", "text"} {
		if _, ok := col[req]; !ok {
			return nil, fmt.Errorf("dataset: missing %q column", req)
		}
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("dataset: line %d: %w", line, err)
		}
		rec := Record{
			ID:       field(row, "id"),
			Label:    normalizeLabel(field(row, "label")),
			Date:     field(row, "date"),
			Time:     field(row, "time"),
			Text:     field(row, "text"),
			UserID:   field(row, "user_id_str"),
			Examined: truthy(field(row, "examined")),
		}
		rec.At = parseTimestamp(rec.Date, rec.Time)
		if !keep(rec, opts.Annotation) {
			continue
		}
		if opts.RemoveMentions {
			rec.Text = StripMentions(rec.Text)
		}
		ds.Records = append(ds.Records, rec)
	}
	if len(ds.Records) == 0 {
		return nil, ErrNoRows
	}
	return ds, nil
}

// Has reports whether the file carried the named column.
func (d *Dataset) Has(name string) bool {
	for _, h := range d.Columns {
		if columnAliases[strings.ToLower(strings.TrimSpace(h))] == name {
			return true
		}
	}
	return false
}

// Texts returns the text of every record.
func (d *Dataset) Texts() []string {
	out := make([]string, len(d.Records))
	for i, r := range d.Records {
		out[i] = r.Text
	}
	return out
}

// IDs returns the id of every record.
func (d *Dataset) IDs() []string {
	out := make([]string, len(d.Records))
	for i, r := range d.Records {
		out[i] = r.ID
	}
	return out
}

// Labels returns the event label of every record ("" when unlabelled).
func (d *Dataset) Labels() []string {
	out := make([]string, len(d.Records))
	for i, r := range d.Records {
		out[i] = r.Label
	}
	return out
}

// Name is the file name without directory and extension.
func (d *Dataset) Name() string {
	base := filepath.Base(d.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func keep(r Record, a Annotation) bool {
	switch a {
	case Annotated:
		return r.Labelled()
	case Examined:
		return r.Examined
	}
	return true
}

// normalizeLabel maps the spellings of "no label" to "" and "12.0" to "12".
func normalizeLabel(s string) string {
	switch strings.ToLower(s) {
	case "", "nan", "none", "null", "-1":
		return ""
	}
	return strings.TrimSuffix(s, ".0")
}

func truthy(s string) bool {
	switch strings.ToLower(s) {
	case "1", "1.0", "true", "yes", "y":
		return true
	}
	return false
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"Mon Jan 02 15:04:05 -0700 2006",
}

func parseTimestamp(date, clock string) time.Time {
	s := strings.TrimSpace(date + " " + clock)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

var mentionRE = regexp.MustCompile(`(^|[^\w@])@\w+`)

// StripMentions removes @user tokens and collapses the leftover spaces.
func StripMentions(s string) string {
	s = mentionRE.ReplaceAllString(s, "$1")
	return strings.Join(strings.Fields(s), " ")
}

// WindowFromDaily sizes the window to roughly hours worth of items: the
// mean number of rows per date scaled by hours/24, rounded down to a
// multiple of batch. The result is never below one batch.
func WindowFromDaily(records []Record, hours, batch int) int {
	if batch <= 0 {
		batch = 1
	}
	perDay := make(map[string]int)
	for _, r := range records {
		if r.Date != "" {
			perDay[r.Date]++
		}
	}
	mean := float64(len(records))
	if len(perDay) > 0 {
		var dated int
		for _, n := range perDay {
			dated += n
		}
		mean = float64(dated) / float64(len(perDay))
	}
	w := int(mean*float64(hours)/24) / batch * batch
	return max(w, batch)
}
