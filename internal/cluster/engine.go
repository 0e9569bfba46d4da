package cluster

import (
	"context"
	"math"
	"time"

	"github.com/abelbrown/topicstream/internal/logging"
	"github.com/abelbrown/topicstream/internal/vecs"
)

// BatchStats describes one processed batch.
type BatchStats struct {
	Batch    int // 0-based batch number
	Start    int // stream position of the first item
	Size     int
	Created  int // clusters founded in this batch
	Assigned int // items that joined an existing cluster
	Evicted  int // clusters dropped from the window at the boundary
	Active   int // window size after the boundary
	Clusters int // clusters created so far
	Items    int // items processed so far
	Dur      time.Duration
}

// Engine assigns cluster ids to a stream of vectors. It keeps state
// between calls, so a stream may be fed in any number of pieces. Not safe
// for concurrent use.
type Engine struct {
	cfg    Config
	oracle *Oracle
	window *Window

	shape  vecs.Shape
	shaped bool

	next    int // id of the next cluster
	seen    int // items processed
	batches int

	onBatch func(BatchStats)
}

// New validates cfg and creates an Engine.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:    cfg,
		oracle: NewOracle(cfg.Metric, cfg.Workers),
		window: NewWindow(cfg.Eviction),
	}, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// OnBatch registers a callback run after every batch.
func (e *Engine) OnBatch(fn func(BatchStats)) { e.onBatch = fn }

// Clusters returns the number of clusters created so far.
func (e *Engine) Clusters() int { return e.next }

// Items returns the number of items processed so far.
func (e *Engine) Items() int { return e.seen }

// Active returns the number of clusters eligible for matching.
func (e *Engine) Active() int { return e.window.Len() }

// Run clusters every item of s. Cancellation is checked between batches;
// on cancel the labels assigned so far are returned with ctx.Err().
func (e *Engine) Run(ctx context.Context, s *vecs.Store) ([]int, error) {
	return e.assign(ctx, s.Items())
}

// Assign clusters items in order and returns one id per item. Every vector
// is checked against the run's shape before any state changes.
func (e *Engine) Assign(items []vecs.Item) ([]int, error) {
	return e.assign(context.Background(), items)
}

// AssignVectors is Assign for untimed vectors.
func (e *Engine) AssignVectors(vs []vecs.Vector) ([]int, error) {
	items := make([]vecs.Item, len(vs))
	for i, v := range vs {
		items[i] = vecs.Item{Index: e.seen + i, Vector: v}
	}
	return e.Assign(items)
}

func (e *Engine) assign(ctx context.Context, items []vecs.Item) ([]int, error) {
	if err := e.checkShapes(items); err != nil {
		return nil, err
	}
	out := make([]int, 0, len(items))
	for start := 0; start < len(items); start += e.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		end := min(start+e.cfg.BatchSize, len(items))
		out = e.processBatch(items[start:end], out)
	}
	return out, nil
}

func (e *Engine) checkShapes(items []vecs.Item) error {
	shape, shaped := e.shape, e.shaped
	for _, it := range items {
		if it.Vector == nil {
			return &vecs.DimensionError{Index: it.Index, Want: shape}
		}
		if !shaped {
			shape, shaped = vecs.ShapeOf(it.Vector), true
			continue
		}
		if err := vecs.Check(shape, it.Vector, it.Index); err != nil {
			return err
		}
	}
	e.shape, e.shaped = shape, shaped
	return nil
}

// processBatch runs both phases for one batch and appends its labels.
func (e *Engine) processBatch(batch []vecs.Item, out []int) []int {
	began := time.Now()
	stats := BatchStats{Batch: e.batches, Start: e.seen, Size: len(batch)}

	// Phase 1: distances to the window as of batch start. Read-only.
	snapshot := e.window.Clusters()
	reps := e.window.Active()
	queries := make([]vecs.Vector, len(batch))
	for i, it := range batch {
		queries[i] = it.Vector
	}
	dist := e.oracle.Matrix(queries, reps)

	// Phase 2: resolve in arrival order.
	var fresh []*Cluster // ids are consecutive
	var live []Candidate
	var moved map[int]bool // snapshot clusters whose representative changed
	for i, it := range batch {
		e.window.Observe(it.Time)

		var best *Cluster
		bestD, bestID := math.Inf(1), -1
		for k, c := range snapshot {
			if !e.window.Retained(c) {
				continue
			}
			d := dist[i][k]
			if moved[c.ID] {
				d = e.oracle.Distance(it.Vector, c.Representative)
			}
			if closer(d, c.ID, bestD, bestID) {
				best, bestD, bestID = c, d, c.ID
			}
		}
		// Clusters founded earlier in this batch were not in the matrix.
		live = live[:0]
		for _, c := range fresh {
			if e.window.Retained(c) {
				live = append(live, Candidate{ID: c.ID, Vector: c.Representative})
			}
		}
		if id, d, ok := e.oracle.Nearest(it.Vector, live); ok && closer(d, id, bestD, bestID) {
			best, bestD, bestID = fresh[id-fresh[0].ID], d, id
		}

		if best != nil && bestD <= e.cfg.Threshold {
			best.Members++
			if e.cfg.Update == Centroid {
				best.Representative = best.Representative.Blend(it.Vector, 1/float64(best.Members))
				if best.CreatedAt < stats.Start {
					if moved == nil {
						moved = make(map[int]bool)
					}
					moved[best.ID] = true
				}
			}
			out = append(out, best.ID)
			stats.Assigned++
		} else {
			c := &Cluster{
				ID:             e.next,
				Representative: it.Vector,
				CreatedAt:      e.seen,
				CreatedTime:    e.window.Now(),
				Members:        1,
			}
			e.next++
			e.window.Insert(c)
			fresh = append(fresh, c)
			out = append(out, c.ID)
			stats.Created++
		}
		e.seen++
	}

	stats.Evicted = e.window.Advance()
	stats.Active = e.window.Len()
	stats.Clusters = e.next
	stats.Items = e.seen
	stats.Dur = time.Since(began)
	e.batches++

	logging.Debug("Cluster batch",
		"batch", stats.Batch,
		"size", stats.Size,
		"created", stats.Created,
		"assigned", stats.Assigned,
		"active", stats.Active,
		"evicted", stats.Evicted)

	if e.onBatch != nil {
		e.onBatch(stats)
	}
	return out
}
