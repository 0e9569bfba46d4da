package cluster

import (
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/topicstream/internal/vecs"
)

// parallelCells is the batch × window size below which Matrix stays on the
// calling goroutine.
const parallelCells = 4096

// Candidate is one representative offered to the oracle.
type Candidate struct {
	ID     int
	Vector vecs.Vector
}

// Oracle computes distances under an injected Metric.
type Oracle struct {
	metric  Metric
	workers int
}

// NewOracle creates an Oracle. workers <= 0 uses GOMAXPROCS.
func NewOracle(m Metric, workers int) *Oracle {
	if m == nil {
		m = Cosine{}
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Oracle{metric: m, workers: workers}
}

// Metric returns the configured metric.
func (o *Oracle) Metric() Metric { return o.metric }

// Distance compares two vectors of the same shape.
func (o *Oracle) Distance(a, b vecs.Vector) float64 {
	return o.metric.Distance(a, b)
}

// Nearest returns the closest representative. Ties go to the lowest id.
// ok is false when reps is empty.
func (o *Oracle) Nearest(q vecs.Vector, reps []Candidate) (id int, dist float64, ok bool) {
	id, dist = -1, math.Inf(1)
	for _, c := range reps {
		d := o.Distance(q, c.Vector)
		if closer(d, c.ID, dist, id) {
			id, dist, ok = c.ID, d, true
		}
	}
	return id, dist, ok
}

// closer orders (distance, id) pairs: smaller distance first, then lower id.
func closer(d float64, id int, bestD float64, bestID int) bool {
	if bestID < 0 {
		return !math.IsNaN(d)
	}
	if d != bestD {
		return d < bestD
	}
	return id < bestID
}

// Matrix returns dist[i][k], the distance from batch[i] to reps[k]. Rows
// are filled concurrently; every cell equals Distance(batch[i], reps[k].Vector)
// exactly.
func (o *Oracle) Matrix(batch []vecs.Vector, reps []Candidate) [][]float64 {
	out := make([][]float64, len(batch))
	if len(batch) == 0 {
		return out
	}
	if len(reps) == 0 {
		for i := range out {
			out[i] = []float64{}
		}
		return out
	}

	var row func(i int)
	dm, byDot := o.metric.(dotMetric)
	if _, sparse := reps[0].Vector.(*vecs.Sparse); sparse && byDot {
		inv := invert(reps)
		row = func(i int) { out[i] = inv.distances(dm, batch[i]) }
	} else {
		row = func(i int) {
			r := make([]float64, len(reps))
			q := batch[i]
			for k, c := range reps {
				r[k] = o.Distance(q, c.Vector)
			}
			out[i] = r
		}
	}

	if len(batch)*len(reps) < parallelCells || o.workers == 1 {
		for i := range batch {
			row(i)
		}
		return out
	}

	var g errgroup.Group
	g.SetLimit(o.workers)
	for i := range batch {
		g.Go(func() error {
			row(i)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// posting is one nonzero of a representative, filed under its column.
type posting struct {
	rep int
	val float64
}

// inverted is the window's representatives as one column-major sparse
// matrix. A batch row is multiplied against it by walking the row's
// nonzeros in ascending index order, which adds the products for each
// (row, representative) pair in the same order as vecs.Sparse.Dot.
type inverted struct {
	cols  map[int32][]posting
	norms []float64
	dim   int
}

func invert(reps []Candidate) *inverted {
	inv := &inverted{
		cols:  make(map[int32][]posting),
		norms: make([]float64, len(reps)),
	}
	for k, c := range reps {
		s, ok := c.Vector.(*vecs.Sparse)
		if !ok {
			continue
		}
		inv.dim = s.Dim()
		inv.norms[k] = s.Norm()
		vals := s.Values()
		for n, ix := range s.Indices() {
			inv.cols[ix] = append(inv.cols[ix], posting{rep: k, val: vals[n]})
		}
	}
	return inv
}

func (inv *inverted) distances(m dotMetric, q vecs.Vector) []float64 {
	dots := make([]float64, len(inv.norms))
	if s, ok := q.(*vecs.Sparse); ok && s.Dim() == inv.dim {
		vals := s.Values()
		for n, ix := range s.Indices() {
			for _, p := range inv.cols[ix] {
				dots[p.rep] += vals[n] * p.val
			}
		}
	}
	out := make([]float64, len(dots))
	for k, dot := range dots {
		out[k] = m.fromDot(dot, q.Norm(), inv.norms[k])
	}
	return out
}
