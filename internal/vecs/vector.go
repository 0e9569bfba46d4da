// Package vecs holds embedding vectors in arrival order.
//
// Two representations share the Vector interface: Dense (a fixed-width
// float64 slice) and Sparse (sorted index/value pairs). Vectors are
// immutable once built; Blend returns a new vector.
package vecs

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Kind identifies a vector representation.
type Kind int

const (
	KindDense Kind = iota
	KindSparse
)

func (k Kind) String() string {
	switch k {
	case KindDense:
		return "dense"
	case KindSparse:
		return "sparse"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Vector is an embedding in either representation.
type Vector interface {
	Kind() Kind
	// Dim is the width of the feature space.
	Dim() int
	// NNZ is the number of stored entries.
	NNZ() int
	// Norm is the cached L2 norm.
	Norm() float64
	// Dot returns the inner product with a vector of the same kind and width.
	// Returns 0 when the shapes differ.
	Dot(other Vector) float64
	// Blend returns (1-w)*v + w*other. With w = 1/n it advances a running
	// mean of n members by one.
	Blend(other Vector, w float64) Vector
}

// Dense is a fixed-width vector.
type Dense struct {
	data []float64
	norm float64
}

// NewDense copies data into a new Dense vector.
func NewDense(data []float64) *Dense {
	cp := make([]float64, len(data))
	copy(cp, data)
	return newDense(cp)
}

// DenseFromFloat32 converts an embedding service response.
func DenseFromFloat32(v []float32) *Dense {
	data := make([]float64, len(v))
	for i, f := range v {
		data[i] = float64(f)
	}
	return newDense(data)
}

func newDense(data []float64) *Dense {
	return &Dense{data: data, norm: l2(data)}
}

func (d *Dense) Kind() Kind    { return KindDense }
func (d *Dense) Dim() int      { return len(d.data) }
func (d *Dense) NNZ() int      { return len(d.data) }
func (d *Dense) Norm() float64 { return d.norm }

// Values exposes the backing slice. Callers must not modify it.
func (d *Dense) Values() []float64 { return d.data }

func (d *Dense) Dot(other Vector) float64 {
	o, ok := other.(*Dense)
	if !ok || len(o.data) != len(d.data) || len(d.data) == 0 {
		return 0
	}
	return floats.Dot(d.data, o.data)
}

func (d *Dense) Blend(other Vector, w float64) Vector {
	o, ok := other.(*Dense)
	if !ok || len(o.data) != len(d.data) {
		return d
	}
	out := make([]float64, len(d.data))
	copy(out, d.data)
	floats.Scale(1-w, out)
	floats.AddScaled(out, w, o.data)
	return newDense(out)
}

// Sparse stores only nonzero entries, sorted by index.
type Sparse struct {
	dim  int
	idx  []int32
	val  []float64
	norm float64
}

// NewSparse builds a sparse vector of width dim. Pairs may come in any
// order; duplicate indices are summed and zeros dropped.
func NewSparse(dim int, idx []int32, val []float64) (*Sparse, error) {
	if len(idx) != len(val) {
		return nil, fmt.Errorf("vecs: sparse: %d indices for %d values", len(idx), len(val))
	}
	type pair struct {
		i int32
		v float64
	}
	pairs := make([]pair, len(idx))
	for k := range idx {
		if idx[k] < 0 || int(idx[k]) >= dim {
			return nil, fmt.Errorf("vecs: sparse: index %d out of range [0,%d)", idx[k], dim)
		}
		pairs[k] = pair{idx[k], val[k]}
	}
	sort.SliceStable(pairs, func(a, b int) bool { return pairs[a].i < pairs[b].i })

	s := &Sparse{dim: dim}
	for _, p := range pairs {
		if n := len(s.idx); n > 0 && s.idx[n-1] == p.i {
			s.val[n-1] += p.v
			continue
		}
		s.idx = append(s.idx, p.i)
		s.val = append(s.val, p.v)
	}
	s.compact()
	s.norm = l2(s.val)
	return s, nil
}

// compact drops explicit zeros left after merging.
func (s *Sparse) compact() {
	n := 0
	for k := range s.idx {
		if s.val[k] == 0 {
			continue
		}
		s.idx[n] = s.idx[k]
		s.val[n] = s.val[k]
		n++
	}
	s.idx = s.idx[:n]
	s.val = s.val[:n]
}

func (s *Sparse) Kind() Kind    { return KindSparse }
func (s *Sparse) Dim() int      { return s.dim }
func (s *Sparse) NNZ() int      { return len(s.idx) }
func (s *Sparse) Norm() float64 { return s.norm }

// Indices exposes the sorted index slice. Callers must not modify it.
func (s *Sparse) Indices() []int32 { return s.idx }

// Values exposes the value slice aligned with Indices. Callers must not modify it.
func (s *Sparse) Values() []float64 { return s.val }

// Dot merges the two index lists in ascending order.
func (s *Sparse) Dot(other Vector) float64 {
	o, ok := other.(*Sparse)
	if !ok || o.dim != s.dim {
		return 0
	}
	var sum float64
	i, j := 0, 0
	for i < len(s.idx) && j < len(o.idx) {
		switch {
		case s.idx[i] == o.idx[j]:
			sum += s.val[i] * o.val[j]
			i++
			j++
		case s.idx[i] < o.idx[j]:
			i++
		default:
			j++
		}
	}
	return sum
}

func (s *Sparse) Blend(other Vector, w float64) Vector {
	o, ok := other.(*Sparse)
	if !ok || o.dim != s.dim {
		return s
	}
	out := &Sparse{
		dim: s.dim,
		idx: make([]int32, 0, len(s.idx)+len(o.idx)),
		val: make([]float64, 0, len(s.idx)+len(o.idx)),
	}
	keep := 1 - w
	i, j := 0, 0
	for i < len(s.idx) || j < len(o.idx) {
		switch {
		case j >= len(o.idx) || (i < len(s.idx) && s.idx[i] < o.idx[j]):
			out.idx = append(out.idx, s.idx[i])
			out.val = append(out.val, keep*s.val[i])
			i++
		case i >= len(s.idx) || o.idx[j] < s.idx[i]:
			out.idx = append(out.idx, o.idx[j])
			out.val = append(out.val, w*o.val[j])
			j++
		default:
			out.idx = append(out.idx, s.idx[i])
			out.val = append(out.val, keep*s.val[i]+w*o.val[j])
			i++
			j++
		}
	}
	out.compact()
	out.norm = l2(out.val)
	return out
}

// L2Distance is the Euclidean distance between two vectors of the same
// kind and width, summed over coordinate differences. Mismatched shapes are
// +Inf apart.
func L2Distance(a, b Vector) float64 {
	switch x := a.(type) {
	case *Dense:
		y, ok := b.(*Dense)
		if !ok || len(x.data) != len(y.data) {
			return math.Inf(1)
		}
		if len(x.data) == 0 {
			return 0
		}
		return floats.Distance(x.data, y.data, 2)
	case *Sparse:
		y, ok := b.(*Sparse)
		if !ok || x.dim != y.dim {
			return math.Inf(1)
		}
		return x.distance(y)
	}
	return math.Inf(1)
}

// distance merges the two index lists; entries present on one side only
// contribute their full square.
func (s *Sparse) distance(o *Sparse) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(s.idx) || j < len(o.idx) {
		var d float64
		switch {
		case j >= len(o.idx) || (i < len(s.idx) && s.idx[i] < o.idx[j]):
			d = s.val[i]
			i++
		case i >= len(s.idx) || o.idx[j] < s.idx[i]:
			d = o.val[j]
			j++
		default:
			d = s.val[i] - o.val[j]
			i++
			j++
		}
		sum += d * d
	}
	return math.Sqrt(sum)
}

func l2(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return floats.Norm(v, 2)
}
