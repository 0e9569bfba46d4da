package vecs

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"
)

func mustSparse(t *testing.T, dim int, idx []int32, val []float64) *Sparse {
	t.Helper()
	s, err := NewSparse(dim, idx, val)
	if err != nil {
		t.Fatalf("NewSparse failed: %v", err)
	}
	return s
}

func TestDense(t *testing.T) {
	src := []float64{3, 4}
	d := NewDense(src)
	src[0] = 100
	if d.Values()[0] != 3 {
		t.Error("NewDense should copy its input")
	}
	if d.Norm() != 5 || d.Dim() != 2 || d.NNZ() != 2 || d.Kind() != KindDense {
		t.Errorf("unexpected dense %v norm=%v", d.Values(), d.Norm())
	}
	if got := d.Dot(NewDense([]float64{1, 2})); got != 11 {
		t.Errorf("expected dot 11, got %v", got)
	}
	if got := d.Dot(NewDense([]float64{1, 2, 3})); got != 0 {
		t.Errorf("expected 0 for mismatched width, got %v", got)
	}

	f := DenseFromFloat32([]float32{0.5, -1})
	if !reflect.DeepEqual(f.Values(), []float64{0.5, -1}) {
		t.Errorf("unexpected conversion %v", f.Values())
	}
}

func TestDenseBlendRunningMean(t *testing.T) {
	var mean Vector = NewDense([]float64{2, 0})
	mean = mean.Blend(NewDense([]float64{0, 2}), 1.0/2)
	mean = mean.Blend(NewDense([]float64{1, 1}), 1.0/3)
	got := mean.(*Dense).Values()
	for i, want := range []float64{1, 1} {
		if math.Abs(got[i]-want) > 1e-12 {
			t.Errorf("component %d: expected %v, got %v", i, want, got[i])
		}
	}
}

func TestNewSparse(t *testing.T) {
	s := mustSparse(t, 10, []int32{7, 2, 7, 4}, []float64{1, 3, 2, 0})
	if !reflect.DeepEqual(s.Indices(), []int32{2, 7}) {
		t.Errorf("expected sorted merged indices [2 7], got %v", s.Indices())
	}
	if !reflect.DeepEqual(s.Values(), []float64{3, 3}) {
		t.Errorf("expected duplicate indices summed, got %v", s.Values())
	}
	if s.NNZ() != 2 || s.Dim() != 10 || s.Kind() != KindSparse {
		t.Errorf("unexpected sparse shape nnz=%d dim=%d", s.NNZ(), s.Dim())
	}

	cancel := mustSparse(t, 4, []int32{1, 1}, []float64{2, -2})
	if cancel.NNZ() != 0 || cancel.Norm() != 0 {
		t.Errorf("expected cancelling entries to vanish, got %v", cancel.Values())
	}
}

func TestNewSparseErrors(t *testing.T) {
	tests := []struct {
		name string
		idx  []int32
		val  []float64
	}{
		{"length mismatch", []int32{1}, nil},
		{"negative index", []int32{-1}, []float64{1}},
		{"index past dim", []int32{5}, []float64{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSparse(5, tt.idx, tt.val); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestSparseDotMatchesDense(t *testing.T) {
	a := mustSparse(t, 6, []int32{0, 2, 5}, []float64{1, 2, 3})
	b := mustSparse(t, 6, []int32{2, 3, 5}, []float64{4, 1, -1})
	da := NewDense([]float64{1, 0, 2, 0, 0, 3})
	db := NewDense([]float64{0, 0, 4, 1, 0, -1})

	if got, want := a.Dot(b), da.Dot(db); got != want {
		t.Errorf("sparse dot %v != dense dot %v", got, want)
	}
	if math.Abs(a.Norm()-da.Norm()) > 1e-12 {
		t.Errorf("sparse norm %v != dense norm %v", a.Norm(), da.Norm())
	}
	if got := a.Dot(da); got != 0 {
		t.Errorf("expected 0 across kinds, got %v", got)
	}
}

func TestL2Distance(t *testing.T) {
	big := []float64{1000.1, 2000.3, 3000.7}
	tests := []struct {
		name string
		a, b Vector
		want float64
	}{
		{"dense", NewDense([]float64{0, 0}), NewDense([]float64{3, 4}), 5},
		{"dense identical large", NewDense(big), NewDense(big), 0},
		{"dense empty", NewDense(nil), NewDense(nil), 0},
		{"sparse", mustSparse(t, 10, []int32{1, 4}, []float64{3, 1}), mustSparse(t, 10, []int32{4, 7}, []float64{1, 4}), 5},
		{"sparse identical large", mustSparse(t, 5, []int32{0, 3}, []float64{1e6 + 0.1, 3e6 + 0.7}), mustSparse(t, 5, []int32{3, 0}, []float64{3e6 + 0.7, 1e6 + 0.1}), 0},
		{"kind mismatch", NewDense([]float64{1}), mustSparse(t, 1, []int32{0}, []float64{1}), math.Inf(1)},
		{"width mismatch", NewDense([]float64{1}), NewDense([]float64{1, 2}), math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := L2Distance(tt.a, tt.b)
			if got != tt.want && math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSparseBlend(t *testing.T) {
	a := mustSparse(t, 4, []int32{0, 1}, []float64{2, 2})
	b := mustSparse(t, 4, []int32{1, 3}, []float64{2, 4})
	m := a.Blend(b, 0.5).(*Sparse)
	if !reflect.DeepEqual(m.Indices(), []int32{0, 1, 3}) {
		t.Errorf("expected union of indices, got %v", m.Indices())
	}
	if !reflect.DeepEqual(m.Values(), []float64{1, 2, 2}) {
		t.Errorf("expected halfway values, got %v", m.Values())
	}
	if a.Blend(NewDense([]float64{1, 1, 1, 1}), 0.5) != Vector(a) {
		t.Error("blend across kinds should return the receiver")
	}
}

func TestStoreAppend(t *testing.T) {
	s := NewStore(2)
	if _, shaped := s.Shape(); shaped {
		t.Error("empty store should have no shape")
	}

	ts := time.Date(2012, 10, 10, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		idx, err := s.Append(NewDense([]float64{float64(i), 1}), ts.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if idx != i {
			t.Errorf("expected index %d, got %d", i, idx)
		}
	}
	if s.Len() != 3 || s.At(2).Index != 2 || !s.At(1).Time.Equal(ts.Add(time.Minute)) {
		t.Errorf("unexpected store contents %+v", s.Items())
	}
	shape, _ := s.Shape()
	if shape != (Shape{Kind: KindDense, Dim: 2}) {
		t.Errorf("unexpected shape %v", shape)
	}

	_, err := s.Append(NewDense([]float64{1, 2, 3}), time.Time{})
	var de *DimensionError
	if !errors.As(err, &de) || !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected DimensionError, got %v", err)
	}
	if de.Index != 3 || de.Got.Dim != 3 {
		t.Errorf("unexpected error details %+v", de)
	}

	if _, err := s.Append(mustSparse(t, 2, nil, nil), time.Time{}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected kind mismatch to be rejected, got %v", err)
	}
	if _, err := s.Append(nil, time.Time{}); err == nil {
		t.Error("expected nil vector to be rejected")
	}
	if s.Len() != 3 {
		t.Errorf("rejected vectors must not be stored, len=%d", s.Len())
	}
}
