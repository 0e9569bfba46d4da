package vecs

import (
	"errors"
	"fmt"
	"time"
)

// ErrDimensionMismatch is returned when a vector's representation or width
// differs from the vectors already seen in the same run.
var ErrDimensionMismatch = errors.New("vecs: dimension mismatch")

// Shape is the representation and width shared by every vector of a run.
type Shape struct {
	Kind Kind
	Dim  int
}

// ShapeOf returns the shape of v.
func ShapeOf(v Vector) Shape {
	return Shape{Kind: v.Kind(), Dim: v.Dim()}
}

func (s Shape) String() string {
	return fmt.Sprintf("%s[%d]", s.Kind, s.Dim)
}

// DimensionError reports the offending item. It matches ErrDimensionMismatch
// with errors.Is.
type DimensionError struct {
	Index int
	Want  Shape
	Got   Shape
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("vecs: item %d: dimension mismatch: want %s, got %s", e.Index, e.Want, e.Got)
}

func (e *DimensionError) Unwrap() error { return ErrDimensionMismatch }

// Check returns a *DimensionError when v does not have shape want.
func Check(want Shape, v Vector, index int) error {
	if got := ShapeOf(v); got != want {
		return &DimensionError{Index: index, Want: want, Got: got}
	}
	return nil
}

// Item is one input record: its arrival position, vector and optional
// timestamp. Items are never mutated after Append.
type Item struct {
	Index  int
	Vector Vector
	Time   time.Time
}

// Store holds every vector of a run in arrival order. Not safe for
// concurrent writers.
type Store struct {
	items  []Item
	shape  Shape
	shaped bool
}

// NewStore creates an empty store, optionally preallocated.
func NewStore(capacity int) *Store {
	if capacity < 0 {
		capacity = 0
	}
	return &Store{items: make([]Item, 0, capacity)}
}

// Append adds v at the next index. The first vector fixes the run's shape;
// later vectors must match it.
func (s *Store) Append(v Vector, ts time.Time) (int, error) {
	if v == nil {
		return 0, fmt.Errorf("vecs: item %d: nil vector", len(s.items))
	}
	index := len(s.items)
	if !s.shaped {
		s.shape = ShapeOf(v)
		s.shaped = true
	} else if err := Check(s.shape, v, index); err != nil {
		return 0, err
	}
	s.items = append(s.items, Item{Index: index, Vector: v, Time: ts})
	return index, nil
}

// Len returns the number of stored items.
func (s *Store) Len() int { return len(s.items) }

// At returns item i.
func (s *Store) At(i int) Item { return s.items[i] }

// Items returns the stored items in arrival order. The slice is shared.
func (s *Store) Items() []Item { return s.items }

// Shape returns the run's shape and whether any vector has been stored.
func (s *Store) Shape() (Shape, bool) { return s.shape, s.shaped }
