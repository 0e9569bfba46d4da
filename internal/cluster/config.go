// Package cluster groups a stream of embedding vectors into clusters
// incrementally, comparing each new vector only against a bounded window
// of recently created clusters.
//
// Items are processed in batches. Phase 1 of a batch computes, in parallel,
// the distance from every batch vector to every cluster active at batch
// start. Phase 2 resolves items one at a time in arrival order, also
// checking clusters created earlier in the same batch. Only phase 2 mutates
// state, so results do not depend on the batch size.
package cluster

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidConfiguration is returned by New when Config fails validation.
var ErrInvalidConfiguration = errors.New("cluster: invalid configuration")

// ConfigError names the rejected field. It matches ErrInvalidConfiguration
// with errors.Is.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("cluster: invalid configuration: %s %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfiguration }

// UpdatePolicy decides what happens to a cluster's representative when an
// item joins it.
type UpdatePolicy int

const (
	// FirstMember keeps the vector that founded the cluster.
	FirstMember UpdatePolicy = iota
	// Centroid keeps a running mean of all members.
	Centroid
)

func (p UpdatePolicy) String() string {
	switch p {
	case FirstMember:
		return "first-member"
	case Centroid:
		return "centroid"
	default:
		return fmt.Sprintf("update(%d)", int(p))
	}
}

// ParseUpdatePolicy accepts "first-member" (or "first") and "centroid".
func ParseUpdatePolicy(s string) (UpdatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first-member", "first_member", "first":
		return FirstMember, nil
	case "centroid", "mean":
		return Centroid, nil
	}
	return 0, &ConfigError{Field: "update", Reason: fmt.Sprintf("unknown policy %q", s)}
}

// Config controls an Engine. Zero Metric means Cosine, zero Eviction means
// CountPolicy over WindowSize, zero Workers means GOMAXPROCS.
type Config struct {
	// Threshold is the maximum distance at which an item joins an existing
	// cluster.
	Threshold float64

	// WindowSize is the number of most recently created clusters eligible
	// for matching.
	WindowSize int

	// BatchSize is the number of items per batch.
	BatchSize int

	Metric   Metric
	Update   UpdatePolicy
	Eviction EvictionPolicy

	// WindowSpan, when set and Eviction is nil, selects a TimePolicy that
	// also retires clusters older than the span (measured on item time).
	WindowSpan time.Duration

	// Workers bounds phase 1 parallelism.
	Workers int
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case !(c.Threshold > 0):
		return &ConfigError{Field: "threshold", Reason: fmt.Sprintf("must be > 0, got %v", c.Threshold)}
	case c.WindowSize <= 0:
		return &ConfigError{Field: "window_size", Reason: fmt.Sprintf("must be > 0, got %d", c.WindowSize)}
	case c.BatchSize <= 0:
		return &ConfigError{Field: "batch_size", Reason: fmt.Sprintf("must be > 0, got %d", c.BatchSize)}
	case c.Update != FirstMember && c.Update != Centroid:
		return &ConfigError{Field: "update", Reason: fmt.Sprintf("unknown policy %d", int(c.Update))}
	case c.WindowSpan < 0:
		return &ConfigError{Field: "window_span", Reason: "must not be negative"}
	case c.Workers < 0:
		return &ConfigError{Field: "workers", Reason: "must not be negative"}
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Metric == nil {
		c.Metric = Cosine{}
	}
	if c.Eviction == nil {
		if c.WindowSpan > 0 {
			c.Eviction = TimePolicy{Size: c.WindowSize, Span: c.WindowSpan}
		} else {
			c.Eviction = CountPolicy{Size: c.WindowSize}
		}
	}
	return c
}
