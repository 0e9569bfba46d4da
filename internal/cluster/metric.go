package cluster

import (
	"fmt"
	"math"
	"strings"

	"github.com/abelbrown/topicstream/internal/vecs"
)

// Metric is a distance between two vectors of the same shape.
type Metric interface {
	Name() string
	Distance(a, b vecs.Vector) float64
}

// dotMetric is a Metric that depends on the vectors only through their
// inner product and norms. Matrix scores a sparse batch against the whole
// window from one inverted-index pass when the metric has this form.
type dotMetric interface {
	Metric
	fromDot(dot, normA, normB float64) float64
}

// Cosine is 1 - cosine similarity. A zero vector has no direction, so its
// distance to anything is +Inf and it never matches.
type Cosine struct{}

func (Cosine) Name() string { return "cosine" }

func (c Cosine) Distance(a, b vecs.Vector) float64 {
	return c.fromDot(a.Dot(b), a.Norm(), b.Norm())
}

func (Cosine) fromDot(dot, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return math.Inf(1)
	}
	d := 1 - dot/(normA*normB)
	if d < 0 {
		return 0
	}
	return d
}

// Euclidean is the L2 distance, summed over coordinate differences so that
// identical vectors are exactly 0 at any magnitude.
type Euclidean struct{}

func (Euclidean) Name() string { return "euclidean" }

func (Euclidean) Distance(a, b vecs.Vector) float64 { return vecs.L2Distance(a, b) }

// MetricByName resolves a configured metric name.
func MetricByName(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "cosine":
		return Cosine{}, nil
	case "euclidean", "l2":
		return Euclidean{}, nil
	}
	return nil, &ConfigError{Field: "metric", Reason: fmt.Sprintf("unknown metric %q", name)}
}
