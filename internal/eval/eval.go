// Package eval scores a clustering against annotated events.
//
// Truth labels are strings, "" meaning unlabelled; predictions are cluster
// ids. Scores that compare partitions only look at labelled rows.
package eval

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Stats summarises cluster sizes.
type Stats struct {
	Items      int
	Clusters   int
	Singletons int
	MeanSize   float64
	MedianSize float64
	MaxSize    int
}

// GeneralStatistics summarises the sizes of the clusters in pred.
func GeneralStatistics(pred []int) Stats {
	counts := make(map[int]int)
	for _, p := range pred {
		counts[p]++
	}
	s := Stats{Items: len(pred), Clusters: len(counts)}
	if len(counts) == 0 {
		return s
	}
	sizes := make([]float64, 0, len(counts))
	for _, n := range counts {
		sizes = append(sizes, float64(n))
		if n == 1 {
			s.Singletons++
		}
		s.MaxSize = max(s.MaxSize, n)
	}
	sort.Float64s(sizes)
	s.MeanSize = stat.Mean(sizes, nil)
	mid := len(sizes) / 2
	if len(sizes)%2 == 1 {
		s.MedianSize = sizes[mid]
	} else {
		s.MedianSize = (sizes[mid-1] + sizes[mid]) / 2
	}
	return s
}

// PRF is a precision/recall/F1 triple.
type PRF struct {
	P, R, F1 float64
}

func f1(p, r float64) float64 {
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// labelled keeps the rows with a truth label.
func labelled(truth []string, pred []int) ([]string, []int, error) {
	if len(truth) != len(pred) {
		return nil, nil, fmt.Errorf("eval: %d labels for %d predictions", len(truth), len(pred))
	}
	var t []string
	var p []int
	for i, l := range truth {
		if l != "" {
			t = append(t, l)
			p = append(p, pred[i])
		}
	}
	return t, p, nil
}

type pair struct {
	label string
	pred  int
}

// EventMatch pairs every event with the cluster that best matches it and
// macro-averages precision, recall and F1 over events. For an event e and
// a cluster c sharing a rows, precision is a over the labelled rows of c
// and recall is a over the rows of e. The best cluster has the highest F1,
// then the lowest id.
func EventMatch(truth []string, pred []int) (PRF, error) {
	t, p, err := labelled(truth, pred)
	if err != nil {
		return PRF{}, err
	}
	if len(t) == 0 {
		return PRF{}, nil
	}

	events := make(map[string]int)
	clusters := make(map[int]int)
	joint := make(map[pair]int)
	for i := range t {
		events[t[i]]++
		clusters[p[i]]++
		joint[pair{t[i], p[i]}]++
	}

	type match struct {
		PRF
		cluster int
	}
	best := make(map[string]match, len(events))
	for k, a := range joint {
		prec := float64(a) / float64(clusters[k.pred])
		rec := float64(a) / float64(events[k.label])
		m := match{PRF{prec, rec, f1(prec, rec)}, k.pred}
		cur, seen := best[k.label]
		if !seen || m.F1 > cur.F1 || (m.F1 == cur.F1 && m.cluster < cur.cluster) {
			best[k.label] = m
		}
	}

	// fixed order keeps the float sums reproducible
	labels := make([]string, 0, len(best))
	for l := range best {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	var out PRF
	for _, l := range labels {
		out.P += best[l].P
		out.R += best[l].R
		out.F1 += best[l].F1
	}
	n := float64(len(labels))
	out.P /= n
	out.R /= n
	out.F1 /= n
	return out, nil
}
