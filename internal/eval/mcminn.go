package eval

import (
	"errors"
	"sort"
)

// ErrNoCandidates is returned by McMinn when no cluster is large enough to
// be a candidate, or no row is labelled.
var ErrNoCandidates = errors.New("eval: no candidate clusters")

const (
	// MinCandidateSize is the number of labelled rows a cluster needs to be
	// a candidate.
	MinCandidateSize = 5
	// MinPurity is the share of a candidate's labelled rows one event must
	// hold for the candidate to detect it.
	MinPurity = 0.5
)

// McMinn scores detection in the style of McMinn et al. (2013): a
// candidate detects its majority event when that event holds at least half
// of its labelled rows. Precision is the share of candidates that detect
// an event, recall the share of events detected by some candidate.
func McMinn(truth []string, pred []int) (PRF, error) {
	t, p, err := labelled(truth, pred)
	if err != nil {
		return PRF{}, err
	}

	events := make(map[string]bool)
	byCluster := make(map[int]map[string]int)
	for i := range t {
		events[t[i]] = true
		if byCluster[p[i]] == nil {
			byCluster[p[i]] = make(map[string]int)
		}
		byCluster[p[i]][t[i]]++
	}

	var candidates, detecting int
	detected := make(map[string]bool)
	for _, counts := range byCluster {
		size := 0
		for _, n := range counts {
			size += n
		}
		if size < MinCandidateSize {
			continue
		}
		candidates++

		label, top := majority(counts)
		if float64(top) >= MinPurity*float64(size) {
			detecting++
			detected[label] = true
		}
	}
	if candidates == 0 || len(events) == 0 {
		return PRF{}, ErrNoCandidates
	}

	prec := float64(detecting) / float64(candidates)
	rec := float64(len(detected)) / float64(len(events))
	return PRF{prec, rec, f1(prec, rec)}, nil
}

// majority returns the most frequent label, breaking ties by label order.
func majority(counts map[string]int) (string, int) {
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	var best string
	top := -1
	for _, l := range labels {
		if counts[l] > top {
			best, top = l, counts[l]
		}
	}
	return best, top
}
