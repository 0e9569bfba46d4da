package eval

import (
	"cmp"
	"maps"
	"math"
	"slices"
)

// contingency is the table of co-occurrence counts between two labelings
// of the same n rows.
type contingency struct {
	n    int
	a    []int // row sums (truth classes)
	b    []int // column sums (predicted clusters)
	cell map[[2]int]int
}

func newContingency(truth []string, pred []int) contingency {
	rows := indexOf(truth)
	cols := indexOf(pred)
	c := contingency{
		n:    len(truth),
		a:    make([]int, len(rows)),
		b:    make([]int, len(cols)),
		cell: make(map[[2]int]int),
	}
	for i := range truth {
		r, k := rows[truth[i]], cols[pred[i]]
		c.a[r]++
		c.b[k]++
		c.cell[[2]int{r, k}]++
	}
	return c
}

// indexOf numbers the distinct values of xs in sorted order.
func indexOf[T cmp.Ordered](xs []T) map[T]int {
	set := make(map[T]bool)
	for _, x := range xs {
		set[x] = true
	}
	vals := make([]T, 0, len(set))
	for x := range set {
		vals = append(vals, x)
	}
	slices.Sort(vals)
	idx := make(map[T]int, len(vals))
	for i, x := range vals {
		idx[x] = i
	}
	return idx
}

// trivial reports the cases where both labelings agree by construction:
// no rows, one class and one cluster, or every row on its own.
func (c contingency) trivial() bool {
	ka, kb := len(c.a), len(c.b)
	return c.n == 0 || (ka == 1 && kb == 1) || (ka == c.n && kb == c.n)
}

func choose2(n int) float64 { return float64(n) * float64(n-1) / 2 }

// AdjustedRandIndex compares the labelled rows of truth and pred. 1 is a
// perfect match, 0 the expectation under chance.
func AdjustedRandIndex(truth []string, pred []int) (float64, error) {
	t, p, err := labelled(truth, pred)
	if err != nil {
		return 0, err
	}
	c := newContingency(t, p)
	if c.trivial() {
		return 1, nil
	}

	var index, sumA, sumB float64
	for _, n := range c.cell {
		index += choose2(n)
	}
	for _, n := range c.a {
		sumA += choose2(n)
	}
	for _, n := range c.b {
		sumB += choose2(n)
	}
	expected := sumA * sumB / choose2(c.n)
	maxIndex := (sumA + sumB) / 2
	if maxIndex == expected {
		return 1, nil
	}
	return (index - expected) / (maxIndex - expected), nil
}

// AdjustedMutualInfo compares the labelled rows of truth and pred, with
// arithmetic-mean normalisation and the exact expected mutual information
// under the hypergeometric model.
func AdjustedMutualInfo(truth []string, pred []int) (float64, error) {
	t, p, err := labelled(truth, pred)
	if err != nil {
		return 0, err
	}
	c := newContingency(t, p)
	if c.n == 0 || (len(c.a) == 1 && len(c.b) == 1) || (len(c.a) == 0 && len(c.b) == 0) {
		return 1, nil
	}

	mi := c.mutualInfo()
	emi := c.expectedMutualInfo()
	hu, hv := entropy(c.a, c.n), entropy(c.b, c.n)
	denom := (hu+hv)/2 - emi
	const eps = 2.220446049250313e-16
	if denom < 0 {
		denom = math.Min(denom, -eps)
	} else {
		denom = math.Max(denom, eps)
	}
	return (mi - emi) / denom, nil
}

func (c contingency) mutualInfo() float64 {
	n := float64(c.n)
	var mi float64
	// fixed order so the sum is the same on every run
	for _, k := range slices.SortedFunc(maps.Keys(c.cell), compareCell) {
		x := float64(c.cell[k])
		mi += x / n * math.Log(n*x/(float64(c.a[k[0]])*float64(c.b[k[1]])))
	}
	return mi
}

func compareCell(x, y [2]int) int {
	if c := cmp.Compare(x[0], y[0]); c != 0 {
		return c
	}
	return cmp.Compare(x[1], y[1])
}

func entropy(sizes []int, total int) float64 {
	n := float64(total)
	var h float64
	for _, s := range sizes {
		if s > 0 {
			p := float64(s) / n
			h -= p * math.Log(p)
		}
	}
	return h
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}

// expectedMutualInfo sums, for every class/cluster pair, the MI term of
// each possible overlap weighted by its hypergeometric probability.
func (c contingency) expectedMutualInfo() float64 {
	total := c.n
	n := float64(total)
	lgN := lgamma(n + 1)
	var emi float64
	for _, ai := range c.a {
		for _, bj := range c.b {
			lo := max(1, ai+bj-total)
			hi := min(ai, bj)
			if lo > hi {
				continue
			}
			fa, fb := float64(ai), float64(bj)
			// log of the constant factor ai! bj! (N-ai)! (N-bj)! / N!
			base := lgamma(fa+1) + lgamma(fb+1) + lgamma(n-fa+1) + lgamma(n-fb+1) - lgN
			for nij := lo; nij <= hi; nij++ {
				x := float64(nij)
				logP := base - lgamma(x+1) - lgamma(fa-x+1) - lgamma(fb-x+1) - lgamma(n-fa-fb+x+1)
				emi += x / n * math.Log(n*x/(fa*fb)) * math.Exp(logP)
			}
		}
	}
	return emi
}
