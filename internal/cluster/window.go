package cluster

import (
	"time"

	"github.com/abelbrown/topicstream/internal/vecs"
)

// Cluster is a group of items. Clusters are never deleted, only retired
// from the window; their ids stay valid in the results.
type Cluster struct {
	ID             int
	Representative vecs.Vector
	// CreatedAt is the stream position of the founding item.
	CreatedAt int
	// CreatedTime is the window clock when the cluster was founded.
	CreatedTime time.Time
	Members     int
}

// EvictionPolicy decides whether a cluster is still eligible for matching,
// given the id of the newest cluster and the window clock.
//
// Retain must be monotone: once false for a cluster it stays false as
// newest and now advance.
type EvictionPolicy interface {
	Name() string
	Retain(c *Cluster, newest int, now time.Time) bool
}

// CountPolicy keeps the Size most recently created clusters.
type CountPolicy struct {
	Size int
}

func (p CountPolicy) Name() string { return "count" }

func (p CountPolicy) Retain(c *Cluster, newest int, _ time.Time) bool {
	return c.ID > newest-p.Size
}

// TimePolicy keeps clusters founded within Span of the window clock, and
// never more than Size of them. Clusters founded before any timestamp was
// seen are judged by count alone.
type TimePolicy struct {
	Size int
	Span time.Duration
}

func (p TimePolicy) Name() string { return "time" }

func (p TimePolicy) Retain(c *Cluster, newest int, now time.Time) bool {
	if c.ID <= newest-p.Size {
		return false
	}
	if c.CreatedTime.IsZero() || now.IsZero() {
		return true
	}
	return now.Sub(c.CreatedTime) <= p.Span
}

// Window is the FIFO of clusters eligible for matching.
//
// Insert retires clusters logically, through the policy, the moment they
// fall out; Advance drops them from memory and is called once per batch.
// Between two Advance calls the slice may hold stale entries but Active
// and Len never report more than the policy allows.
type Window struct {
	policy   EvictionPolicy
	clusters []*Cluster
	newest   int
	now      time.Time
}

// NewWindow creates an empty window.
func NewWindow(policy EvictionPolicy) *Window {
	return &Window{policy: policy, newest: -1}
}

// Insert appends a newly created cluster.
func (w *Window) Insert(c *Cluster) {
	w.clusters = append(w.clusters, c)
	if c.ID > w.newest {
		w.newest = c.ID
	}
}

// Observe advances the window clock. The clock never moves backwards, so an
// out-of-order timestamp cannot revive a retired cluster.
func (w *Window) Observe(t time.Time) {
	if t.After(w.now) {
		w.now = t
	}
}

// Now returns the window clock.
func (w *Window) Now() time.Time { return w.now }

// Retained reports whether c is still eligible.
func (w *Window) Retained(c *Cluster) bool {
	return w.policy.Retain(c, w.newest, w.now)
}

// Clusters returns the eligible clusters, oldest first.
func (w *Window) Clusters() []*Cluster {
	first := w.firstRetained()
	out := make([]*Cluster, len(w.clusters)-first)
	copy(out, w.clusters[first:])
	return out
}

// Active returns the eligible (id, representative) pairs, oldest first,
// aligned with Clusters.
func (w *Window) Active() []Candidate {
	first := w.firstRetained()
	out := make([]Candidate, 0, len(w.clusters)-first)
	for _, c := range w.clusters[first:] {
		out = append(out, Candidate{ID: c.ID, Vector: c.Representative})
	}
	return out
}

// Len returns the number of eligible clusters.
func (w *Window) Len() int {
	return len(w.clusters) - w.firstRetained()
}

// Advance drops retired clusters from the front and returns how many went.
func (w *Window) Advance() int {
	first := w.firstRetained()
	if first == 0 {
		return 0
	}
	for i := 0; i < first; i++ {
		w.clusters[i] = nil
	}
	w.clusters = w.clusters[first:]
	return first
}

// firstRetained finds the boundary between retired and eligible clusters.
// Creation order and a monotone policy make the eligible set a suffix.
func (w *Window) firstRetained() int {
	i := len(w.clusters)
	for i > 0 && w.Retained(w.clusters[i-1]) {
		i--
	}
	return i
}
