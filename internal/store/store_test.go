package store

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// cacheInterface mirrors the embedding cache the builder expects.
type cacheInterface interface {
	Embeddings(ctx context.Context, model string, ids []string) (map[string][]float32, error)
	SaveEmbeddings(ctx context.Context, model string, ids []string, vectors [][]float32) error
}

// Verify Store satisfies the cache at compile time.
var _ cacheInterface = (*Store)(nil)

func TestOpen(t *testing.T) {
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer st.Close()

	for _, table := range []string{"runs", "assignments", "embeddings"} {
		var name string
		err = st.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Fatalf("%s table not created: %v", table, err)
		}
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	ctx := context.Background()
	if err := st.SaveRun(ctx, Run{ID: "r1", Dataset: "d", Model: "m", StartedAt: time.Now(), FinishedAt: time.Now()}); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	st.Close()

	st, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer st.Close()
	runs, err := st.Runs(ctx, 0)
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "r1" {
		t.Errorf("expected run r1 to survive reopen, got %+v", runs)
	}
}

func TestSaveRun(t *testing.T) {
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	scored := Run{
		ID:         NewRunID(),
		Dataset:    "event2012",
		Model:      "tfidf_dataset",
		Threshold:  0.7,
		Window:     1600,
		BatchSize:  8,
		Params:     map[string]string{"lang": "en", "distance": "cosine"},
		Items:      100,
		Clusters:   42,
		P:          0.8,
		R:          0.6,
		F1:         0.69,
		McMinn:     &[3]float64{0.5, 0.4, 0.44},
		AMI:        0.71,
		ARI:        0.33,
		StartedAt:  base,
		FinishedAt: base.Add(time.Minute),
	}
	unscored := Run{
		ID:         NewRunID(),
		Dataset:    "event2012",
		Model:      "jina",
		Threshold:  0.5,
		StartedAt:  base.Add(time.Hour),
		FinishedAt: base.Add(time.Hour),
	}
	for _, r := range []Run{scored, unscored} {
		if err := st.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
	}

	runs, err := st.Runs(ctx, 10)
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != unscored.ID {
		t.Errorf("expected newest run first, got %s", runs[0].Model)
	}
	if runs[0].McMinn != nil {
		t.Errorf("expected nil McMinn for unscored run, got %v", *runs[0].McMinn)
	}

	got := runs[1]
	if got.Model != "tfidf_dataset" || got.Threshold != 0.7 || got.Window != 1600 || got.Clusters != 42 {
		t.Errorf("run fields not preserved: %+v", got)
	}
	if got.McMinn == nil || got.McMinn[2] != 0.44 {
		t.Errorf("expected McMinn F1 0.44, got %v", got.McMinn)
	}
	if got.Params["lang"] != "en" || got.Params["distance"] != "cosine" {
		t.Errorf("params not preserved: %v", got.Params)
	}
	if !got.StartedAt.Equal(base) {
		t.Errorf("expected start %v, got %v", base, got.StartedAt)
	}

	limited, err := st.Runs(ctx, 1)
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected limit 1 to return 1 run, got %d", len(limited))
	}
}

func TestSaveRunReplaces(t *testing.T) {
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	r := Run{ID: "same", Dataset: "d", Model: "m", Clusters: 1, StartedAt: time.Now(), FinishedAt: time.Now()}
	if err := st.SaveRun(ctx, r); err != nil {
		t.Fatal(err)
	}
	r.Clusters = 7
	if err := st.SaveRun(ctx, r); err != nil {
		t.Fatal(err)
	}
	runs, err := st.Runs(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Clusters != 7 {
		t.Errorf("expected one run with 7 clusters, got %+v", runs)
	}
}

func TestAssignments(t *testing.T) {
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	ids := []string{"a", "b", "c", "d"}
	clusters := []int{0, 0, 1, 0}
	if err := st.SaveAssignments(ctx, "run", ids, clusters); err != nil {
		t.Fatalf("SaveAssignments failed: %v", err)
	}

	gotIDs, gotClusters, err := st.Assignments(ctx, "run")
	if err != nil {
		t.Fatalf("Assignments failed: %v", err)
	}
	if fmt.Sprint(gotIDs) != fmt.Sprint(ids) || fmt.Sprint(gotClusters) != fmt.Sprint(clusters) {
		t.Errorf("expected %v %v, got %v %v", ids, clusters, gotIDs, gotClusters)
	}

	if err := st.SaveAssignments(ctx, "run", ids, clusters[:2]); err == nil {
		t.Error("expected error for mismatched lengths")
	}

	gotIDs, _, err = st.Assignments(ctx, "missing")
	if err != nil {
		t.Fatalf("Assignments failed: %v", err)
	}
	if len(gotIDs) != 0 {
		t.Errorf("expected no assignments for unknown run, got %v", gotIDs)
	}
}

func TestEmbeddings(t *testing.T) {
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	vectors := [][]float32{
		{0.1, -0.2, 0.3},
		{1, 0, float32(math.Pi)},
	}
	if err := st.SaveEmbeddings(ctx, "jina", []string{"t1", "t2"}, vectors); err != nil {
		t.Fatalf("SaveEmbeddings failed: %v", err)
	}

	got, err := st.Embeddings(ctx, "jina", []string{"t1", "t2", "t3"})
	if err != nil {
		t.Fatalf("Embeddings failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 cached embeddings, got %d", len(got))
	}
	if _, ok := got["t3"]; ok {
		t.Error("expected t3 to be a miss")
	}
	for i, id := range []string{"t1", "t2"} {
		if fmt.Sprint(got[id]) != fmt.Sprint(vectors[i]) {
			t.Errorf("%s: expected %v, got %v", id, vectors[i], got[id])
		}
	}

	// models are separate namespaces
	other, err := st.Embeddings(ctx, "ollama", []string{"t1"})
	if err != nil {
		t.Fatalf("Embeddings failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected no ollama embeddings, got %v", other)
	}

	if err := st.SaveEmbeddings(ctx, "jina", []string{"x"}, nil); err == nil {
		t.Error("expected error for mismatched lengths")
	}
}

func TestEmbeddingsManyIDs(t *testing.T) {
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	const n = 1200
	ids := make([]string, n)
	vectors := make([][]float32, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%d", i)
		vectors[i] = []float32{float32(i)}
	}
	if err := st.SaveEmbeddings(ctx, "m", ids, vectors); err != nil {
		t.Fatalf("SaveEmbeddings failed: %v", err)
	}
	got, err := st.Embeddings(ctx, "m", ids)
	if err != nil {
		t.Fatalf("Embeddings failed: %v", err)
	}
	if len(got) != n {
		t.Fatalf("expected %d embeddings, got %d", n, len(got))
	}
	if got["id-1199"][0] != 1199 {
		t.Errorf("expected id-1199 -> 1199, got %v", got["id-1199"])
	}
}

func TestEmbeddingRoundTrip(t *testing.T) {
	v := []float32{0, -1.5, float32(math.Inf(1)), 3.25e-8}
	got := decodeEmbedding(encodeEmbedding(v))
	if len(got) != len(v) {
		t.Fatalf("expected %d values, got %d", len(v), len(got))
	}
	for i := range v {
		if got[i] != v[i] {
			t.Errorf("value %d: expected %v, got %v", i, v[i], got[i])
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	errCh := make(chan error, 100)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("run-%d", n)
			r := Run{ID: id, Dataset: "d", Model: "m", StartedAt: time.Now(), FinishedAt: time.Now()}
			if err := st.SaveRun(ctx, r); err != nil {
				errCh <- err
				return
			}
			if err := st.SaveAssignments(ctx, id, []string{"a", "b"}, []int{0, 1}); err != nil {
				errCh <- err
			}
		}(i)
	}

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := st.Runs(ctx, 5); err != nil {
				errCh <- err
			}
		}()
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("concurrent operation failed: %v", err)
	}

	runs, err := st.Runs(ctx, 0)
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	if len(runs) != 10 {
		t.Errorf("expected 10 runs, got %d", len(runs))
	}
}
