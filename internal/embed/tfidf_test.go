package embed

import (
	"math"
	"testing"
)

var corpus = []string{
	"storm hits coast",
	"storm warning coast",
	"france wins final",
	"france final celebration",
}

func TestFitTFIDFVocabulary(t *testing.T) {
	m, err := FitTFIDF(NewTokenizer("en"), corpus, 1)
	if err != nil {
		t.Fatalf("FitTFIDF failed: %v", err)
	}
	// celebration coast final france hits storm warning wins
	if m.Dim() != 8 {
		t.Errorf("Dim() = %d, want 8", m.Dim())
	}
	if m.Column("celebration") != 0 || m.Column("wins") != 7 || m.Column("nope") != -1 {
		t.Error("columns should follow term order")
	}

	pruned, err := FitTFIDF(NewTokenizer("en"), corpus, 2)
	if err != nil {
		t.Fatalf("FitTFIDF failed: %v", err)
	}
	// coast final france storm
	if pruned.Dim() != 4 {
		t.Errorf("min_df=2 Dim() = %d, want 4", pruned.Dim())
	}

	if _, err := FitTFIDF(NewTokenizer("en"), []string{"the and of"}, 1); err == nil {
		t.Error("expected error for an all-stopword corpus")
	}
}

func TestTransform(t *testing.T) {
	m, err := FitTFIDF(NewTokenizer("en"), corpus, 1)
	if err != nil {
		t.Fatalf("FitTFIDF failed: %v", err)
	}

	v := m.Transform("storm storm wins")
	if math.Abs(v.Norm()-1) > 1e-12 {
		t.Errorf("row norm = %v, want 1", v.Norm())
	}
	if v.NNZ() != 2 {
		t.Fatalf("NNZ() = %d, want 2", v.NNZ())
	}

	// storm: df=2 idf=ln(5/3)+1, tf=2; wins: df=1 idf=ln(5/2)+1, tf=1
	s := 2 * (math.Log(5.0/3) + 1)
	w := math.Log(5.0/2) + 1
	n := math.Hypot(s, w)
	idx, val := v.Indices(), v.Values()
	if int(idx[0]) != m.Column("storm") || math.Abs(val[0]-s/n) > 1e-12 {
		t.Errorf("storm weight = %v, want %v", val[0], s/n)
	}
	if int(idx[1]) != m.Column("wins") || math.Abs(val[1]-w/n) > 1e-12 {
		t.Errorf("wins weight = %v, want %v", val[1], w/n)
	}

	if z := m.Transform("completely unknown words"); z.NNZ() != 0 || z.Norm() != 0 {
		t.Errorf("unknown text should be the zero vector, got nnz=%d", z.NNZ())
	}
	if z := m.Transform("x"); z.Dim() != m.Dim() {
		t.Errorf("Dim() = %d, want %d", z.Dim(), m.Dim())
	}
}
