package embed

import (
	"fmt"
	"math"
	"sort"

	"github.com/abelbrown/topicstream/internal/vecs"
)

// TFIDF is a vocabulary with smoothed inverse document frequencies:
// idf(t) = ln((1+n)/(1+df(t))) + 1. Rows are raw term counts times idf,
// L2-normalised.
type TFIDF struct {
	tok   *Tokenizer
	terms map[string]int32 // term -> column, columns in term order
	idf   []float64
	docs  int
}

// FitTFIDF learns the vocabulary of corpus, keeping terms found in at
// least minDF documents.
func FitTFIDF(tok *Tokenizer, corpus []string, minDF int) (*TFIDF, error) {
	df := make(map[string]int)
	for _, doc := range corpus {
		seen := make(map[string]bool)
		for _, w := range tok.Tokens(doc) {
			if !seen[w] {
				seen[w] = true
				df[w]++
			}
		}
	}

	vocab := make([]string, 0, len(df))
	for w, n := range df {
		if n >= minDF {
			vocab = append(vocab, w)
		}
	}
	if len(vocab) == 0 {
		return nil, fmt.Errorf("embed: empty vocabulary (%d documents, min_df %d)", len(corpus), minDF)
	}
	sort.Strings(vocab)

	m := &TFIDF{
		tok:   tok,
		terms: make(map[string]int32, len(vocab)),
		idf:   make([]float64, len(vocab)),
		docs:  len(corpus),
	}
	n := float64(len(corpus))
	for i, w := range vocab {
		m.terms[w] = int32(i)
		m.idf[i] = math.Log((1+n)/(1+float64(df[w]))) + 1
	}
	return m, nil
}

// Dim is the vocabulary size.
func (m *TFIDF) Dim() int { return len(m.idf) }

// Docs is the number of documents the model was fitted on.
func (m *TFIDF) Docs() int { return m.docs }

// Column returns the column of term, or -1.
func (m *TFIDF) Column(term string) int {
	if c, ok := m.terms[term]; ok {
		return int(c)
	}
	return -1
}

// Transform maps a text to its sparse row. Texts without known terms
// become the zero vector.
func (m *TFIDF) Transform(text string) *vecs.Sparse {
	counts := make(map[int32]float64)
	for _, w := range m.tok.Tokens(text) {
		if c, ok := m.terms[w]; ok {
			counts[c]++
		}
	}
	idx := make([]int32, 0, len(counts))
	for c := range counts {
		idx = append(idx, c)
	}
	sort.Slice(idx, func(a, b int) bool { return idx[a] < idx[b] })

	val := make([]float64, len(idx))
	var sum float64
	for i, c := range idx {
		val[i] = counts[c] * m.idf[c]
		sum += val[i] * val[i]
	}
	if sum > 0 {
		norm := math.Sqrt(sum)
		for i := range val {
			val[i] /= norm
		}
	}

	s, err := vecs.NewSparse(m.Dim(), idx, val)
	if err != nil {
		// columns come from the vocabulary, so they are always in range
		panic(err)
	}
	return s
}
