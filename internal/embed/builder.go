package embed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abelbrown/topicstream/internal/logging"
	"github.com/abelbrown/topicstream/internal/vecs"
)

// Model names accepted by Builder.Build.
const (
	TFIDFDataset   = "tfidf_dataset"    // IDF fitted on the items themselves
	TFIDFAllTweets = "tfidf_all_tweets" // IDF fitted on an external corpus
	Jina           = "jina"
	Ollama         = "ollama"
)

// Models lists every supported model name.
func Models() []string {
	return []string{TFIDFDataset, TFIDFAllTweets, Jina, Ollama}
}

// ErrUnknownModel is returned for a model name Builder cannot serve.
var ErrUnknownModel = errors.New("embed: unknown model")

// IsSparse reports whether model produces sparse vectors.
func IsSparse(model string) bool {
	return model == TFIDFDataset || model == TFIDFAllTweets
}

// Doc is one item to embed.
type Doc struct {
	ID   string
	Text string
	At   time.Time
}

// Cache persists dense embeddings between runs, keyed by (model, id).
type Cache interface {
	Embeddings(ctx context.Context, model string, ids []string) (map[string][]float32, error)
	SaveEmbeddings(ctx context.Context, model string, ids []string, vectors [][]float32) error
}

// Builder turns docs into a vecs.Store for a named model.
type Builder struct {
	Tokenizer *Tokenizer
	MinDF     int
	// Corpus is the IDF corpus for tfidf_all_tweets.
	Corpus []string
	// Dense maps a model name to its service.
	Dense map[string]Embedder
	// Cache is optional.
	Cache Cache
	// ChunkSize is the number of texts per embedding request.
	ChunkSize int
	// Progress is called with the number of docs embedded so far.
	Progress func(done, total int)
}

// Build embeds docs with model, in order.
func (b *Builder) Build(ctx context.Context, model string, docs []Doc) (*vecs.Store, error) {
	start := time.Now()
	var (
		vs  []vecs.Vector
		err error
	)
	switch {
	case IsSparse(model):
		vs, err = b.sparse(model, docs)
	case b.Dense[model] != nil:
		vs, err = b.dense(ctx, model, docs)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	if err != nil {
		return nil, err
	}

	s := vecs.NewStore(len(docs))
	for i, v := range vs {
		if _, err := s.Append(v, docs[i].At); err != nil {
			return nil, fmt.Errorf("embed: doc %s: %w", docs[i].ID, err)
		}
	}
	shape, _ := s.Shape()
	logging.Info("Vectors built", "model", model, "docs", len(docs), "shape", shape, "dur", time.Since(start))
	return s, nil
}

func (b *Builder) tokenizer() *Tokenizer {
	if b.Tokenizer == nil {
		b.Tokenizer = NewTokenizer("en")
	}
	return b.Tokenizer
}

func (b *Builder) sparse(model string, docs []Doc) ([]vecs.Vector, error) {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	corpus := texts
	if model == TFIDFAllTweets {
		if len(b.Corpus) == 0 {
			return nil, fmt.Errorf("embed: %s needs an IDF corpus", model)
		}
		corpus = b.Corpus
	}
	m, err := FitTFIDF(b.tokenizer(), corpus, max(b.MinDF, 1))
	if err != nil {
		return nil, err
	}
	logging.Debug("TF-IDF fitted", "model", model, "docs", m.Docs(), "vocab", m.Dim())

	out := make([]vecs.Vector, len(texts))
	for i, t := range texts {
		out[i] = m.Transform(t)
	}
	if b.Progress != nil {
		b.Progress(len(out), len(out))
	}
	return out, nil
}

func (b *Builder) dense(ctx context.Context, model string, docs []Doc) ([]vecs.Vector, error) {
	e := b.Dense[model]
	if !e.Available() {
		return nil, fmt.Errorf("embed: %s is not available", model)
	}

	key := cacheKey(model, e)

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	cached := map[string][]float32{}
	if b.Cache != nil {
		var err error
		if cached, err = b.Cache.Embeddings(ctx, key, ids); err != nil {
			logging.Warn("Embedding cache read failed", "model", model, "err", err)
			cached = map[string][]float32{}
		}
	}

	var missIDs, missTexts []string
	var missPos []int
	for i, d := range docs {
		if _, ok := cached[d.ID]; !ok {
			missIDs = append(missIDs, d.ID)
			missTexts = append(missTexts, d.Text)
			missPos = append(missPos, i)
		}
	}
	logging.Info("Embedding", "model", model, "cached", len(docs)-len(missIDs), "missing", len(missIDs))

	hit := len(docs) - len(missIDs)
	fresh, err := EmbedAll(ctx, e, missTexts, b.ChunkSize, func(done int) {
		if b.Progress != nil {
			b.Progress(hit+done, len(docs))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %s: %w", model, err)
	}
	if b.Cache != nil && len(fresh) > 0 {
		if err := b.Cache.SaveEmbeddings(ctx, key, missIDs, fresh); err != nil {
			logging.Warn("Embedding cache write failed", "model", model, "err", err)
		}
	}

	raw := make([][]float32, len(docs))
	for i, d := range docs {
		raw[i] = cached[d.ID]
	}
	for k, pos := range missPos {
		raw[pos] = fresh[k]
	}
	out := make([]vecs.Vector, len(docs))
	for i, r := range raw {
		out[i] = vecs.DenseFromFloat32(r)
	}
	return out, nil
}

// cacheKey namespaces cached vectors by the service's own model name, so
// switching sub-models never reuses stale embeddings.
func cacheKey(model string, e Embedder) string {
	if m, ok := e.(interface{ Model() string }); ok && m.Model() != "" {
		return model + "/" + m.Model()
	}
	return model
}
