// Package embed turns item texts into vectors: dense embeddings from HTTP
// services, or sparse TF-IDF rows computed locally.
package embed

import (
	"context"
	"fmt"
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// Available returns true if the embedding service is accessible.
	Available() bool
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder extends Embedder with batch embedding support.
// When EmbedBatch returns nil error, the result slice must have the same length
// as the input texts slice, with result[i] corresponding to texts[i].
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedAll embeds texts in chunks of size, calling progress after each
// chunk. Embedders without batch support are called once per text. The
// context is checked between chunks.
func EmbedAll(ctx context.Context, e Embedder, texts []string, size int, progress func(done int)) ([][]float32, error) {
	if size <= 0 {
		size = 64
	}
	out := make([][]float32, 0, len(texts))
	be, batched := e.(BatchEmbedder)
	for start := 0; start < len(texts); start += size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk := texts[start:min(start+size, len(texts))]
		if batched {
			vs, err := be.EmbedBatch(ctx, chunk)
			if err != nil {
				return nil, err
			}
			if len(vs) != len(chunk) {
				return nil, fmt.Errorf("embed: got %d embeddings for %d texts", len(vs), len(chunk))
			}
			out = append(out, vs...)
		} else {
			for i, t := range chunk {
				v, err := e.Embed(ctx, t)
				if err != nil {
					return nil, fmt.Errorf("embed: text %d: %w", start+i, err)
				}
				out = append(out, v)
			}
		}
		if progress != nil {
			progress(len(out))
		}
	}
	return out, nil
}
