package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/abelbrown/topicstream/internal/logging"
)

const (
	jinaEndpoint = "https://api.jina.ai/v1/embeddings"
	// jinaTask asks for embeddings tuned to tell topics apart.
	jinaTask      = "separation"
	jinaDims      = 1024
	jinaChunkSize = 25
	maxRetryAfter = 30 * time.Second
)

// JinaEmbedder generates embeddings via the Jina AI API.
type JinaEmbedder struct {
	apiKey   string
	model    string
	task     string
	dims     int
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	backoffs []time.Duration // one per retry
}

type jinaEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Task       string   `json:"task"`
	Dimensions int      `json:"dimensions"`
	Truncate   bool     `json:"truncate"`
}

type jinaEmbedResponse struct {
	Data []jinaEmbedding `json:"data"`
}

type jinaEmbedding struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// NewJinaEmbedder creates a JinaEmbedder. An empty model selects
// jina-embeddings-v3.
func NewJinaEmbedder(apiKey, model string) *JinaEmbedder {
	if model == "" {
		model = "jina-embeddings-v3"
	}
	return &JinaEmbedder{
		apiKey:   apiKey,
		model:    model,
		task:     jinaTask,
		dims:     jinaDims,
		endpoint: jinaEndpoint,
		client:   &http.Client{Timeout: 60 * time.Second},
		limiter:  rate.NewLimiter(rate.Every(750*time.Millisecond), 1), // ~80 RPM
		backoffs: []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
	}
}

// Model returns the configured model name.
func (e *JinaEmbedder) Model() string { return e.model }

// Available returns true if the Jina API key is configured.
func (e *JinaEmbedder) Available() bool {
	return e.apiKey != ""
}

// Embed embeds a single text.
func (e *JinaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

// EmbedBatch embeds texts in chunks of 25, placing each result by the
// index the API reports.
func (e *JinaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += jinaChunkSize {
		chunk := texts[start:min(start+jinaChunkSize, len(texts))]

		body, err := json.Marshal(jinaEmbedRequest{
			Model:      e.model,
			Input:      chunk,
			Task:       e.task,
			Dimensions: e.dims,
			Truncate:   true,
		})
		if err != nil {
			return nil, fmt.Errorf("embed: failed to marshal request: %w", err)
		}

		resp, err := e.doWithRetry(ctx, body)
		if err != nil {
			return nil, fmt.Errorf("embed: chunk at %d: %w", start, err)
		}
		for _, item := range resp.Data {
			if item.Index < 0 || item.Index >= len(chunk) {
				return nil, fmt.Errorf("embed: jina returned out-of-range index %d for chunk of %d at %d", item.Index, len(chunk), start)
			}
			results[start+item.Index] = item.Embedding
		}
	}

	for i, r := range results {
		if r == nil {
			return nil, fmt.Errorf("embed: missing embedding for index %d", i)
		}
	}
	return results, nil
}

// doWithRetry posts body, retrying 429 and 5xx responses and unparseable
// bodies once per backoff. Retry-After is honoured on 429, capped at 30s.
func (e *JinaEmbedder) doWithRetry(ctx context.Context, body []byte) (*jinaEmbedResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= len(e.backoffs); attempt++ {
		if attempt > 0 {
			delay := e.backoffs[attempt-1]
			if d, ok := lastErr.(retryAfter); ok && d.after > 0 {
				delay = min(d.after, maxRetryAfter)
			}
			logging.Debug("Jina retry", "attempt", attempt, "delay", delay, "err", lastErr)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("embed: request cancelled during retry: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embed: rate limiter wait failed: %w", err)
		}

		resp, err := e.post(ctx, body)
		if err == nil {
			return resp, nil
		}
		switch err.(type) {
		case retryable, retryAfter:
			lastErr = err
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("embed: all retries exhausted: %w", lastErr)
}

// retryable marks a failure worth another attempt.
type retryable struct{ error }

func (r retryable) Unwrap() error { return r.error }

// retryAfter is a 429 carrying the server's requested delay.
type retryAfter struct {
	error
	after time.Duration
}

func (r retryAfter) Unwrap() error { return r.error }

func (e *JinaEmbedder) post(ctx context.Context, body []byte) (*jinaEmbedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embed: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("embed: request cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("embed: request failed: %w", err)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("embed: failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var out jinaEmbedResponse
		if err := json.Unmarshal(data, &out); err != nil {
			// truncated bodies happen under load
			return nil, retryable{fmt.Errorf("embed: failed to parse response: %w", err)}
		}
		return &out, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		var after time.Duration
		if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && s > 0 {
			after = time.Duration(s) * time.Second
		}
		return nil, retryAfter{fmt.Errorf("embed: jina returned status %d: %s", resp.StatusCode, data), after}
	case resp.StatusCode >= 500:
		return nil, retryable{fmt.Errorf("embed: jina returned status %d: %s", resp.StatusCode, data)}
	}
	return nil, fmt.Errorf("embed: jina returned status %d: %s", resp.StatusCode, data)
}
