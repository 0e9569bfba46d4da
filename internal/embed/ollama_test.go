package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func tagsHandler(models ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := ollamaTagsResponse{}
		for _, m := range models {
			resp.Models = append(resp.Models, ollamaModel{Name: m})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func TestOllamaAvailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    bool
	}{
		{"exact match", tagsHandler("nomic-embed-text", "llama2"), true},
		{"latest tag", tagsHandler("nomic-embed-text:latest"), true},
		{"model not in list", tagsHandler("llama2", "mistral"), false},
		{"empty model list", tagsHandler(), false},
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "internal error", http.StatusInternalServerError)
		}, false},
		{"invalid json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			if got := NewOllamaEmbedder(server.URL, "nomic-embed-text").Available(); got != tt.want {
				t.Errorf("Available() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOllamaEmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("unexpected model: %s", req.Model)
		}
		resp := ollamaEmbedResponse{}
		for _, in := range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{float32(len(in)), 1})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	// trailing slash is trimmed
	e := NewOllamaEmbedder(server.URL+"/", "nomic-embed-text")

	vs, err := e.EmbedBatch(context.Background(), []string{"a", "bbb"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(vs) != 2 || vs[0][0] != 1 || vs[1][0] != 3 {
		t.Errorf("EmbedBatch() = %v", vs)
	}

	v, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if v[0] != 5 {
		t.Errorf("Embed() = %v", v)
	}
}

func TestOllamaEmbedErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{"count mismatch", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"embeddings": []}`))
		}, "0 embeddings for 1 texts"},
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}, "status 404"},
		{"invalid json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("{broken"))
		}, "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := NewOllamaEmbedder(server.URL, "nomic-embed-text").Embed(context.Background(), "x")
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Embed() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestOllamaEmbedTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewOllamaEmbedder(server.URL, "nomic-embed-text").Embed(ctx, "x")
	if err == nil || !strings.Contains(err.Error(), "cancelled") {
		t.Errorf("Embed() error = %v, want cancellation", err)
	}
}

func TestOllamaDown(t *testing.T) {
	e := NewOllamaEmbedder("http://127.0.0.1:1", "nomic-embed-text")
	if e.Available() {
		t.Error("Available() should be false when nothing listens")
	}
	if _, err := e.Embed(context.Background(), "x"); err == nil {
		t.Error("Embed() should fail when nothing listens")
	}
}
