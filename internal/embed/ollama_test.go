package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTagsHandler(models ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		infos := make([]OllamaModelInfo, len(models))
		for i, m := range models {
			infos[i] = OllamaModelInfo{Name: m}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(OllamaModelListResponse{Models: infos})
	}
}

func newEmbedHandler(dims int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OllamaEmbedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		var count int
		switch req.Input.(type) {
		case string:
			count = 1
		case []any:
			count = len(req.Input.([]any))
		}

		embeddings := make([][]float64, count)
		for i := range embeddings {
			vec := make([]float64, dims)
			for j := range vec {
				vec[j] = 0.1
			}
			embeddings[i] = vec
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(OllamaEmbedResponse{Model: "nomic-embed-text", Embeddings: embeddings})
	}
}

func TestNewOllamaEmbedder_ResolvesPrimaryModel(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", newTagsHandler("nomic-embed-text:latest"))
	mux.HandleFunc("/api/embed", newEmbedHandler(8))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := DefaultOllamaConfig()
	cfg.Host = srv.URL
	cfg.Model = "nomic-embed-text"

	embedder, err := NewOllamaEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = embedder.Close() }()

	assert.Equal(t, "nomic-embed-text:latest", embedder.ModelName())
	assert.Equal(t, 8, embedder.Dimensions())
}

func TestNewOllamaEmbedder_FallsBackToAlternateModel(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", newTagsHandler("mxbai-embed-large:latest"))
	mux.HandleFunc("/api/embed", newEmbedHandler(4))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := DefaultOllamaConfig()
	cfg.Host = srv.URL
	cfg.Model = "nomic-embed-text"
	cfg.FallbackModels = []string{"mxbai-embed-large"}

	embedder, err := NewOllamaEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = embedder.Close() }()

	assert.Equal(t, "mxbai-embed-large:latest", embedder.ModelName())
}

func TestNewOllamaEmbedder_NoMatchingModel_ReturnsError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", newTagsHandler("llama3:latest"))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := DefaultOllamaConfig()
	cfg.Host = srv.URL
	cfg.Model = "nomic-embed-text"
	cfg.FallbackModels = []string{"mxbai-embed-large"}

	embedder, err := NewOllamaEmbedder(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, embedder)
}

func TestNewOllamaEmbedder_UnreachableHost_ReturnsError(t *testing.T) {
	cfg := DefaultOllamaConfig()
	cfg.Host = "http://localhost:59999"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	embedder, err := NewOllamaEmbedder(ctx, cfg)
	require.Error(t, err)
	assert.Nil(t, embedder)
}

func TestOllamaEmbedder_Embed_EmptyText_ReturnsZeroVector(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", newTagsHandler("nomic-embed-text:latest"))
	mux.HandleFunc("/api/embed", newEmbedHandler(8))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := DefaultOllamaConfig()
	cfg.Host = srv.URL
	cfg.Model = "nomic-embed-text"

	embedder, err := NewOllamaEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = embedder.Close() }()

	vec, err := embedder.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Len(t, vec, 8)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestOllamaEmbedder_EmbedBatch_PreservesOrderAndSkipsEmpty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", newTagsHandler("nomic-embed-text:latest"))
	mux.HandleFunc("/api/embed", newEmbedHandler(4))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := DefaultOllamaConfig()
	cfg.Host = srv.URL
	cfg.Model = "nomic-embed-text"
	cfg.BatchSize = 2

	embedder, err := NewOllamaEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = embedder.Close() }()

	texts := []string{"first", "", "third", "fourth", "fifth"}
	results, err := embedder.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, results, len(texts))

	for _, v := range results[1] {
		assert.Zero(t, v, "empty input should embed to a zero vector")
	}
	for i, text := range texts {
		if text == "" {
			continue
		}
		assert.Len(t, results[i], 4)
	}
}

func TestOllamaEmbedder_EmbedBatch_EmptyInput_ReturnsEmptySlice(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", newTagsHandler("nomic-embed-text:latest"))
	mux.HandleFunc("/api/embed", newEmbedHandler(4))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := DefaultOllamaConfig()
	cfg.Host = srv.URL
	cfg.Model = "nomic-embed-text"

	embedder, err := NewOllamaEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = embedder.Close() }()

	results, err := embedder.EmbedBatch(context.Background(), []string{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestOllamaEmbedder_Available_ReflectsCatalog(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", newTagsHandler("nomic-embed-text:latest"))
	mux.HandleFunc("/api/embed", newEmbedHandler(4))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := DefaultOllamaConfig()
	cfg.Host = srv.URL
	cfg.Model = "nomic-embed-text"

	embedder, err := NewOllamaEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = embedder.Close() }()

	assert.True(t, embedder.Available(context.Background()))
}

func TestOllamaEmbedder_Close_IsIdempotentAndBlocksFurtherCalls(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", newTagsHandler("nomic-embed-text:latest"))
	mux.HandleFunc("/api/embed", newEmbedHandler(4))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := DefaultOllamaConfig()
	cfg.Host = srv.URL
	cfg.Model = "nomic-embed-text"

	embedder, err := NewOllamaEmbedder(context.Background(), cfg)
	require.NoError(t, err)

	require.NoError(t, embedder.Close())
	require.NoError(t, embedder.Close())

	_, err = embedder.Embed(context.Background(), "hello")
	assert.Error(t, err)
}

func TestOllamaEmbedder_IncrementAndResetBatchIndex(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", newTagsHandler("nomic-embed-text:latest"))
	mux.HandleFunc("/api/embed", newEmbedHandler(4))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := DefaultOllamaConfig()
	cfg.Host = srv.URL
	cfg.Model = "nomic-embed-text"

	embedder, err := NewOllamaEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = embedder.Close() }()

	embedder.IncrementBatchIndex()
	embedder.IncrementBatchIndex()
	assert.Equal(t, 2, embedder.batchIndex)

	embedder.SetBatchIndex(5)
	assert.Equal(t, 5, embedder.batchIndex)

	embedder.ResetBatchIndex()
	assert.Equal(t, 0, embedder.batchIndex)
}
