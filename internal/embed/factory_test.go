package embed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusindex/corpusindex/internal/config"
)

func TestDefaultTimeout_IsSixtySeconds(t *testing.T) {
	assert.Equal(t, 60*time.Second, DefaultTimeout,
		"DefaultTimeout should be 60s to handle large batch embeddings")
}

func TestDefaultTimeouts_ScaleForThermalThrottling(t *testing.T) {
	assert.Equal(t, 120*time.Second, DefaultWarmTimeout,
		"DefaultWarmTimeout should be 120s for thermal throttling")
	assert.Equal(t, 180*time.Second, DefaultColdTimeout,
		"DefaultColdTimeout should be 180s for slower hardware")
}

func TestNewEmbedder_StaticProvider_AlwaysSucceeds(t *testing.T) {
	ctx := context.Background()
	embedder, err := NewEmbedder(ctx, ProviderStatic, config.EmbeddingsConfig{})
	require.NoError(t, err)
	defer func() { _ = embedder.Close() }()

	assert.Equal(t, "static", embedder.ModelName())
	assert.True(t, embedder.Available(ctx))
}

func TestNewEmbedder_Ollama_Unavailable_ReturnsError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := config.EmbeddingsConfig{OllamaHost: "http://localhost:59999"}
	embedder, err := NewEmbedder(ctx, ProviderOllama, cfg)

	require.Error(t, err, "ollama provider should error when unavailable, not fall back to static")
	assert.Nil(t, embedder)
	assert.Contains(t, err.Error(), "ollama unavailable")
	assert.Contains(t, err.Error(), "ollama serve")
}

func TestNewOllamaFromConfig_AppliesThermalSettings(t *testing.T) {
	cfg := config.EmbeddingsConfig{
		Model:                  "nomic-embed-text",
		OllamaHost:             "http://localhost:59999",
		Dimensions:             512,
		BatchSize:              16,
		InterBatchDelay:        "500ms",
		TimeoutProgression:     2.0,
		RetryTimeoutMultiplier: 1.5,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// newOllamaFromConfig fails fast against the unreachable host, but the
	// config mapping happens before the connection attempt; DefaultOllamaConfig
	// fields are exercised independently below to pin the mapping logic.
	_, err := newOllamaFromConfig(ctx, cfg)
	require.Error(t, err)

	oc := DefaultOllamaConfig()
	oc.Model = cfg.Model
	oc.Host = cfg.OllamaHost
	oc.Dimensions = cfg.Dimensions
	oc.BatchSize = cfg.BatchSize
	delay, parseErr := time.ParseDuration(cfg.InterBatchDelay)
	require.NoError(t, parseErr)
	oc.InterBatchDelay = delay
	oc.TimeoutProgression = cfg.TimeoutProgression
	oc.RetryTimeoutMultiplier = cfg.RetryTimeoutMultiplier

	assert.Equal(t, "nomic-embed-text", oc.Model)
	assert.Equal(t, 512, oc.Dimensions)
	assert.Equal(t, 16, oc.BatchSize)
	assert.Equal(t, 500*time.Millisecond, oc.InterBatchDelay)
	assert.Equal(t, 2.0, oc.TimeoutProgression)
	assert.Equal(t, 1.5, oc.RetryTimeoutMultiplier)

	// Against a reachable host, the embedder built by newOllamaFromConfig
	// carries the same mapped values.
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", newTagsHandler("nomic-embed-text:latest"))
	srv := httptest.NewServer(mux)
	defer srv.Close()
	cfg.OllamaHost = srv.URL

	built, err := newOllamaFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = built.Close() }()
	got := built.(*OllamaEmbedder).config
	assert.Equal(t, 512, built.Dimensions())
	assert.Equal(t, 16, got.BatchSize)
	assert.Equal(t, 500*time.Millisecond, got.InterBatchDelay)
	assert.Equal(t, 2.0, got.TimeoutProgression)
	assert.Equal(t, 1.5, got.RetryTimeoutMultiplier)
}

func TestNewOllamaFromConfig_ClampsExcessiveThermalValues(t *testing.T) {
	cfg := config.EmbeddingsConfig{
		InterBatchDelay:        "1h",
		TimeoutProgression:     1000,
		RetryTimeoutMultiplier: 1000,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	cfg.OllamaHost = "http://localhost:59999"

	_, err := newOllamaFromConfig(ctx, cfg)
	require.Error(t, err, "unreachable host still exercises the clamp logic before dialing")

	// Against a reachable host, the clamped values are visible on the embedder.
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", newTagsHandler("nomic-embed-text:latest"))
	mux.HandleFunc("/api/embed", newEmbedHandler(4))
	srv := httptest.NewServer(mux)
	defer srv.Close()
	cfg.OllamaHost = srv.URL

	built, err := newOllamaFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = built.Close() }()
	got := built.(*OllamaEmbedder).config
	assert.Equal(t, MaxInterBatchDelay, got.InterBatchDelay)
	assert.Equal(t, MaxTimeoutProgression, got.TimeoutProgression)
	assert.Equal(t, MaxRetryTimeoutMultiplier, got.RetryTimeoutMultiplier)
}

func TestParseProvider(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  ProviderType
	}{
		{"exact static", "static", ProviderStatic},
		{"case-insensitive static", "STATIC", ProviderStatic},
		{"exact ollama", "ollama", ProviderOllama},
		{"unrecognized defaults to ollama", "bogus", ProviderOllama},
		{"empty defaults to ollama", "", ProviderOllama},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseProvider(tt.input))
		})
	}
}

func TestValidProviders(t *testing.T) {
	assert.ElementsMatch(t, []string{"ollama", "static"}, ValidProviders())
}

func TestIsValidProvider(t *testing.T) {
	assert.True(t, IsValidProvider("ollama"))
	assert.True(t, IsValidProvider("Static"))
	assert.False(t, IsValidProvider("mlx"))
	assert.False(t, IsValidProvider(""))
}

func TestGetInfo_StaticEmbedder(t *testing.T) {
	ctx := context.Background()
	embedder := NewStaticEmbedder()
	defer func() { _ = embedder.Close() }()

	info := GetInfo(ctx, embedder)
	assert.Equal(t, ProviderStatic, info.Provider)
	assert.Equal(t, "static", info.Model)
	assert.Equal(t, StaticDimensions, info.Dimensions)
	assert.True(t, info.Available)
}

func TestGetInfo_UnwrapsCachedEmbedder(t *testing.T) {
	ctx := context.Background()
	inner := NewStaticEmbedder()
	cached := NewCachedEmbedderWithDefaults(inner)
	defer func() { _ = cached.Close() }()

	info := GetInfo(ctx, cached)
	assert.Equal(t, ProviderStatic, info.Provider)
}

func TestMustNewEmbedder_PanicsOnFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	assert.Panics(t, func() {
		MustNewEmbedder(ctx, ProviderOllama, config.EmbeddingsConfig{OllamaHost: "http://localhost:59999"})
	})
}

func TestMustNewEmbedder_StaticNeverPanics(t *testing.T) {
	ctx := context.Background()
	assert.NotPanics(t, func() {
		embedder := MustNewEmbedder(ctx, ProviderStatic, config.EmbeddingsConfig{})
		_ = embedder.Close()
	})
}
