// Package embed provides embedding and vision-language-model clients for
// corpusindex.
//
// This file selects and constructs the concrete Embedder/VLMClient from
// runtime configuration.
package embed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/corpusindex/corpusindex/internal/config"
)

// ProviderType names an embedding backend.
type ProviderType string

const (
	// ProviderOllama uses the Ollama HTTP API for embeddings (default).
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses hash-based embeddings (no network dependency,
	// lower recall; for BM25-only deployments or offline testing).
	ProviderStatic ProviderType = "static"
)

// String returns the string representation of ProviderType.
func (p ProviderType) String() string {
	return string(p)
}

// ParseProvider converts a string to ProviderType, defaulting to Ollama for
// anything unrecognized.
func ParseProvider(s string) ProviderType {
	if strings.EqualFold(s, string(ProviderStatic)) {
		return ProviderStatic
	}
	return ProviderOllama
}

// ValidProviders returns all valid provider names.
func ValidProviders() []string {
	return []string{string(ProviderOllama), string(ProviderStatic)}
}

// IsValidProvider checks if a provider name is valid.
func IsValidProvider(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range ValidProviders() {
		if lower == p {
			return true
		}
	}
	return false
}

// NewEmbedder builds the embedder named by provider, using cfg for Ollama
// connection, model, and thermal settings. Ollama failures are returned as
// errors rather than silently falling back to the static embedder: once a
// corpus is indexed with one embedding dimension, mixing in vectors from a
// different provider silently corrupts nearest-neighbor search. Callers
// that want the hash-based fallback must request ProviderStatic explicitly.
//
// The returned embedder is wrapped with an LRU query cache (see cached.go),
// which saves a round trip for repeated search queries.
func NewEmbedder(ctx context.Context, provider ProviderType, cfg config.EmbeddingsConfig) (Embedder, error) {
	if provider == ProviderStatic {
		return NewStaticEmbedder(), nil
	}

	embedder, err := newOllamaFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewCachedEmbedderWithDefaults(embedder), nil
}

func newOllamaFromConfig(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	oc := DefaultOllamaConfig()
	if cfg.Model != "" {
		oc.Model = cfg.Model
	}
	if cfg.OllamaHost != "" {
		oc.Host = cfg.OllamaHost
	}
	if cfg.Dimensions > 0 {
		oc.Dimensions = cfg.Dimensions
	}
	if cfg.BatchSize > 0 {
		oc.BatchSize = cfg.BatchSize
	}
	if cfg.InterBatchDelay != "" {
		if delay, err := time.ParseDuration(cfg.InterBatchDelay); err == nil && delay >= 0 {
			if delay > MaxInterBatchDelay {
				delay = MaxInterBatchDelay
			}
			oc.InterBatchDelay = delay
		}
	}
	if cfg.TimeoutProgression >= 1.0 {
		progression := cfg.TimeoutProgression
		if progression > MaxTimeoutProgression {
			progression = MaxTimeoutProgression
		}
		oc.TimeoutProgression = progression
	}
	if cfg.RetryTimeoutMultiplier >= 1.0 {
		mult := cfg.RetryTimeoutMultiplier
		if mult > MaxRetryTimeoutMultiplier {
			mult = MaxRetryTimeoutMultiplier
		}
		oc.RetryTimeoutMultiplier = mult
	}

	embedder, err := NewOllamaEmbedder(ctx, oc)
	if err != nil {
		return nil, fmt.Errorf("ollama unavailable: %w\n\nTo fix:\n  1. Start Ollama: ollama serve\n  2. Or use the hash-based static embedder (ProviderStatic)", err)
	}
	return embedder, nil
}

// NewVLMClientFromConfig builds the VLM client from the embeddings and PDF
// sections of runtime configuration, returning ErrNoVLMAvailable if neither
// the configured model nor a fallback is installed.
func NewVLMClientFromConfig(ctx context.Context, embeddings config.EmbeddingsConfig, pdf config.PDFConfig) (*VLMClient, error) {
	vc := DefaultVLMConfig()
	if embeddings.VLMModel != "" {
		vc.Model = embeddings.VLMModel
	}
	if embeddings.OllamaHost != "" {
		vc.Host = embeddings.OllamaHost
	}
	if pdf.VLMTimeout > 0 {
		vc.Timeout = pdf.VLMTimeout
	}
	return NewVLMClient(ctx, vc)
}

// EmbedderInfo contains information about an embedder.
type EmbedderInfo struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Available  bool
}

// GetInfo returns information about an embedder, unwrapping a CachedEmbedder
// to determine the underlying provider.
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	info := EmbedderInfo{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}

	inner := embedder
	if cached, ok := embedder.(*CachedEmbedder); ok {
		inner = cached.inner
	}

	switch inner.(type) {
	case *OllamaEmbedder:
		info.Provider = ProviderOllama
	default:
		info.Provider = ProviderStatic
	}

	return info
}

// MustNewEmbedder creates an embedder and panics on failure.
// Use only in tests or initialization code where failure is fatal.
func MustNewEmbedder(ctx context.Context, provider ProviderType, cfg config.EmbeddingsConfig) Embedder {
	embedder, err := NewEmbedder(ctx, provider, cfg)
	if err != nil {
		panic(fmt.Sprintf("failed to create embedder: %v", err))
	}
	return embedder
}
