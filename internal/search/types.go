// Package search provides hybrid search functionality combining BM25 and
// semantic search. Results are fused using Reciprocal Rank Fusion (RRF) for
// robust rank-based scoring.
package search

import (
	"context"
	"time"

	"github.com/corpusindex/corpusindex/internal/store"
)

// SearchEngine provides hybrid search combining BM25 and semantic search.
type SearchEngine interface {
	// Search executes a hybrid search query and returns ranked results.
	Search(ctx context.Context, query string, opts SearchOptions) ([]*SearchResult, error)

	// SearchSimilar finds chunks semantically similar to an existing chunk,
	// skipping the query embedding step since one already exists.
	SearchSimilar(ctx context.Context, chunkID string, limit int) ([]*SearchResult, error)

	// Index adds chunks to both BM25 and vector indices.
	Index(ctx context.Context, chunks []*store.Chunk) error

	// Delete removes chunks from both indices.
	Delete(ctx context.Context, chunkIDs []string) error

	// Stats returns engine statistics.
	Stats() *EngineStats

	// Close releases all resources.
	Close() error
}

// SearchOptions configures a search query.
type SearchOptions struct {
	// Limit is the maximum number of results to return (default: 10, max: 100).
	Limit int

	// Filter restricts results to a subset of documents by media type and/or
	// path prefix. A zero-value Filter matches everything.
	Filter store.Filter

	// BM25Only forces keyword-only search, skipping semantic/vector search
	// entirely. Useful when the embedder is unavailable or for exact
	// keyword matching.
	BM25Only bool

	// Explain enables detailed search explanation mode.
	Explain bool
}

// SearchResult represents a single search result with scores and metadata.
type SearchResult struct {
	// Chunk contains the full chunk data from MetadataStore.
	Chunk *store.Chunk

	// Score is the final ranking score: the RRF score, or — when a reranker
	// is configured — RerankWeight*rerankScore + (1-RerankWeight)*rrfScore.
	Score float64

	// BM25Score is the individual BM25 score as returned by the lexical
	// index (higher = better match).
	BM25Score float64

	// VecScore is the individual vector similarity score (0-1).
	VecScore float64

	// BM25Rank is the position in BM25 results (1-indexed, 0 if absent).
	BM25Rank int

	// VecRank is the position in vector results (1-indexed, 0 if absent).
	VecRank int

	// InBothLists indicates the result appeared in both BM25 and vector results.
	InBothLists bool

	// MatchedTerms contains the BM25 query terms that matched this result.
	MatchedTerms []string

	// Explain contains detailed search decision information when
	// opts.Explain=true. Only populated on the first result to avoid
	// duplication.
	Explain *ExplainData
}

// EngineStats provides statistics about the search engine.
type EngineStats struct {
	// BM25Stats contains BM25 index statistics.
	BM25Stats *store.IndexStats

	// VectorCount is the number of vectors in the chunks table.
	VectorCount int

	// ImageVectorCount is the number of vectors in the image-descriptions
	// table. Zero when no image vector store is configured.
	ImageVectorCount int
}

// EngineConfig configures the search engine.
type EngineConfig struct {
	// DefaultLimit is the default number of results (default: 10).
	DefaultLimit int

	// MaxLimit is the maximum allowed results (default: 100).
	MaxLimit int

	// RRFConstant is the RRF fusion constant k (default: 60).
	RRFConstant int

	// RerankWeight is the blend weight given to the reranker's score when a
	// Reranker is configured: final = RerankWeight*rerank + (1-RerankWeight)*rrf.
	// Ignored when no reranker is set. Default: 0.7.
	RerankWeight float64

	// SearchTimeout holds a search time budget (default: 5s). The engine does
	// not apply it: a search runs under the caller's context only.
	SearchTimeout time.Duration
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() EngineConfig {
	return EngineConfig{
		DefaultLimit:  10,
		MaxLimit:      100,
		RRFConstant:   60,
		RerankWeight:  0.7,
		SearchTimeout: 5 * time.Second,
	}
}

// ExplainData contains detailed search decision information, returned when
// SearchOptions.Explain is set.
type ExplainData struct {
	// Query is the original search query.
	Query string

	// BM25ResultCount is the number of results from BM25 search.
	BM25ResultCount int

	// VectorResultCount is the number of results from vector search.
	VectorResultCount int

	// RRFConstant is the RRF k value used for fusion.
	RRFConstant int

	// BM25Only echoes SearchOptions.BM25Only. A vector search skipped because
	// of a dimension mismatch is reported by DimensionMismatch instead.
	BM25Only bool

	// DimensionMismatch indicates if vector search was disabled due to
	// dimension mismatch between the current embedder and the indexed one.
	DimensionMismatch bool
}
