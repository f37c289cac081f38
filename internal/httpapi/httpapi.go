// Package httpapi implements the thin HTTP surface described in SPEC_FULL.md
// §6: JSON endpoints over search, document browsing, indexing, and the
// file-opener actions, backed directly by the index/search components. It
// is the composition root's HTTP half; cmd/corpusindex/cmd is the CLI half.
package httpapi

import (
	"context"

	"github.com/corpusindex/corpusindex/internal/search"
	"github.com/corpusindex/corpusindex/internal/store"
)

// Indexer is the subset of *index.Orchestrator the router needs.
type Indexer interface {
	IndexFile(ctx context.Context, path string) (*store.Document, error)
	IndexDirectory(ctx context.Context, dir string, recursive bool) ([]*store.Document, []error)
	DeleteDocument(ctx context.Context, id string) error
}

// Searcher is the subset of *search.Engine the router needs.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.SearchOptions) ([]*search.SearchResult, error)
	Stats() *search.EngineStats
}

// MetadataReader is the subset of store.MetadataStore the router needs for
// read-only document/transcript/state lookups.
type MetadataReader interface {
	GetDocument(ctx context.Context, id string) (*store.Document, error)
	GetDocumentByPath(ctx context.Context, path string) (*store.Document, error)
	ListDocuments(ctx context.Context, cursor string, limit int) ([]*store.Document, string, error)
	GetTranscriptByDocument(ctx context.Context, documentID string) (*store.Transcript, error)
	GetState(ctx context.Context, key string) (string, error)
}

// Deps wires the router to the components it fronts.
type Deps struct {
	Indexer  Indexer
	Searcher Searcher
	Metadata MetadataReader

	// AllowedOrigins lists the exact Origin header values CORS accepts.
	// Defaults to the two conventional localhost dev origins when empty.
	AllowedOrigins []string
}

func (d Deps) allowedOrigins() []string {
	if len(d.AllowedOrigins) > 0 {
		return d.AllowedOrigins
	}
	return []string{"http://localhost:3000", "http://127.0.0.1:3000"}
}
