// Package store provides vector storage (HNSW), lexical search (SQLite FTS5 or
// Bleve), and document/chunk/transcript metadata persistence (SQLite).
package store

import (
	"context"
	"fmt"
	"time"
)

// MediaType classifies a Document by the kind of content it holds.
type MediaType string

const (
	MediaTypeDocument MediaType = "document"
	MediaTypeImage    MediaType = "image"
	MediaTypeAudio    MediaType = "audio"
	MediaTypeVideo    MediaType = "video"
)

// State keys for the metadata store's key-value runtime state.
const (
	StateKeyIndexDimension = "index_embedding_dimension"
	StateKeyIndexModel     = "index_embedding_model"
	StateKeyLastIndexedAt  = "last_indexed_at"
)

// Document is one row per ingested file.
type Document struct {
	ID          string // opaque UUID
	Path        string // absolute path
	Filename    string
	Extension   string // lowercased, including leading dot
	MediaType   MediaType
	Size        int64
	ContentHash string // from internal/hash

	CreatedAt  time.Time // filesystem ctime
	ModifiedAt time.Time // filesystem mtime
	IndexedAt  time.Time

	IsDeleted bool
	DeletedAt *time.Time

	DurationSeconds *float64 // audio/video only
	Width           *int     // image/video only
	Height          *int     // image/video only
}

// Chunk is the unit of retrieval: a piece of a Document's text plus its
// embedding vector, denormalized with enough of the parent Document to filter
// and display a result without a join.
type Chunk struct {
	ID         string // opaque
	DocumentID string
	ChunkIndex int // contiguous, 0-based per document
	Text       string
	Vector     []float32

	StartTime *float64 // seconds; set iff sourced from timed media
	EndTime   *float64

	// Denormalized from the parent Document.
	Path      string
	Filename  string
	MediaType MediaType

	// OCRText is set only when this Chunk was materialized from an
	// ImageDescription row for display alongside search results; empty for
	// ordinary chunks.
	OCRText string
}

// ImageDescription is a specialization of Chunk used for images: identity +
// denormalized path/filename, plus VLM-produced description and optional OCR
// text, embedded as the concatenation description⧺ocr_text⧺metadata. It lives
// in its own logical table in both the vector store and (denormalized as an
// ordinary full-text row) the lexical store, never in the chunks table.
type ImageDescription struct {
	ID         string
	DocumentID string
	Description string
	OCRText     string
	Metadata    string // formatted EXIF/location text, folded into the embedding only
	Vector      []float32

	// Denormalized from the parent Document.
	Path      string
	Filename  string
	MediaType MediaType
}

// Transcript holds the full transcript of an audio/video Document, exactly
// zero or one per Document.
type Transcript struct {
	ID         string
	DocumentID string
	FullText   string
	Language   string
	DurationSeconds float64
	WordCount  int
}

// Filter narrows a search to a subset of documents. A zero-value Filter
// matches everything. Both fields are ANDed; MediaTypes is an OR-set within
// itself.
type Filter struct {
	MediaTypes []MediaType
	PathPrefix string
}

// Matches reports whether a chunk's denormalized metadata satisfies f.
func (f Filter) Matches(mediaType MediaType, path string) bool {
	if len(f.MediaTypes) > 0 {
		ok := false
		for _, mt := range f.MediaTypes {
			if mt == mediaType {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.PathPrefix != "" {
		if len(path) < len(f.PathPrefix) || path[:len(f.PathPrefix)] != f.PathPrefix {
			return false
		}
	}
	return true
}

// MetadataStore persists Documents, Chunks, and Transcripts in SQLite, and
// serves as this deployment's system of record for document identity.
type MetadataStore interface {
	// Document operations.
	SaveDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	GetDocumentByHash(ctx context.Context, contentHash string) (*Document, error)
	GetDocumentByPath(ctx context.Context, path string) (*Document, error)
	ListDocuments(ctx context.Context, cursor string, limit int) ([]*Document, string, error)
	SoftDeleteDocument(ctx context.Context, id string) error
	HardDeleteDocument(ctx context.Context, id string) error // cascades to chunks + transcript

	// Chunk operations.
	SaveChunks(ctx context.Context, chunks []*Chunk) error
	GetChunksByDocument(ctx context.Context, documentID string) ([]*Chunk, error)
	GetChunks(ctx context.Context, ids []string) ([]*Chunk, error)
	DeleteChunksByDocument(ctx context.Context, documentID string) error
	CountDependentRows(ctx context.Context, documentID string) (int, error) // chunks + transcript + image descriptions

	// Image description operations (the vector store's second logical
	// table — see ImageDescription).
	SaveImageDescriptions(ctx context.Context, images []*ImageDescription) error
	GetImageDescriptionsByDocument(ctx context.Context, documentID string) ([]*ImageDescription, error)
	GetImageDescriptions(ctx context.Context, ids []string) ([]*ImageDescription, error)
	DeleteImageDescriptionsByDocument(ctx context.Context, documentID string) error

	// Transcript operations.
	SaveTranscript(ctx context.Context, t *Transcript) error
	GetTranscriptByDocument(ctx context.Context, documentID string) (*Transcript, error)

	// State operations (key-value store for runtime/index-wide state).
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	// Lifecycle
	Close() error
}

// LexicalDocument is a single row fed to the full-text index: a chunk's text
// plus the denormalized fields needed to filter and format a BM25 result
// without a metadata-store join.
type LexicalDocument struct {
	ID        string // Chunk ID
	Text      string
	Path      string
	Filename  string
	MediaType MediaType
}

// BM25Result is a single lexical search hit.
type BM25Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
	Path         string
	Filename     string
	MediaType    MediaType
}

// IndexStats summarizes a lexical index.
type IndexStats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// BM25Index provides keyword search using the BM25 ranking function over
// chunk text, filterable by the chunk's denormalized document metadata.
type BM25Index interface {
	Index(ctx context.Context, docs []*LexicalDocument) error
	Search(ctx context.Context, query string, limit int, filter Filter) ([]*BM25Result, error)
	Delete(ctx context.Context, docIDs []string) error
	AllIDs() ([]string, error)
	Stats() *IndexStats

	Save(path string) error
	Load(path string) error
	Close() error
}

// BM25Config configures the Okapi BM25 scoring function.
type BM25Config struct {
	K1             float64
	B              float64
	StopWords      []string
	MinTokenLength int
}

// DefaultBM25Config returns default BM25 configuration.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		K1:             1.2,
		B:              0.75,
		StopWords:      DefaultStopWords,
		MinTokenLength: 2,
	}
}

// DefaultStopWords are common English function words filtered from the
// lexical index's tokenization.
var DefaultStopWords = []string{
	"a", "an", "the", "and", "or", "but", "of", "to", "in", "on", "at", "for",
	"is", "are", "was", "were", "be", "been", "it", "this", "that", "with",
}

// VectorResult is a single nearest-neighbor hit.
type VectorResult struct {
	ID       string
	Distance float32
	Score    float32 // normalized similarity, 0-1
}

// VectorStoreConfig configures the HNSW vector store.
type VectorStoreConfig struct {
	Dimensions     int
	Metric         string // "cos" (cosine), "l2" (euclidean)
	M              int    // max connections per layer
	EfConstruction int    // build-time search width
	EfSearch       int    // query-time search width
}

// DefaultVectorStoreConfig returns sensible defaults for the vector store.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions:     dimensions,
		Metric:         "cos",
		M:              32,
		EfConstruction: 128,
		EfSearch:       64,
	}
}

// VectorMetadata is the denormalized metadata kept alongside each vector so
// Search can apply a Filter without a round trip to the metadata store.
type VectorMetadata struct {
	MediaType MediaType
	Path      string
}

// VectorStore provides approximate nearest-neighbor search over chunk (and
// image-description) embeddings.
type VectorStore interface {
	// Add inserts vectors with their IDs and filterable metadata. An
	// existing ID is replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32, meta []VectorMetadata) error

	// Search finds the k nearest neighbors to query that satisfy filter.
	// Implementations over-fetch internally to compensate for post-filtering.
	Search(ctx context.Context, query []float32, k int, filter Filter) ([]*VectorResult, error)

	Delete(ctx context.Context, ids []string) error
	AllIDs() []string
	Contains(id string) bool
	Count() int

	Save(path string) error
	Load(path string) error
	Close() error
}

// ErrDimensionMismatch indicates the embedder's output width doesn't match
// what the vector store was built with.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (reindex required)", e.Expected, e.Got)
}
