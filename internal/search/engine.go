package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/corpusindex/corpusindex/internal/embed"
	"github.com/corpusindex/corpusindex/internal/store"
)

// Engine implements hybrid search combining BM25 and semantic search.
type Engine struct {
	bm25     store.BM25Index
	vector   store.VectorStore
	embedder embed.Embedder
	metadata store.MetadataStore
	config   EngineConfig
	fusion   *RRFFusion
	reranker Reranker
	mu       sync.RWMutex

	// imageVectors is the vector store's second logical table: image
	// descriptions, searched alongside chunks whenever a query's filter
	// allows images. Nil disables dense image search (lexical search over
	// image text still works via bm25).
	imageVectors store.VectorStore
}

// Ensure Engine implements SearchEngine interface.
var _ SearchEngine = (*Engine)(nil)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// ErrDimensionMismatch is returned when query embedding dimension doesn't match index dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// EngineOption configures the search engine.
type EngineOption func(*Engine)

// WithReranker sets an optional cross-encoder reranker for result refinement.
// When set, results are reranked after RRF fusion but before enrichment.
func WithReranker(r Reranker) EngineOption {
	return func(e *Engine) {
		e.reranker = r
	}
}

// WithImageVectors attaches the image-descriptions vector table so dense
// search also covers images per §4.13. Omitting this option leaves dense
// image search disabled; image text remains reachable via BM25.
func WithImageVectors(vs store.VectorStore) EngineOption {
	return func(e *Engine) {
		e.imageVectors = vs
	}
}

// NewEngine creates a new hybrid search engine with the given dependencies.
// Returns an error if any required dependency is nil.
func NewEngine(
	bm25 store.BM25Index,
	vector store.VectorStore,
	embedder embed.Embedder,
	metadata store.MetadataStore,
	config EngineConfig,
	opts ...EngineOption,
) (*Engine, error) {
	if bm25 == nil {
		return nil, fmt.Errorf("%w: bm25 index is required", ErrNilDependency)
	}
	if vector == nil {
		return nil, fmt.Errorf("%w: vector store is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	if metadata == nil {
		return nil, fmt.Errorf("%w: metadata store is required", ErrNilDependency)
	}
	e := &Engine{
		bm25:     bm25,
		vector:   vector,
		embedder: embedder,
		metadata: metadata,
		config:   config,
		fusion:   NewRRFFusionWithK(config.RRFConstant),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search executes a hybrid search combining BM25 and semantic search.
// It runs both searches in parallel and fuses results using Reciprocal Rank
// Fusion (RRF).
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	opts = e.applyDefaults(opts)

	if opts.BM25Only {
		return e.bm25OnlySearch(ctx, query, opts, false)
	}

	if err := e.validateDimensions(ctx); err != nil {
		slog.Warn("dimension mismatch detected, semantic search disabled",
			slog.String("error", err.Error()))
		return e.bm25OnlySearch(ctx, query, opts, true)
	}

	bm25Results, vecResults, searchErr := e.parallelSearch(ctx, query, opts.Limit*2, opts.Filter)
	if searchErr != nil && bm25Results == nil && vecResults == nil {
		return nil, searchErr
	}

	fused := e.fusion.Fuse(bm25Results, vecResults)
	reranked := e.rerankResults(ctx, query, fused)
	results, err := e.enrichResults(ctx, reranked)
	if err != nil {
		return nil, err
	}

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	e.attachExplainData(results, query, opts, len(bm25Results), len(vecResults), false)

	return results, nil
}

// SearchSimilar finds chunks semantically similar to an existing chunk,
// reusing its stored vector instead of re-embedding a query string. Chunks
// belonging to the same document are excluded so a document never recommends
// itself.
func (e *Engine) SearchSimilar(ctx context.Context, chunkID string, limit int) ([]*SearchResult, error) {
	if limit <= 0 {
		limit = e.config.DefaultLimit
	}

	chunks, err := e.metadata.GetChunks(ctx, []string{chunkID})
	if err != nil {
		return nil, fmt.Errorf("fetch source chunk: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("chunk %q not found", chunkID)
	}
	source := chunks[0]
	if len(source.Vector) == 0 {
		return nil, fmt.Errorf("chunk %q has no stored vector", chunkID)
	}

	vecResults, err := e.searchDense(ctx, source.Vector, limit+1, store.Filter{})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	filtered := make([]*store.VectorResult, 0, len(vecResults))
	for _, r := range vecResults {
		if r.ID == source.ID {
			continue
		}
		filtered = append(filtered, r)
	}
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}

	fused := e.fusion.Fuse(nil, filtered)
	results, err := e.enrichResults(ctx, fused)
	if err != nil {
		return nil, err
	}

	out := make([]*SearchResult, 0, len(results))
	for _, r := range results {
		if r.Chunk != nil && r.Chunk.DocumentID == source.DocumentID {
			continue
		}
		out = append(out, r)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// bm25OnlySearch runs keyword-only search, used both when the caller
// explicitly requests it and when semantic search is disabled due to a
// dimension mismatch.
func (e *Engine) bm25OnlySearch(ctx context.Context, query string, opts SearchOptions, dimMismatch bool) ([]*SearchResult, error) {
	bm25Results, err := e.bm25.Search(ctx, query, opts.Limit*2, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("BM25 search failed: %w", err)
	}
	fused := e.fusion.Fuse(bm25Results, nil)
	reranked := e.rerankResults(ctx, query, fused)
	results, err := e.enrichResults(ctx, reranked)
	if err != nil {
		return nil, err
	}
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	e.attachExplainData(results, query, opts, len(bm25Results), 0, dimMismatch)
	return results, nil
}

// attachExplainData populates ExplainData on the first result when opts.Explain is true.
func (e *Engine) attachExplainData(results []*SearchResult, query string, opts SearchOptions, bm25Count, vecCount int, dimMismatch bool) {
	if !opts.Explain || len(results) == 0 {
		return
	}
	results[0].Explain = &ExplainData{
		Query:             query,
		BM25ResultCount:   bm25Count,
		VectorResultCount: vecCount,
		RRFConstant:       e.config.RRFConstant,
		BM25Only:          opts.BM25Only,
		DimensionMismatch: dimMismatch,
	}
}

// Index adds chunks to both BM25 and vector indices.
func (e *Engine) Index(ctx context.Context, chunks []*store.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embeddings, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("generate embeddings: %w", err)
	}

	lexDocs := make([]*store.LexicalDocument, len(chunks))
	ids := make([]string, len(chunks))
	vectors := make([][]float32, len(chunks))
	meta := make([]store.VectorMetadata, len(chunks))
	for i, c := range chunks {
		c.Vector = embeddings[i]
		lexDocs[i] = &store.LexicalDocument{
			ID:        c.ID,
			Text:      c.Text,
			Path:      c.Path,
			Filename:  c.Filename,
			MediaType: c.MediaType,
		}
		ids[i] = c.ID
		vectors[i] = embeddings[i]
		meta[i] = store.VectorMetadata{MediaType: c.MediaType, Path: c.Path}
	}

	if err := e.bm25.Index(ctx, lexDocs); err != nil {
		return fmt.Errorf("index in BM25: %w", err)
	}

	if err := e.vector.Add(ctx, ids, vectors, meta); err != nil {
		return fmt.Errorf("add vectors: %w", err)
	}

	if err := e.metadata.SaveChunks(ctx, chunks); err != nil {
		return fmt.Errorf("save chunks metadata: %w", err)
	}

	if err := e.storeIndexEmbeddingInfo(ctx); err != nil {
		slog.Warn("failed to store index embedding info", slog.String("error", err.Error()))
	}

	return nil
}

// IndexImages adds image descriptions to the lexical index, the image
// vector table (when configured), and metadata. Mirrors Index but targets
// the second logical vector table instead of chunks, per §4.6.
func (e *Engine) IndexImages(ctx context.Context, images []*store.ImageDescription) error {
	if len(images) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	texts := make([]string, len(images))
	for i, img := range images {
		texts[i] = imageEmbedText(img)
	}

	embeddings, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("generate image embeddings: %w", err)
	}

	lexDocs := make([]*store.LexicalDocument, len(images))
	ids := make([]string, len(images))
	vectors := make([][]float32, len(images))
	meta := make([]store.VectorMetadata, len(images))
	for i, img := range images {
		img.Vector = embeddings[i]
		lexDocs[i] = &store.LexicalDocument{
			ID:        img.ID,
			Text:      texts[i],
			Path:      img.Path,
			Filename:  img.Filename,
			MediaType: store.MediaTypeImage,
		}
		ids[i] = img.ID
		vectors[i] = embeddings[i]
		meta[i] = store.VectorMetadata{MediaType: store.MediaTypeImage, Path: img.Path}
	}

	if err := e.bm25.Index(ctx, lexDocs); err != nil {
		return fmt.Errorf("index image text in BM25: %w", err)
	}

	if e.imageVectors != nil {
		if err := e.imageVectors.Add(ctx, ids, vectors, meta); err != nil {
			return fmt.Errorf("add image vectors: %w", err)
		}
	} else {
		slog.Warn("image vector store not configured, dense image search disabled for these rows",
			slog.Int("count", len(images)))
	}

	if err := e.metadata.SaveImageDescriptions(ctx, images); err != nil {
		return fmt.Errorf("save image description metadata: %w", err)
	}

	return nil
}

// imageEmbedText builds the text embedded for an image description:
// description ⧺ ocr_text ⧺ metadata, per §3/§4.8.
func imageEmbedText(img *store.ImageDescription) string {
	text := img.Description
	if img.OCRText != "" {
		text += "\n\n" + img.OCRText
	}
	if img.Metadata != "" {
		text += "\n\n" + img.Metadata
	}
	return text
}

// storeIndexEmbeddingInfo saves the current embedder's dimension and model to metadata,
// enabling detection of a dimension mismatch if the embedder changes later.
func (e *Engine) storeIndexEmbeddingInfo(ctx context.Context) error {
	dim := fmt.Sprintf("%d", e.embedder.Dimensions())
	model := e.embedder.ModelName()

	if err := e.metadata.SetState(ctx, store.StateKeyIndexDimension, dim); err != nil {
		return fmt.Errorf("failed to store index dimension: %w", err)
	}
	if err := e.metadata.SetState(ctx, store.StateKeyIndexModel, model); err != nil {
		return fmt.Errorf("failed to store index model: %w", err)
	}
	return nil
}

// validateDimensions checks if current embedder dimension matches indexed dimension.
func (e *Engine) validateDimensions(ctx context.Context) error {
	storedDim, err := e.metadata.GetState(ctx, store.StateKeyIndexDimension)
	if err != nil || storedDim == "" {
		return nil
	}

	var indexDim int
	if _, err := fmt.Sscanf(storedDim, "%d", &indexDim); err != nil {
		slog.Warn("invalid stored index dimension", slog.String("value", storedDim))
		return nil
	}

	currentDim := e.embedder.Dimensions()
	if indexDim != currentDim {
		storedModel, _ := e.metadata.GetState(ctx, store.StateKeyIndexModel)
		currentModel := e.embedder.ModelName()
		return fmt.Errorf("%w: index has %d dimensions (%s), but current embedder has %d dimensions (%s)",
			ErrDimensionMismatch, indexDim, storedModel, currentDim, currentModel)
	}

	return nil
}

// Delete removes chunks from the BM25 and vector indices by chunk id.
// Metadata is the system of record for chunk/document identity and is
// deleted separately by the caller (the orchestrator hard-deletes the parent
// Document row, which cascades to chunks) — best-effort here since an index
// orphan is harmless, it is never surfaced because enrichResults only
// returns chunks metadata still has a record for.
func (e *Engine) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.bm25.Delete(ctx, chunkIDs); err != nil {
		slog.Warn("BM25 delete failed, orphans will remain in the index",
			slog.String("error", err.Error()), slog.Int("count", len(chunkIDs)))
	}

	if err := e.vector.Delete(ctx, chunkIDs); err != nil {
		slog.Warn("vector delete failed, orphans will remain in the index",
			slog.String("error", err.Error()), slog.Int("count", len(chunkIDs)))
	}

	if e.imageVectors != nil {
		if err := e.imageVectors.Delete(ctx, chunkIDs); err != nil {
			slog.Warn("image vector delete failed, orphans will remain in the index",
				slog.String("error", err.Error()), slog.Int("count", len(chunkIDs)))
		}
	}

	return nil
}

// Stats returns engine statistics.
func (e *Engine) Stats() *EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := &EngineStats{
		BM25Stats:   e.bm25.Stats(),
		VectorCount: e.vector.Count(),
	}
	if e.imageVectors != nil {
		stats.ImageVectorCount = e.imageVectors.Count()
	}
	return stats
}

// Close releases all resources.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error

	if err := e.bm25.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.vector.Close(); err != nil {
		errs = append(errs, err)
	}
	if e.imageVectors != nil {
		if err := e.imageVectors.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.metadata.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// applyDefaults fills in default values for search options.
func (e *Engine) applyDefaults(opts SearchOptions) SearchOptions {
	if opts.Limit <= 0 {
		opts.Limit = e.config.DefaultLimit
	}
	if opts.Limit > e.config.MaxLimit {
		opts.Limit = e.config.MaxLimit
	}
	return opts
}

// parallelSearch executes BM25 and vector searches concurrently, tokenizing
// the query into a disjunctive ("term1 OR term2 ...") form for BM25 while the
// embedder handles the original query text for vector search.
func (e *Engine) parallelSearch(ctx context.Context, query string, limit int, filter store.Filter) (
	bm25Results []*store.BM25Result,
	vecResults []*store.VectorResult,
	err error,
) {
	g, gctx := errgroup.WithContext(ctx)

	var bm25Err, vecErr error

	g.Go(func() error {
		var searchErr error
		bm25Results, searchErr = e.bm25.Search(gctx, disjunctiveQuery(query), limit, filter)
		if searchErr != nil {
			bm25Err = searchErr
		}
		return nil
	})

	g.Go(func() error {
		embedding, embedErr := e.embedder.Embed(gctx, query)
		if embedErr != nil {
			vecErr = embedErr
			return nil
		}
		var searchErr error
		vecResults, searchErr = e.searchDense(gctx, embedding, limit, filter)
		if searchErr != nil {
			vecErr = searchErr
		}
		return nil
	})

	if waitErr := g.Wait(); waitErr != nil {
		return nil, nil, waitErr
	}

	if bm25Err != nil && vecErr != nil {
		return nil, nil, errors.Join(bm25Err, vecErr)
	}
	if bm25Err != nil {
		err = bm25Err
	} else if vecErr != nil {
		err = vecErr
	}

	return bm25Results, vecResults, err
}

// searchDense runs nearest-neighbor search over chunks and, when the filter
// allows images (or is empty) and an image vector store is configured, also
// over image descriptions, per §4.13. Both result sets use the same
// cosine-distance-to-score convention, so they're concatenated and
// re-sorted by score descending rather than RRF-fused against each other.
func (e *Engine) searchDense(ctx context.Context, embedding []float32, limit int, filter store.Filter) ([]*store.VectorResult, error) {
	results, err := e.vector.Search(ctx, embedding, limit, filter)
	if err != nil {
		return nil, err
	}

	if e.imageVectors == nil || !filterAllowsImages(filter) {
		return results, nil
	}

	imgResults, err := e.imageVectors.Search(ctx, embedding, limit, filter)
	if err != nil {
		slog.Warn("image vector search failed, continuing with chunk results only",
			slog.String("error", err.Error()))
		return results, nil
	}

	results = append(results, imgResults...)
	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// filterAllowsImages reports whether f permits image-media results: true
// when f has no media type restriction, or when image is explicitly listed.
func filterAllowsImages(f store.Filter) bool {
	if len(f.MediaTypes) == 0 {
		return true
	}
	for _, mt := range f.MediaTypes {
		if mt == store.MediaTypeImage {
			return true
		}
	}
	return false
}

// disjunctiveQuery tokenizes a free-text query on whitespace and forms a
// disjunctive FTS query ("term1 OR term2 OR ...").
func disjunctiveQuery(query string) string {
	terms := strings.Fields(query)
	if len(terms) <= 1 {
		return query
	}
	return strings.Join(terms, " OR ")
}

// enrichResults fetches full chunk data using batch retrieval for performance.
func (e *Engine) enrichResults(ctx context.Context, fused []*FusedResult) ([]*SearchResult, error) {
	if len(fused) == 0 {
		return nil, nil
	}

	ids := make([]string, len(fused))
	fusedByID := make(map[string]*FusedResult, len(fused))
	for i, f := range fused {
		ids[i] = f.ChunkID
		fusedByID[f.ChunkID] = f
	}

	chunks, err := e.metadata.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}

	chunkByID := make(map[string]*store.Chunk, len(fused))
	for _, c := range chunks {
		chunkByID[c.ID] = c
	}

	missing := missingIDs(ids, chunkByID)
	if len(missing) > 0 {
		images, err := e.metadata.GetImageDescriptions(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, img := range images {
			chunkByID[img.ID] = imageDescriptionToChunk(img)
		}
	}

	results := make([]*SearchResult, 0, len(fused))
	for _, f := range fused {
		chunk, ok := chunkByID[f.ChunkID]
		if !ok {
			continue // metadata is the source of truth; skip index orphans
		}
		results = append(results, &SearchResult{
			Chunk:        chunk,
			Score:        f.RRFScore,
			BM25Score:    f.BM25Score,
			VecScore:     f.VecScore,
			BM25Rank:     f.BM25Rank,
			VecRank:      f.VecRank,
			InBothLists:  f.InBothLists,
			MatchedTerms: f.MatchedTerms,
		})
	}

	return results, nil
}

// missingIDs returns the ids not already present as keys in found.
func missingIDs(ids []string, found map[string]*store.Chunk) []string {
	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// imageDescriptionToChunk adapts an ImageDescription row to the Chunk shape
// enrichResults and rerankResults deal in, so both logical tables flow
// through one result pipeline. Description becomes Text; OCRText is carried
// alongside rather than folded in, so callers can tell the two apart.
func imageDescriptionToChunk(img *store.ImageDescription) *store.Chunk {
	return &store.Chunk{
		ID:         img.ID,
		DocumentID: img.DocumentID,
		Text:       img.Description,
		OCRText:    img.OCRText,
		Vector:     img.Vector,
		Path:       img.Path,
		Filename:   img.Filename,
		MediaType:  img.MediaType,
	}
}

// rerankResults applies cross-encoder reranking to improve result relevance.
// Returns original results unchanged if no reranker is configured or it's
// unavailable. Final score blends the reranker's score with the original RRF
// score per EngineConfig.RerankWeight.
func (e *Engine) rerankResults(ctx context.Context, query string, fused []*FusedResult) []*FusedResult {
	if e.reranker == nil || len(fused) < 2 {
		return fused
	}
	if !e.reranker.Available(ctx) {
		return fused
	}

	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.ChunkID
	}

	chunks, err := e.metadata.GetChunks(ctx, ids)
	if err != nil {
		slog.Warn("failed to fetch chunks for reranking, skipping", slog.String("error", err.Error()))
		return fused
	}

	textByID := make(map[string]string, len(ids))
	chunkByID := make(map[string]*store.Chunk, len(chunks))
	for _, c := range chunks {
		textByID[c.ID] = c.Text
		chunkByID[c.ID] = c
	}
	if missing := missingIDs(ids, chunkByID); len(missing) > 0 {
		images, err := e.metadata.GetImageDescriptions(ctx, missing)
		if err != nil {
			slog.Warn("failed to fetch image descriptions for reranking, skipping",
				slog.String("error", err.Error()))
		}
		for _, img := range images {
			textByID[img.ID] = imageEmbedText(img)
		}
	}

	documents := make([]string, 0, len(fused))
	valid := make([]*FusedResult, 0, len(fused))
	for _, f := range fused {
		text, ok := textByID[f.ChunkID]
		if ok && text != "" {
			documents = append(documents, text)
			valid = append(valid, f)
		}
	}
	if len(documents) == 0 {
		return fused
	}

	reranked, err := e.reranker.Rerank(ctx, query, documents, 0)
	if err != nil {
		slog.Warn("reranking failed, using original order", slog.String("error", err.Error()))
		return fused
	}

	weight := e.config.RerankWeight
	if weight <= 0 {
		weight = 0.7
	}

	results := make([]*FusedResult, 0, len(reranked))
	for _, rr := range reranked {
		if rr.Index < 0 || rr.Index >= len(valid) {
			continue
		}
		f := valid[rr.Index]
		f.RRFScore = weight*rr.Score + (1-weight)*f.RRFScore
		results = append(results, f)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].RRFScore > results[j].RRFScore
	})

	return results
}
