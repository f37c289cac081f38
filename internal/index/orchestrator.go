// Package index orchestrates turning a file on disk into searchable
// Documents, Chunks, and (for timed media) a Transcript: dedup by content
// hash, dispatch to the extractor matching the file's media type, and
// reconcile any partial write left behind by a crashed prior attempt.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/corpusindex/corpusindex/internal/chunk"
	corpuserrors "github.com/corpusindex/corpusindex/internal/errors"
	"github.com/corpusindex/corpusindex/internal/extract"
	"github.com/corpusindex/corpusindex/internal/hash"
	"github.com/corpusindex/corpusindex/internal/search"
	"github.com/corpusindex/corpusindex/internal/store"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true,
	".webp": true, ".tiff": true, ".svg": true,
}

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".wmv": true,
	".flv": true, ".webm": true,
}

var audioExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".m4a": true, ".flac": true, ".aac": true,
	".ogg": true, ".wma": true,
}

// classifyMediaType derives a Document's MediaType from its lowercased
// extension. Anything not recognized as image/video/audio is "document".
func classifyMediaType(path string) store.MediaType {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case imageExtensions[ext]:
		return store.MediaTypeImage
	case videoExtensions[ext]:
		return store.MediaTypeVideo
	case audioExtensions[ext]:
		return store.MediaTypeAudio
	default:
		return store.MediaTypeDocument
	}
}

// OrchestratorConfig configures the Orchestrator.
type OrchestratorConfig struct {
	// Metadata is the system of record for document/chunk/transcript identity.
	Metadata store.MetadataStore

	// Engine indexes and deletes chunks in the BM25 and vector stores, and
	// owns the embedder used to vectorize chunk text.
	Engine *search.Engine

	// Extractors dispatches a file to the extractor matching its type.
	Extractors *extract.Registry

	// VLMFallback handles PDF pages whose text layer was insufficient. Nil
	// disables the fallback: such pages are simply left unindexed.
	VLMFallback *VLMFallbackEngine

	// ChunkSize and ChunkOverlap configure the sliding-window chunker.
	// Zero values fall back to chunk.DefaultChunkSize/DefaultChunkOverlap.
	ChunkSize    int
	ChunkOverlap int

	// MaxFileSize skips files larger than this many bytes. Zero disables
	// the check.
	MaxFileSize int64
}

// Orchestrator turns files into indexed Documents, per SPEC_FULL.md §4.8.
type Orchestrator struct {
	metadata    store.MetadataStore
	engine      *search.Engine
	extractors  *extract.Registry
	vlmFallback *VLMFallbackEngine
	chunkSize   int
	chunkOvlp   int
	maxFileSize int64
}

// NewOrchestrator creates an Orchestrator from the given configuration.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	size, overlap := cfg.ChunkSize, cfg.ChunkOverlap
	if size <= 0 {
		size = chunk.DefaultChunkSize
	}
	if overlap <= 0 {
		overlap = chunk.DefaultChunkOverlap
	}
	return &Orchestrator{
		metadata:    cfg.Metadata,
		engine:      cfg.Engine,
		extractors:  cfg.Extractors,
		vlmFallback: cfg.VLMFallback,
		chunkSize:   size,
		chunkOvlp:   overlap,
		maxFileSize: cfg.MaxFileSize,
	}
}

// IndexFile ingests a single file. It returns (nil, nil) on a benign skip:
// the path does not exist, the file is too large, no extractor handles it,
// or extraction yielded no usable text/transcript.
func (o *Orchestrator) IndexFile(ctx context.Context, path string) (*store.Document, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		slog.Warn("indexer: path does not exist, skipping", slog.String("path", path))
		return nil, nil
	}
	if err != nil {
		return nil, corpuserrors.IOError(fmt.Sprintf("stat %s", path), err)
	}
	if o.maxFileSize > 0 && info.Size() > o.maxFileSize {
		slog.Warn("indexer: file exceeds max size, skipping",
			slog.String("path", path), slog.Int64("size", info.Size()), slog.Int64("max", o.maxFileSize))
		return nil, nil
	}

	contentHash, err := hash.Hash(path)
	if err != nil {
		return nil, err
	}

	if doc, shortCircuit, err := o.resolveExisting(ctx, contentHash); err != nil {
		return nil, err
	} else if shortCircuit {
		return doc, nil
	}

	mediaType := classifyMediaType(path)
	var doc *store.Document
	switch mediaType {
	case store.MediaTypeImage:
		doc, err = o.indexImage(ctx, path, info, contentHash)
	case store.MediaTypeAudio:
		doc, err = o.indexAudio(ctx, path, info, contentHash)
	case store.MediaTypeVideo:
		doc, err = o.indexVideo(ctx, path, info, contentHash)
	default:
		doc, err = o.indexDocument(ctx, path, info, contentHash)
	}
	if err == nil && doc != nil {
		if stateErr := o.metadata.SetState(ctx, store.StateKeyLastIndexedAt, doc.IndexedAt.UTC().Format(time.RFC3339)); stateErr != nil {
			slog.Warn("indexer: failed to record last-indexed timestamp", slog.String("error", stateErr.Error()))
		}
	}
	return doc, err
}

// resolveExisting implements the dedup short-circuit (I1) and the orphan
// recovery for a Document left behind by a crashed prior IndexFile call: a
// non-deleted Document with this hash and at least one dependent row is
// returned unchanged; one with zero dependent rows is hard-deleted so
// indexing proceeds as if it never existed.
func (o *Orchestrator) resolveExisting(ctx context.Context, contentHash string) (*store.Document, bool, error) {
	existing, err := o.metadata.GetDocumentByHash(ctx, contentHash)
	if err != nil {
		return nil, false, fmt.Errorf("look up document by hash: %w", err)
	}
	if existing == nil {
		return nil, false, nil
	}

	count, err := o.metadata.CountDependentRows(ctx, existing.ID)
	if err != nil {
		return nil, false, fmt.Errorf("count dependent rows for %s: %w", existing.ID, err)
	}
	if count > 0 {
		return existing, true, nil
	}

	slog.Warn("indexer: reclaiming orphaned document from a prior crashed index",
		slog.String("document_id", existing.ID), slog.String("path", existing.Path))
	if err := o.metadata.HardDeleteDocument(ctx, existing.ID); err != nil {
		return nil, false, fmt.Errorf("hard-delete orphaned document %s: %w", existing.ID, err)
	}
	return nil, false, nil
}

// newDocument builds the common Document fields shared by every handler.
func newDocument(path string, info os.FileInfo, contentHash string, mediaType store.MediaType) *store.Document {
	now := time.Now()
	return &store.Document{
		ID:          uuid.NewString(),
		Path:        path,
		Filename:    filepath.Base(path),
		Extension:   strings.ToLower(filepath.Ext(path)),
		MediaType:   mediaType,
		Size:        info.Size(),
		ContentHash: contentHash,
		CreatedAt:   info.ModTime(),
		ModifiedAt:  info.ModTime(),
		IndexedAt:   now,
	}
}

// abortPartialWrite hard-deletes a Document row written earlier in a
// handler that could not complete (I5): no orphaned Document with zero
// dependent rows survives a call to IndexFile.
func (o *Orchestrator) abortPartialWrite(ctx context.Context, doc *store.Document, reason error) (*store.Document, error) {
	slog.Warn("indexer: aborting partial index, rolling back document row",
		slog.String("path", doc.Path), slog.String("reason", reason.Error()))
	if err := o.metadata.HardDeleteDocument(ctx, doc.ID); err != nil {
		slog.Error("indexer: failed to roll back document row",
			slog.String("document_id", doc.ID), slog.String("error", err.Error()))
	}
	return nil, nil
}

// indexImage handles image files (§4.8 Image): describe+OCR via the VLM,
// extract EXIF metadata, and write one row to the image-descriptions table
// (vector store's second logical table, plus its denormalized lexical row)
// rather than an ordinary chunk, per §4.6.
func (o *Orchestrator) indexImage(ctx context.Context, path string, info os.FileInfo, contentHash string) (*store.Document, error) {
	extractor, ok := o.extractors.Dispatch(path)
	if !ok {
		slog.Warn("indexer: no extractor for image", slog.String("path", path))
		return nil, nil
	}
	extracted, extractErr := extractor.Extract(ctx, path)
	if extractErr != nil {
		return nil, fmt.Errorf("extract image %s: %w", path, extractErr)
	}
	img, ok := extracted.(extract.ImageResult)
	if !ok {
		return nil, fmt.Errorf("unexpected extract result type for image %s", path)
	}

	doc := newDocument(path, info, contentHash, store.MediaTypeImage)
	if img.Width > 0 {
		w := img.Width
		doc.Width = &w
	}
	if img.Height > 0 {
		h := img.Height
		doc.Height = &h
	}
	if err := o.metadata.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save image document: %w", err)
	}

	if strings.TrimSpace(img.Description) == "" && strings.TrimSpace(img.OCRText) == "" {
		return o.abortPartialWrite(ctx, doc, fmt.Errorf("VLM produced no description or OCR text"))
	}

	desc := &store.ImageDescription{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		Description: img.Description,
		OCRText:     img.OCRText,
		Metadata:    img.Metadata,
		Path:        doc.Path,
		Filename:    doc.Filename,
		MediaType:   doc.MediaType,
	}
	if indexErr := o.engine.IndexImages(ctx, []*store.ImageDescription{desc}); indexErr != nil {
		return o.abortPartialWrite(ctx, doc, indexErr)
	}
	return doc, nil
}

// indexAudio handles audio files (§4.8 Audio): transcribe, chunk by
// timestamp, embed, and write the Transcript row.
func (o *Orchestrator) indexAudio(ctx context.Context, path string, info os.FileInfo, contentHash string) (*store.Document, error) {
	result, ok := o.extractors.Dispatch(path)
	if !ok {
		slog.Warn("indexer: no extractor for audio", slog.String("path", path))
		return nil, nil
	}
	extracted, err := result.Extract(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("transcribe audio %s: %w", path, err)
	}
	audio, ok := extracted.(extract.AudioResult)
	if !ok {
		return nil, fmt.Errorf("unexpected extract result type for audio %s", path)
	}
	if strings.TrimSpace(audio.Text) == "" {
		slog.Warn("indexer: no transcript produced, skipping", slog.String("path", path))
		return nil, nil
	}

	doc := newDocument(path, info, contentHash, store.MediaTypeAudio)
	seconds := audio.Duration.Seconds()
	doc.DurationSeconds = &seconds
	if err := o.metadata.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save audio document: %w", err)
	}

	return o.finishTimedMedia(ctx, doc, audio.Text, audio.Language, seconds, audio.Segments)
}

// indexVideo handles video files (§4.8 Audio/Video): demux + transcribe via
// the video extractor, chunk, embed, and record duration/dimensions.
func (o *Orchestrator) indexVideo(ctx context.Context, path string, info os.FileInfo, contentHash string) (*store.Document, error) {
	result, ok := o.extractors.Dispatch(path)
	if !ok {
		slog.Warn("indexer: no extractor for video", slog.String("path", path))
		return nil, nil
	}
	extracted, err := result.Extract(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("transcribe video %s: %w", path, err)
	}
	video, ok := extracted.(extract.VideoResult)
	if !ok {
		return nil, fmt.Errorf("unexpected extract result type for video %s", path)
	}
	if strings.TrimSpace(video.Text) == "" {
		slog.Warn("indexer: no transcript produced, skipping", slog.String("path", path))
		return nil, nil
	}

	doc := newDocument(path, info, contentHash, store.MediaTypeVideo)
	seconds := video.Duration.Seconds()
	doc.DurationSeconds = &seconds
	if video.Width > 0 {
		w := video.Width
		doc.Width = &w
	}
	if video.Height > 0 {
		h := video.Height
		doc.Height = &h
	}
	if err := o.metadata.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save video document: %w", err)
	}

	return o.finishTimedMedia(ctx, doc, video.Text, video.Language, seconds, video.Segments)
}

// finishTimedMedia is shared by the audio and video handlers: save the
// Transcript row, chunk segments with timestamps, embed, and index.
func (o *Orchestrator) finishTimedMedia(ctx context.Context, doc *store.Document, fullText, language string, durationSeconds float64, segments []chunk.Segment) (*store.Document, error) {
	transcript := &store.Transcript{
		ID:              uuid.NewString(),
		DocumentID:      doc.ID,
		FullText:        fullText,
		Language:        language,
		DurationSeconds: durationSeconds,
		WordCount:       len(strings.Fields(fullText)),
	}
	if err := o.metadata.SaveTranscript(ctx, transcript); err != nil {
		return o.abortPartialWrite(ctx, doc, err)
	}

	timed := chunk.ChunkWithTimestampsSize(segments, o.chunkSize)
	chunks := make([]*store.Chunk, len(timed))
	for i, tc := range timed {
		start, end := tc.StartTime, tc.EndTime
		chunks[i] = &store.Chunk{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			ChunkIndex: i,
			Text:       tc.Text,
			StartTime:  &start,
			EndTime:    &end,
			Path:       doc.Path,
			Filename:   doc.Filename,
			MediaType:  doc.MediaType,
		}
	}
	if len(chunks) == 0 {
		return o.abortPartialWrite(ctx, doc, fmt.Errorf("timed chunker produced no chunks"))
	}
	if err := o.engine.Index(ctx, chunks); err != nil {
		return o.abortPartialWrite(ctx, doc, err)
	}
	return doc, nil
}

// indexDocument handles pdf/office/text files (§4.8 Document), invoking the
// VLM fallback for PDF pages whose embedded text layer was insufficient.
func (o *Orchestrator) indexDocument(ctx context.Context, path string, info os.FileInfo, contentHash string) (*store.Document, error) {
	extractor, ok := o.extractors.Dispatch(path)
	if !ok {
		slog.Warn("indexer: no extractor for file", slog.String("path", path))
		return nil, nil
	}
	extracted, err := extractor.Extract(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}

	text, err := o.resolveText(ctx, path, extracted)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		slog.Warn("indexer: extraction yielded no text, skipping", slog.String("path", path))
		return nil, nil
	}

	doc := newDocument(path, info, contentHash, store.MediaTypeDocument)
	if err := o.metadata.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}

	textChunks := chunk.ChunkTextSize(text, o.chunkSize, o.chunkOvlp)
	chunks := make([]*store.Chunk, len(textChunks))
	for i, tc := range textChunks {
		chunks[i] = &store.Chunk{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			ChunkIndex: i,
			Text:       tc.Text,
			Path:       doc.Path,
			Filename:   doc.Filename,
			MediaType:  doc.MediaType,
		}
	}
	if len(chunks) == 0 {
		return o.abortPartialWrite(ctx, doc, fmt.Errorf("chunker produced no chunks"))
	}
	if err := o.engine.Index(ctx, chunks); err != nil {
		return o.abortPartialWrite(ctx, doc, err)
	}
	return doc, nil
}

// resolveText extracts the plain text for a Document-family extraction
// result, invoking the VLM fallback for a PDF that reported pages needing it.
func (o *Orchestrator) resolveText(ctx context.Context, path string, result extract.ExtractResult) (string, error) {
	switch r := result.(type) {
	case extract.PDFResult:
		if len(r.PagesNeedingVLM) == 0 || o.vlmFallback == nil {
			return r.Text, nil
		}
		merged, _, err := o.vlmFallback.Process(ctx, path, r.Text, r.PagesNeedingVLM)
		if err != nil {
			slog.Warn("indexer: VLM fallback failed, using original text",
				slog.String("path", path), slog.String("error", err.Error()))
			return r.Text, nil
		}
		return merged, nil
	case extract.TextResult:
		return r.Text, nil
	case extract.OfficeResult:
		return r.Text, nil
	default:
		return "", fmt.Errorf("unexpected extract result type for document %s", path)
	}
}

// IndexDirectory walks dir (recursing when recursive is true), indexing
// every non-dotfile entry. It never aborts on a single file's failure,
// instead collecting per-file errors alongside the successfully indexed
// Documents.
func (o *Orchestrator) IndexDirectory(ctx context.Context, dir string, recursive bool) ([]*store.Document, []error) {
	var docs []*store.Document
	var errs []error

	walk := func(path string, d os.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if !recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}

		doc, err := o.IndexFile(ctx, path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			return nil
		}
		if doc != nil {
			docs = append(docs, doc)
		}
		return nil
	}

	if err := filepath.WalkDir(dir, walk); err != nil {
		errs = append(errs, err)
	}
	return docs, errs
}

// DeleteByPath removes the Document at path, if one is indexed. It is a
// no-op, not an error, when no Document exists for path.
func (o *Orchestrator) DeleteByPath(ctx context.Context, path string) error {
	doc, err := o.metadata.GetDocumentByPath(ctx, path)
	if err != nil {
		return fmt.Errorf("look up document for %s: %w", path, err)
	}
	if doc == nil {
		return nil
	}
	return o.DeleteDocument(ctx, doc.ID)
}

// DeleteDocument removes a Document and its dependent rows, cascading the
// deletion through the vector and lexical indices first. Covers both
// logical vector tables: chunks and image descriptions.
func (o *Orchestrator) DeleteDocument(ctx context.Context, id string) error {
	chunks, err := o.metadata.GetChunksByDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("list chunks for document %s: %w", id, err)
	}
	images, err := o.metadata.GetImageDescriptionsByDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("list image descriptions for document %s: %w", id, err)
	}

	ids := make([]string, 0, len(chunks)+len(images))
	for _, c := range chunks {
		ids = append(ids, c.ID)
	}
	for _, img := range images {
		ids = append(ids, img.ID)
	}
	if len(ids) > 0 {
		if err := o.engine.Delete(ctx, ids); err != nil {
			return fmt.Errorf("delete chunks/images for document %s: %w", id, err)
		}
	}

	if err := o.metadata.SoftDeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("soft-delete document %s: %w", id, err)
	}
	return nil
}
