package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"

	"github.com/corpusindex/corpusindex/internal/store"
)

type documentDTO struct {
	ID          string  `json:"id"`
	Path        string  `json:"path"`
	Filename    string  `json:"filename"`
	Extension   string  `json:"extension"`
	MediaType   string  `json:"media_type"`
	Size        int64   `json:"size"`
	ContentHash string  `json:"content_hash"`
	IndexedAt   string  `json:"indexed_at"`
	Duration    *float64 `json:"duration_seconds,omitempty"`
}

func toDocumentDTO(d *store.Document) documentDTO {
	return documentDTO{
		ID:          d.ID,
		Path:        d.Path,
		Filename:    d.Filename,
		Extension:   d.Extension,
		MediaType:   string(d.MediaType),
		Size:        d.Size,
		ContentHash: d.ContentHash,
		IndexedAt:   d.IndexedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Duration:    d.DurationSeconds,
	}
}

type listDocumentsResponse struct {
	Documents []documentDTO `json:"documents"`
	Limit     int           `json:"limit"`
	Offset    int           `json:"offset"`
}

// paginateDocuments walks ListDocuments' cursor pages until it has collected
// offset+limit documents matching mediaType (empty matches everything),
// returning the [offset, offset+limit) slice. Cursor pagination has no
// native offset; this is the thin composition root's adapter over it, fine
// at personal-corpus scale.
func paginateDocuments(ctx context.Context, md MetadataReader, mediaType store.MediaType, offset, limit int) ([]*store.Document, error) {
	var matched []*store.Document
	cursor := ""
	for len(matched) < offset+limit {
		page, next, err := md.ListDocuments(ctx, cursor, 200)
		if err != nil {
			return nil, err
		}
		for _, d := range page {
			if mediaType == "" || d.MediaType == mediaType {
				matched = append(matched, d)
			}
		}
		if next == "" || len(page) == 0 {
			break
		}
		cursor = next
	}
	if offset >= len(matched) {
		return []*store.Document{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (d Deps) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 50, 1, 500)
	offset := intQuery(r, "offset", 0, 0, 1_000_000)
	mediaType := store.MediaType(r.URL.Query().Get("media_type"))

	docs, err := paginateDocuments(r.Context(), d.Metadata, mediaType, offset, limit)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}

	dtos := make([]documentDTO, 0, len(docs))
	for _, doc := range docs {
		dtos = append(dtos, toDocumentDTO(doc))
	}
	writeJSON(w, http.StatusOK, listDocumentsResponse{Documents: dtos, Limit: limit, Offset: offset})
}

type statsResponse struct {
	TotalDocuments int            `json:"total_documents"`
	ByMediaType    map[string]int `json:"by_media_type"`
	TotalChunks    int            `json:"total_chunks"`
	LastIndexedAt  string         `json:"last_indexed_at,omitempty"`
}

func (d Deps) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	byMediaType := make(map[string]int)
	total := 0
	cursor := ""
	for {
		page, next, err := d.Metadata.ListDocuments(ctx, cursor, 200)
		if err != nil {
			writeTaxonomyError(w, err)
			return
		}
		for _, doc := range page {
			byMediaType[string(doc.MediaType)]++
			total++
		}
		if next == "" || len(page) == 0 {
			break
		}
		cursor = next
	}

	engineStats := d.Searcher.Stats()
	totalChunks := engineStats.VectorCount

	lastIndexedAt, _ := d.Metadata.GetState(ctx, store.StateKeyLastIndexedAt)

	writeJSON(w, http.StatusOK, statsResponse{
		TotalDocuments: total,
		ByMediaType:    byMediaType,
		TotalChunks:    totalChunks,
		LastIndexedAt:  lastIndexedAt,
	})
}

func (d Deps) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	doc, err := d.Metadata.GetDocument(r.Context(), id)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "document not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentDTO(doc))
}

type transcriptDTO struct {
	DocumentID      string  `json:"document_id"`
	FullText        string  `json:"full_text"`
	Language        string  `json:"language"`
	DurationSeconds float64 `json:"duration_seconds"`
	WordCount       int     `json:"word_count"`
}

func (d Deps) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, err := d.Metadata.GetTranscriptByDocument(r.Context(), id)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	if t == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, transcriptDTO{
		DocumentID:      t.DocumentID,
		FullText:        t.FullText,
		Language:        t.Language,
		DurationSeconds: t.DurationSeconds,
		WordCount:       t.WordCount,
	})
}

type indexRequest struct {
	Path      string `json:"path"`
	Recursive *bool  `json:"recursive"`
}

type indexResponse struct {
	IndexedCount int      `json:"indexed_count"`
	Paths        []string `json:"paths"`
}

func (d Deps) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required", nil)
		return
	}
	recursive := true
	if req.Recursive != nil {
		recursive = *req.Recursive
	}

	info, err := statPath(req.Path)
	if err != nil {
		writeError(w, http.StatusNotFound, "path not found", err)
		return
	}

	if info.IsDir() {
		docs, errs := d.Indexer.IndexDirectory(r.Context(), req.Path, recursive)
		paths := make([]string, 0, len(docs))
		for _, doc := range docs {
			paths = append(paths, doc.Path)
		}
		for _, e := range errs {
			writeLoggedIndexError(e)
		}
		writeJSON(w, http.StatusOK, indexResponse{IndexedCount: len(docs), Paths: paths})
		return
	}

	doc, err := d.Indexer.IndexFile(r.Context(), req.Path)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	if doc == nil {
		writeJSON(w, http.StatusOK, indexResponse{IndexedCount: 0, Paths: []string{}})
		return
	}
	writeJSON(w, http.StatusOK, indexResponse{IndexedCount: 1, Paths: []string{filepath.Clean(doc.Path)}})
}

type deleteDocumentResponse struct {
	Status     string `json:"status"`
	DocumentID string `json:"document_id"`
}

func (d Deps) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := d.Indexer.DeleteDocument(r.Context(), id); err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteDocumentResponse{Status: "deleted", DocumentID: id})
}
