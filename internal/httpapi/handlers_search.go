package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/corpusindex/corpusindex/internal/search"
	"github.com/corpusindex/corpusindex/internal/store"
)

type searchResultDTO struct {
	ChunkID    string   `json:"chunk_id"`
	DocumentID string   `json:"document_id"`
	Text       string   `json:"text"`
	Path       string   `json:"path"`
	Filename   string   `json:"filename"`
	MediaType  string   `json:"media_type"`
	Score      float64  `json:"score"`
	StartTime  *float64 `json:"start_time,omitempty"`
	EndTime    *float64 `json:"end_time,omitempty"`
}

type searchResponse struct {
	Query   string             `json:"query"`
	Total   int                `json:"total"`
	Results []searchResultDTO  `json:"results"`
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func intQuery(r *http.Request, name string, def, min, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return clampInt(n, min, max)
}

func mediaTypeFilter(r *http.Request) store.Filter {
	raw := r.URL.Query().Get("media_type")
	if raw == "" {
		return store.Filter{}
	}
	return store.Filter{MediaTypes: []store.MediaType{store.MediaType(raw)}}
}

func (d Deps) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required", nil)
		return
	}
	limit := intQuery(r, "limit", 10, 1, 100)

	results, err := d.Searcher.Search(r.Context(), query, search.SearchOptions{
		Limit:  limit,
		Filter: mediaTypeFilter(r),
	})
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Query:   query,
		Total:   len(results),
		Results: toSearchResultDTOs(results),
	})
}

func toSearchResultDTOs(results []*search.SearchResult) []searchResultDTO {
	dtos := make([]searchResultDTO, 0, len(results))
	for _, r := range results {
		dtos = append(dtos, searchResultDTO{
			ChunkID:    r.Chunk.ID,
			DocumentID: r.Chunk.DocumentID,
			Text:       r.Chunk.Text,
			Path:       r.Chunk.Path,
			Filename:   r.Chunk.Filename,
			MediaType:  string(r.Chunk.MediaType),
			Score:      r.Score,
			StartTime:  r.Chunk.StartTime,
			EndTime:    r.Chunk.EndTime,
		})
	}
	return dtos
}

type suggestResponse struct {
	Query       string   `json:"query"`
	Suggestions []string `json:"suggestions"`
}

// handleSuggest offers filename completions for a partial query: a BM25-only
// lookup (no embedding round trip, since this is a type-ahead path) over the
// prefix, deduplicated by filename in rank order.
func (d Deps) handleSuggest(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusOK, suggestResponse{Query: query, Suggestions: []string{}})
		return
	}
	limit := intQuery(r, "limit", 10, 1, 20)

	results, err := d.Searcher.Search(r.Context(), query, search.SearchOptions{
		Limit:    limit * 4, // overfetch; dedup by filename may collapse several hits
		BM25Only: true,
	})
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}

	seen := make(map[string]bool, limit)
	suggestions := make([]string, 0, limit)
	for _, res := range results {
		if len(suggestions) >= limit {
			break
		}
		if seen[res.Chunk.Filename] {
			continue
		}
		seen[res.Chunk.Filename] = true
		suggestions = append(suggestions, res.Chunk.Filename)
	}

	writeJSON(w, http.StatusOK, suggestResponse{Query: query, Suggestions: suggestions})
}
