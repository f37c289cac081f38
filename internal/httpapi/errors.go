package httpapi

import (
	"net/http"

	corpuserrors "github.com/corpusindex/corpusindex/internal/errors"
)

// statusForError maps the §7 error taxonomy onto the §6 HTTP status codes.
func statusForError(err error) int {
	switch corpuserrors.GetTaxonomy(err) {
	case corpuserrors.TaxonomyFileNotFound:
		return http.StatusNotFound
	case corpuserrors.TaxonomyUnsupportedFileType:
		return http.StatusBadRequest
	case corpuserrors.TaxonomyUpstreamUnavailable, corpuserrors.TaxonomyVLMTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeTaxonomyError(w http.ResponseWriter, err error) {
	writeError(w, statusForError(err), "request failed", err)
}
