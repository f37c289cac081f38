package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
)

// NewRouter builds the §6 HTTP surface over the standard library mux.
func NewRouter(deps Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/search", deps.handleSearch)
	mux.HandleFunc("GET /api/search/suggest", deps.handleSuggest)
	mux.HandleFunc("GET /api/documents", deps.handleListDocuments)
	mux.HandleFunc("GET /api/documents/stats", deps.handleStats)
	mux.HandleFunc("GET /api/documents/{id}", deps.handleGetDocument)
	mux.HandleFunc("GET /api/documents/{id}/transcript", deps.handleGetTranscript)
	mux.HandleFunc("POST /api/documents/index", deps.handleIndex)
	mux.HandleFunc("DELETE /api/documents/{id}", deps.handleDeleteDocument)
	mux.HandleFunc("POST /api/actions/open", deps.handleOpen)
	mux.HandleFunc("POST /api/actions/reveal", deps.handleReveal)

	return recoverMiddleware(corsMiddleware(deps.allowedOrigins(), mux))
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// corsMiddleware allows the configured localhost origins, per §6 ("CORS
// permissive for a small set of localhost origins").
func corsMiddleware(allowed []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && slices.Contains(allowed, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recoverMiddleware maps an uncaught panic to a 500 with a generic message,
// per §7 ("uncaught panics recover to 500 ... full trace in logs").
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("httpapi: recovered from panic",
					slog.Any("panic", rec), slog.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, "internal error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("httpapi: failed to encode response", slog.String("error", err.Error()))
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message string, cause error) {
	body := errorBody{Error: message}
	if cause != nil {
		body.Details = cause.Error()
	}
	writeJSON(w, status, body)
}
