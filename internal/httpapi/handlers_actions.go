package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	corpuserrors "github.com/corpusindex/corpusindex/internal/errors"
)

type openRequest struct {
	Path      string   `json:"path"`
	StartTime *float64 `json:"start_time,omitempty"`
}

type openResponse struct {
	Success   bool     `json:"success"`
	Path      string   `json:"path"`
	StartTime *float64 `json:"start_time,omitempty"`
}

// handleOpen launches path in the OS default application. StartTime is
// accepted for timed media (so a future media-player-specific opener can
// seek) but the generic OS opener used here has no way to pass it through.
func (d Deps) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required", nil)
		return
	}
	if _, err := os.Stat(req.Path); err != nil {
		writeError(w, http.StatusNotFound, "path not found", err)
		return
	}

	if err := openWithDefaultApp(r.Context(), req.Path); err != nil {
		writeTaxonomyError(w, corpuserrors.New(corpuserrors.ErrCodeFileNotFoundDoc, "failed to open path", err))
		return
	}
	writeJSON(w, http.StatusOK, openResponse{Success: true, Path: req.Path, StartTime: req.StartTime})
}

type revealRequest struct {
	Path string `json:"path"`
}

type revealResponse struct {
	Success bool   `json:"success"`
	Path    string `json:"path"`
}

// handleReveal shows path selected in the OS file manager.
func (d Deps) handleReveal(w http.ResponseWriter, r *http.Request) {
	var req revealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required", nil)
		return
	}
	if _, err := os.Stat(req.Path); err != nil {
		writeError(w, http.StatusNotFound, "path not found", err)
		return
	}

	if err := revealInFileManager(r.Context(), req.Path); err != nil {
		writeTaxonomyError(w, corpuserrors.New(corpuserrors.ErrCodeFileNotFoundDoc, "failed to reveal path", err))
		return
	}
	writeJSON(w, http.StatusOK, revealResponse{Success: true, Path: req.Path})
}

// openWithDefaultApp shells out to the platform opener. Like probeMedia in
// internal/extract, this leans on the OS's own file-type association
// machinery rather than reimplementing it.
func openWithDefaultApp(ctx context.Context, path string) error {
	return runOpener(ctx, path)
}

// revealInFileManager selects path in Finder ("open -R") or Explorer
// ("/select,"); elsewhere it opens the containing directory with xdg-open,
// which has no way to select a file.
func revealInFileManager(ctx context.Context, path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", "-R", path)
	case "windows":
		cmd = exec.CommandContext(ctx, "explorer", "/select,", path)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", filepath.Dir(path))
	}
	return cmd.Run()
}

func openerCommand() (name string, args []string) {
	switch runtime.GOOS {
	case "darwin":
		return "open", nil
	case "windows":
		return "explorer", nil
	default:
		return "xdg-open", nil
	}
}

func runOpener(ctx context.Context, path string) error {
	name, args := openerCommand()
	cmd := exec.CommandContext(ctx, name, append(args, path)...)
	return cmd.Run()
}
