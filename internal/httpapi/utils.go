package httpapi

import (
	"log/slog"
	"os"
)

func statPath(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

// writeLoggedIndexError records a per-file failure from a batch IndexDirectory
// call. Per §7, these are logged and never abort the batch.
func writeLoggedIndexError(err error) {
	slog.Warn("httpapi: file failed to index during batch", slog.String("error", err.Error()))
}
