package convert

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/jmylchreest/convertarr/internal/storage"
)

// CleanupResult records the removal of a conversion's temporary artifacts.
// Failures are logged and never reach the client.
type CleanupResult struct {
	Removed []string `json:"removed,omitempty"`
	Failed  []string `json:"failed,omitempty"`
	errs    []error
}

// Err joins all removal errors, or returns nil.
func (r CleanupResult) Err() error {
	return errors.Join(r.errs...)
}

// OK reports whether every artifact was removed.
func (r CleanupResult) OK() bool {
	return len(r.errs) == 0
}

func (r *CleanupResult) remove(label, path string) {
	if path == "" {
		return
	}
	if err := storage.RemovePath(path); err != nil {
		r.Failed = append(r.Failed, label)
		r.errs = append(r.errs, fmt.Errorf("removing %s %s: %w", label, filepath.Base(path), err))
		return
	}
	r.Removed = append(r.Removed, label)
}

// artifacts lists the temporary files of one conversion.
type artifacts struct {
	upload string
	pcm    string
	frames string
}

// cleanup removes the upload, intermediate WAV and frame directory, then
// the workspace itself.
func cleanup(ws *storage.Workspace, a artifacts, logger *slog.Logger) CleanupResult {
	var res CleanupResult
	res.remove("upload", a.upload)
	res.remove("pcm", a.pcm)
	res.remove("frames", a.frames)
	res.remove("workspace", ws.Dir())

	if err := res.Err(); err != nil {
		logger.Warn("cleanup incomplete",
			slog.Any("failed", res.Failed),
			slog.String("error", err.Error()),
		)
	}
	return res
}
