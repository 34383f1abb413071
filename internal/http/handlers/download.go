package handlers

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/convertarr/internal/assets"
	"github.com/jmylchreest/convertarr/internal/convert"
	"github.com/jmylchreest/convertarr/internal/storage"
)

// DownloadHandler serves published conversion outputs as attachments.
type DownloadHandler struct {
	layout *storage.Layout
	logger *slog.Logger
}

// NewDownloadHandler creates a download handler over the output directory.
func NewDownloadHandler(layout *storage.Layout) *DownloadHandler {
	return &DownloadHandler{
		layout: layout,
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *DownloadHandler) WithLogger(logger *slog.Logger) *DownloadHandler {
	h.logger = logger
	return h
}

// RegisterRoutes registers GET /download/{filename}.
func (h *DownloadHandler) RegisterRoutes(r chi.Router) {
	r.Get(convert.DownloadPrefix+"{filename}", h.Download)
}

// Download streams the named output. Names that do not resolve to a regular
// file inside the output directory get a 404.
func (h *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")

	f, info, err := h.layout.OpenOutput(name)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			h.logger.Warn("opening output failed",
				slog.String("filename", name),
				slog.String("error", err.Error()),
			)
		}
		writeJSONError(w, http.StatusNotFound, convert.MsgFileNotFound)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", assets.GetContentType(info.Name()))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": info.Name()}))
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
