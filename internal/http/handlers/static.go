package handlers

import (
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/convertarr/internal/assets"
)

// StaticHandler serves the embedded web UI.
type StaticHandler struct {
	staticFS fs.FS
}

// NewStaticHandler creates a new static asset handler.
func NewStaticHandler() *StaticHandler {
	staticFS, err := assets.GetStaticFS()
	if err != nil || !assets.HasStaticAssets() {
		staticFS = nil
	}
	return &StaticHandler{staticFS: staticFS}
}

// RegisterRoutes registers GET / and the /static/ asset tree.
func (h *StaticHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.ServeHTTP)
	r.Get("/static/*", h.ServeHTTP)
}

// ServeHTTP serves index.html for "/" and embedded files under /static/.
func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.staticFS == nil {
		http.Error(w, "web UI not available in this build", http.StatusNotFound)
		return
	}

	filePath := strings.TrimPrefix(path.Clean(r.URL.Path), "/static")
	filePath = strings.TrimPrefix(filePath, "/")
	if filePath == "" {
		filePath = assets.IndexFile
	}

	data, err := fs.ReadFile(h.staticFS, filePath)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", assets.GetContentType(filePath))
	if strings.HasSuffix(filePath, ".html") {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	} else {
		w.Header().Set("Cache-Control", "public, max-age=3600")
	}
	_, _ = w.Write(data)
}
