// Package assets embeds the convertarr web UI.
package assets

import (
	"embed"
	"io/fs"
	"mime"
	"path/filepath"
	"strings"
)

// StaticFS embeds the static/ directory holding the single page UI.
//
//go:embed all:static
var StaticFS embed.FS

// IndexFile is the UI entry point within the static filesystem.
const IndexFile = "index.html"

// GetStaticFS returns a sub-filesystem rooted at "static/".
func GetStaticFS() (fs.FS, error) {
	return fs.Sub(StaticFS, "static")
}

// HasStaticAssets reports whether the UI entry point is embedded.
func HasStaticAssets() bool {
	_, err := fs.Stat(StaticFS, "static/"+IndexFile)
	return err == nil
}

// GetContentType returns the MIME type for a given file path based on extension.
func GetContentType(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return "application/octet-stream"
	}

	if mimeType := mime.TypeByExtension(ext); mimeType != "" {
		return mimeType
	}

	switch strings.ToLower(ext) {
	case ".html":
		return "text/html; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".js":
		return "application/javascript; charset=utf-8"
	case ".json":
		return "application/json; charset=utf-8"
	case ".png":
		return "image/png"
	case ".svg":
		return "image/svg+xml; charset=utf-8"
	case ".ico":
		return "image/x-icon"
	case ".mp3":
		return "audio/mpeg"
	case ".mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}

// ListAssets returns the embedded asset paths relative to static/.
func ListAssets() ([]string, error) {
	var assets []string

	err := fs.WalkDir(StaticFS, "static", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			assets = append(assets, strings.TrimPrefix(path, "static/"))
		}
		return nil
	})

	return assets, err
}
