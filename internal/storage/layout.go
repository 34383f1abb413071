package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmylchreest/convertarr/internal/config"
)

const (
	// WorkspacePrefix prefixes per-request scratch directories in the upload directory.
	WorkspacePrefix = "work_"

	maxPublishAttempts = 100
)

// Layout groups the upload and output sandboxes.
type Layout struct {
	uploads *Sandbox
	outputs *Sandbox
}

// NewLayout creates the upload and output directories described by cfg.
func NewLayout(cfg config.StorageConfig) (*Layout, error) {
	uploads, err := NewSandbox(cfg.UploadPath())
	if err != nil {
		return nil, fmt.Errorf("preparing upload directory: %w", err)
	}
	outputs, err := NewSandbox(cfg.OutputPath())
	if err != nil {
		return nil, fmt.Errorf("preparing output directory: %w", err)
	}
	return &Layout{uploads: uploads, outputs: outputs}, nil
}

// UploadDir returns the absolute upload directory.
func (l *Layout) UploadDir() string {
	return l.uploads.BaseDir()
}

// OutputDir returns the absolute output directory.
func (l *Layout) OutputDir() string {
	return l.outputs.BaseDir()
}

// NewWorkspace creates a private scratch directory for one conversion.
func (l *Layout) NewWorkspace() (*Workspace, error) {
	dir, err := os.MkdirTemp(l.uploads.BaseDir(), WorkspacePrefix)
	if err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// PublishOutput moves src into the output directory under a unique,
// timestamp-qualified name and returns that name.
func (l *Layout) PublishOutput(src, stem, ext string, now time.Time) (string, error) {
	name, err := l.outputs.Publish(src, func(attempt int) string {
		return OutputName(stem, ext, now, attempt)
	}, maxPublishAttempts)
	if err != nil {
		return "", fmt.Errorf("publishing output: %w", err)
	}
	return name, nil
}

// OpenOutput opens a published artifact by name.
func (l *Layout) OpenOutput(name string) (*os.File, os.FileInfo, error) {
	return l.outputs.Open(name)
}

// SweepOutputs removes output artifacts last modified before cutoff.
func (l *Layout) SweepOutputs(cutoff time.Time) ([]string, error) {
	return l.outputs.Sweep(cutoff, func(e os.DirEntry) bool {
		return e.Type().IsRegular()
	})
}

// SweepWorkspaces removes abandoned workspaces and stray upload files
// last modified before cutoff.
func (l *Layout) SweepWorkspaces(cutoff time.Time) ([]string, error) {
	return l.uploads.Sweep(cutoff, func(e os.DirEntry) bool {
		if e.IsDir() {
			return strings.HasPrefix(e.Name(), WorkspacePrefix)
		}
		return e.Type().IsRegular()
	})
}

// Workspace is a per-request scratch directory holding the upload and
// intermediate artifacts.
type Workspace struct {
	dir string
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path returns the absolute path of name inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// SaveUpload writes r to name inside the workspace and returns the path and
// number of bytes written. An existing file is never overwritten.
func (w *Workspace) SaveUpload(name string, r io.Reader) (string, int64, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", 0, fmt.Errorf("invalid upload name %q", name)
	}

	path := w.Path(name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0640)
	if err != nil {
		return "", 0, fmt.Errorf("creating upload file: %w", err)
	}

	n, err := io.Copy(f, r)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("saving upload: %w", err)
	}
	return path, n, nil
}

// MkdirAll creates a directory inside the workspace and returns its path.
func (w *Workspace) MkdirAll(name string) (string, error) {
	path := w.Path(name)
	if err := os.MkdirAll(path, 0750); err != nil {
		return "", fmt.Errorf("creating directory: %w", err)
	}
	return path, nil
}

// RemovePath removes a file or directory tree. A missing path is not an error.
func RemovePath(path string) error {
	if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return os.RemoveAll(path)
}

// Close removes the workspace and everything in it.
func (w *Workspace) Close() error {
	return RemovePath(w.dir)
}
