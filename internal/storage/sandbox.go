// Package storage manages the on-disk layout used by conversions: upload
// workspaces, published output artifacts and age-based sweeping. All file
// operations are confined to configured directories.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned when a named file does not exist in a sandbox.
var ErrNotFound = errors.New("file not found")

// Sandbox confines file operations to a base directory.
type Sandbox struct {
	baseDir string
}

// NewSandbox creates a Sandbox rooted at baseDir, creating the directory if needed.
func NewSandbox(baseDir string) (*Sandbox, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}

	if err := os.MkdirAll(absPath, 0750); err != nil {
		return nil, fmt.Errorf("creating base directory: %w", err)
	}

	return &Sandbox{baseDir: absPath}, nil
}

// BaseDir returns the absolute path of the sandbox.
func (s *Sandbox) BaseDir() string {
	return s.baseDir
}

// ResolvePath resolves a relative path within the sandbox.
// Absolute paths and paths escaping the base directory are rejected.
func (s *Sandbox) ResolvePath(relativePath string) (string, error) {
	if filepath.IsAbs(relativePath) {
		return "", fmt.Errorf("path escapes sandbox: %s (absolute paths not allowed)", relativePath)
	}

	absPath := filepath.Join(s.baseDir, filepath.Clean(relativePath))
	if !strings.HasPrefix(absPath, s.baseDir+string(filepath.Separator)) && absPath != s.baseDir {
		return "", fmt.Errorf("path escapes sandbox: %s", relativePath)
	}
	return absPath, nil
}

// ResolveName resolves a bare file name directly inside the sandbox.
// Names containing a path separator or dot segments are rejected.
func (s *Sandbox) ResolveName(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return s.ResolvePath(name)
}

// Open opens a regular file by bare name. Missing files yield ErrNotFound.
func (s *Sandbox) Open(name string) (*os.File, os.FileInfo, error) {
	path, err := s.ResolveName(name)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("getting file info: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, nil, ErrNotFound
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening file: %w", err)
	}
	return f, info, nil
}

// Publish moves the file at srcAbsPath into the sandbox under the first
// name returned by candidates that is not already taken. It never
// overwrites an existing file and returns the chosen name.
func (s *Sandbox) Publish(srcAbsPath string, candidates func(attempt int) string, maxAttempts int) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		name := candidates(attempt)
		target, err := s.ResolveName(name)
		if err != nil {
			return "", err
		}

		err = os.Link(srcAbsPath, target)
		if err == nil {
			_ = os.Remove(srcAbsPath)
			return name, nil
		}
		if errors.Is(err, os.ErrExist) {
			continue
		}

		// Hard links are unavailable across filesystems; copy into an
		// exclusively created file instead.
		if err := copyExclusive(srcAbsPath, target); err != nil {
			if errors.Is(err, os.ErrExist) {
				continue
			}
			return "", err
		}
		_ = os.Remove(srcAbsPath)
		return name, nil
	}
	return "", fmt.Errorf("no free output name after %d attempts", maxAttempts)
}

func copyExclusive(src, target string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source file: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0640)
	if err != nil {
		return err
	}

	_, err = io.Copy(out, in)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(target)
		return fmt.Errorf("copying file: %w", err)
	}
	return nil
}

// SweepFilter selects which directory entries a sweep may remove.
type SweepFilter func(entry os.DirEntry) bool

// Sweep removes top-level entries last modified before cutoff and accepted
// by filter. Directories are removed recursively. It returns the removed
// names and the first removal error encountered.
func (s *Sandbox) Sweep(cutoff time.Time, filter SweepFilter) ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	var removed []string
	var firstErr error
	for _, entry := range entries {
		if filter != nil && !filter(entry) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.RemoveAll(filepath.Join(s.baseDir, entry.Name())); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("removing %s: %w", entry.Name(), err)
			}
			continue
		}
		removed = append(removed, entry.Name())
	}
	return removed, firstErr
}
