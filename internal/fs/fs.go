// Package fs provides filesystem abstractions for reading compared roots from
// local disk or a git revision, and for writing into a local root.
package fs

import (
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// ErrUnsafePath is returned for relative paths that are absolute or escape the root.
var ErrUnsafePath = errors.New("unsafe relative path")

// FileInfo holds file metadata.
type FileInfo struct {
	Name    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// DirEntry represents a single directory entry.
type DirEntry struct {
	Name  string
	IsDir bool
}

// FileSystem abstracts read access so callers can work with either
// the local filesystem or a git object database. Paths are slash-separated
// and relative to the root; "" is the root itself.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	Open(path string) (io.ReadCloser, error)
	Stat(path string) (FileInfo, error)
	ReadDir(path string) ([]DirEntry, error)
	// Describe returns a human-readable location for path, used in logs and reports.
	Describe(path string) string
}

// Writer is implemented by roots that accept writes.
type Writer interface {
	WriteFile(path string, r io.Reader) error
}

// ValidateRelPath rejects empty, absolute and parent-escaping relative paths.
func ValidateRelPath(rel string) error {
	if rel == "" {
		return fmt.Errorf("%w: empty path", ErrUnsafePath)
	}
	if strings.HasPrefix(rel, "/") || strings.Contains(rel, "\\") {
		return fmt.Errorf("%w: %q must be a relative slash path", ErrUnsafePath, rel)
	}
	cleaned := path.Clean(rel)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return fmt.Errorf("%w: %q escapes the root", ErrUnsafePath, rel)
	}
	return nil
}
