// Package scan walks a compared root and collects the relative paths of image files.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"

	"github.com/CageChen/imagediff/internal/config"
	mfs "github.com/CageChen/imagediff/internal/fs"
	"github.com/CageChen/imagediff/internal/hash"
	"github.com/CageChen/imagediff/internal/logging"
)

// ErrNotADirectory is returned when the scanned root is missing or not a directory.
var ErrNotADirectory = mfs.ErrNotADirectory

// File is one image found under a root.
type File struct {
	Path   string `json:"path" yaml:"path"`
	Digest string `json:"digest,omitempty" yaml:"digest,omitempty"`
}

// Tree is the result of scanning one root.
type Tree struct {
	Root  string
	FS    mfs.FileSystem
	Files map[string]File
}

// Paths returns the relative paths in the tree, sorted.
func (t *Tree) Paths() []string {
	paths := make([]string, 0, len(t.Files))
	for p := range t.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Has reports whether path was found in the tree.
func (t *Tree) Has(path string) bool {
	_, ok := t.Files[path]
	return ok
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithHasher makes the scanner compute a digest for every file it keeps.
func WithHasher(h hash.Hasher) Option {
	return func(s *Scanner) {
		s.hasher = h
	}
}

// Scanner walks roots, filtering by extension and exclude patterns.
type Scanner struct {
	cfg    *config.Config
	hasher hash.Hasher
	logger *slog.Logger
}

// New creates a Scanner using the extension and exclude settings of cfg.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Scanner {
	s := &Scanner{
		cfg:    cfg,
		logger: logging.OrNop(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan recursively walks fsys and returns every file whose name ends with a
// configured extension. Paths use forward slashes regardless of the host.
// Unreadable subdirectories and files that fail to hash are logged and left
// out of the tree.
func (s *Scanner) Scan(ctx context.Context, fsys mfs.FileSystem) (*Tree, error) {
	root := fsys.Describe("")

	info, err := fsys.Stat("")
	if err != nil || !info.IsDir {
		return nil, fmt.Errorf("scan %s: %w", root, ErrNotADirectory)
	}

	tree := &Tree{
		Root:  root,
		FS:    fsys,
		Files: make(map[string]File),
	}

	if err := s.walk(ctx, fsys, "", tree); err != nil {
		return nil, err
	}

	s.logger.Debug("scanned root", "root", root, "files", len(tree.Files))
	return tree, nil
}

func (s *Scanner) walk(ctx context.Context, fsys mfs.FileSystem, dir string, tree *Tree) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := fsys.ReadDir(dir)
	if err != nil {
		if dir == "" {
			return fmt.Errorf("scan %s: %w: %w", tree.Root, ErrNotADirectory, err)
		}
		s.logger.Warn("skipping unreadable directory", "path", fsys.Describe(dir), "error", err)
		return nil
	}

	for _, entry := range entries {
		if s.cfg.IsExcluded(entry.Name) {
			continue
		}

		rel := entry.Name
		if dir != "" {
			rel = path.Join(dir, entry.Name)
		}

		if entry.IsDir {
			if err := s.walk(ctx, fsys, rel, tree); err != nil {
				return err
			}
			continue
		}

		if !s.cfg.IsImageFile(entry.Name) {
			continue
		}

		file := File{Path: rel}
		if s.hasher != nil {
			digest, err := s.hasher.HashFile(fsys, rel)
			if err != nil {
				s.logger.Warn("skipping unreadable file", "path", fsys.Describe(rel), "error", err)
				continue
			}
			file.Digest = digest
		}
		tree.Files[rel] = file
	}
	return nil
}
