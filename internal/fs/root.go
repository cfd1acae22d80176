package fs

import (
	"errors"
	"fmt"
	"os"
)

// ErrNotADirectory is returned when a compared root is missing or is not a directory.
var ErrNotADirectory = errors.New("not a directory")

// ErrReadOnly is returned when writing into a root that does not accept writes.
var ErrReadOnly = errors.New("root is read-only")

// New returns the FileSystem for a compared root: the local directory, or the
// directory as recorded at gitRef when gitRef is set.
func New(dir, gitRef string) FileSystem {
	if gitRef != "" {
		return NewGitFS(dir, gitRef)
	}
	return NewLocalFS(dir)
}

// CheckRoot verifies that dir is an existing directory and, when gitRef is
// set, that the ref resolves to a tree at dir.
func CheckRoot(dir, gitRef string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotADirectory, dir)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotADirectory, dir)
	}
	if gitRef == "" {
		return nil
	}
	root, err := NewGitFS(dir, gitRef).Stat("")
	if err != nil || !root.IsDir {
		return fmt.Errorf("%w: %s at %s", ErrNotADirectory, dir, gitRef)
	}
	return nil
}

// Copy duplicates the file at path in src to the same path in dst,
// overwriting any existing file.
func Copy(src FileSystem, dst FileSystem, path string) error {
	w, ok := dst.(Writer)
	if !ok {
		return fmt.Errorf("%w: %s", ErrReadOnly, dst.Describe(""))
	}
	if err := ValidateRelPath(path); err != nil {
		return err
	}

	info, err := src.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}
	if info.IsDir {
		return fmt.Errorf("source %s is a directory", src.Describe(path))
	}

	r, err := src.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer func() {
		_ = r.Close()
	}()

	if err := w.WriteFile(path, r); err != nil {
		return fmt.Errorf("failed to write destination: %w", err)
	}
	return nil
}
