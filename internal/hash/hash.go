// Package hash provides content fingerprints for detecting changed images.
//
// The fingerprint only has to be stable and fast: two byte-identical files
// always produce the same digest. Collision resistance is not a requirement,
// so the production hasher uses xxHash64 rather than a cryptographic hash.
package hash

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"

	"github.com/cespare/xxhash/v2"

	mfs "github.com/CageChen/imagediff/internal/fs"
)

// BlockSize is the read size used when streaming a file through the hasher.
const BlockSize = 4096

// ErrNotRegular is returned when the hashed path is not a regular file.
// It matches fs.ErrNotExist under errors.Is.
var ErrNotRegular = fmt.Errorf("not a regular file: %w", iofs.ErrNotExist)

// Hasher provides an abstraction for file hashing operations.
type Hasher interface {
	// HashFile computes the digest of the file at path within fsys.
	HashFile(fsys mfs.FileSystem, path string) (string, error)
}

// XXHasher implements Hasher using xxHash64.
type XXHasher struct{}

// NewXXHasher creates a new XXHasher.
func NewXXHasher() *XXHasher {
	return &XXHasher{}
}

// HashFile streams the file in BlockSize chunks and returns the hex digest.
func (h *XXHasher) HashFile(fsys mfs.FileSystem, path string) (string, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir {
		return "", fmt.Errorf("%s: %w", fsys.Describe(path), ErrNotRegular)
	}

	file, err := fsys.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	digest := xxhash.New()
	buf := make([]byte, BlockSize)
	for {
		n, err := file.Read(buf)
		if n > 0 {
			_, _ = digest.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
	}

	return hex.EncodeToString(digest.Sum(nil)), nil
}

// FakeHasher implements Hasher with predetermined digests for testing.
type FakeHasher struct {
	hashes map[string]string
	errs   map[string]error
}

// NewFakeHasher creates a new FakeHasher.
func NewFakeHasher() *FakeHasher {
	return &FakeHasher{
		hashes: make(map[string]string),
		errs:   make(map[string]error),
	}
}

// SetHash sets the digest returned for path.
func (h *FakeHasher) SetHash(path, hash string) {
	h.hashes[path] = hash
}

// SetError makes HashFile fail for path.
func (h *FakeHasher) SetError(path string, err error) {
	h.errs[path] = err
}

// HashFile returns the predetermined digest for path, or "fakehash".
func (h *FakeHasher) HashFile(_ mfs.FileSystem, path string) (string, error) {
	if err, ok := h.errs[path]; ok {
		return "", err
	}
	if hash, ok := h.hashes[path]; ok {
		return hash, nil
	}
	return "fakehash", nil
}
