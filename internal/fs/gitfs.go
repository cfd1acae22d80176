package fs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// GitFS implements FileSystem by reading a directory as it exists at a git
// revision (branch, tag, or commit). Paths are resolved relative to dir, which
// may be the repository top level or any directory inside the work tree.
// GitFS is read-only.
type GitFS struct {
	dir string
	ref string
}

// NewGitFS creates a GitFS that reads files from the given ref, rooted at dir.
func NewGitFS(dir, ref string) *GitFS {
	return &GitFS{dir: dir, ref: ref}
}

// Ref returns the revision the GitFS reads from.
func (g *GitFS) Ref() string {
	return g.ref
}

func (g *GitFS) git(args ...string) ([]byte, error) {
	cmd := exec.Command("git", append([]string{"-C", g.dir}, args...)...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, err
	}
	return out, nil
}

// object names the blob or tree at path using the cwd-relative "./" form so
// that a GitFS rooted in a subdirectory resolves paths correctly.
func (g *GitFS) object(path string) string {
	if path == "" || path == "." {
		return g.ref + ":./"
	}
	return g.ref + ":./" + path
}

// ReadFile reads the contents of the file at the given path from the git ref.
func (g *GitFS) ReadFile(path string) ([]byte, error) {
	if path == "" || path == "." {
		return nil, fmt.Errorf("cannot read directory as file")
	}
	out, err := g.git("cat-file", "blob", g.object(path))
	if err != nil {
		if strings.Contains(err.Error(), "not exist") || strings.Contains(err.Error(), "Not a valid object") {
			return nil, &os.PathError{Op: "read", Path: g.Describe(path), Err: os.ErrNotExist}
		}
		return nil, err
	}
	return out, nil
}

// Open returns a reader over the blob at path. The blob is loaded eagerly.
func (g *GitFS) Open(path string) (io.ReadCloser, error) {
	data, err := g.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Stat returns metadata for the file or directory at the given path in the git ref.
func (g *GitFS) Stat(path string) (FileInfo, error) {
	notExist := &os.PathError{Op: "stat", Path: g.Describe(path), Err: os.ErrNotExist}

	out, err := g.git("cat-file", "-t", g.object(path))
	if err != nil {
		return FileInfo{}, notExist
	}

	info := FileInfo{
		Name:    baseName(path),
		ModTime: g.getModTime(path),
	}
	if path == "" || path == "." {
		info.Name = g.ref
	}

	switch strings.TrimSpace(string(out)) {
	case "tree":
		info.IsDir = true
	case "blob":
		sizeOut, err := g.git("cat-file", "-s", g.object(path))
		if err == nil {
			info.Size, _ = strconv.ParseInt(strings.TrimSpace(string(sizeOut)), 10, 64)
		}
	default:
		return FileInfo{}, notExist
	}
	return info, nil
}

// ReadDir lists the immediate children of the directory at the given path in the git ref.
func (g *GitFS) ReadDir(path string) ([]DirEntry, error) {
	// Without --full-tree ls-tree filters its output by the cwd prefix, which
	// hides every entry when dir is a subdirectory of the work tree.
	out, err := g.git("ls-tree", "-z", "--full-tree", g.object(path))
	if err != nil {
		return nil, &os.PathError{Op: "readdir", Path: g.Describe(path), Err: os.ErrNotExist}
	}

	var entries []DirEntry
	for _, line := range strings.Split(string(out), "\x00") {
		// Format: "<mode> <type> <hash>\t<name>", names unquoted with -z
		meta, name, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		fields := strings.Fields(meta)
		if len(fields) < 3 {
			continue
		}
		// Submodules ("commit") are neither files nor directories here.
		if fields[1] != "tree" && fields[1] != "blob" {
			continue
		}
		entries = append(entries, DirEntry{
			Name:  baseName(name),
			IsDir: fields[1] == "tree",
		})
	}
	return entries, nil
}

// Describe returns "<dir>@<ref>:<path>".
func (g *GitFS) Describe(path string) string {
	return g.dir + "@" + g.ref + ":" + path
}

func (g *GitFS) getModTime(path string) time.Time {
	args := []string{"log", "-1", "--format=%ct", g.ref}
	if path != "" && path != "." {
		args = append(args, "--", path)
	}
	out, err := g.git(args...)
	if err != nil {
		return time.Time{}
	}
	sec, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

func baseName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
