package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	mfs "github.com/CageChen/imagediff/internal/fs"
	"github.com/CageChen/imagediff/internal/logging"
)

const jpegQuality = 95

// Decode opens and decodes the image at path within fsys. PNG, JPEG and GIF
// are supported.
func Decode(fsys mfs.FileSystem, p string) (image.Image, string, error) {
	r, err := fsys.Open(p)
	if err != nil {
		return nil, "", err
	}
	defer func() {
		_ = r.Close()
	}()

	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", fsys.Describe(p), err)
	}
	return img, format, nil
}

// Encode writes img in the format implied by the extension of name; unknown
// extensions fall back to PNG.
func Encode(w io.Writer, img image.Image, name string) error {
	switch strings.ToLower(path.Ext(name)) {
	case ".jpg", ".jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality})
	case ".gif":
		return gif.Encode(w, img, nil)
	default:
		return png.Encode(w, img)
	}
}

// EncodePNG returns img as PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Renderer loads image pairs and computes their differences.
type Renderer struct {
	logger *slog.Logger
}

// NewRenderer creates a Renderer.
func NewRenderer(logger *slog.Logger) *Renderer {
	return &Renderer{logger: logging.OrNop(logger)}
}

// Diff computes the difference of a and b and logs a warning when their sizes differ.
func (r *Renderer) Diff(name string, a, b image.Image) Diff {
	d := Difference(a, b)
	if d.Mismatch {
		r.logger.Warn("image sizes differ, rendering on common canvas",
			"path", name,
			"source", d.SizeA.String(),
			"destination", d.SizeB.String(),
		)
	}
	return d
}

// DiffFiles decodes path from both roots and computes their difference.
func (r *Renderer) DiffFiles(src, dst mfs.FileSystem, p string) (Diff, error) {
	a, _, err := Decode(src, p)
	if err != nil {
		return Diff{}, err
	}
	b, _, err := Decode(dst, p)
	if err != nil {
		return Diff{}, err
	}
	return r.Diff(p, a, b), nil
}

// Summary reports the outcome of RenderAll.
type Summary struct {
	Rendered   int
	Skipped    int
	Mismatched int
}

// RenderAll writes the difference image of every path into outputDir, at the
// same relative path. outputDir is created if missing. Paths that cannot be
// decoded on either side are logged and skipped.
func (r *Renderer) RenderAll(ctx context.Context, paths []string, src, dst mfs.FileSystem, outputDir string) (Summary, error) {
	var s Summary

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return s, fmt.Errorf("create output directory: %w", err)
	}
	out := mfs.NewLocalFS(outputDir)

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return s, err
		}

		d, err := r.DiffFiles(src, dst, p)
		if err != nil {
			r.logger.Warn("skipping diff", "path", p, "error", err)
			s.Skipped++
			continue
		}
		if d.Mismatch {
			s.Mismatched++
		}

		var buf bytes.Buffer
		if err := Encode(&buf, d.Image, p); err != nil {
			r.logger.Warn("skipping diff", "path", p, "error", err)
			s.Skipped++
			continue
		}
		if err := out.WriteFile(p, &buf); err != nil {
			return s, fmt.Errorf("write diff %s: %w", p, err)
		}

		r.logger.Debug("rendered diff", "path", p, "changed_pixels", d.ChangedPixels)
		s.Rendered++
	}
	return s, nil
}
