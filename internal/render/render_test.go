package render

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mfs "github.com/CageChen/imagediff/internal/fs"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func writePNG(t *testing.T, root, rel string, img image.Image) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	f, err := os.Create(p)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func TestDifference_Identical(t *testing.T) {
	a := solid(4, 3, color.RGBA{10, 20, 30, 255})
	d := Difference(a, a)

	assert.True(t, d.Identical())
	assert.Equal(t, image.Rect(0, 0, 4, 3), d.Image.Bounds())
	for _, v := range d.Image.Pix {
		assert.Zero(t, v)
	}
}

func TestDifference_AbsoluteGray(t *testing.T) {
	a := solid(2, 2, color.RGBA{200, 200, 200, 255})
	b := solid(2, 2, color.RGBA{100, 100, 100, 255})
	b.Set(1, 1, color.RGBA{200, 200, 200, 255})

	d := Difference(a, b)
	assert.False(t, d.Mismatch)
	assert.Equal(t, 3, d.ChangedPixels)
	assert.Equal(t, uint8(100), d.Image.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(0), d.Image.GrayAt(1, 1).Y)

	// Order does not matter.
	assert.Equal(t, d.Image.Pix, Difference(b, a).Image.Pix)
}

func TestDifference_ColorModelsCompareByValue(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 2, 2))
	for i := range gray.Pix {
		gray.Pix[i] = 128
	}
	rgba := solid(2, 2, color.RGBA{128, 128, 128, 255})

	assert.True(t, Difference(gray, rgba).Identical())
}

func TestDifference_SizeMismatch(t *testing.T) {
	a := solid(4, 2, color.RGBA{50, 50, 50, 255})
	b := solid(2, 3, color.RGBA{50, 50, 50, 255})

	d := Difference(a, b)
	assert.True(t, d.Mismatch)
	assert.Equal(t, image.Pt(4, 2), d.SizeA)
	assert.Equal(t, image.Pt(2, 3), d.SizeB)
	assert.Equal(t, image.Rect(0, 0, 4, 3), d.Image.Bounds())

	// Overlap is equal, the rest differs from black.
	assert.Equal(t, uint8(0), d.Image.GrayAt(1, 1).Y)
	assert.Equal(t, uint8(50), d.Image.GrayAt(3, 0).Y)
	assert.Equal(t, uint8(50), d.Image.GrayAt(0, 2).Y)
	// Outside both images.
	assert.Equal(t, uint8(0), d.Image.GrayAt(3, 2).Y)
	assert.False(t, d.Identical())
}

func TestDifference_OffsetBounds(t *testing.T) {
	a := solid(2, 2, color.RGBA{9, 9, 9, 255})
	shifted := image.NewRGBA(image.Rect(5, 5, 7, 7))
	copy(shifted.Pix, a.Pix)

	assert.True(t, Difference(a, shifted).Identical())
}

func TestSimilarity_IdenticalImages(t *testing.T) {
	a := solid(32, 32, color.RGBA{120, 40, 200, 255})
	assert.Equal(t, 100, Similarity(a, a))
}

func TestEncode_ByExtension(t *testing.T) {
	img := solid(2, 2, color.RGBA{1, 2, 3, 255})

	for _, name := range []string{"a.png", "a.jpg", "a.JPEG", "a.gif", "a.bin"} {
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, img, name), name)

		_, format, err := image.Decode(&buf)
		require.NoError(t, err, name)
		switch name {
		case "a.jpg", "a.JPEG":
			assert.Equal(t, "jpeg", format)
		case "a.gif":
			assert.Equal(t, "gif", format)
		default:
			assert.Equal(t, "png", format)
		}
	}
}

func TestRenderer_RenderAll(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	output := filepath.Join(t.TempDir(), "output")

	writePNG(t, src, "same.png", solid(3, 3, color.White))
	writePNG(t, dst, "same.png", solid(3, 3, color.White))
	writePNG(t, src, "sub/changed.png", solid(3, 3, color.White))
	writePNG(t, dst, "sub/changed.png", solid(4, 4, color.Black))
	writePNG(t, src, "only-source.png", solid(3, 3, color.White))
	require.NoError(t, os.WriteFile(filepath.Join(src, "broken.png"), []byte("not a png"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "broken.png"), []byte("not a png"), 0o644))

	r := NewRenderer(nil)
	summary, err := r.RenderAll(context.Background(),
		[]string{"same.png", "sub/changed.png", "only-source.png", "broken.png"},
		mfs.NewLocalFS(src), mfs.NewLocalFS(dst), output)
	require.NoError(t, err)

	assert.Equal(t, Summary{Rendered: 2, Skipped: 2, Mismatched: 1}, summary)

	f, err := os.Open(filepath.Join(output, "sub", "changed.png"))
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 4), img.Bounds())

	_, err = os.Stat(filepath.Join(output, "only-source.png"))
	assert.True(t, os.IsNotExist(err))
}

func TestRenderer_DiffFiles(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writePNG(t, src, "a.png", solid(2, 2, color.White))
	writePNG(t, dst, "a.png", solid(2, 2, color.Black))

	d, err := NewRenderer(nil).DiffFiles(mfs.NewLocalFS(src), mfs.NewLocalFS(dst), "a.png")
	require.NoError(t, err)
	assert.Equal(t, 4, d.ChangedPixels)
	assert.Equal(t, uint8(255), d.Image.GrayAt(0, 0).Y)

	_, err = NewRenderer(nil).DiffFiles(mfs.NewLocalFS(src), mfs.NewLocalFS(dst), "missing.png")
	assert.Error(t, err)
}

func TestEncodePNG(t *testing.T) {
	data, err := EncodePNG(solid(1, 1, color.Black))
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(data))
	assert.NoError(t, err)
}
