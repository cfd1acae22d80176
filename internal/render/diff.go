// Package render computes and writes per-pixel difference images.
package render

import (
	"image"
	"image/color"
	"math/bits"

	"github.com/vitali-fedulov/imagehash2"
	"github.com/vitali-fedulov/images4"
)

const (
	hashEpsilon    = 0.25
	hashNumBuckets = 4
)

// Diff is the outcome of comparing two images pixel by pixel.
type Diff struct {
	// Image holds the absolute difference as grayscale luma.
	Image *image.Gray
	// Mismatch is set when the inputs had different sizes; Image then covers
	// the union of both sizes.
	Mismatch bool
	SizeA    image.Point
	SizeB    image.Point
	// ChangedPixels counts pixels where any colour channel differs.
	ChangedPixels int
}

// Identical reports whether the images had equal sizes and no differing pixels.
func (d Diff) Identical() bool {
	return !d.Mismatch && d.ChangedPixels == 0
}

// Difference computes |a-b| for the R, G and B channels of every pixel and
// converts the result to grayscale. Both images are read relative to their own
// bounds origin. When sizes differ, the canvas grows to the larger width and
// height and pixels outside an image are treated as black.
func Difference(a, b image.Image) Diff {
	ba, bb := a.Bounds(), b.Bounds()
	d := Diff{
		SizeA:    ba.Size(),
		SizeB:    bb.Size(),
		Mismatch: ba.Size() != bb.Size(),
	}

	w := max(ba.Dx(), bb.Dx())
	h := max(ba.Dy(), bb.Dy())
	out := image.NewGray(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			ra, ga, bla := channels(a, ba, x, y)
			rb, gb, blb := channels(b, bb, x, y)

			px := color.RGBA{
				R: absDiff(ra, rb),
				G: absDiff(ga, gb),
				B: absDiff(bla, blb),
				A: 0xff,
			}
			if px.R|px.G|px.B != 0 {
				d.ChangedPixels++
			}
			out.SetGray(x, y, color.GrayModel.Convert(px).(color.Gray))
		}
	}

	d.Image = out
	return d
}

func channels(img image.Image, bounds image.Rectangle, x, y int) (r, g, b uint8) {
	if x >= bounds.Dx() || y >= bounds.Dy() {
		return 0, 0, 0
	}
	r16, g16, b16, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
	return uint8(r16 >> 8), uint8(g16 >> 8), uint8(b16 >> 8)
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}

// Similarity returns a perceptual similarity score from 0 to 100 based on
// the Hamming distance between 64-bit perceptual hashes of both images.
// Unlike Difference it tolerates resizing and recompression.
func Similarity(a, b image.Image) int {
	ha := imagehash2.CentralHash9(images4.Icon(a), hashEpsilon, hashNumBuckets)
	hb := imagehash2.CentralHash9(images4.Icon(b), hashEpsilon, hashNumBuckets)
	distance := bits.OnesCount64(ha ^ hb)
	return 100 - distance*100/64
}
