package browser

import (
	"fmt"
	"image"

	"github.com/CageChen/imagediff/internal/compare"
	mfs "github.com/CageChen/imagediff/internal/fs"
	"github.com/CageChen/imagediff/internal/render"
)

// ImageState is what one image pane shows.
type ImageState struct {
	Present  bool   `json:"present"`
	Location string `json:"location,omitempty"`
	Format   string `json:"format,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Error    string `json:"error,omitempty"`
}

// DiffState is what the difference pane shows. PNG is empty whenever the
// diff was skipped or failed; Reason or Error then says why.
type DiffState struct {
	Rendered      bool   `json:"rendered"`
	PNG           []byte `json:"-"`
	Reason        string `json:"reason,omitempty"`
	Warning       string `json:"warning,omitempty"`
	Error         string `json:"error,omitempty"`
	ChangedPixels int    `json:"changedPixels"`
	Similarity    int    `json:"similarity"`
}

// Selection is the display state for one selected entry.
type Selection struct {
	Index       int                    `json:"index"`
	Entry       compare.Classification `json:"entry"`
	Source      ImageState             `json:"source"`
	Destination ImageState             `json:"destination"`
	Diff        DiffState              `json:"diff"`
}

// Select makes the entry at index the current selection and returns what the
// three panes should display. Images are decoded for this call only. Sides
// without a file are marked absent and the diff is skipped; decode failures
// and size mismatches are reported inline rather than as errors.
func (c *Controller) Select(index int) (*Selection, error) {
	result, e, err := c.entry(index)
	if err != nil {
		return nil, err
	}

	sel := &Selection{Index: index, Entry: e}

	var imgA, imgB image.Image
	if e.Status.InSource() {
		imgA, sel.Source = c.load(c.src, e.Path)
	}
	if e.Status.InDestination() {
		imgB, sel.Destination = c.load(c.dst, e.Path)
	}

	switch {
	case !e.Status.InSource():
		sel.Diff.Reason = "no source image"
		c.metrics.ObserveDiff("skipped")
	case !e.Status.InDestination():
		sel.Diff.Reason = "no destination image"
		c.metrics.ObserveDiff("skipped")
	case imgA == nil || imgB == nil:
		sel.Diff.Error = "cannot diff: an image failed to load"
		c.metrics.ObserveDiff("failed")
	default:
		c.renderDiff(sel, e.Path, imgA, imgB)
	}

	c.mu.Lock()
	if c.result == result {
		c.selected = index
	}
	c.mu.Unlock()

	return sel, nil
}

func (c *Controller) load(fsys mfs.FileSystem, path string) (image.Image, ImageState) {
	state := ImageState{Present: true, Location: fsys.Describe(path)}

	img, format, err := render.Decode(fsys, path)
	if err != nil {
		c.logger.Warn("cannot load image", "path", state.Location, "error", err)
		state.Error = err.Error()
		return nil, state
	}

	state.Format = format
	state.Width = img.Bounds().Dx()
	state.Height = img.Bounds().Dy()
	return img, state
}

func (c *Controller) renderDiff(sel *Selection, path string, a, b image.Image) {
	d := c.renderer.Diff(path, a, b)

	data, err := render.EncodePNG(d.Image)
	if err != nil {
		sel.Diff.Error = fmt.Sprintf("cannot encode diff: %v", err)
		c.metrics.ObserveDiff("failed")
		return
	}

	sel.Diff.Rendered = true
	sel.Diff.PNG = data
	sel.Diff.ChangedPixels = d.ChangedPixels
	sel.Diff.Similarity = render.Similarity(a, b)

	if d.Mismatch {
		sel.Diff.Warning = fmt.Sprintf("size mismatch: %dx%d vs %dx%d, rendered on a common canvas",
			d.SizeA.X, d.SizeA.Y, d.SizeB.X, d.SizeB.Y)
		c.metrics.ObserveDiff("mismatch")
		return
	}
	c.metrics.ObserveDiff("rendered")
}
