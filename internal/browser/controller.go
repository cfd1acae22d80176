// Package browser holds the state behind the interactive comparison browser:
// the current snapshot, the selected entry, and the select and copy actions.
// It is independent of any UI toolkit; the HTTP handlers adapt it to the web UI.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/CageChen/imagediff/internal/compare"
	mfs "github.com/CageChen/imagediff/internal/fs"
	"github.com/CageChen/imagediff/internal/logging"
	"github.com/CageChen/imagediff/internal/metrics"
	"github.com/CageChen/imagediff/internal/render"
)

var (
	// ErrNoSnapshot is returned before the first comparison has completed.
	ErrNoSnapshot = errors.New("no comparison available")
	// ErrIndexOutOfRange is returned for an index outside the current entries.
	ErrIndexOutOfRange = errors.New("entry index out of range")
	// ErrStaleEntry is returned when the entry at an index no longer has the
	// path the caller selected and the path is gone from the snapshot.
	ErrStaleEntry = errors.New("entry changed since it was selected")
	// ErrNoSource is returned when copying an entry that has no source file.
	ErrNoSource = errors.New("entry has no source file")
	// ErrReadOnly is returned when the destination root does not accept writes.
	ErrReadOnly = mfs.ErrReadOnly
)

// Side names one of the two compared roots.
type Side string

// The compared roots.
const (
	Source      Side = "source"
	Destination Side = "destination"
)

// CopyError describes a failed copy action.
type CopyError struct {
	Path        string
	Source      string
	Destination string
	Err         error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("copy %s to %s: %v", e.Source, e.Destination, e.Err)
}

func (e *CopyError) Unwrap() error {
	return e.Err
}

// CopyReport describes a completed copy action.
type CopyReport struct {
	Path        string `json:"path"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// Controller owns the current comparison snapshot and the selection.
type Controller struct {
	comparer *compare.Comparer
	src      mfs.FileSystem
	dst      mfs.FileSystem
	renderer *render.Renderer
	metrics  *metrics.Metrics
	logger   *slog.Logger

	refreshMu sync.Mutex // serializes scan and install so snapshots never go back in time

	mu        sync.RWMutex
	result    *compare.Result
	selected  int
	listeners []func(*compare.Result)
}

// NewController creates a Controller for the two roots. Call Refresh to
// build the first snapshot. m may be nil.
func NewController(
	comparer *compare.Comparer, src, dst mfs.FileSystem, renderer *render.Renderer,
	m *metrics.Metrics, logger *slog.Logger,
) *Controller {
	return &Controller{
		comparer: comparer,
		src:      src,
		dst:      dst,
		renderer: renderer,
		metrics:  m,
		logger:   logging.OrNop(logger),
		selected: -1,
	}
}

// OnRefresh registers a callback invoked with every new snapshot.
func (c *Controller) OnRefresh(fn func(*compare.Result)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Refresh rescans both roots and replaces the snapshot. The selection follows
// the previously selected path, or is cleared when that path disappeared.
// Listeners run in snapshot order.
func (c *Controller) Refresh(ctx context.Context) (*compare.Result, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	result, err := c.comparer.Compare(ctx, c.src, c.dst)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	prev := ""
	if c.result != nil {
		if e, ok := c.result.Entry(c.selected); ok {
			prev = e.Path
		}
	}
	c.result = result
	c.selected = -1
	if prev != "" {
		c.selected = result.Index(prev)
	}
	listeners := make([]func(*compare.Result), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	c.metrics.ObserveComparison(result.Counts)
	for _, fn := range listeners {
		fn(result)
	}
	return result, nil
}

// Snapshot returns the current comparison, or nil before the first Refresh.
func (c *Controller) Snapshot() *compare.Result {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.result
}

// Selected returns the selected index, or -1.
func (c *Controller) Selected() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selected
}

// Root returns the FileSystem of one side.
func (c *Controller) Root(side Side) (mfs.FileSystem, bool) {
	switch side {
	case Source:
		return c.src, true
	case Destination:
		return c.dst, true
	default:
		return nil, false
	}
}

func (c *Controller) entry(index int) (*compare.Result, compare.Classification, error) {
	c.mu.RLock()
	result := c.result
	c.mu.RUnlock()

	if result == nil {
		return nil, compare.Classification{}, ErrNoSnapshot
	}
	e, ok := result.Entry(index)
	if !ok {
		return result, compare.Classification{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return result, e, nil
}

// Copy duplicates the source file of the entry at index into the destination
// root, overwriting any existing file, then refreshes the snapshot. On
// failure the selection is left unchanged.
//
// path is the relative path the caller saw at index. Snapshots are replaced
// and re-sorted by every refresh, so when the entry at index has moved the
// copy follows path instead; ErrStaleEntry is returned when path is gone.
// An empty path trusts index.
func (c *Controller) Copy(ctx context.Context, index int, path string) (*CopyReport, error) {
	result, e, err := c.entry(index)
	if err != nil && (path == "" || !errors.Is(err, ErrIndexOutOfRange)) {
		return nil, err
	}
	if path != "" && e.Path != path {
		i := result.Index(path)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrStaleEntry, path)
		}
		e, _ = result.Entry(i)
	}

	report := &CopyReport{
		Path:        e.Path,
		Source:      c.src.Describe(e.Path),
		Destination: c.dst.Describe(e.Path),
	}

	fail := func(err error) (*CopyReport, error) {
		c.metrics.ObserveCopy("failed")
		c.logger.Error("copy failed", "source", report.Source, "destination", report.Destination, "error", err)
		return nil, &CopyError{Path: e.Path, Source: report.Source, Destination: report.Destination, Err: err}
	}

	if !e.Status.InSource() {
		return fail(ErrNoSource)
	}
	if err := mfs.Copy(c.src, c.dst, e.Path); err != nil {
		return fail(err)
	}

	c.metrics.ObserveCopy("ok")
	c.logger.Info("copied file", "source", report.Source, "destination", report.Destination)

	if _, err := c.Refresh(ctx); err != nil {
		c.logger.Warn("refresh after copy failed", "error", err)
	}
	return report, nil
}
