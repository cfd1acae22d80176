package compare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mfs "github.com/CageChen/imagediff/internal/fs"
	"github.com/CageChen/imagediff/internal/logging"
	"github.com/CageChen/imagediff/internal/scan"
)

// ErrNotHashed is returned by Changes when the scans carried no digests.
var ErrNotHashed = errors.New("comparison was made without content hashes")

// Comparer scans two roots and classifies their paths.
type Comparer struct {
	scanner *scan.Scanner
	logger  *slog.Logger
	now     func() time.Time
}

// NewComparer creates a Comparer around scanner.
func NewComparer(scanner *scan.Scanner, logger *slog.Logger) *Comparer {
	return &Comparer{
		scanner: scanner,
		logger:  logging.OrNop(logger),
		now:     time.Now,
	}
}

// Compare scans src and dst and returns a new snapshot.
func (c *Comparer) Compare(ctx context.Context, src, dst mfs.FileSystem) (*Result, error) {
	srcTree, err := c.scanner.Scan(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	dstTree, err := c.scanner.Scan(ctx, dst)
	if err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}

	entries := Classify(NewPathSet(srcTree.Paths()...), NewPathSet(dstTree.Paths()...))
	result := &Result{
		Source:      srcTree,
		Destination: dstTree,
		Entries:     entries,
		Counts:      CountStatuses(entries),
		CreatedAt:   c.now(),
	}

	c.logger.Info("compared roots",
		"source", srcTree.Root,
		"destination", dstTree.Root,
		"new", result.Counts.New,
		"common", result.Counts.Common,
		"deleted", result.Counts.Deleted,
	)
	return result, nil
}

// Changes returns the Common paths whose digests differ, in entry order.
// It requires both scans to have been made with a hasher.
func Changes(r *Result) ([]string, error) {
	var changed []string
	for _, e := range r.Entries {
		if e.Status != Common {
			continue
		}
		a := r.Source.Files[e.Path].Digest
		b := r.Destination.Files[e.Path].Digest
		if a == "" || b == "" {
			return nil, ErrNotHashed
		}
		if a != b {
			changed = append(changed, e.Path)
		}
	}
	return changed, nil
}
