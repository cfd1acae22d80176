// Package compare classifies the image paths of two roots as new, common or deleted.
//
// Classification is presence-based: an entry is Common when both roots have
// a file at the same relative path, whether or not the bytes match. Content
// equality is a separate, optional query (Changes) that never alters the
// classification or its counts.
package compare

import (
	"fmt"
	"time"

	"github.com/CageChen/imagediff/internal/scan"
)

// Status tags a relative path by where it was found.
type Status int

const (
	// Common paths exist under both roots.
	Common Status = iota
	// New paths exist only under the source root.
	New
	// Deleted paths exist only under the destination root.
	Deleted
)

// String returns the lower-case status name.
func (s Status) String() string {
	switch s {
	case Common:
		return "common"
	case New:
		return "new"
	case Deleted:
		return "deleted"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText encodes the status as its name for JSON and YAML.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "common":
		*s = Common
	case "new":
		*s = New
	case "deleted":
		*s = Deleted
	default:
		return fmt.Errorf("unknown status %q", text)
	}
	return nil
}

// InSource reports whether a file with this status exists under the source root.
func (s Status) InSource() bool {
	return s == Common || s == New
}

// InDestination reports whether a file with this status exists under the destination root.
func (s Status) InDestination() bool {
	return s == Common || s == Deleted
}

// Classification is one relative path and its status.
type Classification struct {
	Path   string `json:"path" yaml:"path"`
	Status Status `json:"status" yaml:"status"`
}

// Counts holds the size of each partition.
type Counts struct {
	New     int `json:"new" yaml:"new"`
	Common  int `json:"common" yaml:"common"`
	Deleted int `json:"deleted" yaml:"deleted"`
}

// Total returns the number of classified paths.
func (c Counts) Total() int {
	return c.New + c.Common + c.Deleted
}

// Result is an immutable snapshot of one comparison.
type Result struct {
	Source      *scan.Tree
	Destination *scan.Tree
	Entries     []Classification
	Counts      Counts
	CreatedAt   time.Time
}

// Index returns the position of path in Entries, or -1.
func (r *Result) Index(path string) int {
	for i, e := range r.Entries {
		if e.Path == path {
			return i
		}
	}
	return -1
}

// Entry returns the classification at index i.
func (r *Result) Entry(i int) (Classification, bool) {
	if i < 0 || i >= len(r.Entries) {
		return Classification{}, false
	}
	return r.Entries[i], true
}
