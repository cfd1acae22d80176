package compare

import "sort"

// PathSet is a set of slash-separated relative paths.
type PathSet map[string]struct{}

// NewPathSet builds a set from paths.
func NewPathSet(paths ...string) PathSet {
	set := make(PathSet, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set
}

// Classify partitions the union of a (source) and b (destination) into
// common (a∩b), new (a−b) and deleted (b−a). Entries are ordered common
// first, then new, then deleted, each group sorted by path.
func Classify(a, b PathSet) []Classification {
	var common, added, deleted []string

	for p := range a {
		if _, ok := b[p]; ok {
			common = append(common, p)
		} else {
			added = append(added, p)
		}
	}
	for p := range b {
		if _, ok := a[p]; !ok {
			deleted = append(deleted, p)
		}
	}

	sort.Strings(common)
	sort.Strings(added)
	sort.Strings(deleted)

	result := make([]Classification, 0, len(common)+len(added)+len(deleted))
	for _, p := range common {
		result = append(result, Classification{Path: p, Status: Common})
	}
	for _, p := range added {
		result = append(result, Classification{Path: p, Status: New})
	}
	for _, p := range deleted {
		result = append(result, Classification{Path: p, Status: Deleted})
	}
	return result
}

// CountStatuses tallies entries per status.
func CountStatuses(entries []Classification) Counts {
	var c Counts
	for _, e := range entries {
		switch e.Status {
		case Common:
			c.Common++
		case New:
			c.New++
		case Deleted:
			c.Deleted++
		}
	}
	return c
}
