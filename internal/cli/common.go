package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	mfs "github.com/CageChen/imagediff/internal/fs"
)

// UsageError reports invalid arguments or configuration. It is detected
// before any scan and exits with status 2.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string {
	return e.Err.Error()
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

// IsUsageError reports whether err is or wraps a *UsageError.
func IsUsageError(err error) bool {
	var u *UsageError
	return errors.As(err, &u)
}

// rootArgs requires exactly the source and destination positional arguments.
func rootArgs(_ *cobra.Command, args []string) error {
	if len(args) != 2 {
		return &UsageError{Err: fmt.Errorf("expected <source> <destination>, got %d argument(s)", len(args))}
	}
	return nil
}

// roots holds the two validated sides of a comparison.
type roots struct {
	src mfs.FileSystem
	dst mfs.FileSystem
}

// openRoots checks both roots and opens them. gitRef selects a revision to
// read the root from instead of the working tree.
func openRoots(args []string, srcRef, dstRef string) (*roots, error) {
	if err := mfs.CheckRoot(args[0], srcRef); err != nil {
		return nil, &UsageError{Err: fmt.Errorf("source: %w", err)}
	}
	if err := mfs.CheckRoot(args[1], dstRef); err != nil {
		return nil, &UsageError{Err: fmt.Errorf("destination: %w", err)}
	}
	return &roots{
		src: mfs.New(args[0], srcRef),
		dst: mfs.New(args[1], dstRef),
	}, nil
}
