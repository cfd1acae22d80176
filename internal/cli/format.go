package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/CageChen/imagediff/internal/compare"
	"github.com/CageChen/imagediff/internal/scan"
)

var (
	newColor     = color.New(color.FgGreen)
	deletedColor = color.New(color.FgRed)
	changedColor = color.New(color.FgYellow)
	dimColor     = color.New(color.FgHiBlack)
)

// formatSummary returns the one-line summary printed after a comparison.
// changed is nil when contents were not hashed.
func formatSummary(c compare.Counts, changed []string) string {
	line := fmt.Sprintf("Classified %d file(s): %d new, %d common, %d deleted",
		c.Total(), c.New, c.Common, c.Deleted)
	if changed != nil {
		line += fmt.Sprintf(", %d changed", len(changed))
	}
	return line
}

// formatStatus colors a status the way the browser list does: new green,
// deleted red, common unmarked.
func formatStatus(s compare.Status, changed bool) string {
	switch {
	case s == compare.New:
		return newColor.Sprint(s.String())
	case s == compare.Deleted:
		return deletedColor.Sprint(s.String())
	case changed:
		return changedColor.Sprint("changed")
	default:
		return s.String()
	}
}

func fileSize(tree *scan.Tree, path string) string {
	if tree == nil || !tree.Has(path) {
		return dimColor.Sprint("-")
	}
	info, err := tree.FS.Stat(path)
	if err != nil {
		return dimColor.Sprint("?")
	}
	return humanize.IBytes(uint64(info.Size))
}

// writeEntryTable prints every entry with its status and the file size on
// each side.
func writeEntryTable(w io.Writer, r *compare.Result, changed []string) {
	isChanged := make(map[string]bool, len(changed))
	for _, p := range changed {
		isChanged[p] = true
	}

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.DrawBorder = false

	tbl.AppendHeader(table.Row{"Path", "Status", "Source", "Destination"})
	for _, e := range r.Entries {
		tbl.AppendRow(table.Row{
			e.Path,
			formatStatus(e.Status, isChanged[e.Path]),
			fileSize(r.Source, e.Path),
			fileSize(r.Destination, e.Path),
		})
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d", r.Counts.Total()), "", "", ""})
	tbl.Render()
}

// formatRenderSummary describes the outcome of a batch render.
func formatRenderSummary(rendered, skipped, mismatched int, dir string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rendered %d diff(s) into %s", rendered, dir)
	if skipped > 0 {
		fmt.Fprintf(&b, ", %d skipped", skipped)
	}
	if mismatched > 0 {
		fmt.Fprintf(&b, ", %d with size mismatch", mismatched)
	}
	return b.String()
}
