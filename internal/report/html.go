package report

import (
	"bytes"
	"fmt"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/CageChen/imagediff/internal/compare"
)

// Renderer turns manifests into HTML summaries.
type Renderer struct {
	md goldmark.Markdown
}

// NewRenderer creates a Renderer with GFM tables and highlighted code blocks.
func NewRenderer() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("monokai"),
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithXHTML(),
		),
	)
	return &Renderer{md: md}
}

// Markdown writes the summary of m: a count table, one section per status
// and the manifest itself as a YAML block.
func Markdown(m *Manifest) ([]byte, error) {
	var b strings.Builder

	b.WriteString("# Image comparison\n\n")
	fmt.Fprintf(&b, "- Source: %s\n", codeSpan(m.Source))
	fmt.Fprintf(&b, "- Destination: %s\n", codeSpan(m.Destination))
	fmt.Fprintf(&b, "- Compared: %s\n\n", m.CreatedAt.Format("2006-01-02 15:04:05 MST"))

	b.WriteString("| Status | Files |\n| --- | ---: |\n")
	fmt.Fprintf(&b, "| New | %d |\n", m.Counts.New)
	fmt.Fprintf(&b, "| Common | %d |\n", m.Counts.Common)
	fmt.Fprintf(&b, "| Deleted | %d |\n", m.Counts.Deleted)
	if m.Changed != nil {
		fmt.Fprintf(&b, "| Changed | %d |\n", len(m.Changed))
	}
	fmt.Fprintf(&b, "| **Total** | **%d** |\n\n", m.Counts.Total())

	for _, s := range []compare.Status{compare.New, compare.Deleted, compare.Common} {
		var paths []string
		for _, e := range m.Entries {
			if e.Status == s {
				paths = append(paths, e.Path)
			}
		}
		if len(paths) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s%s\n\n", strings.ToUpper(s.String()[:1]), s.String()[1:])
		for _, p := range paths {
			fmt.Fprintf(&b, "- %s\n", codeSpan(p))
		}
		b.WriteString("\n")
	}

	data, err := m.YAML()
	if err != nil {
		return nil, err
	}
	b.WriteString("## Manifest\n\n```yaml\n")
	b.Write(data)
	b.WriteString("```\n")

	return []byte(b.String()), nil
}

// codeSpan wraps s in a Markdown code span whose fence is longer than any
// backtick run in s. Line breaks become spaces so a name cannot end the list
// item.
func codeSpan(s string) string {
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)

	longest, run := 0, 0
	for _, r := range s {
		if r == '`' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	fence := strings.Repeat("`", longest+1)

	// One space on each side is stripped again by the parser.
	if strings.HasPrefix(s, "`") || strings.HasSuffix(s, "`") ||
		(strings.HasPrefix(s, " ") && strings.HasSuffix(s, " ")) {
		s = " " + s + " "
	}
	return fence + s + fence
}

// HTML renders the Markdown summary of m.
func (r *Renderer) HTML(m *Manifest) (string, error) {
	source, err := Markdown(m)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := r.md.Convert(source, &buf); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}
