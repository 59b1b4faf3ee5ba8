// Package markdown renders the narrow Markdown dialect produced for ebooks.
//
// It is a line-by-line renderer, not a general parser. Each line is checked in
// order: "# " heading, "## " heading, blank, then paragraph. Paragraph text gets
// two inline substitutions, **bold** first and *italic* second, applied to the
// result of the first so italics inside bold runs still resolve.
package markdown

import (
	"regexp"
	"strings"
)

// Kind identifies a rendered block.
type Kind int

const (
	Heading1 Kind = iota + 1
	Heading2
	Paragraph
)

// Span is a run of inline text with uniform emphasis.
type Span struct {
	Text   string
	Bold   bool
	Italic bool
}

// Block is one rendered line.
type Block struct {
	Kind  Kind
	Spans []Span
}

// Text returns the block text without emphasis.
func (b Block) Text() string {
	var sb strings.Builder
	for _, s := range b.Spans {
		sb.WriteString(s.Text)
	}
	return sb.String()
}

// Markers injected by the inline substitutions. They never survive into
// spans, and any occurrence in the source text is stripped first.
const (
	boldOpen    = "\x01"
	boldClose   = "\x02"
	italicOpen  = "\x03"
	italicClose = "\x04"
)

var (
	boldPattern   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicPattern = regexp.MustCompile(`\*(.*?)\*`)
	markerStrip   = strings.NewReplacer(boldOpen, "", boldClose, "", italicOpen, "", italicClose, "")
)

// Parse splits doc into blocks. Blank lines produce nothing.
func Parse(doc string) []Block {
	var blocks []Block

	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimRight(line, "\r")

		switch {
		case strings.HasPrefix(line, "# "):
			blocks = append(blocks, Block{Kind: Heading1, Spans: []Span{{Text: line[2:]}}})
		case strings.HasPrefix(line, "## "):
			blocks = append(blocks, Block{Kind: Heading2, Spans: []Span{{Text: line[3:]}}})
		case strings.TrimSpace(line) == "":
			continue
		default:
			blocks = append(blocks, Block{Kind: Paragraph, Spans: Inline(line)})
		}
	}

	return blocks
}

// Inline applies the bold then italic substitutions to line and returns the
// resulting spans.
func Inline(line string) []Span {
	marked := markerStrip.Replace(line)
	marked = boldPattern.ReplaceAllString(marked, boldOpen+"$1"+boldClose)
	marked = italicPattern.ReplaceAllString(marked, italicOpen+"$1"+italicClose)

	var (
		spans        []Span
		current      strings.Builder
		bold, italic bool
	)

	flush := func() {
		if current.Len() == 0 {
			return
		}
		spans = append(spans, Span{Text: current.String(), Bold: bold, Italic: italic})
		current.Reset()
	}

	for _, r := range marked {
		switch string(r) {
		case boldOpen:
			flush()
			bold = true
		case boldClose:
			flush()
			bold = false
		case italicOpen:
			flush()
			italic = true
		case italicClose:
			flush()
			italic = false
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return spans
}

var (
	headingMarkers  = regexp.MustCompile(`#+\s`)
	emphasisMarkers = regexp.MustCompile(`[*_]`)
)

// PlainText strips heading and emphasis markers. Underscores inside words
// are removed too.
func PlainText(doc string) string {
	out := headingMarkers.ReplaceAllString(doc, "")
	return emphasisMarkers.ReplaceAllString(out, "")
}
