package markdown

import (
	"html"
	"strings"

	"github.com/alkime/ebooks/pkg/collections"
)

// HTML renders doc as an HTML fragment wrapped in an ebook-content div.
// Text is escaped; only the tags produced here reach the output.
func HTML(doc string) string {
	lines := collections.Apply(Parse(doc), blockHTML)

	return `<div class="ebook-content">` + strings.Join(lines, "\n") + `</div>`
}

func blockHTML(b Block) string {
	body := strings.Join(collections.Apply(b.Spans, spanHTML), "")

	switch b.Kind {
	case Heading1:
		return "<h1>" + body + "</h1>"
	case Heading2:
		return "<h2>" + body + "</h2>"
	default:
		return "<p>" + body + "</p>"
	}
}

func spanHTML(s Span) string {
	out := html.EscapeString(s.Text)
	if s.Italic {
		out = "<em>" + out + "</em>"
	}
	if s.Bold {
		out = "<strong>" + out + "</strong>"
	}
	return out
}
