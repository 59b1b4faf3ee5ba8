package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/alkime/ebooks/internal/ebook"
	"github.com/alkime/ebooks/internal/markdown"
	"github.com/alkime/ebooks/internal/tui/style"
)

// renderEbook renders Markdown for the terminal using the style's palette,
// wrapped to width.
func renderEbook(doc string, st ebook.Style, width int) string {
	pal := st.Palette()
	text := lipgloss.NewStyle().Foreground(lipgloss.Color(pal.Text))
	heading := lipgloss.NewStyle().Foreground(lipgloss.Color(pal.Heading)).Bold(true)
	accent := lipgloss.NewStyle().Foreground(lipgloss.Color(pal.Accent))

	wrap := lipgloss.NewStyle()
	if width > 0 {
		wrap = wrap.Width(width)
	}

	blocks := markdown.Parse(doc)
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		switch b.Kind {
		case markdown.Heading1:
			title := wrap.Render(heading.Underline(true).Render(b.Text()))
			rule := accent.Render(strings.Repeat("─", max(1, min(width, lipgloss.Width(title)))))
			parts = append(parts, title+"\n"+rule)
		case markdown.Heading2:
			parts = append(parts, wrap.Render(heading.Render(b.Text())))
		case markdown.Paragraph:
			var sb strings.Builder
			for _, span := range b.Spans {
				sb.WriteString(text.Bold(span.Bold).Italic(span.Italic).Render(span.Text))
			}
			parts = append(parts, wrap.Render(sb.String()))
		}
	}

	return strings.Join(parts, "\n\n")
}

// renderHints renders bindings as "[key] desc" pairs.
func renderHints(bindings ...key.Binding) string {
	hints := make([]string, 0, len(bindings))
	for _, b := range bindings {
		if !b.Enabled() {
			continue
		}
		hints = append(hints, style.Help.Render("[")+
			style.Key.Render(b.Help().Key)+
			style.Help.Render("] "+b.Help().Desc))
	}

	return strings.Join(hints, "  ")
}
