// Package export turns an ebook into downloadable files: raw Markdown, plain
// text, or a single-page PDF holding a rasterized image of the rendered book.
package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/alkime/ebooks/internal/ebook"
	"github.com/alkime/ebooks/internal/markdown"
)

// Format is an export file format, named by its extension.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatText     Format = "txt"
	FormatPDF      Format = "pdf"
)

// ErrUnknownFormat is returned for unsupported format names.
var ErrUnknownFormat = errors.New("unknown export format")

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{FormatMarkdown, FormatText, FormatPDF}
}

// ParseFormat accepts a format name with or without a leading dot.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")))
	switch f {
	case FormatMarkdown, FormatText, FormatPDF:
		return f, nil
	case "markdown":
		return FormatMarkdown, nil
	case "text":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatText:
		return "text/plain; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// File is an exported document.
type File struct {
	Name        string
	ContentType string
	Data        []byte
	// PageHeight is the height in pixels of the single PDF page, zero for
	// text formats.
	PageHeight int
}

// Export renders book in the given format. The style only affects PDF output.
func Export(book ebook.Ebook, style ebook.Style, format Format) (*File, error) {
	var (
		data   []byte
		height int
		err    error
	)

	switch format {
	case FormatMarkdown:
		data = Markdown(book)
	case FormatText:
		data = Text(book)
	case FormatPDF:
		data, height, err = renderPDF(book, style)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, err
	}

	return &File{
		Name:        Filename(book.Title, format),
		ContentType: format.ContentType(),
		Data:        data,
		PageHeight:  height,
	}, nil
}

// Markdown returns the stored Markdown unchanged.
func Markdown(book ebook.Ebook) []byte {
	return []byte(book.Markdown)
}

// Text returns the Markdown with heading and emphasis markers removed.
func Text(book ebook.Ebook) []byte {
	return []byte(markdown.PlainText(book.Markdown))
}

// Save exports book into dir and returns the written path. The file is named
// after the slug of the title so it is safe on every filesystem.
func Save(dir string, book ebook.Ebook, style ebook.Style, format Format) (string, error) {
	f, err := Export(book, style, format)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, Slug(book.Title)+"."+string(format))
	if err := os.WriteFile(path, f.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	return path, nil
}

// fallbackName is used when a title has no usable characters.
const fallbackName = "ebook"

var unsafeFilename = regexp.MustCompile(`[/\\:*?"<>|\x00-\x1f]+`)

// Filename returns "<title>.<ext>" with characters that are invalid in file
// names replaced.
func Filename(title string, format Format) string {
	name := strings.TrimSpace(unsafeFilename.ReplaceAllString(title, "-"))
	name = strings.Trim(name, ".- ")
	if name == "" {
		name = fallbackName
	}

	return name + "." + string(format)
}

var (
	slugInvalid = regexp.MustCompile(`[^a-z0-9-]+`)
	slugHyphens = regexp.MustCompile(`-+`)
)

// Slug converts a title to a lowercase ASCII slug.
// Example: "Crème Brûlée Basics" -> "creme-brulee-basics"
func Slug(title string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), title)
	if err != nil {
		folded = title
	}

	slug := strings.ToLower(folded)
	slug = strings.Join(strings.Fields(slug), "-")
	slug = slugInvalid.ReplaceAllString(slug, "")
	slug = slugHyphens.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")

	if slug == "" {
		return fallbackName
	}

	return slug
}
