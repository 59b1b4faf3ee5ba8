// Package ebook defines the ebook data model shared by the generation client,
// the workflow state machine and the presentation layers.
package ebook

import (
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// CoverMimeType is the image type requested from the image provider.
const CoverMimeType = "image/png"

// chapterSeparator joins an ebook body and a continuation chapter.
const chapterSeparator = "\n\n"

// Ebook is the generated artifact: title, Markdown body and cover image.
type Ebook struct {
	Title         string `json:"title"`
	Markdown      string `json:"markdown"`
	CoverImageURL string `json:"coverImageUrl"`
}

// WithChapter returns a copy of the ebook with chapter appended to the body.
// The receiver is never modified.
func (e Ebook) WithChapter(chapter string) Ebook {
	e.Markdown = e.Markdown + chapterSeparator + chapter
	return e
}

// CoverImage decodes the cover data URI into raw image bytes.
// Returns nil without error when the ebook has no cover.
func (e Ebook) CoverImage() ([]byte, error) {
	if e.CoverImageURL == "" {
		return nil, nil
	}

	_, payload, ok := strings.Cut(e.CoverImageURL, ";base64,")
	if !ok || !strings.HasPrefix(e.CoverImageURL, "data:") {
		return nil, errors.New("cover image is not a base64 data URI")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cover image: %w", err)
	}

	return data, nil
}

// DataURI builds a data URI from a base64 payload.
func DataURI(mimeType, b64 string) string {
	return "data:" + mimeType + ";base64," + b64
}

// Style is a cosmetic presentation preset. It never reaches the provider.
type Style string

const (
	StyleClassic  Style = "classic"
	StyleModern   Style = "modern"
	StyleAcademic Style = "academic"
)

// DefaultStyle is used when the form leaves the style empty.
const DefaultStyle = StyleModern

// Styles lists the supported styles in display order.
func Styles() []Style {
	return []Style{StyleClassic, StyleModern, StyleAcademic}
}

// Label returns the display label for the style.
func (s Style) Label() string {
	switch s {
	case StyleClassic:
		return "Classic"
	case StyleModern:
		return "Modern"
	case StyleAcademic:
		return "Academic"
	default:
		return string(s)
	}
}

// Valid reports whether s is a supported style.
func (s Style) Valid() bool {
	return slices.Contains(Styles(), s)
}

// Palette holds the hex colors a style uses when an ebook is rendered.
type Palette struct {
	Background string
	Text       string
	Heading    string
	Accent     string
}

// Palette returns the rendering colors for the style, falling back to the
// default style's colors.
func (s Style) Palette() Palette {
	switch s {
	case StyleClassic:
		return Palette{Background: "#fdf8f0", Text: "#2d2a26", Heading: "#5b3a1a", Accent: "#a0522d"}
	case StyleAcademic:
		return Palette{Background: "#ffffff", Text: "#222222", Heading: "#1a2a4a", Accent: "#1a2a4a"}
	default:
		return Palette{Background: "#ffffff", Text: "#1f2937", Heading: "#111827", Accent: "#4f46e5"}
	}
}

// DefaultChapters is the chapter count preselected in the form.
const DefaultChapters = 4

// ChapterCounts lists the supported chapter counts.
func ChapterCounts() []int {
	return []int{3, 4, 5, 6, 7}
}

// ChapterLabel describes a chapter count the way the form presents it.
func ChapterLabel(n int) string {
	switch n {
	case 3:
		return "3 chapters (short)"
	case 4:
		return "4 chapters (standard)"
	case 5:
		return "5 chapters (detailed)"
	case 6:
		return "6 chapters (in-depth)"
	case 7:
		return "7 chapters (extensive)"
	default:
		return fmt.Sprintf("%d chapters", n)
	}
}
