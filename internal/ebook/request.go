package ebook

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInvalidRequest is returned for form input that cannot start a generation.
var ErrInvalidRequest = errors.New("invalid generation request")

// GenerationRequest is the validated form input for one generation.
type GenerationRequest struct {
	Topic    string
	Chapters int
	Style    Style
}

// NewGenerationRequest trims and validates form input. A zero chapter count
// or empty style selects the defaults.
func NewGenerationRequest(topic string, chapters int, style Style) (GenerationRequest, error) {
	if chapters == 0 {
		chapters = DefaultChapters
	}
	if style == "" {
		style = DefaultStyle
	}

	req := GenerationRequest{
		Topic:    strings.TrimSpace(topic),
		Chapters: chapters,
		Style:    style,
	}

	if err := req.Validate(); err != nil {
		return GenerationRequest{}, err
	}

	return req, nil
}

// Validate checks the request invariants.
func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.Topic) == "" {
		return fmt.Errorf("%w: topic is required", ErrInvalidRequest)
	}
	if !slices.Contains(ChapterCounts(), r.Chapters) {
		return fmt.Errorf("%w: chapter count %d not in %v", ErrInvalidRequest, r.Chapters, ChapterCounts())
	}
	if !r.Style.Valid() {
		return fmt.Errorf("%w: unknown style %q", ErrInvalidRequest, r.Style)
	}

	return nil
}

// GenerationResult is the structured payload returned by ebook generation.
type GenerationResult struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	CoverPrompt string `json:"cover_prompt"`
}

// Validate requires all three fields to be present and non-blank.
func (r *GenerationResult) Validate() error {
	if r == nil {
		return errors.New("empty generation result")
	}

	var missing []string
	if strings.TrimSpace(r.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(r.Content) == "" {
		missing = append(missing, "content")
	}
	if strings.TrimSpace(r.CoverPrompt) == "" {
		missing = append(missing, "cover_prompt")
	}

	if len(missing) > 0 {
		return fmt.Errorf("generation result missing fields: %s", strings.Join(missing, ", "))
	}

	return nil
}
