// Package content is the client for the external generative AI provider:
// structured ebook generation and continuation (Anthropic) and cover images
// (OpenAI). Every operation is a single round trip with no retry.
package content

import (
	"context"

	"github.com/alkime/ebooks/internal/ebook"
)

// Provider bundles the text and image clients behind the three operations
// the workflow depends on.
type Provider struct {
	writer      *Writer
	illustrator *Illustrator
}

// NewProvider creates a Provider from its two clients.
func NewProvider(writer *Writer, illustrator *Illustrator) *Provider {
	return &Provider{
		writer:      writer,
		illustrator: illustrator,
	}
}

// GenerateEbook generates title, Markdown content and cover prompt.
func (p *Provider) GenerateEbook(ctx context.Context, topic string, chapters int) (*ebook.GenerationResult, error) {
	return p.writer.GenerateEbook(ctx, topic, chapters)
}

// GenerateCover generates a base64 PNG cover from prompt.
func (p *Provider) GenerateCover(ctx context.Context, prompt string) (string, error) {
	return p.illustrator.GenerateCover(ctx, prompt)
}

// ContinueEbook generates the next chapter for existing.
func (p *Provider) ContinueEbook(ctx context.Context, existing string) (string, error) {
	return p.writer.ContinueEbook(ctx, existing)
}
