package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/alkime/ebooks/internal/ebook"
	"github.com/alkime/ebooks/internal/tracer"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"
)

const (
	saveEbookTool = "save_ebook"

	generateTemperature = 0.8
	continueTemperature = 0.75
	maxTokens           = 16000
)

// Writer handles Anthropic API requests for ebook text.
type Writer struct {
	apiKey  string
	model   anthropic.Model
	reqOpts []option.RequestOption
}

// WriterOption customizes a Writer.
type WriterOption func(*Writer)

// WithTextModel overrides the Anthropic model.
func WithTextModel(model string) WriterOption {
	return func(w *Writer) {
		if model != "" {
			w.model = anthropic.Model(model)
		}
	}
}

// WithWriterRequestOptions appends Anthropic SDK request options (base URL, HTTP client).
func WithWriterRequestOptions(opts ...option.RequestOption) WriterOption {
	return func(w *Writer) {
		w.reqOpts = append(w.reqOpts, opts...)
	}
}

// NewWriter creates a new text generation client.
func NewWriter(apiKey string, opts ...WriterOption) *Writer {
	w := &Writer{
		apiKey: apiKey,
		model:  anthropic.ModelClaudeSonnet4_5_20250929,
	}
	for _, opt := range opts {
		opt(w)
	}

	return w
}

func (w *Writer) client() anthropic.Client {
	// single attempt per call
	opts := append([]option.RequestOption{
		option.WithAPIKey(w.apiKey),
		option.WithMaxRetries(0),
	}, w.reqOpts...)

	return anthropic.NewClient(opts...)
}

// getEbookTool returns the tool definition constraining the ebook output shape.
func getEbookTool() anthropic.ToolParam {
	return anthropic.ToolParam{
		Name:        saveEbookTool,
		Description: anthropic.String("Save the generated ebook with its title, Markdown content and cover image prompt"),
		InputSchema: anthropic.ToolInputSchemaParam{
			Type: "object",
			Properties: map[string]interface{}{
				"title": map[string]interface{}{
					"type":        "string",
					"description": "The ebook title",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "The complete ebook in Markdown, from the H1 title to the end of the conclusion",
				},
				"cover_prompt": map[string]interface{}{
					"type":        "string",
					"description": "A vivid, detailed English prompt for generating the cover image",
				},
			},
			Required: []string{"title", "content", "cover_prompt"},
		},
	}
}

// GenerateEbook asks the model for a complete ebook with exactly chapters
// chapters, delivered as a single structured object.
func (w *Writer) GenerateEbook(ctx context.Context, topic string, chapters int) (_ *ebook.GenerationResult, err error) {
	ctx, span := tracer.Start(ctx, "content.GenerateEbook")
	span.SetAttributes(attribute.Int("ebook.chapters", chapters))
	defer func() { tracer.End(span, err) }()

	if w.apiKey == "" {
		return nil, ebook.NewGenerationFailure(errors.New("API key required: set ANTHROPIC_API_KEY"))
	}
	if strings.TrimSpace(topic) == "" {
		return nil, ebook.NewGenerationFailure(errors.New("topic is required"))
	}

	toolDef := getEbookTool()
	tool := anthropic.ToolUnionParamOfTool(toolDef.InputSchema, toolDef.Name)
	tool.OfTool.Description = toolDef.Description

	params := anthropic.MessageNewParams{
		Model:       w.model,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(generateTemperature),
		System: []anthropic.TextBlockParam{
			{Text: EbookSystemPrompt(chapters)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(EbookUserPrompt(topic))),
		},
		Tools:      []anthropic.ToolUnionParam{tool},
		ToolChoice: anthropic.ToolChoiceParamOfTool(saveEbookTool),
	}

	client := w.client()
	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, ebook.NewGenerationFailure(fmt.Errorf("failed to generate ebook via Anthropic API: %w", err))
	}

	if len(resp.Content) == 0 {
		return nil, ebook.NewGenerationFailure(errors.New("empty response from Anthropic API"))
	}

	result, err := parseEbookToolUse(resp.Content)
	if err != nil {
		return nil, ebook.NewGenerationFailure(err)
	}

	if err := result.Validate(); err != nil {
		return nil, ebook.NewGenerationFailure(err)
	}

	return result, nil
}

// parseEbookToolUse extracts the GenerationResult from response content blocks.
func parseEbookToolUse(content []anthropic.ContentBlockUnion) (*ebook.GenerationResult, error) {
	for _, block := range content {
		toolUse, ok := block.AsAny().(anthropic.ToolUseBlock)
		if !ok || toolUse.Name != saveEbookTool {
			continue
		}

		inputBytes, err := json.Marshal(toolUse.Input)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tool input: %w", err)
		}

		var result ebook.GenerationResult
		if err := json.Unmarshal(inputBytes, &result); err != nil {
			return nil, fmt.Errorf("failed to parse tool input: %w", err)
		}

		return &result, nil
	}

	return nil, errors.New("no save_ebook tool use found in Anthropic API response")
}

// ContinueEbook asks the model for the next chapter of existing and returns
// it trimmed. Compliance with the one-chapter rule is not enforced here.
func (w *Writer) ContinueEbook(ctx context.Context, existing string) (_ string, err error) {
	ctx, span := tracer.Start(ctx, "content.ContinueEbook")
	span.SetAttributes(attribute.Int("ebook.existing_bytes", len(existing)))
	defer func() { tracer.End(span, err) }()

	if w.apiKey == "" {
		return "", ebook.NewContinuationFailure(errors.New("API key required: set ANTHROPIC_API_KEY"))
	}

	params := anthropic.MessageNewParams{
		Model:       w.model,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(continueTemperature),
		System: []anthropic.TextBlockParam{
			{Text: ContinueSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(ContinueUserPrompt(existing))),
		},
	}

	client := w.client()
	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return "", ebook.NewContinuationFailure(fmt.Errorf("failed to continue ebook via Anthropic API: %w", err))
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if textBlock, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(textBlock.Text)
		}
	}

	chapter := strings.TrimSpace(sb.String())
	if chapter == "" {
		return "", ebook.NewContinuationFailure(errors.New("empty response from Anthropic API"))
	}

	return chapter, nil
}
