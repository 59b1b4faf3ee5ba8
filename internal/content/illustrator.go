package content

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alkime/ebooks/internal/ebook"
	"github.com/alkime/ebooks/internal/tracer"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/attribute"
)

// Illustrator handles OpenAI Images API requests for ebook covers.
type Illustrator struct {
	apiKey  string
	model   openai.ImageModel
	reqOpts []option.RequestOption
}

// IllustratorOption customizes an Illustrator.
type IllustratorOption func(*Illustrator)

// WithImageModel overrides the OpenAI image model.
func WithImageModel(model string) IllustratorOption {
	return func(i *Illustrator) {
		if model != "" {
			i.model = openai.ImageModel(model)
		}
	}
}

// WithIllustratorRequestOptions appends OpenAI SDK request options (base URL, HTTP client).
func WithIllustratorRequestOptions(opts ...option.RequestOption) IllustratorOption {
	return func(i *Illustrator) {
		i.reqOpts = append(i.reqOpts, opts...)
	}
}

// NewIllustrator creates a new cover generation client.
func NewIllustrator(apiKey string, opts ...IllustratorOption) *Illustrator {
	i := &Illustrator{
		apiKey: apiKey,
		model:  openai.ImageModelGPTImage1,
	}
	for _, opt := range opts {
		opt(i)
	}

	return i
}

// imageParams requests exactly one portrait PNG returned inline as base64.
func (i *Illustrator) imageParams(prompt string) openai.ImageGenerateParams {
	params := openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  i.model,
		N:      openai.Int(1),
	}

	if strings.HasPrefix(string(i.model), "dall-e") {
		// DALL-E returns URLs unless asked otherwise and has no 2:3 size.
		params.Size = openai.ImageGenerateParamsSize1024x1792
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormatB64JSON
	} else {
		params.Size = openai.ImageGenerateParamsSize1024x1536
		params.OutputFormat = openai.ImageGenerateParamsOutputFormatPNG
	}

	return params
}

// GenerateCover generates one cover image and returns its base64 PNG bytes.
func (i *Illustrator) GenerateCover(ctx context.Context, prompt string) (_ string, err error) {
	ctx, span := tracer.Start(ctx, "content.GenerateCover")
	span.SetAttributes(attribute.String("image.model", string(i.model)))
	defer func() { tracer.End(span, err) }()

	if i.apiKey == "" {
		return "", ebook.NewCoverFailure(errors.New("API key required: set OPENAI_API_KEY"))
	}
	if strings.TrimSpace(prompt) == "" {
		return "", ebook.NewCoverFailure(errors.New("cover prompt is required"))
	}

	opts := append([]option.RequestOption{
		option.WithAPIKey(i.apiKey),
		option.WithMaxRetries(0),
	}, i.reqOpts...)
	client := openai.NewClient(opts...)

	resp, err := client.Images.Generate(ctx, i.imageParams(prompt))
	if err != nil {
		return "", ebook.NewCoverFailure(fmt.Errorf("failed to generate cover via OpenAI Images API: %w", err))
	}

	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return "", ebook.NewCoverFailure(errors.New("image API returned no image"))
	}

	return resp.Data[0].B64JSON, nil
}
