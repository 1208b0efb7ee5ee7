// Package gemini adapts the Gemini API to the provider interfaces for
// image description, text extraction and text generation. It is the
// fallback behind Groq in every vision and LLM chain.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/mijoai/mijo-gateway/internal/domain/entity"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/provider"
)

const (
	defaultModel = "gemini-2.0-flash"

	describeMaxTokens = 512
	extractMaxTokens  = 1024
)

// Client wraps one genai client for all Gemini-backed services.
type Client struct {
	client *genai.Client
	model  string
	media  provider.MediaSource
	logger *zap.Logger
}

var (
	_ provider.ImageDescriber = (*Client)(nil)
	_ provider.TextExtractor  = (*Client)(nil)
	_ provider.TextGenerator  = (*Client)(nil)
)

func New(ctx context.Context, apiKey, model string, media provider.MediaSource, logger *zap.Logger) (*Client, error) {
	if model == "" {
		model = defaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{
		client: client,
		model:  model,
		media:  media,
		logger: logger.With(zap.String("provider", "gemini")),
	}, nil
}

func (c *Client) Name() string { return "gemini" }

func (c *Client) Describe(ctx context.Context, imageURL, prompt string) (*entity.DescriptionResult, error) {
	text, err := c.visionCall(ctx, imageURL, prompt, describeMaxTokens, 0.4)
	if err != nil {
		return nil, err
	}
	return &entity.DescriptionResult{
		Description: strings.TrimSpace(text),
		Provider:    c.Name(),
		Model:       c.model,
	}, nil
}

func (c *Client) ExtractText(ctx context.Context, imageURL string, languages []string) (*entity.OCRResult, error) {
	raw, err := c.visionCall(ctx, imageURL, provider.BuildOCRPrompt(languages), extractMaxTokens, 0)
	if err != nil {
		return nil, err
	}
	text, hasText := provider.ParseOCRText(raw)
	return &entity.OCRResult{
		Text:      text,
		HasText:   hasText,
		Languages: languages,
		Provider:  c.Name(),
		Model:     c.model,
	}, nil
}

func (c *Client) Generate(ctx context.Context, prompt, systemPrompt string, opts provider.GenerateOptions) (*entity.GenerationResult, error) {
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(opts.MaxTokens),
		Temperature:     genai.Ptr(opts.Temperature),
	}
	if systemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		}
	}

	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: prompt}}},
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generation: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("gemini generation: empty response")
	}

	return &entity.GenerationResult{
		Text:     text,
		Provider: c.Name(),
		Model:    c.model,
	}, nil
}

// visionCall sends the image inline so media behind the sender backend's
// token auth still reaches the model.
func (c *Client) visionCall(ctx context.Context, imageURL, prompt string, maxTokens int, temperature float32) (string, error) {
	data, mimeType, err := c.media.Fetch(ctx, imageURL)
	if err != nil {
		return "", fmt.Errorf("fetch image: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}},
				{Text: prompt},
			},
		},
	}
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
		Temperature:     genai.Ptr(temperature),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini vision: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini vision: empty response")
	}
	return text, nil
}
