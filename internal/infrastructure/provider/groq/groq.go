// Package groq adapts Groq's OpenAI-compatible API to the provider
// interfaces: Whisper transcription, Llama vision for description and
// extraction, and Llama text generation.
package groq

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"net/url"
	"path"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mijoai/mijo-gateway/internal/domain/entity"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/provider"
)

const (
	defaultBaseURL = "https://api.groq.com/openai/v1"

	whisperModel = "whisper-large-v3-turbo"
	visionModel  = "meta-llama/llama-4-scout-17b-16e-instruct"
	textModel    = "llama-3.3-70b-versatile"

	describeMaxTokens = 512
	extractMaxTokens  = 1024
)

// Client implements every provider interface against one Groq credential.
type Client struct {
	client *openai.Client
	media  provider.MediaSource
	logger *zap.Logger
}

var (
	_ provider.Transcriber    = (*Client)(nil)
	_ provider.ImageDescriber = (*Client)(nil)
	_ provider.TextExtractor  = (*Client)(nil)
	_ provider.TextGenerator  = (*Client)(nil)
)

func New(apiKey, baseURL string, media provider.MediaSource, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		client: openai.NewClientWithConfig(cfg),
		media:  media,
		logger: logger.With(zap.String("provider", "groq")),
	}
}

func (c *Client) Name() string { return "groq" }

func (c *Client) Transcribe(ctx context.Context, audioURL, language string) (*entity.TranscriptResult, error) {
	data, mimeType, err := c.media.Fetch(ctx, audioURL)
	if err != nil {
		return nil, fmt.Errorf("fetch audio: %w", err)
	}

	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    whisperModel,
		FilePath: audioFileName(audioURL, mimeType),
		Reader:   bytes.NewReader(data),
		Language: language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("groq transcription: %w", err)
	}

	result := &entity.TranscriptResult{
		Text:     strings.TrimSpace(resp.Text),
		Language: resp.Language,
		Duration: resp.Duration,
		Provider: c.Name(),
		Model:    whisperModel,
	}
	if result.Language == "" {
		result.Language = language
	}
	return result, nil
}

func (c *Client) Describe(ctx context.Context, imageURL, prompt string) (*entity.DescriptionResult, error) {
	content, err := c.visionCall(ctx, imageURL, prompt, describeMaxTokens, 0.4)
	if err != nil {
		return nil, err
	}
	return &entity.DescriptionResult{
		Description: strings.TrimSpace(content),
		Provider:    c.Name(),
		Model:       visionModel,
	}, nil
}

func (c *Client) ExtractText(ctx context.Context, imageURL string, languages []string) (*entity.OCRResult, error) {
	content, err := c.visionCall(ctx, imageURL, provider.BuildOCRPrompt(languages), extractMaxTokens, 0)
	if err != nil {
		return nil, err
	}
	text, hasText := provider.ParseOCRText(content)
	return &entity.OCRResult{
		Text:      text,
		HasText:   hasText,
		Languages: languages,
		Provider:  c.Name(),
		Model:     visionModel,
	}, nil
}

func (c *Client) Generate(ctx context.Context, prompt, systemPrompt string, opts provider.GenerateOptions) (*entity.GenerationResult, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       textModel,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("groq generation: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("groq generation: empty response")
	}

	return &entity.GenerationResult{
		Text:     resp.Choices[0].Message.Content,
		Provider: c.Name(),
		Model:    textModel,
	}, nil
}

// visionCall inlines the image as a base64 data URL so media behind the
// sender backend's token auth still reaches the model.
func (c *Client) visionCall(ctx context.Context, imageURL, prompt string, maxTokens int, temperature float32) (string, error) {
	data, mimeType, err := c.media.Fetch(ctx, imageURL)
	if err != nil {
		return "", fmt.Errorf("fetch image: %w", err)
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))

	// go-openai drops a zero temperature on marshalling; the smallest
	// non-zero value keeps extraction deterministic.
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: visionModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailAuto,
						},
					},
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt,
					},
				},
			},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("groq vision: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("groq vision: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// audioFileName gives the multipart upload a name whose extension matches
// the payload, which Whisper uses to pick a decoder.
func audioFileName(audioURL, mimeType string) string {
	if u, err := url.Parse(audioURL); err == nil {
		if ext := path.Ext(u.Path); ext != "" {
			return "audio" + ext
		}
	}
	switch {
	case strings.Contains(mimeType, "mpeg"), strings.Contains(mimeType, "mp3"):
		return "audio.mp3"
	case strings.Contains(mimeType, "wav"):
		return "audio.wav"
	case strings.Contains(mimeType, "mp4"), strings.Contains(mimeType, "m4a"):
		return "audio.m4a"
	case strings.Contains(mimeType, "webm"):
		return "audio.webm"
	default:
		return "audio.ogg"
	}
}
