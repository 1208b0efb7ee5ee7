package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mijoai/mijo-gateway/internal/domain/entity"
)

// MediaSource resolves a media key or URL to raw bytes plus a MIME type.
// Adapters inline the bytes so media behind the sender backend's auth
// still reaches providers that cannot fetch it themselves.
type MediaSource interface {
	Fetch(ctx context.Context, keyOrURL string) (data []byte, mimeType string, err error)
}

// GenerateOptions tunes one text generation call.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float32
}

// Transcriber turns spoken audio into text.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audioURL, language string) (*entity.TranscriptResult, error)
}

// ImageDescriber produces a natural-language description of an image.
type ImageDescriber interface {
	Name() string
	Describe(ctx context.Context, imageURL, prompt string) (*entity.DescriptionResult, error)
}

// TextExtractor reads the literal text content out of an image.
type TextExtractor interface {
	Name() string
	ExtractText(ctx context.Context, imageURL string, languages []string) (*entity.OCRResult, error)
}

// TextGenerator runs a plain prompt/completion exchange.
type TextGenerator interface {
	Name() string
	Generate(ctx context.Context, prompt, systemPrompt string, opts GenerateOptions) (*entity.GenerationResult, error)
}

// NoTextSentinel is what extraction models answer when an image carries no
// readable text. ParseOCRText folds it into HasText=false.
const NoTextSentinel = "NO_TEXT"

// BuildOCRPrompt returns the strict extract-only instruction shared by
// every extraction adapter, so switching providers never changes the
// contract.
func BuildOCRPrompt(languages []string) string {
	var b strings.Builder
	b.WriteString("Extract all text from this image exactly as it appears. ")
	b.WriteString("Preserve the original language, line breaks and reading order. ")
	b.WriteString("Return only the extracted text, with no commentary, labels or translation. ")
	b.WriteString("If the image contains no readable text, return exactly ")
	b.WriteString(NoTextSentinel)
	b.WriteString(".")
	if len(languages) > 0 {
		b.WriteString(" The text is likely in: ")
		b.WriteString(strings.Join(languages, ", "))
		b.WriteString(".")
	}
	return b.String()
}

// ParseOCRText normalizes a raw model answer into (text, hasText).
func ParseOCRText(raw string) (string, bool) {
	text := strings.TrimSpace(raw)
	if text == "" || strings.HasPrefix(text, NoTextSentinel) {
		return "", false
	}
	return text, true
}

// FailureKind buckets provider errors for logs and stats.
type FailureKind string

const (
	FailureAuth      FailureKind = "auth"
	FailureRate      FailureKind = "rate"
	FailureTransient FailureKind = "transient"
	FailureMalformed FailureKind = "malformed"
)

// HTTPError carries the status of a failed raw-HTTP provider call.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("provider API error %d: %s", e.StatusCode, body)
}

// ClassifyError maps any adapter error onto a FailureKind. It understands
// go-openai and genai API errors plus the HTTPError the raw adapters
// return; everything else counts as transient.
func ClassifyError(err error) FailureKind {
	if err == nil {
		return FailureTransient
	}

	var status int
	var openaiErr *openai.APIError
	var genaiErr genai.APIError
	var httpErr *HTTPError
	switch {
	case errors.As(err, &openaiErr):
		status = openaiErr.HTTPStatusCode
	case errors.As(err, &genaiErr):
		status = genaiErr.Code
	case errors.As(err, &httpErr):
		status = httpErr.StatusCode
	default:
		return FailureTransient
	}

	switch {
	case status == 401 || status == 403:
		return FailureAuth
	case status == 429:
		return FailureRate
	case status == 400 || status == 404 || status == 422:
		return FailureMalformed
	default:
		return FailureTransient
	}
}
