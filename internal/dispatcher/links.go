package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mijoai/mijo-gateway/internal/domain/entity"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/provider"
)

// link is one provider step of a chain, bound to a concrete job payload.
type link struct {
	provider string
	service  string
	invoke   func(ctx context.Context) (any, error)
}

// serviceName maps a chain step onto its rate-limit policy row. Groq
// meters transcription under its own "whisper" budget; everything else
// follows the kind.
func serviceName(providerName string, kind entity.JobKind) string {
	if providerName == "groq" && kind == entity.JobKindAudio {
		return "whisper"
	}
	switch kind {
	case entity.JobKindAudio:
		return "audio"
	case entity.JobKindImage, entity.JobKindOCR:
		return "vision"
	case entity.JobKindLLM:
		return "llm"
	default:
		return string(kind)
	}
}

// linksTemplate reports the chain steps a kind would use, without a
// payload. Run uses it to skip pools that have no providers.
func (d *Dispatcher) linksTemplate(kind entity.JobKind) []string {
	var names []string
	switch kind {
	case entity.JobKindAudio:
		for _, t := range d.chains.Audio {
			names = append(names, t.Name())
		}
	case entity.JobKindImage:
		for _, p := range d.chains.Image {
			names = append(names, p.Name())
		}
	case entity.JobKindOCR:
		for _, p := range d.chains.OCR {
			names = append(names, p.Name())
		}
	case entity.JobKindLLM:
		for _, p := range d.chains.LLM {
			names = append(names, p.Name())
		}
	}
	return names
}

// links decodes the job payload and binds every chain step to it.
func (d *Dispatcher) links(job *entity.Job) ([]link, error) {
	switch job.Kind {
	case entity.JobKindAudio:
		var p entity.AudioJobPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode audio payload: %w", err)
		}
		links := make([]link, 0, len(d.chains.Audio))
		for _, t := range d.chains.Audio {
			links = append(links, link{
				provider: t.Name(),
				service:  serviceName(t.Name(), job.Kind),
				invoke: func(ctx context.Context) (any, error) {
					return t.Transcribe(ctx, p.AudioURL, p.Language)
				},
			})
		}
		return links, nil

	case entity.JobKindImage:
		var p entity.ImageJobPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode image payload: %w", err)
		}
		links := make([]link, 0, len(d.chains.Image))
		for _, desc := range d.chains.Image {
			links = append(links, link{
				provider: desc.Name(),
				service:  serviceName(desc.Name(), job.Kind),
				invoke: func(ctx context.Context) (any, error) {
					return desc.Describe(ctx, p.ImageURL, p.Prompt)
				},
			})
		}
		return links, nil

	case entity.JobKindOCR:
		var p entity.OCRJobPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode ocr payload: %w", err)
		}
		links := make([]link, 0, len(d.chains.OCR))
		for _, ex := range d.chains.OCR {
			links = append(links, link{
				provider: ex.Name(),
				service:  serviceName(ex.Name(), job.Kind),
				invoke: func(ctx context.Context) (any, error) {
					return ex.ExtractText(ctx, p.ImageURL, p.Languages)
				},
			})
		}
		return links, nil

	case entity.JobKindLLM:
		var p entity.LLMJobPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode llm payload: %w", err)
		}
		links := make([]link, 0, len(d.chains.LLM))
		for _, gen := range d.chains.LLM {
			links = append(links, link{
				provider: gen.Name(),
				service:  serviceName(gen.Name(), job.Kind),
				invoke: func(ctx context.Context) (any, error) {
					return gen.Generate(ctx, p.Prompt, p.SystemPrompt, providerOptions(p))
				},
			})
		}
		return links, nil

	default:
		return nil, fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

func providerOptions(p entity.LLMJobPayload) provider.GenerateOptions {
	return provider.GenerateOptions{
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
	}
}
