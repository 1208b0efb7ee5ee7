package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mijoai/mijo-gateway/internal/domain/memory"
)

// OpenAIEmbedder generates embeddings via an OpenAI-compatible /embeddings
// endpoint (Ollama, vLLM, TEI and hosted services all expose this shape).
// Implements memory.Embedder.
//
// E5-family models expect a task prefix on the input text, so Embed always
// prepends "{prefix}: " before the call. Use memory.PrefixPassage for
// stored documents and memory.PrefixQuery for search queries.
type OpenAIEmbedder struct {
	baseURL   string
	apiKey    string
	model     string
	dimension int
	client    *http.Client
	logger    *zap.Logger
}

// embedRequest matches the OpenAI /embeddings payload
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embedResponse matches the OpenAI /embeddings response
type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// NewOpenAIEmbedder creates the embedding client. The dimension is taken
// from configuration rather than probed; every response is validated
// against it so a misconfigured model fails loudly on first use.
func NewOpenAIEmbedder(baseURL, apiKey, model string, dimension int, logger *zap.Logger) *OpenAIEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIEmbedder{
		baseURL:   baseURL,
		apiKey:    apiKey,
		model:     model,
		dimension: dimension,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With(zap.String("component", "embedder")),
	}
}

// Embed generates an embedding vector for a single prefixed text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text, prefix string) ([]float32, error) {
	input := text
	if prefix != "" {
		input = prefix + ": " + text
	}

	vectors, err := e.doEmbed(ctx, []string{input})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	if len(vectors[0]) != e.dimension {
		return nil, fmt.Errorf("embedding dimension mismatch: model %s returned %d, expected %d",
			e.model, len(vectors[0]), e.dimension)
	}
	return vectors[0], nil
}

// Model returns the configured model name.
func (e *OpenAIEmbedder) Model() string {
	return e.model
}

// Dimension returns the configured vector dimension.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// doEmbed calls the /embeddings endpoint.
func (e *OpenAIEmbedder) doEmbed(ctx context.Context, input []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	resp, err := e.post(ctx, body)
	if err != nil {
		// Retry once on network error
		e.logger.Warn("embed request failed, retrying", zap.Error(err))
		resp, err = e.post(ctx, body)
		if err != nil {
			return nil, fmt.Errorf("embed request failed after retry: %w", err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding service returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}
	if len(embedResp.Data) == 0 {
		return nil, fmt.Errorf("embedding service returned empty data array")
	}

	vectors := make([][]float32, len(embedResp.Data))
	for _, d := range embedResp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding service returned out-of-range index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) post(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
	return e.client.Do(req)
}

var _ memory.Embedder = (*OpenAIEmbedder)(nil)
