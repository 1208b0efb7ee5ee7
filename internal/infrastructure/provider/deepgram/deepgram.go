// Package deepgram adapts the Deepgram prerecorded-audio API to the
// Transcriber interface. Deepgram has no official Go SDK, so this is a
// plain HTTP client around POST /v1/listen.
package deepgram

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mijoai/mijo-gateway/internal/domain/entity"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/provider"
)

const (
	defaultBaseURL = "https://api.deepgram.com"
	defaultModel   = "nova-2"
)

type Client struct {
	baseURL string
	apiKey  string
	model   string
	media   provider.MediaSource
	client  *http.Client
	logger  *zap.Logger
}

var _ provider.Transcriber = (*Client)(nil)

func New(apiKey, baseURL string, media provider.MediaSource, logger *zap.Logger) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 300 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   defaultModel,
		media:   media,
		client:  &http.Client{Transport: transport},
		logger:  logger.With(zap.String("provider", "deepgram")),
	}
}

func (c *Client) Name() string { return "deepgram" }

// listenResponse mirrors the parts of the Deepgram payload we consume.
type listenResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe uploads the raw audio bytes inline. Deepgram can pull from a
// URL itself, but our media sits behind the sender backend's token auth,
// so we fetch and forward the bytes instead.
func (c *Client) Transcribe(ctx context.Context, audioURL, language string) (*entity.TranscriptResult, error) {
	data, mimeType, err := c.media.Fetch(ctx, audioURL)
	if err != nil {
		return nil, fmt.Errorf("fetch audio: %w", err)
	}

	query := url.Values{}
	query.Set("model", c.model)
	if language != "" {
		query.Set("language", language)
	}
	endpoint := c.baseURL + "/v1/listen?" + query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Token "+c.apiKey)
	if mimeType != "" {
		httpReq.Header.Set("Content-Type", mimeType)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &provider.HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed listenResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Results.Channels) == 0 || len(parsed.Results.Channels[0].Alternatives) == 0 {
		return nil, fmt.Errorf("empty response: no transcript alternatives")
	}

	best := parsed.Results.Channels[0].Alternatives[0]
	return &entity.TranscriptResult{
		Text:       strings.TrimSpace(best.Transcript),
		Language:   language,
		Confidence: best.Confidence,
		Duration:   parsed.Metadata.Duration,
		Provider:   c.Name(),
		Model:      c.model,
	}, nil
}
