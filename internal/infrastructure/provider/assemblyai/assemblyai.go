// Package assemblyai adapts the AssemblyAI transcription API to the
// Transcriber interface. The API is asynchronous: upload the audio,
// create a transcript job, then poll until it reaches a terminal status.
package assemblyai

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mijoai/mijo-gateway/internal/domain/entity"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/provider"
)

const (
	defaultBaseURL = "https://api.assemblyai.com"
	speechModel    = "universal"

	pollInterval = 3 * time.Second
)

type Client struct {
	baseURL string
	apiKey  string
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
		media:   media,
		client:  &http.Client{Transport: transport},
		logger:  logger.With(zap.String("provider", "assemblyai")),
	}
}

func (c *Client) Name() string { return "assemblyai" }

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptRequest struct {
	AudioURL     string `json:"audio_url"`
	LanguageCode string `json:"language_code,omitempty"`
	SpeechModel  string `json:"speech_model"`
}

type transcriptResponse struct {
	ID            string  `json:"id"`
	Status        string  `json:"status"`
	Text          string  `json:"text"`
	LanguageCode  string  `json:"language_code"`
	Confidence    float64 `json:"confidence"`
	AudioDuration float64 `json:"audio_duration"`
	Error         string  `json:"error"`
}

func (c *Client) Transcribe(ctx context.Context, audioURL, language string) (*entity.TranscriptResult, error) {
	data, mimeType, err := c.media.Fetch(ctx, audioURL)
	if err != nil {
		return nil, fmt.Errorf("fetch audio: %w", err)
	}

	uploadURL, err := c.upload(ctx, data, mimeType)
	if err != nil {
		return nil, err
	}

	id, err := c.createTranscript(ctx, uploadURL, language)
	if err != nil {
		return nil, err
	}

	final, err := c.pollTranscript(ctx, id)
	if err != nil {
		return nil, err
	}

	return &entity.TranscriptResult{
		Text:       strings.TrimSpace(final.Text),
		Language:   final.LanguageCode,
		Confidence: final.Confidence,
		Duration:   final.AudioDuration,
		Provider:   c.Name(),
		Model:      speechModel,
	}, nil
}

func (c *Client) upload(ctx context.Context, data []byte, mimeType string) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v2/upload", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	httpReq.Header.Set("Authorization", c.apiKey)
	if mimeType != "" {
		httpReq.Header.Set("Content-Type", mimeType)
	}

	var parsed uploadResponse
	if err := c.do(httpReq, &parsed); err != nil {
		return "", fmt.Errorf("upload audio: %w", err)
	}
	if parsed.UploadURL == "" {
		return "", fmt.Errorf("upload audio: empty upload_url")
	}
	return parsed.UploadURL, nil
}

func (c *Client) createTranscript(ctx context.Context, uploadURL, language string) (string, error) {
	body, err := json.Marshal(transcriptRequest{
		AudioURL:     uploadURL,
		LanguageCode: language,
		SpeechModel:  speechModel,
	})
	if err != nil {
		return "", fmt.Errorf("marshal transcript request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v2/transcript", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create transcript request: %w", err)
	}
	httpReq.Header.Set("Authorization", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	var parsed transcriptResponse
	if err := c.do(httpReq, &parsed); err != nil {
		return "", fmt.Errorf("create transcript: %w", err)
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("create transcript: empty id")
	}
	return parsed.ID, nil
}

// pollTranscript blocks until the job is completed or errored. The caller's
// context bounds the wait, so a stuck job cannot hold a worker forever.
func (c *Client) pollTranscript(ctx context.Context, id string) (*transcriptResponse, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/v2/transcript/"+id, nil)
		if err != nil {
			return nil, fmt.Errorf("create poll request: %w", err)
		}
		httpReq.Header.Set("Authorization", c.apiKey)

		var parsed transcriptResponse
		if err := c.do(httpReq, &parsed); err != nil {
			return nil, fmt.Errorf("poll transcript: %w", err)
		}

		switch parsed.Status {
		case "completed":
			return &parsed, nil
		case "error":
			return nil, fmt.Errorf("transcription failed: %s", parsed.Error)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &provider.HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
