// Package media resolves message attachments to raw bytes. Attachments
// arrive either as absolute URLs or as bare storage keys that live behind
// the sender backend's media endpoint.
package media

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mijoai/mijo-gateway/internal/infrastructure/provider"
)

// Kind buckets a MIME type into the extraction pipeline it feeds.
type Kind string

const (
	KindImage   Kind = "image"
	KindAudio   Kind = "audio"
	KindText    Kind = "text"
	KindUnknown Kind = "unknown"
)

// Classify maps a Content-Type onto a Kind. Parameters after ";" are
// ignored.
func Classify(mimeType string) Kind {
	parsed, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		parsed = strings.ToLower(strings.TrimSpace(mimeType))
	}
	switch {
	case strings.HasPrefix(parsed, "image/"):
		return KindImage
	case strings.HasPrefix(parsed, "audio/"):
		return KindAudio
	case parsed == "text/plain":
		return KindText
	default:
		return KindUnknown
	}
}

// Fetcher downloads media for the extraction adapters. Implements
// provider.MediaSource.
type Fetcher struct {
	baseURL string
	token   string
	query   string
	client  *http.Client
	logger  *zap.Logger
}

var _ provider.MediaSource = (*Fetcher)(nil)

func NewFetcher(baseURL, token, query string, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		query:   query,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger.With(zap.String("component", "media-fetcher")),
	}
}

// Fetch returns the media bytes and the normalized Content-Type.
func (f *Fetcher) Fetch(ctx context.Context, keyOrURL string) ([]byte, string, error) {
	target, err := f.resolve(keyOrURL)
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create media request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", fmt.Errorf("media backend returned %d: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read media body: %w", err)
	}
	return data, contentType(resp), nil
}

// Probe returns only the Content-Type, for classifying an attachment
// before its extraction job is enqueued. The body is discarded unread.
func (f *Fetcher) Probe(ctx context.Context, keyOrURL string) (string, error) {
	target, err := f.resolve(keyOrURL)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", target, nil)
	if err != nil {
		return "", fmt.Errorf("create media request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("probe media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("media backend returned %d", resp.StatusCode)
	}
	return contentType(resp), nil
}

// resolve turns a bare key into the sender backend's media URL. Absolute
// URLs pass through untouched.
func (f *Fetcher) resolve(keyOrURL string) (string, error) {
	if strings.HasPrefix(keyOrURL, "http://") || strings.HasPrefix(keyOrURL, "https://") {
		return keyOrURL, nil
	}
	if f.baseURL == "" {
		return "", fmt.Errorf("no sender backend configured for media key %q", keyOrURL)
	}

	params := url.Values{}
	params.Set("token", f.token)
	params.Set("eq", f.query)
	return fmt.Sprintf("%s/api/v1/media/%s?%s", f.baseURL, url.PathEscape(keyOrURL), params.Encode()), nil
}

func contentType(resp *http.Response) string {
	raw := resp.Header.Get("Content-Type")
	if raw == "" {
		return "application/octet-stream"
	}
	parsed, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return raw
	}
	return parsed
}
