package deepgram

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mijoai/mijo-gateway/internal/infrastructure/provider"
)

type staticMedia struct {
	data []byte
	mime string
}

func (m staticMedia) Fetch(_ context.Context, _ string) ([]byte, string, error) {
	return m.data, m.mime, nil
}

func TestTranscribeParsesListenResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/listen" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Token dg-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		if got := r.URL.Query().Get("model"); got != "nova-2" {
			t.Errorf("unexpected model %q", got)
		}
		if got := r.URL.Query().Get("language"); got != "ar" {
			t.Errorf("unexpected language %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "audio/ogg" {
			t.Errorf("unexpected content type %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "opus-bytes" {
			t.Errorf("audio bytes not forwarded, got %q", body)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"metadata": {"duration": 4.25},
			"results": {"channels": [{"alternatives": [
				{"transcript": "مرحبا يا صديقي", "confidence": 0.97}
			]}]}
		}`)
	}))
	defer server.Close()

	client := New("dg-key", server.URL, staticMedia{data: []byte("opus-bytes"), mime: "audio/ogg"}, nil)
	got, err := client.Transcribe(context.Background(), "audio-key", "ar")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Text != "مرحبا يا صديقي" {
		t.Fatalf("unexpected transcript %q", got.Text)
	}
	if got.Confidence != 0.97 || got.Duration != 4.25 {
		t.Fatalf("unexpected metadata: confidence %v duration %v", got.Confidence, got.Duration)
	}
	if got.Provider != "deepgram" || got.Model != "nova-2" {
		t.Fatalf("unexpected attribution: %q/%q", got.Provider, got.Model)
	}
	if got.Language != "ar" {
		t.Fatalf("requested language not echoed, got %q", got.Language)
	}
}

func TestTranscribeOmitsEmptyLanguage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("language") {
			t.Errorf("language must be omitted when unset, query %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"metadata":{"duration":1},"results":{"channels":[{"alternatives":[{"transcript":"hi","confidence":0.5}]}]}}`)
	}))
	defer server.Close()

	client := New("dg-key", server.URL, staticMedia{data: []byte("x"), mime: "audio/wav"}, nil)
	if _, err := client.Transcribe(context.Background(), "audio-key", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTranscribeSurfacesHTTPStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"err_code":"TOO_MANY_REQUESTS"}`)
	}))
	defer server.Close()

	client := New("dg-key", server.URL, staticMedia{data: []byte("x"), mime: "audio/wav"}, nil)
	_, err := client.Transcribe(context.Background(), "audio-key", "")
	if err == nil {
		t.Fatal("expected error")
	}
	var httpErr *provider.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected HTTPError 429, got %v", err)
	}
	if kind := provider.ClassifyError(err); kind != provider.FailureRate {
		t.Fatalf("expected rate failure, got %q", kind)
	}
}

func TestTranscribeRejectsEmptyAlternatives(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"metadata":{"duration":0},"results":{"channels":[]}}`)
	}))
	defer server.Close()

	client := New("dg-key", server.URL, staticMedia{data: []byte("x"), mime: "audio/wav"}, nil)
	if _, err := client.Transcribe(context.Background(), "audio-key", ""); err == nil {
		t.Fatal("expected error for empty channels")
	}
}
