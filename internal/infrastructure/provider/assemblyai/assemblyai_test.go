package assemblyai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type staticMedia struct {
	data []byte
	mime string
}

func (m staticMedia) Fetch(_ context.Context, _ string) ([]byte, string, error) {
	return m.data, m.mime, nil
}

func TestTranscribeFullFlow(t *testing.T) {
	var uploadedBody string
	var createReq transcriptRequest

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/upload", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "aai-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		uploadedBody = string(body)
		json.NewEncoder(w).Encode(map[string]string{"upload_url": "https://cdn.assemblyai.com/upload/u1"})
	})
	mux.HandleFunc("/v2/transcript", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&createReq); err != nil {
			t.Errorf("decode transcript request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "t-1", "status": "queued"})
	})
	mux.HandleFunc("/v2/transcript/t-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":             "t-1",
			"status":         "completed",
			"text":           "مرحبا من الاختبار",
			"language_code":  "ar",
			"confidence":     0.91,
			"audio_duration": 6.5,
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := New("aai-key", server.URL, staticMedia{data: []byte("voice-bytes"), mime: "audio/ogg"}, nil)
	got, err := client.Transcribe(context.Background(), "audio-key", "ar")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if uploadedBody != "voice-bytes" {
		t.Fatalf("audio bytes not uploaded, got %q", uploadedBody)
	}
	if createReq.AudioURL != "https://cdn.assemblyai.com/upload/u1" {
		t.Fatalf("transcript not created from upload url, got %q", createReq.AudioURL)
	}
	if createReq.SpeechModel != speechModel || createReq.LanguageCode != "ar" {
		t.Fatalf("unexpected transcript request: %+v", createReq)
	}
	if got.Text != "مرحبا من الاختبار" || got.Language != "ar" {
		t.Fatalf("unexpected result: %+v", got)
	}
	if got.Confidence != 0.91 || got.Duration != 6.5 {
		t.Fatalf("unexpected metadata: confidence %v duration %v", got.Confidence, got.Duration)
	}
	if got.Provider != "assemblyai" || got.Model != speechModel {
		t.Fatalf("unexpected attribution: %q/%q", got.Provider, got.Model)
	}
}

func TestTranscribeOmitsEmptyLanguageCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/upload", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"upload_url": "https://cdn.assemblyai.com/upload/u2"})
	})
	mux.HandleFunc("/v2/transcript", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "language_code") {
			t.Errorf("language_code must be omitted when unset, body %s", body)
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "t-2", "status": "queued"})
	})
	mux.HandleFunc("/v2/transcript/t-2", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "t-2", "status": "completed", "text": "hi"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := New("aai-key", server.URL, staticMedia{data: []byte("x"), mime: "audio/wav"}, nil)
	if _, err := client.Transcribe(context.Background(), "audio-key", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTranscribeReportsJobError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/upload", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"upload_url": "https://cdn.assemblyai.com/upload/u3"})
	})
	mux.HandleFunc("/v2/transcript", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "t-3", "status": "queued"})
	})
	mux.HandleFunc("/v2/transcript/t-3", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "t-3",
			"status": "error",
			"error":  "audio file is corrupted",
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := New("aai-key", server.URL, staticMedia{data: []byte("x"), mime: "audio/wav"}, nil)
	_, err := client.Transcribe(context.Background(), "audio-key", "")
	if err == nil || !strings.Contains(err.Error(), "audio file is corrupted") {
		t.Fatalf("expected job error to surface, got %v", err)
	}
}
