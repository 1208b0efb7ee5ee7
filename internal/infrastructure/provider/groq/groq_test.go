package groq

import (
	"context"
	"encoding/json"
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

func TestAudioFileName(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		mimeType string
		want     string
	}{
		{"extension from url", "https://cdn.example.com/voice/note.mp3?sig=abc", "application/octet-stream", "audio.mp3"},
		{"bare key falls back to mime", "a1b2c3d4", "audio/wav", "audio.wav"},
		{"mpeg mime", "a1b2c3d4", "audio/mpeg", "audio.mp3"},
		{"m4a mime", "a1b2c3d4", "audio/mp4", "audio.m4a"},
		{"webm mime", "a1b2c3d4", "audio/webm", "audio.webm"},
		{"unknown mime defaults to ogg", "a1b2c3d4", "application/octet-stream", "audio.ogg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := audioFileName(tt.url, tt.mimeType); got != tt.want {
				t.Fatalf("audioFileName(%q, %q) = %q, want %q", tt.url, tt.mimeType, got, tt.want)
			}
		})
	}
}

func TestTranscribeParsesVerboseJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		_, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
		} else if header.Filename != "audio.ogg" {
			t.Errorf("unexpected upload name %q", header.Filename)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"task":     "transcribe",
			"language": "ar",
			"duration": 3.7,
			"text":     "  مرحبا بالعالم  ",
		})
	}))
	defer server.Close()

	client := New("test-key", server.URL, staticMedia{data: []byte("opus"), mime: "audio/ogg"}, nil)
	got, err := client.Transcribe(context.Background(), "a1b2c3", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Text != "مرحبا بالعالم" {
		t.Fatalf("expected trimmed transcript, got %q", got.Text)
	}
	if got.Language != "ar" || got.Duration != 3.7 {
		t.Fatalf("unexpected metadata: language %q duration %v", got.Language, got.Duration)
	}
	if got.Provider != "groq" || got.Model != whisperModel {
		t.Fatalf("unexpected attribution: %q/%q", got.Provider, got.Model)
	}
}

func TestExtractTextFoldsSentinel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "NO_TEXT"}},
			},
			"model": visionModel,
		})
	}))
	defer server.Close()

	client := New("test-key", server.URL, staticMedia{data: []byte{0xff, 0xd8}, mime: "image/jpeg"}, nil)
	got, err := client.ExtractText(context.Background(), "img-key", []string{"Arabic"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.HasText || got.Text != "" {
		t.Fatalf("sentinel should yield no text, got (%q, %v)", got.Text, got.HasText)
	}
	if len(got.Languages) != 1 || got.Languages[0] != "Arabic" {
		t.Fatalf("language hints not carried through: %v", got.Languages)
	}
}

func TestGenerateSendsSystemPrompt(t *testing.T) {
	var captured struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "إجابة"}},
			},
			"model": textModel,
		})
	}))
	defer server.Close()

	client := New("test-key", server.URL, staticMedia{}, nil)
	got, err := client.Generate(context.Background(), "سؤال", "أنت ميجو", provider.GenerateOptions{MaxTokens: 256, Temperature: 0.7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Text != "إجابة" {
		t.Fatalf("unexpected text %q", got.Text)
	}
	if captured.Model != textModel {
		t.Fatalf("unexpected model %q", captured.Model)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" || captured.Messages[0].Content != "أنت ميجو" {
		t.Fatalf("system prompt not sent first: %+v", captured.Messages)
	}
}
