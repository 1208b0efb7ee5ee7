package media

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		mimeType string
		want     Kind
	}{
		{"image/jpeg", KindImage},
		{"image/png", KindImage},
		{"audio/ogg", KindAudio},
		{"audio/ogg; codecs=opus", KindAudio},
		{"text/plain", KindText},
		{"text/plain; charset=utf-8", KindText},
		{"text/html", KindUnknown},
		{"application/pdf", KindUnknown},
		{"", KindUnknown},
	}
	for _, tt := range tests {
		if got := Classify(tt.mimeType); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.mimeType, got, tt.want)
		}
	}
}

func TestFetchResolvesBareKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/media/msg-42" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("token"); got != "tkn" {
			t.Errorf("unexpected token %q", got)
		}
		if got := r.URL.Query().Get("eq"); got != "except" {
			t.Errorf("unexpected eq %q", got)
		}
		w.Header().Set("Content-Type", "audio/ogg; codecs=opus")
		io.WriteString(w, "opus-bytes")
	}))
	defer server.Close()

	f := NewFetcher(server.URL, "tkn", "except", nil)
	data, mimeType, err := f.Fetch(context.Background(), "msg-42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "opus-bytes" {
		t.Fatalf("unexpected body %q", data)
	}
	if mimeType != "audio/ogg" {
		t.Fatalf("content type parameters not stripped, got %q", mimeType)
	}
}

func TestFetchPassesThroughAbsoluteURL(t *testing.T) {
	var backendHit bool
	direct := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cdn/img.png" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "image/png")
		io.WriteString(w, "png-bytes")
	}))
	defer direct.Close()
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backendHit = true
	}))
	defer backend.Close()

	f := NewFetcher(backend.URL, "tkn", "except", nil)
	data, mimeType, err := f.Fetch(context.Background(), direct.URL+"/cdn/img.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "png-bytes" || mimeType != "image/png" {
		t.Fatalf("unexpected result (%q, %q)", data, mimeType)
	}
	if backendHit {
		t.Fatal("absolute URL must not touch the sender backend")
	}
}

func TestFetchRejectsKeyWithoutBackend(t *testing.T) {
	f := NewFetcher("", "", "", nil)
	if _, _, err := f.Fetch(context.Background(), "bare-key"); err == nil {
		t.Fatal("expected error for bare key without backend")
	}
}

func TestFetchSurfacesBackendStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	f := NewFetcher(server.URL, "t", "q", nil)
	_, _, err := f.Fetch(context.Background(), "missing")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404 in error, got %v", err)
	}
}

func TestProbeReturnsContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		io.WriteString(w, "jpeg-bytes")
	}))
	defer server.Close()

	f := NewFetcher(server.URL, "t", "q", nil)
	mimeType, err := f.Probe(context.Background(), "img-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mimeType != "image/jpeg" {
		t.Fatalf("unexpected content type %q", mimeType)
	}
}
