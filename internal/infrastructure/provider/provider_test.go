package provider

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"google.golang.org/genai"

	openai "github.com/sashabaranov/go-openai"
)

func TestBuildOCRPrompt(t *testing.T) {
	plain := BuildOCRPrompt(nil)
	if !strings.Contains(plain, NoTextSentinel) {
		t.Fatalf("prompt must name the sentinel, got %q", plain)
	}
	if strings.Contains(plain, "likely in") {
		t.Fatalf("prompt without languages must not carry a language hint, got %q", plain)
	}

	hinted := BuildOCRPrompt([]string{"Arabic", "English"})
	if !strings.Contains(hinted, "The text is likely in: Arabic, English.") {
		t.Fatalf("expected language hint, got %q", hinted)
	}
}

func TestParseOCRText(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		text    string
		hasText bool
	}{
		{"plain", "hello world", "hello world", true},
		{"trimmed", "  مرحبا  \n", "مرحبا", true},
		{"empty", "", "", false},
		{"whitespace only", "  \n\t ", "", false},
		{"sentinel", "NO_TEXT", "", false},
		{"sentinel with punctuation", "NO_TEXT.", "", false},
		{"sentinel mid-sentence counts as text", "The sign says NO_TEXT", "The sign says NO_TEXT", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, hasText := ParseOCRText(tt.raw)
			if text != tt.text || hasText != tt.hasText {
				t.Fatalf("ParseOCRText(%q) = (%q, %v), want (%q, %v)",
					tt.raw, text, hasText, tt.text, tt.hasText)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"openai unauthorized", &openai.APIError{HTTPStatusCode: 401, Message: "bad key"}, FailureAuth},
		{"openai forbidden", &openai.APIError{HTTPStatusCode: 403, Message: "no access"}, FailureAuth},
		{"openai rate limited", &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}, FailureRate},
		{"openai bad request", &openai.APIError{HTTPStatusCode: 400, Message: "bad input"}, FailureMalformed},
		{"openai server error", &openai.APIError{HTTPStatusCode: 500, Message: "oops"}, FailureTransient},
		{"genai rate limited", genai.APIError{Code: 429, Message: "quota"}, FailureRate},
		{"genai not found", genai.APIError{Code: 404, Message: "no model"}, FailureMalformed},
		{"http error", &HTTPError{StatusCode: 422, Body: "unprocessable"}, FailureMalformed},
		{"wrapped http error", fmt.Errorf("poll transcript: %w", &HTTPError{StatusCode: 401}), FailureAuth},
		{"plain error", errors.New("connection refused"), FailureTransient},
		{"nil", nil, FailureTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Fatalf("ClassifyError(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestHTTPErrorTruncatesBody(t *testing.T) {
	err := &HTTPError{StatusCode: 500, Body: strings.Repeat("x", 500)}
	msg := err.Error()
	if len(msg) > 250 {
		t.Fatalf("error message not truncated, %d chars", len(msg))
	}
	if !strings.Contains(msg, "500") {
		t.Fatalf("error message missing status, got %q", msg)
	}
}
