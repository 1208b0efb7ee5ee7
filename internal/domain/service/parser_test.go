package service

import "testing"

func TestParseAnswer(t *testing.T) {
	tests := []struct {
		name          string
		raw           string
		wantAnswer    string
		wantSuggested string
	}{
		{
			name:          "clean object",
			raw:           `{"answer": "أهلا بك", "suggested_answer": "تفضل"}`,
			wantAnswer:    "أهلا بك",
			wantSuggested: "تفضل",
		},
		{
			name:       "fenced object with language tag",
			raw:        "```json\n{\"answer\": \"أهلا\", \"suggested_answer\": \"\"}\n```",
			wantAnswer: "أهلا",
		},
		{
			name:       "fenced object without language tag",
			raw:        "```\n{\"answer\": \"أهلا\"}\n```",
			wantAnswer: "أهلا",
		},
		{
			name:          "prose around the object",
			raw:           "بالتأكيد، هذا هو الرد:\n{\"answer\": \"نعم\", \"suggested_answer\": \"نعم بالطبع\"}\nأتمنى أن يفيدك.",
			wantAnswer:    "نعم",
			wantSuggested: "نعم بالطبع",
		},
		{
			name:          "braces inside string values",
			raw:           `قبل {"answer": "الرمز {x} هنا", "suggested_answer": "جرب {y}"} بعد`,
			wantAnswer:    "الرمز {x} هنا",
			wantSuggested: "جرب {y}",
		},
		{
			name:       "truncated json recovered by field extraction",
			raw:        `{"answer": "إجابة ناقصة", "suggested_answer": "اقتراح`,
			wantAnswer: "إجابة ناقصة",
		},
		{
			name:       "escaped quotes survive field extraction",
			raw:        `{"answer": "قال \"مرحبا\" لي", broken`,
			wantAnswer: `قال "مرحبا" لي`,
		},
		{
			name:       "plain text becomes the answer",
			raw:        "  لا أعرف الإجابة عن ذلك.  ",
			wantAnswer: "لا أعرف الإجابة عن ذلك.",
		},
		{
			name:       "empty answer field is not a parse",
			raw:        `{"answer": ""}`,
			wantAnswer: `{"answer": ""}`,
		},
		{
			name:          "stringified object unwraps once",
			raw:           `{"answer": "{\"answer\": \"الإجابة الداخلية\", \"suggested_answer\": \"اقتراح داخلي\"}"}`,
			wantAnswer:    "الإجابة الداخلية",
			wantSuggested: "اقتراح داخلي",
		},
		{
			name:          "outer suggested answer wins over nested",
			raw:           `{"answer": "{\"answer\": \"داخلي\", \"suggested_answer\": \"داخلي بديل\"}", "suggested_answer": "خارجي"}`,
			wantAnswer:    "داخلي",
			wantSuggested: "خارجي",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseAnswer(tt.raw)
			if got.Answer != tt.wantAnswer {
				t.Errorf("Answer = %q, want %q", got.Answer, tt.wantAnswer)
			}
			if got.SuggestedAnswer != tt.wantSuggested {
				t.Errorf("SuggestedAnswer = %q, want %q", got.SuggestedAnswer, tt.wantSuggested)
			}
		})
	}
}

func TestBraceRegion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a": 1}`, `{"a": 1}`},
		{`x {"a": {"b": 2}} y {"c": 3}`, `{"a": {"b": 2}}`},
		{`{"a": "}"}`, `{"a": "}"}`},
		{`no braces here`, ""},
		{`{"never": "closes"`, ""},
	}
	for _, tt := range tests {
		if got := braceRegion(tt.in); got != tt.want {
			t.Errorf("braceRegion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
