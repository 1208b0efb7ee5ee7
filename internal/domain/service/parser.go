package service

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ParsedAnswer 模型输出解析结果
type ParsedAnswer struct {
	Answer          string
	SuggestedAnswer string
}

var (
	answerRe    = regexp.MustCompile(`"answer"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	suggestedRe = regexp.MustCompile(`"suggested_answer"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// ParseAnswer recovers the answer object from raw model output. Models
// asked for bare JSON still wrap it in code fences, prepend prose or
// return malformed text often enough that a single Unmarshal would drop
// a large share of otherwise usable answers, so recovery steps run in
// order from strict to lenient:
//
//  1. the raw text as JSON;
//  2. the text with code fences stripped;
//  3. the first balanced {...} region;
//  4. regex extraction of the two string fields;
//  5. the whole text as the answer.
//
// A nested answer (the model stringifying the object into the answer
// field) is unwrapped one level.
func ParseAnswer(raw string) ParsedAnswer {
	trimmed := strings.TrimSpace(raw)

	if p, ok := decodeAnswer(trimmed); ok {
		return unwrapOnce(p)
	}
	if p, ok := decodeAnswer(stripFences(trimmed)); ok {
		return unwrapOnce(p)
	}
	if region := braceRegion(trimmed); region != "" {
		if p, ok := decodeAnswer(region); ok {
			return unwrapOnce(p)
		}
	}
	if p, ok := regexAnswer(trimmed); ok {
		return unwrapOnce(p)
	}
	return ParsedAnswer{Answer: trimmed}
}

// decodeAnswer parses s as the answer object. Valid object syntax alone
// is not enough: an empty answer field means the step failed and a more
// lenient one should run.
func decodeAnswer(s string) (ParsedAnswer, bool) {
	var out struct {
		Answer          string `json:"answer"`
		SuggestedAnswer string `json:"suggested_answer"`
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return ParsedAnswer{}, false
	}
	answer := strings.TrimSpace(out.Answer)
	if answer == "" {
		return ParsedAnswer{}, false
	}
	return ParsedAnswer{Answer: answer, SuggestedAnswer: strings.TrimSpace(out.SuggestedAnswer)}, true
}

// stripFences removes a surrounding markdown code fence, including a
// language tag on the opening line.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = s[3:]
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// braceRegion returns the first balanced top-level JSON object in s, or
// "" when none closes. Braces inside string literals do not count.
func braceRegion(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// regexAnswer pulls the two fields straight out of broken JSON. The
// captured bodies are JSON string literals and still need unescaping.
func regexAnswer(s string) (ParsedAnswer, bool) {
	m := answerRe.FindStringSubmatch(s)
	if m == nil {
		return ParsedAnswer{}, false
	}
	answer := strings.TrimSpace(unescapeJSONString(m[1]))
	if answer == "" {
		return ParsedAnswer{}, false
	}
	p := ParsedAnswer{Answer: answer}
	if sm := suggestedRe.FindStringSubmatch(s); sm != nil {
		p.SuggestedAnswer = strings.TrimSpace(unescapeJSONString(sm[1]))
	}
	return p, true
}

func unescapeJSONString(body string) string {
	var s string
	if err := json.Unmarshal([]byte(`"`+body+`"`), &s); err != nil {
		return body
	}
	return s
}

// unwrapOnce replaces a nested object answer with its inner answer. One
// level only; a doubly nested object stays as text.
func unwrapOnce(p ParsedAnswer) ParsedAnswer {
	inner, ok := decodeAnswer(p.Answer)
	if !ok {
		return p
	}
	p.Answer = inner.Answer
	if p.SuggestedAnswer == "" {
		p.SuggestedAnswer = inner.SuggestedAnswer
	}
	return p
}
