// Package jsonutil decodes JSON answers from the model. Even with a JSON
// response MIME type the model occasionally wraps its answer in a markdown
// fence or adds a sentence before it, so decoding tries the text as-is first
// and only then falls back to the outermost object.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when the text contains no JSON object at all.
var ErrNoJSON = errors.New("no JSON object found")

// StripMarkdownFences removes a ```json ... ``` (or bare ```) wrapper.
// Text without a leading fence is returned trimmed but otherwise unchanged.
func StripMarkdownFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	// Drop the opening fence line, including any language tag.
	nl := strings.IndexByte(text, '\n')
	if nl < 0 {
		return text
	}
	body := text[nl+1:]

	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// ExtractObject returns the span from the first '{' to the last '}'.
func ExtractObject(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", ErrNoJSON
	}
	end := strings.LastIndexByte(text, '}')
	if end < start {
		return "", fmt.Errorf("%w: unterminated object", ErrNoJSON)
	}
	return text[start : end+1], nil
}

// DecodeObject decodes raw model output into T. The input must be (or
// contain) a single JSON object; arrays and scalars are rejected.
func DecodeObject[T any](raw string) (T, error) {
	var zero T

	text := strings.TrimPrefix(StripMarkdownFences(raw), "\ufeff")
	var direct T
	if err := unmarshalObject([]byte(text), &direct); err == nil {
		return direct, nil
	}

	obj, err := ExtractObject(text)
	if err != nil {
		return zero, fmt.Errorf("%w (raw length: %d)", err, len(raw))
	}
	var extracted T
	if err := unmarshalObject([]byte(obj), &extracted); err != nil {
		return zero, fmt.Errorf("invalid JSON: %w (text: %s)", err, Preview(obj, 200))
	}
	return extracted, nil
}

func unmarshalObject(data []byte, v any) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return ErrNoJSON
	}
	return json.Unmarshal(data, v)
}

// Preview truncates s to at most n bytes for log and error output.
func Preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
