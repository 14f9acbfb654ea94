package jsonutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned by Extract when the text holds no parseable JSON value.
var ErrNoJSON = errors.New("jsonutil: no JSON value found")

var fence = regexp.MustCompile("(?i)```json\\s*|\\s*```")

// Extract pulls a JSON document out of model output: code fences are removed
// and the text is cut from the first '{' or '[' to the last matching closer.
func Extract(text string) (json.RawMessage, error) {
	cleaned := strings.TrimSpace(fence.ReplaceAllString(text, ""))
	if cleaned == "" {
		return nil, ErrNoJSON
	}
	curly := strings.IndexByte(cleaned, '{')
	square := strings.IndexByte(cleaned, '[')
	start := -1
	switch {
	case curly != -1 && (square == -1 || curly < square):
		start = curly
	case square != -1:
		start = square
	}
	if start != -1 {
		cleaned = cleaned[start:]
		closer := byte('}')
		if cleaned[0] == '[' {
			closer = ']'
		}
		if end := strings.LastIndexByte(cleaned, closer); end != -1 {
			cleaned = cleaned[:end+1]
		}
	}
	if !json.Valid([]byte(cleaned)) {
		return nil, ErrNoJSON
	}
	return json.RawMessage(cleaned), nil
}

// MarshalNoEscape encodes v into JSON without escaping <, >, & into \u003c, etc.
func MarshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// Remove trailing newline from json.Encoder.Encode
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
