// Package jsonx recovers JSON from model output: complete documents wrapped in prose or
// code fences, and best-effort previews of documents that are still being streamed.
package jsonx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/futig/risk-report-backend/internal/entity"
)

var fenced = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// Extract returns the JSON document contained in text. It tries the whole text, then every
// fenced code block, then the outermost bracket-delimited span.
func Extract(text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", entity.ErrInvalidModelOutput)
	}

	if json.Valid([]byte(text)) {
		return json.RawMessage(text), nil
	}

	for _, m := range fenced.FindAllStringSubmatch(text, -1) {
		candidate := strings.TrimSpace(m[1])
		if candidate != "" && json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), nil
		}
	}

	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(text, pair[0])
		end := strings.LastIndex(text, pair[1])
		if start < 0 || end <= start {
			continue
		}
		candidate := text[start : end+1]
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), nil
		}
	}

	return nil, fmt.Errorf("%w: no JSON document found", entity.ErrInvalidModelOutput)
}

// ExtractObject is Extract restricted to top-level objects.
func ExtractObject(text string) (map[string]json.RawMessage, error) {
	raw, err := Extract(text)
	if err != nil {
		return nil, err
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, fmt.Errorf("%w: top-level value is not an object", entity.ErrInvalidModelOutput)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrInvalidModelOutput, err)
	}
	return obj, nil
}
