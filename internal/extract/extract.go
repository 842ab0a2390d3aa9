// Package extract pulls JSON objects out of LLM text output.
//
// Models do not always return bare JSON: answers may be wrapped in prose or
// markdown fences. Extractors are swappable so that providers with a strict
// JSON mode can be parsed strictly while free-text providers use the lenient
// greedy match.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when no JSON object could be located in the text.
var ErrNoJSON = errors.New("no JSON object found in response")

// Extractor decodes a JSON object embedded in text into v.
type Extractor interface {
	Extract(text string, v any) error
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(text string, v any) error

// Extract calls f(text, v).
func (f ExtractorFunc) Extract(text string, v any) error {
	return f(text, v)
}

// greedyObject spans from the first '{' to the last '}'. It assumes a single
// object per response: two objects, or prose braces after the object, break it.
var greedyObject = regexp.MustCompile(`(?s)\{.*\}`)

// Greedy matches the first '{' through the last '}' and decodes that span.
var Greedy Extractor = ExtractorFunc(func(text string, v any) error {
	match := greedyObject.FindString(text)
	if match == "" {
		return ErrNoJSON
	}
	if err := json.Unmarshal([]byte(match), v); err != nil {
		return fmt.Errorf("decode greedy match: %w", err)
	}
	return nil
})

// Strict decodes the whole text, tolerating only surrounding whitespace and
// a markdown code fence.
var Strict Extractor = ExtractorFunc(func(text string, v any) error {
	body := trimFence(text)
	if body == "" {
		return ErrNoJSON
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("decode strict: %w", err)
	}
	return nil
})

func trimFence(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// Chain tries each extractor in order and returns the first success. If all
// fail, the last error is returned.
func Chain(extractors ...Extractor) Extractor {
	return ExtractorFunc(func(text string, v any) error {
		err := ErrNoJSON
		for _, e := range extractors {
			if err = e.Extract(text, v); err == nil {
				return nil
			}
		}
		return err
	})
}

// ExtractOr runs e and, on failure, stores fallback in v. It reports whether
// extraction succeeded. v must be a non-nil pointer to T.
func ExtractOr[T any](e Extractor, text string, v *T, fallback T) bool {
	var out T
	if err := e.Extract(text, &out); err != nil {
		*v = fallback
		return false
	}
	*v = out
	return true
}
