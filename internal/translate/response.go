package translate

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var codeFenceRe = regexp.MustCompile("```(?:json)?\\s*")

// parseResponse extracts the translated items from a model reply and checks
// them against the request.
func parseResponse(provider, text string, items []Item) ([]Item, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("no text in %s response", provider)
	}
	text = cleanJSONResponse(text)

	results, err := extractResults(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w (response: %s)", err, truncateString(text, 200))
	}
	return matchResults(items, results)
}

func cleanJSONResponse(s string) string {
	s = codeFenceRe.ReplaceAllString(strings.TrimSpace(s), "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// fixInvalidEscapes doubles backslashes that do not start a JSON escape, so
// a literal \N from subtitle markup survives decoding.
func fixInvalidEscapes(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i == len(s)-1 {
			sb.WriteByte(s[i])
			continue
		}
		switch next := s[i+1]; next {
		case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
			sb.WriteByte('\\')
			sb.WriteByte(next)
		default:
			sb.WriteString(`\\`)
			sb.WriteByte(next)
		}
		i++
	}
	return sb.String()
}

// extractResults finds the first JSON value in text that decodes into a
// non-empty result list, either bare or under a wrapper key.
func extractResults(text string) ([]Item, error) {
	text = fixInvalidEscapes(text)

	for i := 0; i < len(text); i++ {
		if text[i] != '[' && text[i] != '{' {
			continue
		}
		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&raw); err != nil {
			continue
		}
		if results, ok := resultsFrom(raw); ok {
			return results, nil
		}
	}
	return nil, errors.New("no valid translation JSON found in response")
}

func resultsFrom(raw json.RawMessage) ([]Item, bool) {
	var results []Item
	if err := json.Unmarshal(raw, &results); err == nil && hasText(results) {
		return results, true
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, false
	}
	for _, key := range []string{"results", "translations", "data", "items"} {
		if field, ok := wrapper[key]; ok {
			if err := json.Unmarshal(field, &results); err == nil && hasText(results) {
				return results, true
			}
		}
	}
	for _, field := range wrapper {
		if err := json.Unmarshal(field, &results); err == nil && hasText(results) {
			return results, true
		}
	}
	return nil, false
}

func hasText(results []Item) bool {
	for _, r := range results {
		if r.Text != "" {
			return true
		}
	}
	return false
}

// matchResults orders results like items and fails when any requested index
// is missing. Unknown indices are ignored.
func matchResults(items, results []Item) ([]Item, error) {
	byIndex := make(map[int]string, len(results))
	for _, r := range results {
		byIndex[r.Index] = r.Text
	}

	out := make([]Item, len(items))
	var missing []int
	for i, it := range items {
		text, ok := byIndex[it.Index]
		if !ok || strings.TrimSpace(text) == "" {
			missing = append(missing, it.Index)
			continue
		}
		out[i] = Item{Index: it.Index, Text: text}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("expected %d results, missing indices %v", len(items), missing)
	}
	return out, nil
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
