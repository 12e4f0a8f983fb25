package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// ExtractJSON pulls a JSON object out of a model reply. Models wrap JSON in
// fenced code blocks, return it raw, or bury it in free text; all three are
// accepted. Returns an error only when no brace-balanced object can be
// found or the candidate fails to parse.
func ExtractJSON(text string, out any) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("empty response")
	}

	// Fenced code block first.
	if m := fencedJSONPattern.FindStringSubmatch(text); len(m) == 2 {
		if err := json.Unmarshal([]byte(m[1]), out); err == nil {
			return nil
		}
	}

	// The whole reply as raw JSON.
	if strings.HasPrefix(text, "{") {
		if err := json.Unmarshal([]byte(text), out); err == nil {
			return nil
		}
	}

	// First brace-balanced substring in free text.
	if candidate := braceBalanced(text); candidate != "" {
		if err := json.Unmarshal([]byte(candidate), out); err == nil {
			return nil
		}
	}

	return fmt.Errorf("no parseable JSON object in response")
}

// braceBalanced returns the first {...} substring with balanced braces,
// respecting JSON string literals and escapes.
func braceBalanced(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}
