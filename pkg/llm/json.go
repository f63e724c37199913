package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// thinkTagPattern matches <think>...</think> blocks some models emit before the answer.
var thinkTagPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

// codeFencePattern matches a markdown code fence line such as ```json.
var codeFencePattern = regexp.MustCompile("(?m)^\\s*```[a-zA-Z]*\\s*$")

// ErrNoJSON is returned when a response contains no parseable JSON.
var ErrNoJSON = errors.New("no valid JSON found in response")

// ExtractJSON extracts the first JSON object or array from an LLM response
// that may contain <think> tags, markdown code fences, or prose.
func ExtractJSON(response string) (string, error) {
	cleaned := thinkTagPattern.ReplaceAllString(response, "")
	cleaned = codeFencePattern.ReplaceAllString(cleaned, "")

	objStart := strings.IndexByte(cleaned, '{')
	arrStart := strings.IndexByte(cleaned, '[')

	candidates := [][2]byte{{'[', ']'}, {'{', '}'}}
	if objStart >= 0 && (arrStart < 0 || objStart < arrStart) {
		candidates[0], candidates[1] = candidates[1], candidates[0]
	}
	for _, c := range candidates {
		if s, ok := extractBalanced(cleaned, c[0], c[1]); ok && json.Valid([]byte(s)) {
			return s, nil
		}
	}

	trimmed := strings.TrimSpace(cleaned)
	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}
	return "", ErrNoJSON
}

// extractBalanced returns the first balanced structure opened by openCh,
// skipping brackets inside JSON strings.
func extractBalanced(s string, openCh, closeCh byte) (string, bool) {
	start := strings.IndexByte(s, openCh)
	if start < 0 {
		return "", false
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == openCh:
			depth++
		case c == closeCh:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
