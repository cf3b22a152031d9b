package utils

import "strings"

// CountTokens estimates tokens at roughly 4 characters per token.
// Any non-empty text counts as at least one token.
func CountTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	tokens := len([]rune(text)) / 4
	if tokens == 0 {
		return 1
	}
	return tokens
}

// TruncateToTokenLimit cuts text to about limit tokens using the same heuristic.
func TruncateToTokenLimit(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	charLimit := limit * 4
	if charLimit >= len(runes) {
		return text
	}
	return string(runes[:charLimit])
}

// TruncateLines is TruncateToTokenLimit that backs off to the last complete
// line, so tabular text never ends in a partial record. A limit shorter than
// the first line yields "". The second result reports whether anything was cut.
func TruncateLines(text string, limit int) (string, bool) {
	cut := TruncateToTokenLimit(text, limit)
	if cut == text {
		return text, false
	}
	i := strings.LastIndexByte(cut, '\n')
	if i < 0 {
		return "", true
	}
	return cut[:i+1], true
}

// TokenBreakdown returns the estimated token count of each labeled section.
func TokenBreakdown(sections map[string]string) map[string]int {
	out := make(map[string]int, len(sections))
	for k, v := range sections {
		out[k] = CountTokens(v)
	}
	return out
}
