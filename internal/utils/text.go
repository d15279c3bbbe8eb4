package utils

import (
	"strings"
	"unicode/utf8"
)

// TruncateText shortens text to maxLen runes and appends "..." when cut
func TruncateText(text string, maxLen int) string {
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxLen]) + "..."
}

// ContainsAnyFold reports whether text contains any of the keywords, ignoring case
func ContainsAnyFold(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
