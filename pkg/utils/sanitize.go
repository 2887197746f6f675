package utils

import (
	"html"
	"strings"
	"unicode"
)

// SanitizeText trims and HTML-escapes free-text input such as status notes
// and failure reasons before it is stored or broadcast.
func SanitizeText(input string) string {
	trimmed := strings.TrimSpace(input)
	return html.EscapeString(removeControlChars(trimmed))
}

func removeControlChars(s string) string {
	var result strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}
