package utils

import (
	"strings"
	"unicode"
)

// SanitizeText drops control characters other than newline and tab and
// trims surrounding whitespace.
func SanitizeText(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
