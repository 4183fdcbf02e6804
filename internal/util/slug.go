package util

import (
	"strings"
	"unicode"
)

// Slug converts a task name to a kebab-case file id. It lowercases the
// string, replaces spaces and underscores with hyphens, drops other
// non-alphanumeric characters, collapses consecutive hyphens, and trims
// leading/trailing hyphens.
func Slug(s string) string {
	var result strings.Builder

	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(unicode.ToLower(r))
		} else if r == ' ' || r == '_' || r == '-' {
			result.WriteRune('-')
		}
		// Other characters are dropped
	}

	str := result.String()
	for strings.Contains(str, "--") {
		str = strings.ReplaceAll(str, "--", "-")
	}

	return strings.Trim(str, "-")
}
