package session

import (
	"strings"
	"unicode"
)

// NormalizeTitle derives a filesystem-safe name from a user-supplied session
// title. Spaces become underscores, then every rune that is not a letter,
// digit, '-' or '_' is replaced with '_'. Deterministic: the same title
// always yields the same result.
func NormalizeTitle(title string) string {
	trimmed := strings.ReplaceAll(strings.TrimSpace(title), " ", "_")
	var b strings.Builder
	b.Grow(len(trimmed))
	for _, r := range trimmed {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
