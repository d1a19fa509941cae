package database

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeLabel normalizes a person label for comparison (lowercase, no diacritics,
// spaces for dashes and underscores, collapsed whitespace).
func NormalizeLabel(label string) string {
	label = RemoveDiacritics(label)
	label = strings.ToLower(label)
	label = strings.NewReplacer("-", " ", "_", " ").Replace(label)
	return strings.Join(strings.Fields(label), " ")
}
