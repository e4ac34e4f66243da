package match

import (
	"strings"
	"unicode"
)

// NormalizeID canonicalizes a national identifier: whitespace and hyphens
// are stripped, letters uppercased. Roll exports and household records
// disagree on punctuation far more often than on the digits themselves.
func NormalizeID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		if unicode.IsSpace(r) || r == '-' {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// Hyphenate624 formats a normalized 12-digit identifier in the standard
// NNNNNN-NN-NNNN spelling. Returns "" for anything that is not exactly
// twelve digits.
func Hyphenate624(id string) string {
	if len(id) != 12 {
		return ""
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return id[:6] + "-" + id[6:8] + "-" + id[8:]
}
