package match

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize canonicalizes a string for comparison: NFC composition,
// lowercasing, and folding ё to е so that spelling variants of the same
// Russian word compare equal.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "ё", "е")
	return s
}
