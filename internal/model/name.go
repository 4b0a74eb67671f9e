package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName returns the display name in NFC with control characters
// removed and surrounding whitespace trimmed.
//
// Gateway clients send names in whatever normalization form the device
// produced, so "é" may arrive as one code point or two. Stored names are
// always NFC so stats and logs compare equal.
func NormalizeName(first, last string) string {
	name := strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	return norm.NFC.String(name)
}
