// Package mapper turns upstream records into search documents and back.
// Everything here is pure.
package mapper

import (
	"strings"
	"unicode"
)

var tokenReplacer = strings.NewReplacer("@", "__at__", ".", "__dot__")

// SearchableString is the one transform applied to every searchable value
// at write time and to search criteria at query time: lower-case, drop all
// whitespace, then replace "@" with "__at__" and "." with "__dot__".
func SearchableString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return tokenReplacer.Replace(b.String())
}

// NormalizeCriteria prepares user supplied criteria for matching against
// searchable fields. Wildcards pass through untouched; empty criteria means "*".
func NormalizeCriteria(criteria string) string {
	normalized := SearchableString(criteria)
	if normalized == "" {
		return "*"
	}
	return normalized
}
