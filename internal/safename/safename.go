// Package safename turns user-supplied names into filesystem-safe tokens and
// builds normalized keys for fuzzy search.
package safename

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultToken replaces names that sanitize to nothing.
const DefaultToken = "untitled"

// Name sanitizes raw into a token made of ASCII letters, digits, '_', '-'
// and '.', with whitespace runs collapsed to a single '_' and leading or
// trailing dots and underscores removed. An empty result becomes DefaultToken.
// Name is idempotent.
func Name(raw string) string {
	return Token(raw, DefaultToken)
}

// Token is Name with a caller-chosen fallback for empty results.
func Token(raw, fallback string) string {
	s := norm.NFKD.String(raw)
	s = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return ' '
		}
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), "_")
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '_', r == '-', r == '.':
			return r
		}
		return -1
	}, s)
	s = strings.Trim(s, "._")
	if s == "" {
		return fallback
	}
	return s
}

// SplitExt sanitizes a client filename into a base and a lowercased
// extension (with the leading dot). A base that sanitizes to nothing
// becomes "file".
func SplitExt(original string) (base, ext string) {
	original = strings.ReplaceAll(original, "\\", "/")
	rawExt := filepath.Ext(original)
	if e := Token(strings.TrimPrefix(rawExt, "."), ""); e != "" {
		ext = "." + strings.ToLower(e)
	}
	base = Token(strings.TrimSuffix(original, rawExt), "file")
	return base, ext
}

// SearchKey lowercases s and drops every rune that is not a letter or a
// number, so "My-Notes" and "mynotes" share the key "mynotes".
func SearchKey(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, s)
}

// Matches reports whether candidate matches the search query after both are
// normalized with SearchKey. An empty query matches everything.
func Matches(candidate, query string) bool {
	q := SearchKey(query)
	if q == "" {
		return true
	}
	return strings.Contains(SearchKey(candidate), q)
}
