package textutil

import "strings"

// SanitizeFileName makes a name safe to use as a single path element.
// Path separators, colons, and asterisks become dashes; shell-hostile
// characters are dropped outright.
func SanitizeFileName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*':
			return '-'
		case '?', '"', '<', '>', '|':
			return -1
		}
		return r
	}, name)
	return strings.TrimSpace(cleaned)
}

// SanitizeToken lowers a name into the [a-z0-9_-] alphabet for use in
// remote paths and identifiers. Everything else maps to an underscore;
// an input with nothing to keep yields "unknown".
func SanitizeToken(value string) string {
	token := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, strings.TrimSpace(value))
	token = strings.Trim(token, "_-")
	if token == "" {
		return "unknown"
	}
	return token
}
