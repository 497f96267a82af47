package utils

import (
	"regexp"
	"strings"
)

// AnchoredMatcher builds a case-insensitive matcher that accepts only the whole identifier.
// Regex metacharacters in the caller-supplied identifier are escaped, so "a.c" never
// matches "abc" and "ab" never matches "abc".
func AnchoredMatcher(identifier string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(strings.TrimSpace(identifier)) + `$`)
}

// MatchesAny reports whether any candidate equals the identifier, ignoring case.
func MatchesAny(identifier string, candidates ...string) bool {
	if strings.TrimSpace(identifier) == "" {
		return false
	}
	m := AnchoredMatcher(identifier)
	for _, c := range candidates {
		if c != "" && m.MatchString(c) {
			return true
		}
	}
	return false
}
