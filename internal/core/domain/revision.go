package domain

import "strings"

// CompareRevisions orders two opaque revision tokens.
// It returns -1 if a is older than b, 0 if equal and 1 if a is newer.
//
// Tokens made only of ASCII digits compare numerically (leading zeros
// ignored). Any other pair compares shorter-is-older, then lexicographically.
// The empty token is older than everything.
func CompareRevisions(a, b string) int {
	if a == b {
		return 0
	}
	if a == "" {
		return -1
	}
	if b == "" {
		return 1
	}
	if isDigits(a) && isDigits(b) {
		a = strings.TrimLeft(a, "0")
		b = strings.TrimLeft(b, "0")
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// IsNewerRevision reports whether candidate is strictly newer than stored.
func IsNewerRevision(candidate, stored string) bool {
	return CompareRevisions(candidate, stored) > 0
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
