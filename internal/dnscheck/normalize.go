package dnscheck

import "strings"

// Normalize canonicalizes a DNS answer value for comparison: trims
// whitespace, strips one trailing root dot and lowercases. Total function;
// empty input yields "".
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, ".")
	return strings.ToLower(s)
}

// Match reports whether two DNS values are equal after normalization.
func Match(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
