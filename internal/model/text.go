package model

import "strings"

const (
	PreviewLength = 160
	ExcerptLength = 200
)

// Truncate shortens s to at most n runes after trimming whitespace.
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// GuestIdentityKey is the participant key used for an unauthenticated
// visitor.
func GuestIdentityKey(visitorID string) string {
	return "visitor:" + visitorID
}
