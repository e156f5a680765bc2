package utils

import (
	"net/http"
	"strings"
)

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) < len("Bearer ") || !strings.EqualFold(auth[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[len("Bearer "):])
}

// APIKey returns the functions key from the apikey header, falling back
// to the bearer token.
func APIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("apikey")); key != "" {
		return key
	}
	return BearerToken(r)
}
