package middleware

import (
	"context"
	"net/http"
	"strings"

	"ecolisting-chat-backend/internal/chat"
	"ecolisting-chat-backend/internal/service/identity"
	"ecolisting-chat-backend/utils"
)

// ProfileHeader names the client storage profile.
const ProfileHeader = "X-Client-Profile"

type contextKey int

const (
	clientKey contextKey = iota
	identityKey
)

// IdentitySource resolves who a request comes from.
type IdentitySource interface {
	Identity(ctx context.Context, client chat.Client) identity.Identity
}

// ClientFromRequest reads the bearer token and storage profile.
func ClientFromRequest(r *http.Request) chat.Client {
	return chat.Client{
		Token:   utils.BearerToken(r),
		Profile: strings.TrimSpace(r.Header.Get(ProfileHeader)),
	}
}

// ClientContext stores the request's chat.Client in its context.
func ClientContext() Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), clientKey, ClientFromRequest(r))
			next(w, r.WithContext(ctx))
		}
	}
}

// Client returns the client stored by ClientContext, or reads it from r.
func Client(r *http.Request) chat.Client {
	if c, ok := r.Context().Value(clientKey).(chat.Client); ok {
		return c
	}
	return ClientFromRequest(r)
}

// Identity returns the identity stored by RequireStaff, if any.
func Identity(r *http.Request) (identity.Identity, bool) {
	id, ok := r.Context().Value(identityKey).(identity.Identity)
	return id, ok
}

// RequireStaff lets only agents and admins through.
func RequireStaff(ids IdentitySource) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			id := ids.Identity(r.Context(), Client(r))
			if id.IsGuest() {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if !id.IsStaff() {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
		}
	}
}

// RequireAPIKey checks the functions key sent by remote callers. An empty
// key disables the check.
func RequireAPIKey(key string) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if key != "" && utils.APIKey(r) != key {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}
}
