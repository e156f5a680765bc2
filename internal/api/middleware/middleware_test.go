package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ecolisting-chat-backend/internal/chat"
	"ecolisting-chat-backend/internal/model"
	"ecolisting-chat-backend/internal/service/identity"
)

func TestChainRunsFirstMiddlewareOutermost(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.HandlerFunc) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next(w, r)
			}
		}
	}

	h := Chain(func(http.ResponseWriter, *http.Request) { order = append(order, "handler") }, mark("a"), mark("b"))
	h(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got := strings.Join(order, ","); got != "a,b,handler" {
		t.Fatalf("unexpected order %s", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	cfg := CORSConfig{
		AllowedOrigins:   []string{"https://ecolisting.test"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Authorization", ProfileHeader},
		AllowCredentials: true,
	}
	called := false
	h := CORS(cfg)(func(http.ResponseWriter, *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodOptions, "/chat/open", nil)
	req.Header.Set("Origin", "https://ecolisting.test")
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusOK || called {
		t.Fatalf("expected preflight to be answered directly, code=%d called=%v", rec.Code, called)
	}
	if rec.Header().Get("Access-Control-Allow-Headers") != "Authorization, X-Client-Profile" {
		t.Fatalf("unexpected allow headers %q", rec.Header().Get("Access-Control-Allow-Headers"))
	}

	req = httptest.NewRequest(http.MethodOptions, "/chat/open", nil)
	req.Header.Set("Origin", "https://evil.test")
	rec = httptest.NewRecorder()
	h(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown origin, got %d", rec.Code)
	}
}

func TestClientContext(t *testing.T) {
	var got chat.Client
	h := ClientContext()(func(w http.ResponseWriter, r *http.Request) { got = Client(r) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer tok")
	req.Header.Set(ProfileHeader, " tab-1 ")
	h(httptest.NewRecorder(), req)

	if got.Token != "tok" || got.Profile != "tab-1" {
		t.Fatalf("unexpected client %+v", got)
	}
}

type stubIdentities map[string]identity.Identity

func (s stubIdentities) Identity(_ context.Context, client chat.Client) identity.Identity {
	if id, ok := s[client.Token]; ok {
		return id
	}
	return identity.Guest("visitor")
}

func TestRequireStaff(t *testing.T) {
	ids := stubIdentities{
		"agent":    identity.Authenticated("a-1", model.UserRoleAgent),
		"customer": identity.Authenticated("c-1", model.UserRoleCustomer),
	}
	h := RequireStaff(ids)(func(w http.ResponseWriter, r *http.Request) {
		id, ok := Identity(r)
		if !ok || id.UID != "a-1" {
			t.Errorf("expected staff identity in context, got %+v", id)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	cases := map[string]int{
		"":         http.StatusUnauthorized,
		"customer": http.StatusForbidden,
		"agent":    http.StatusNoContent,
	}
	for token, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h(rec, req)
		if rec.Code != want {
			t.Fatalf("token %q: expected %d, got %d", token, want, rec.Code)
		}
	}
}

func TestRequireAPIKey(t *testing.T) {
	h := RequireAPIKey("anon")(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	rec := httptest.NewRecorder()
	h(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}

	req.Header.Set("apikey", "anon")
	rec = httptest.NewRecorder()
	h(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d", rec.Code)
	}
}
