package identity

import (
	"context"
	"errors"
	"sync"
	"testing"

	internaljwt "ecolisting-chat-backend/internal/jwt"
	"ecolisting-chat-backend/internal/localstore"
	"ecolisting-chat-backend/internal/model"
	"ecolisting-chat-backend/internal/service/conversation"
)

type stubRoles struct {
	mu    sync.Mutex
	roles map[string]model.UserRole
	err   error
	calls int
}

func (s *stubRoles) Role(_ context.Context, uid string) (model.UserRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	role, ok := s.roles[uid]
	if !ok {
		return "", conversation.ErrNotFound
	}
	return role, nil
}

func newToken(t *testing.T, auth *internaljwt.Authenticator, uid string) string {
	t.Helper()
	tokens, err := auth.CreateToken(internaljwt.User{Id: uid}, 0)
	if err != nil {
		t.Fatalf("CreateToken returned error: %v", err)
	}
	return tokens.AccessToken
}

func TestResolveGuestWithoutToken(t *testing.T) {
	auth := internaljwt.NewAuthenticator("secret", nil)
	r := NewResolver(auth, &stubRoles{}, 0, nil)
	store := localstore.NewMemoryStore()

	id := r.Resolve(context.Background(), "", store)
	if !id.IsGuest() || id.VisitorID == "" {
		t.Fatalf("expected guest with visitor id, got %+v", id)
	}
	again := r.Resolve(context.Background(), "", store)
	if again.VisitorID != id.VisitorID {
		t.Fatalf("expected visitor id to persist across resolves")
	}
	if id.ParticipantKey() != model.GuestIdentityKey(id.VisitorID) {
		t.Fatalf("unexpected participant key %q", id.ParticipantKey())
	}
}

func TestResolveInvalidTokenIsGuest(t *testing.T) {
	auth := internaljwt.NewAuthenticator("secret", nil)
	r := NewResolver(auth, &stubRoles{}, 0, nil)

	id := r.Resolve(context.Background(), "garbage", localstore.NewMemoryStore())
	if !id.IsGuest() {
		t.Fatalf("expected guest, got %+v", id)
	}
}

func TestResolveAuthenticatedRoles(t *testing.T) {
	auth := internaljwt.NewAuthenticator("secret", nil)
	roles := &stubRoles{roles: map[string]model.UserRole{"agent-1": model.UserRoleAgent}}
	r := NewResolver(auth, roles, 0, nil)
	ctx := context.Background()

	agent := r.Resolve(ctx, newToken(t, auth, "agent-1"), nil)
	if agent.IsGuest() || agent.UID != "agent-1" || !agent.IsStaff() || agent.MessageRole() != model.RoleStaff {
		t.Fatalf("unexpected agent identity %+v", agent)
	}

	customer := r.Resolve(ctx, newToken(t, auth, "user-1"), nil)
	if customer.Role != model.UserRoleCustomer || customer.IsStaff() {
		t.Fatalf("expected customer fallback for missing role, got %+v", customer)
	}
}

func TestResolveRoleFailureDefaultsToCustomer(t *testing.T) {
	auth := internaljwt.NewAuthenticator("secret", nil)
	roles := &stubRoles{err: errors.New("dynamo down")}
	r := NewResolver(auth, roles, 0, nil)

	id := r.Resolve(context.Background(), newToken(t, auth, "agent-1"), nil)
	if id.IsGuest() || id.Role != model.UserRoleCustomer {
		t.Fatalf("expected authenticated customer, got %+v", id)
	}
}

func TestResolveCachesRoles(t *testing.T) {
	auth := internaljwt.NewAuthenticator("secret", nil)
	roles := &stubRoles{roles: map[string]model.UserRole{"admin-1": model.UserRoleAdmin}}
	r := NewResolver(auth, roles, 0, nil)
	ctx := context.Background()
	token := newToken(t, auth, "admin-1")

	r.Resolve(ctx, token, nil)
	r.Resolve(ctx, token, nil)
	if roles.calls != 1 {
		t.Fatalf("expected one role lookup, got %d", roles.calls)
	}

	r.Forget("admin-1")
	r.Resolve(ctx, token, nil)
	if roles.calls != 2 {
		t.Fatalf("expected lookup after Forget, got %d", roles.calls)
	}
}
