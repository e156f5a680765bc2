package identity

import (
	"context"
	"strings"
	"time"

	internaljwt "ecolisting-chat-backend/internal/jwt"
	"ecolisting-chat-backend/internal/localstore"
	"ecolisting-chat-backend/internal/logger"
	"ecolisting-chat-backend/internal/model"
	"ecolisting-chat-backend/internal/service/conversation"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

type Kind string

const (
	KindGuest         Kind = "guest"
	KindAuthenticated Kind = "authenticated"
)

// Identity is either a guest carrying its visitor id or an authenticated
// user with a resolved role.
type Identity struct {
	Kind      Kind
	VisitorID string
	UID       string
	Role      model.UserRole
	Token     string
}

func Guest(visitorID string) Identity {
	return Identity{Kind: KindGuest, VisitorID: visitorID}
}

func Authenticated(uid string, role model.UserRole) Identity {
	return Identity{Kind: KindAuthenticated, UID: uid, Role: role}
}

func (i Identity) IsGuest() bool {
	return i.Kind != KindAuthenticated
}

func (i Identity) IsStaff() bool {
	return !i.IsGuest() && i.Role.IsStaff()
}

// ParticipantKey identifies this identity in participant rows.
func (i Identity) ParticipantKey() string {
	if i.IsGuest() {
		return model.GuestIdentityKey(i.VisitorID)
	}
	return i.UID
}

func (i Identity) MessageRole() model.MessageRole {
	if i.IsGuest() {
		return model.RoleCustomer
	}
	return i.Role.MessageRole()
}

type SessionSource interface {
	Session(ctx context.Context, token string) (internaljwt.Session, error)
}

type RoleSource interface {
	Role(ctx context.Context, uid string) (model.UserRole, error)
}

type Resolver struct {
	sessions SessionSource
	roles    RoleSource
	cache    *cache.Cache
	log      *logger.Logger
}

func NewResolver(sessions SessionSource, roles RoleSource, roleTTL time.Duration, log *logger.Logger) *Resolver {
	if roleTTL <= 0 {
		roleTTL = 5 * time.Minute
	}
	return &Resolver{
		sessions: sessions,
		roles:    roles,
		cache:    cache.New(roleTTL, 2*roleTTL),
		log:      logger.OrNop(log).With("component", "identity"),
	}
}

// Resolve never fails. A missing or invalid session yields a guest and a
// failed role lookup yields the customer role.
func (r *Resolver) Resolve(ctx context.Context, token string, store localstore.Store) Identity {
	visitorID := r.visitorID(ctx, store)

	token = strings.TrimSpace(token)
	if token == "" {
		return Guest(visitorID)
	}

	session, err := r.sessions.Session(ctx, token)
	if err != nil {
		r.log.Debug("no usable session, continuing as guest", "error", err)
		return Guest(visitorID)
	}

	id := Authenticated(session.UID, r.role(ctx, session.UID))
	id.VisitorID = visitorID
	id.Token = token
	return id
}

func (r *Resolver) role(ctx context.Context, uid string) model.UserRole {
	if cached, ok := r.cache.Get(uid); ok {
		return cached.(model.UserRole)
	}

	role, err := r.roles.Role(ctx, uid)
	if err != nil {
		if !conversation.IsNotFound(err) {
			r.log.Warn("role lookup failed, defaulting to customer", "uid", uid, "error", err)
			return model.UserRoleCustomer
		}
		role = model.UserRoleCustomer
	}
	role = model.ParseUserRole(string(role))
	r.cache.SetDefault(uid, role)
	return role
}

// Forget drops a cached role, e.g. after sign-out.
func (r *Resolver) Forget(uid string) {
	r.cache.Delete(uid)
}

func (r *Resolver) visitorID(ctx context.Context, store localstore.Store) string {
	if store == nil {
		return uuid.NewString()
	}
	id, err := localstore.VisitorID(ctx, store)
	if err != nil {
		r.log.Warn("visitor id unavailable, using ephemeral id", "error", err)
		return uuid.NewString()
	}
	return id
}
