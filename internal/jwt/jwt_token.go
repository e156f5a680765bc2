package jwt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

type Authenticator struct {
	secret  []byte
	revoked RevocationStore
	ttl     time.Duration
	now     func() time.Time
}

func NewAuthenticator(secret string, revoked RevocationStore) *Authenticator {
	if revoked == nil {
		revoked = NewMemoryRevocationStore()
	}
	return &Authenticator{
		secret:  []byte(secret),
		revoked: revoked,
		ttl:     DefaultTokenTTL,
		now:     time.Now,
	}
}

func (a *Authenticator) CreateToken(user User, validUntil int64) (TokenResponse, error) {
	if user.Id == "" {
		return TokenResponse{}, fmt.Errorf("user id is required")
	}
	if validUntil == 0 {
		validUntil = a.now().Add(a.ttl).Unix()
	}

	claims := jwt.MapClaims{
		"id":    user.Id,
		"email": user.Email,
		"jti":   uuid.NewString(),
		"exp":   validUntil,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(a.secret)
	if err != nil {
		return TokenResponse{}, err
	}

	return TokenResponse{AccessToken: tokenString, ExpiresAt: validUntil}, nil
}

func (a *Authenticator) ParseToken(tokenString string) (Session, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return Session{}, ErrEmptyToken
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Session{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Session{}, fmt.Errorf("%w: claims of unexpected type", ErrInvalidToken)
	}

	uid, _ := claims["id"].(string)
	if uid == "" {
		return Session{}, fmt.Errorf("%w: missing id claim", ErrInvalidToken)
	}
	email, _ := claims["email"].(string)
	tokenID, _ := claims["jti"].(string)

	var expiresAt time.Time
	if exp, ok := claims["exp"].(float64); ok {
		expiresAt = time.Unix(int64(exp), 0)
	}

	return Session{UID: uid, Email: email, TokenID: tokenID, ExpiresAt: expiresAt}, nil
}

// Session validates the token and rejects ones that were signed out.
func (a *Authenticator) Session(ctx context.Context, tokenString string) (Session, error) {
	session, err := a.ParseToken(tokenString)
	if err != nil {
		return Session{}, err
	}
	if session.TokenID == "" {
		return session, nil
	}
	revoked, err := a.revoked.IsRevoked(ctx, session.TokenID)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, ErrRevokedToken
	}
	return session, nil
}

func (a *Authenticator) SignOut(ctx context.Context, tokenString string) error {
	session, err := a.ParseToken(tokenString)
	if err != nil {
		return err
	}
	if session.TokenID == "" {
		return nil
	}
	return a.revoked.Revoke(ctx, session.TokenID, session.ExpiresAt.Sub(a.now()))
}
