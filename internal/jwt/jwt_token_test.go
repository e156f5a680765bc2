package jwt

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCreateAndParseToken(t *testing.T) {
	auth := NewAuthenticator("secret", nil)

	tokens, err := auth.CreateToken(User{Id: "user-1", Email: "a@example.com"}, 0)
	if err != nil {
		t.Fatalf("CreateToken returned error: %v", err)
	}

	session, err := auth.Session(context.Background(), tokens.AccessToken)
	if err != nil {
		t.Fatalf("Session returned error: %v", err)
	}
	if session.UID != "user-1" || session.Email != "a@example.com" {
		t.Fatalf("unexpected session: %+v", session)
	}
	if session.TokenID == "" {
		t.Fatalf("expected token id claim")
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	issuer := NewAuthenticator("secret-a", nil)
	verifier := NewAuthenticator("secret-b", nil)

	tokens, err := issuer.CreateToken(User{Id: "user-1"}, 0)
	if err != nil {
		t.Fatalf("CreateToken returned error: %v", err)
	}

	if _, err := verifier.ParseToken(tokens.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	auth := NewAuthenticator("secret", nil)

	tokens, err := auth.CreateToken(User{Id: "user-1"}, time.Now().Add(-time.Minute).Unix())
	if err != nil {
		t.Fatalf("CreateToken returned error: %v", err)
	}

	if _, err := auth.ParseToken(tokens.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestSignOutRevokesToken(t *testing.T) {
	ctx := context.Background()
	auth := NewAuthenticator("secret", NewMemoryRevocationStore())

	tokens, err := auth.CreateToken(User{Id: "user-1"}, 0)
	if err != nil {
		t.Fatalf("CreateToken returned error: %v", err)
	}
	if err := auth.SignOut(ctx, tokens.AccessToken); err != nil {
		t.Fatalf("SignOut returned error: %v", err)
	}

	if _, err := auth.Session(ctx, tokens.AccessToken); !errors.Is(err, ErrRevokedToken) {
		t.Fatalf("expected ErrRevokedToken, got %v", err)
	}
}

func TestEmptyToken(t *testing.T) {
	auth := NewAuthenticator("secret", nil)
	if _, err := auth.Session(context.Background(), " "); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
}
