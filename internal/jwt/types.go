package jwt

import (
	"errors"
	"time"
)

var (
	ErrEmptyToken   = errors.New("token string is empty")
	ErrInvalidToken = errors.New("token is not valid")
	ErrRevokedToken = errors.New("token has been signed out")
)

const DefaultTokenTTL = 24 * time.Hour

type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresAt   int64  `json:"expiresAt"`
}

type User struct {
	Id    string `json:"id"`
	Email string `json:"email"`
}

// Session is the authenticated state carried by a valid access token.
type Session struct {
	UID       string
	Email     string
	TokenID   string
	ExpiresAt time.Time
}
