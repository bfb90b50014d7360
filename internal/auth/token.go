// Package auth verifies the signed identity tokens callers present on both
// the REST surface and the realtime channel. Identity is minted elsewhere;
// this engine only checks the signature and extracts the user id.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"

	"slidecast/pkg/types"
)

var (
	ErrMissingToken = fmt.Errorf("no identity token presented: %w", types.ErrForbidden)
	ErrInvalidToken = fmt.Errorf("identity token invalid: %w", types.ErrForbidden)
)

// TokenParser verifies HMAC-signed identity tokens.
type TokenParser struct {
	secret []byte
}

func NewTokenParser(secret string) *TokenParser {
	return &TokenParser{secret: []byte(secret)}
}

// UserID verifies tokenString and returns the subject claim.
func (p *TokenParser) UserID(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	userID, ok := claims["sub"].(string)
	if !ok || !types.IsValidUserID(userID) {
		return "", ErrInvalidToken
	}
	return userID, nil
}

// FromRequest resolves the caller's identity from an HTTP request: a Bearer
// Authorization header, a token query parameter (WebSocket dials cannot set
// headers from browsers), or a JWT cookie, in that order.
func (p *TokenParser) FromRequest(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return p.UserID(strings.TrimPrefix(h, "Bearer "))
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return p.UserID(t)
	}
	if c, err := r.Cookie("JWT"); err == nil && c.Value != "" {
		return p.UserID(c.Value)
	}
	return "", ErrMissingToken
}

// Sign mints a token for userID. The server itself never mints identity in
// production; this exists for tests and local tooling.
func Sign(secret, userID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	})
	return token.SignedString([]byte(secret))
}
