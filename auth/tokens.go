package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 access tokens.
type Tokens struct {
	secretKey []byte
	maxAge    time.Duration
}

// NewTokens creates a token manager signing with secretKey.
func NewTokens(secretKey string, maxAge time.Duration) *Tokens {
	return &Tokens{
		secretKey: []byte(secretKey),
		maxAge:    maxAge,
	}
}

// MaxAge is how long issued tokens stay valid.
func (t *Tokens) MaxAge() time.Duration { return t.maxAge }

// Generate signs a token for username valid from now.
func (t *Tokens) Generate(username string, now time.Time) (string, time.Time, error) {
	expires := now.Add(t.maxAge)
	c := claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify returns the username carried by a valid token.
func (t *Tokens) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSigningAlg
		}
		return t.secretKey, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", ErrExpiredToken
		default:
			return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid || c.Username == "" {
		return "", ErrInvalidToken
	}
	return c.Username, nil
}
