// Package auth implements bearer-token issuance and verification, password
// hashing and the HTTP gate that protects user-owned resources.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/isdelr/goals-be/internal/apperr"
)

// DefaultTokenTTL is how long an issued token stays valid.
const DefaultTokenTTL = 30 * 24 * time.Hour

// Claims defines the JWT claims structure. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 bearer tokens with a
// process-wide secret. It keeps no state, so any instance sharing the
// secret can verify any token.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption customises a TokenService.
type TokenOption func(*TokenService)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

// NewTokenService creates a TokenService. A zero ttl means DefaultTokenTTL.
func NewTokenService(secret string, ttl time.Duration, opts ...TokenOption) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("token secret must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	s := &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue creates a signed token for userID that expires after the TTL.
func (s *TokenService) Issue(userID string) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token and returns the user id it carries.
// Failures are apperr.ErrTokenExpired or apperr.ErrTokenInvalid.
func (s *TokenService) Verify(tokenStr string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", apperr.ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", apperr.ErrTokenInvalid, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", apperr.ErrTokenInvalid
	}
	return claims.Subject, nil
}
