// Package auth issues and checks session tokens, hashes passwords and
// protects routes.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. The client posts credentials to /api/auth/login (or completes the
//     GitHub OAuth dance under /auth/github).
//  2. The server issues a signed JWT and stores it in the HttpOnly "token"
//     cookie. JavaScript cannot read that cookie, so XSS cannot steal it.
//  3. On every API call the Authenticator middleware reads the cookie,
//     validates the JWT and loads the user row into the request context.
//
// WHY LOAD THE USER ON EVERY REQUEST?
// A JWT alone is stateless, so a deactivated or deleted account would keep
// working until its token expired. One primary-key lookup per request lets
// an admin lock someone out immediately.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"<user id>","role":"USER","exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sakif/codevault/internal/model"
)

const issuer = "codevault"

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService that signs tokens valid for ttl.
// Example secret: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token lifetime must be positive")
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL is how long issued tokens (and the cookie holding them) live.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Claims is the JWT payload. "sub" carries the internal user ID; the role
// is informational only, the middleware re-reads it from the database.
type Claims struct {
	Role model.Role `json:"role"`
	jwt.RegisteredClaims
}

// Generate signs a new token for the user with the service lifetime.
func (s *TokenService) Generate(userID string, role model.Role) (string, error) {
	return s.GenerateWithDuration(userID, role, s.ttl)
}

// GenerateWithDuration signs a token with a custom lifetime. Tests use a
// negative duration to produce already-expired tokens.
func (s *TokenService) GenerateWithDuration(userID string, role model.Role, d time.Duration) (string, error) {
	now := time.Now()

	c := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a JWT string and returns its claims.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid
//   - Token is not expired, and has an expiry at all
//   - Issuer is "codevault"
//   - Algorithm is HS256 (prevents the "alg: none" confusion attack)
func (s *TokenService) Validate(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: token expired")
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("auth: token has no subject")
	}
	return c, nil
}
