// Package auth provides the token codec, password hashing, OAuth
// providers, and the authorization middleware.
//
// The codec in this file is stateless: it signs and verifies compact
// session payloads (subject uuid, issue time, optional expiry) with an
// HMAC key and knows nothing about revocation. Revocation lives in the
// token store; a signed token is only live while its store record
// exists (see service.TokenService).
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "ravenhacks"

var (
	// ErrTokenExpired means the signature verified but the embedded
	// expiry is in the past. Kept distinct from ErrTokenInvalid so the
	// lifecycle service can report Expired without a store lookup.
	ErrTokenExpired = errors.New("auth: token expired")

	// ErrTokenInvalid means the signature failed or the payload is
	// malformed.
	ErrTokenInvalid = errors.New("auth: invalid token")
)

// Session is the decoded token payload.
type Session struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt *time.Time // nil for tokens that never expire by time
}

// TokenCodec signs and verifies session payloads with an HMAC-SHA512 key.
// The same key must be configured for every process verifying tokens.
type TokenCodec struct {
	secret []byte
}

// NewTokenCodec creates a TokenCodec with the given secret. The secret is
// required configuration; the server refuses to boot without one.
func NewTokenCodec(secret string) (*TokenCodec, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: signing secret must be at least 16 characters")
	}
	return &TokenCodec{secret: []byte(secret)}, nil
}

type claims struct {
	jwt.RegisteredClaims
}

// Sign creates a signed token for the given subject. Pass a nil expiresAt
// for tokens that should never expire by time.
func (c *TokenCodec) Sign(subject string, issuedAt time.Time, expiresAt *time.Time) (string, error) {
	if subject == "" {
		return "", errors.New("auth: subject must not be empty")
	}

	cl := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(issuedAt),
			Issuer:   issuer,
		},
	}
	if expiresAt != nil {
		cl.ExpiresAt = jwt.NewNumericDate(*expiresAt)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, cl)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Verify parses and verifies a token string.
//
// Returns ErrTokenExpired when the signature is good but the expiry has
// passed, and ErrTokenInvalid for signature or payload failures. The
// returned Session is non-nil only on success.
func (c *TokenCodec) Verify(tokenStr string) (*Session, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{"HS512"}),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	cl, ok := token.Claims.(*claims)
	if !ok || !token.Valid || cl.Subject == "" {
		return nil, ErrTokenInvalid
	}

	sess := &Session{Subject: cl.Subject}
	if cl.IssuedAt != nil {
		sess.IssuedAt = cl.IssuedAt.Time
	}
	if cl.ExpiresAt != nil {
		t := cl.ExpiresAt.Time
		sess.ExpiresAt = &t
	}
	return sess, nil
}
