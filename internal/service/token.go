// Package service holds the business logic, between the HTTP handlers
// and the repositories.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ravenhacks/backend/internal/auth"
	"github.com/ravenhacks/backend/internal/model"
	"github.com/ravenhacks/backend/internal/repository"
)

// Per-type expiry policy. Refresh and confirm tokens never expire by
// time; they die only when their store record is deleted.
const (
	accessExpiry = 30 * time.Minute
	resetExpiry  = 24 * time.Hour
)

// TokenService is the token lifecycle: it orchestrates the stateless
// codec and the persisted store to issue, verify, and revoke tokens by
// type.
type TokenService struct {
	codec *auth.TokenCodec
	store repository.TokenRepository
}

// NewTokenService creates a TokenService.
func NewTokenService(codec *auth.TokenCodec, store repository.TokenRepository) *TokenService {
	return &TokenService{codec: codec, store: store}
}

// Mint signs a token of the given type without persisting it. Callers
// that create an account and its tokens atomically mint first and hand
// the grants to the repository's transactional create.
func (s *TokenService) Mint(uuid string, typ model.TokenType) (*model.IssuedToken, error) {
	now := time.Now()
	expiresAt := expiryFor(typ, now)

	signed, err := s.codec.Sign(uuid, now, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("service/token: minting %s token for %s: %w", typ, uuid, err)
	}
	return &model.IssuedToken{Token: signed, IssuedAt: now, ExpiresAt: expiresAt}, nil
}

// Issue mints a token and writes its store record. The token is live
// from the moment this returns.
func (s *TokenService) Issue(ctx context.Context, uuid string, typ model.TokenType) (*model.IssuedToken, error) {
	issued, err := s.Mint(uuid, typ)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, typ, uuid, issued.Token); err != nil {
		return nil, fmt.Errorf("service/token: persisting %s token for %s: %w", typ, uuid, err)
	}
	return issued, nil
}

// Verify checks a token against the expected type.
//
// Order matters: (a) signature, where failure is Invalid; (b) embedded
// expiry, where past is Expired, decided without touching the store;
// (c) store record existence, where absence is Invalid, covering both
// "never issued" and "revoked". Only a token passing all three is
// Valid, and only then is the subject id returned.
func (s *TokenService) Verify(ctx context.Context, token string, typ model.TokenType) (model.TokenStatus, string, error) {
	sess, err := s.codec.Verify(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return model.TokenExpired, "", nil
		}
		return model.TokenInvalid, "", nil
	}

	live, err := s.store.Exists(ctx, typ, token)
	if err != nil {
		return model.TokenInvalid, "", fmt.Errorf("service/token: checking %s token liveness: %w", typ, err)
	}
	if !live {
		return model.TokenInvalid, "", nil
	}

	return model.TokenValid, sess.Subject, nil
}

// Revoke deletes a single token record owned by the given user. Returns
// false when no matching record existed.
func (s *TokenService) Revoke(ctx context.Context, typ model.TokenType, uuid, token string) (bool, error) {
	ok, err := s.store.DeleteUserToken(ctx, typ, uuid, token)
	if err != nil {
		return false, fmt.Errorf("service/token: revoking %s token for %s: %w", typ, uuid, err)
	}
	return ok, nil
}

// RevokeAll deletes every record of the given types for the user.
func (s *TokenService) RevokeAll(ctx context.Context, uuid string, types ...model.TokenType) error {
	if err := s.store.DeleteAllForUser(ctx, uuid, types...); err != nil {
		return fmt.Errorf("service/token: revoking all tokens for %s: %w", uuid, err)
	}
	return nil
}

// expiryFor returns the policy expiry for a token type, nil for types
// that never expire by time.
func expiryFor(typ model.TokenType, now time.Time) *time.Time {
	var d time.Duration
	switch typ {
	case model.TokenAccess:
		d = accessExpiry
	case model.TokenReset:
		d = resetExpiry
	default:
		return nil
	}
	t := now.Add(d)
	return &t
}
