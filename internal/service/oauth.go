package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/ravenhacks/backend/internal/apperror"
	"github.com/ravenhacks/backend/internal/auth"
	"github.com/ravenhacks/backend/internal/discord"
	"github.com/ravenhacks/backend/internal/model"
	"github.com/ravenhacks/backend/internal/repository"
)

// OAuthService runs the provider linking state machine: one-time CSRF
// state nonces, code-for-identity exchange, and the
// signup/login/link/conflict decision tables.
//
// Nonce lifecycle: a redirect entry persists a nonce (Initiated); the
// callback consumes it atomically (Redeemed) before anything else
// happens; the flow then ends LoggedIn, Linked, or Rejected. A callback
// presenting an unknown or already-consumed state is rejected outright.
type OAuthService struct {
	users     repository.UserRepository
	states    repository.StateRepository
	tokens    *TokenService
	providers map[model.Provider]auth.OAuthProvider
	roles     discord.RoleAssigner // may be nil
	publicURL string
	logger    *slog.Logger
}

// NewOAuthService creates an OAuthService. roles may be nil when no
// Discord bot webhook is configured.
func NewOAuthService(
	users repository.UserRepository,
	states repository.StateRepository,
	tokens *TokenService,
	providers []auth.OAuthProvider,
	roles discord.RoleAssigner,
	publicURL string,
	logger *slog.Logger,
) *OAuthService {
	m := make(map[model.Provider]auth.OAuthProvider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &OAuthService{
		users:     users,
		states:    states,
		tokens:    tokens,
		providers: m,
		roles:     roles,
		publicURL: publicURL,
		logger:    logger,
	}
}

// Providers lists the configured provider names.
func (s *OAuthService) Providers() []model.Provider {
	names := make([]model.Provider, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	return names
}

// BeginSignin stores a fresh nonce and returns the provider URL to
// redirect the user-agent to.
func (s *OAuthService) BeginSignin(ctx context.Context, provider model.Provider) (string, error) {
	p, err := s.provider(provider)
	if err != nil {
		return "", err
	}

	state, err := newStateNonce()
	if err != nil {
		return "", err
	}
	if err := s.states.SaveState(ctx, provider, state); err != nil {
		return "", fmt.Errorf("service/oauth: saving signin state: %w", err)
	}

	return p.AuthCodeURL(state, s.signinCallbackURL(provider)), nil
}

// BeginLink is BeginSignin for an already-authenticated caller. The
// nonce carries the caller's uuid as a suffix so the callback can
// recover which account requested the link without a separate session.
func (s *OAuthService) BeginLink(ctx context.Context, provider model.Provider, uid string) (string, error) {
	p, err := s.provider(provider)
	if err != nil {
		return "", err
	}

	nonce, err := newStateNonce()
	if err != nil {
		return "", err
	}
	state := nonce + "/" + uid
	if err := s.states.SaveState(ctx, provider, state); err != nil {
		return "", fmt.Errorf("service/oauth: saving link state: %w", err)
	}

	return p.AuthCodeURL(state, s.linkCallbackURL(provider)), nil
}

// CompleteSignin handles the provider's signin callback.
//
// The decision table runs in order:
//  1. an account matches both provider id and email: returning user,
//     issue a token pair;
//  2. the email belongs to an account without this provider id: reject,
//     the user must log in the way they signed up and link in settings;
//  3. the provider id is linked to an account with a different email:
//     reject, the external account already belongs elsewhere;
//  4. neither exists: fresh signup, create the account (lowest
//     privilege tier, email trusted as confirmed) and issue a pair.
func (s *OAuthService) CompleteSignin(ctx context.Context, provider model.Provider, state, code string) (*AuthResult, error) {
	p, err := s.provider(provider)
	if err != nil {
		return nil, err
	}
	if err := s.consumeState(ctx, provider, state); err != nil {
		return nil, err
	}

	identity, err := p.Exchange(ctx, code, s.signinCallbackURL(provider))
	if err != nil {
		return nil, fmt.Errorf("service/oauth: %s exchange failed: %w", provider, err)
	}
	email := strings.ToLower(identity.Email)

	byProvider, err := s.lookup(ctx, func() (*model.User, error) {
		return s.users.GetByProviderID(ctx, provider, identity.ID)
	})
	if err != nil {
		return nil, err
	}

	if byProvider != nil && byProvider.Email == email {
		// Returning user.
		s.logger.Info("oauth signin",
			slog.String("provider", string(provider)),
			slog.String("uuid", byProvider.UUID))
		return s.issuePairFor(ctx, byProvider.UUID)
	}

	byEmail, err := s.lookup(ctx, func() (*model.User, error) {
		return s.users.GetByEmail(ctx, email)
	})
	if err != nil {
		return nil, err
	}

	if byEmail != nil {
		return nil, apperror.Conflict(fmt.Sprintf(
			"an account with that email already exists; log in with the method used to sign up and link your %s account in the settings", providerLabel(provider)))
	}
	if byProvider != nil {
		return nil, apperror.Conflict(fmt.Sprintf(
			"this %s account is already linked to another account; log in with that account instead", providerLabel(provider)))
	}

	// Fresh signup. OAuth-verified emails are trusted, so the account
	// starts confirmed.
	user := &model.User{
		UUID:      uuid.NewString(),
		Email:     email,
		Role:      model.RoleHacker,
		Confirmed: true,
	}
	user.SetProviderID(provider, identity.ID)

	access, err := s.tokens.Mint(user.UUID, model.TokenAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.Mint(user.UUID, model.TokenRefresh)
	if err != nil {
		return nil, err
	}

	grants := []model.TokenGrant{
		{Type: model.TokenAccess, Token: access.Token},
		{Type: model.TokenRefresh, Token: refresh.Token},
	}
	if err := s.users.CreateWithTokens(ctx, user, grants); err != nil {
		return nil, fmt.Errorf("service/oauth: creating %s signup account: %w", provider, err)
	}

	s.logger.Info("oauth signup",
		slog.String("provider", string(provider)),
		slog.String("uuid", user.UUID))

	return &AuthResult{UUID: user.UUID, AccessToken: access, RefreshToken: refresh}, nil
}

// CompleteLink handles the provider's link callback. The target account
// is recovered from the nonce suffix; no tokens are issued; the
// caller's existing session is untouched.
func (s *OAuthService) CompleteLink(ctx context.Context, provider model.Provider, state, code string) error {
	p, err := s.provider(provider)
	if err != nil {
		return err
	}
	if err := s.consumeState(ctx, provider, state); err != nil {
		return err
	}

	parts := strings.SplitN(state, "/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return apperror.ValidationFailed("state", "invalid OAuth state")
	}
	uid := parts[1]

	identity, err := p.Exchange(ctx, code, s.linkCallbackURL(provider))
	if err != nil {
		return fmt.Errorf("service/oauth: %s exchange failed: %w", provider, err)
	}

	existing, err := s.lookup(ctx, func() (*model.User, error) {
		return s.users.GetByProviderID(ctx, provider, identity.ID)
	})
	if err != nil {
		return err
	}
	if existing != nil {
		return apperror.Conflict(fmt.Sprintf(
			"this %s account is already linked to another account", providerLabel(provider)))
	}

	user, err := s.users.GetByUUID(ctx, uid)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.ValidationFailed("state", "invalid OAuth state")
		}
		return fmt.Errorf("service/oauth: loading link target %s: %w", uid, err)
	}
	if user.ProviderID(provider) != "" {
		return apperror.Conflict(fmt.Sprintf(
			"this account already has a %s account linked; unlink it first", providerLabel(provider)))
	}

	user.SetProviderID(provider, identity.ID)
	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("service/oauth: linking %s account to %s: %w", provider, uid, err)
	}

	s.logger.Info("provider linked",
		slog.String("provider", string(provider)),
		slog.String("uuid", uid))

	if provider == model.ProviderDiscord && s.roles != nil {
		// Best effort: a webhook failure should not undo the link.
		if err := s.roles.AssignRole(ctx, identity.ID); err != nil {
			s.logger.Error("assigning discord role failed",
				slog.String("uuid", uid),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// Unlink clears the provider id on the caller's account.
func (s *OAuthService) Unlink(ctx context.Context, provider model.Provider, uid string) error {
	if _, err := s.provider(provider); err != nil {
		return err
	}

	user, err := s.users.GetByUUID(ctx, uid)
	if err != nil {
		return fmt.Errorf("service/oauth: loading account %s: %w", uid, err)
	}
	user.SetProviderID(provider, "")
	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("service/oauth: unlinking %s from %s: %w", provider, uid, err)
	}

	s.logger.Info("provider unlinked",
		slog.String("provider", string(provider)),
		slog.String("uuid", uid))
	return nil
}

// consumeState atomically redeems the nonce. An unknown or already
// consumed state is a replay or forgery and is rejected.
func (s *OAuthService) consumeState(ctx context.Context, provider model.Provider, state string) error {
	if state == "" {
		return apperror.ValidationFailed("state", "invalid OAuth state")
	}
	ok, err := s.states.Consume(ctx, provider, state)
	if err != nil {
		return fmt.Errorf("service/oauth: consuming state: %w", err)
	}
	if !ok {
		return apperror.ValidationFailed("state", "invalid OAuth state")
	}
	return nil
}

func (s *OAuthService) issuePairFor(ctx context.Context, uid string) (*AuthResult, error) {
	access, err := s.tokens.Issue(ctx, uid, model.TokenAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.Issue(ctx, uid, model.TokenRefresh)
	if err != nil {
		return nil, err
	}
	return &AuthResult{UUID: uid, AccessToken: access, RefreshToken: refresh}, nil
}

// lookup normalizes a repository get: not-found becomes (nil, nil) so
// the decision tables read cleanly.
func (s *OAuthService) lookup(ctx context.Context, get func() (*model.User, error)) (*model.User, error) {
	u, err := get()
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("service/oauth: account lookup: %w", err)
	}
	return u, nil
}

func (s *OAuthService) provider(name model.Provider) (auth.OAuthProvider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, apperror.NotFound("provider", string(name))
	}
	return p, nil
}

func (s *OAuthService) signinCallbackURL(provider model.Provider) string {
	return fmt.Sprintf("%s/api/auth/%s/callback/signin", s.publicURL, provider)
}

func (s *OAuthService) linkCallbackURL(provider model.Provider) string {
	return fmt.Sprintf("%s/api/auth/%s/callback/link", s.publicURL, provider)
}

// newStateNonce returns 16 random bytes hex-encoded.
func newStateNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("service/oauth: generating state nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func providerLabel(p model.Provider) string {
	switch p {
	case model.ProviderGitHub:
		return "GitHub"
	case model.ProviderDiscord:
		return "Discord"
	default:
		return string(p)
	}
}
