package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ravenhacks/backend/internal/apperror"
	"github.com/ravenhacks/backend/internal/auth"
	"github.com/ravenhacks/backend/internal/mail"
	"github.com/ravenhacks/backend/internal/model"
	"github.com/ravenhacks/backend/internal/repository"
)

var emailRegex = regexp.MustCompile(`^[a-z0-9!#$%&'*+/=?^_` + "`" + `{|}~-]+(?:\.[a-z0-9!#$%&'*+/=?^_` + "`" + `{|}~-]+)*@(?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+[a-z0-9](?:[a-z0-9-]*[a-z0-9])?$`)

// MailConfig carries the pieces needed to compose confirmation and
// reset messages.
type MailConfig struct {
	PublicURL   string // e.g. https://ravenhacks.example.com
	ConfirmPath string // link path for email confirmation
	ResetPath   string // link path for password reset
}

// AuthService implements login, registration, token refresh, password
// reset, logout, and email confirmation.
type AuthService struct {
	users     repository.UserRepository
	tokens    *TokenService
	passwords *auth.PasswordService
	sender    mail.Sender
	mailCfg   MailConfig
	logger    *slog.Logger

	// sleep is replaceable in tests so the timing-obfuscation delay
	// doesn't slow the suite down.
	sleep func(time.Duration)
}

// NewAuthService creates an AuthService. sender may be nil, in which
// case confirmation and reset emails are skipped (logged at warn).
func NewAuthService(
	users repository.UserRepository,
	tokens *TokenService,
	passwords *auth.PasswordService,
	sender mail.Sender,
	mailCfg MailConfig,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		sender:    sender,
		mailCfg:   mailCfg,
		logger:    logger,
		sleep:     time.Sleep,
	}
}

// AuthResult bundles the account id with a freshly issued token pair.
type AuthResult struct {
	UUID         string             `json:"uuid"`
	AccessToken  *model.IssuedToken `json:"accessToken"`
	RefreshToken *model.IssuedToken `json:"refreshToken"`
}

// Login authenticates an email/password pair and issues a token pair.
//
// The same unauthorized error covers "no such email", "OAuth-only
// account", and "wrong password"; the response never reveals whether
// the email exists.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("invalid email or password")
		}
		return nil, fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}
	if user.PasswordHash == "" {
		return nil, apperror.Unauthorized("invalid email or password")
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, apperror.Unauthorized("invalid email or password")
	}

	return s.issuePair(ctx, user.UUID)
}

// Register creates an email/password account, issues a token pair, and
// sends a confirmation email carrying a single-use confirm token.
func (s *AuthService) Register(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailRegex.MatchString(email) {
		return nil, apperror.ValidationFailed("email", "invalid email address")
	}
	if len(password) < 8 {
		return nil, apperror.ValidationFailed("password", "password must be at least 8 characters")
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		UUID:         uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleHacker,
		Confirmed:    false,
	}

	access, err := s.tokens.Mint(user.UUID, model.TokenAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.Mint(user.UUID, model.TokenRefresh)
	if err != nil {
		return nil, err
	}
	confirm, err := s.tokens.Mint(user.UUID, model.TokenConfirm)
	if err != nil {
		return nil, err
	}

	grants := []model.TokenGrant{
		{Type: model.TokenAccess, Token: access.Token},
		{Type: model.TokenRefresh, Token: refresh.Token},
		{Type: model.TokenConfirm, Token: confirm.Token},
	}
	if err := s.users.CreateWithTokens(ctx, user, grants); err != nil {
		return nil, fmt.Errorf("service/auth: creating account for %s: %w", email, err)
	}

	s.logger.Info("account registered", slog.String("uuid", user.UUID))

	s.sendConfirmation(ctx, user.Email, confirm.Token)

	return &AuthResult{UUID: user.UUID, AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself is untouched.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*model.IssuedToken, error) {
	status, uid, err := s.tokens.Verify(ctx, refreshToken, model.TokenRefresh)
	if err != nil {
		return nil, err
	}
	if status != model.TokenValid {
		return nil, apperror.Unauthorized("invalid refresh token")
	}
	return s.tokens.Issue(ctx, uid, model.TokenAccess)
}

// RequestReset starts a password reset. It always succeeds from the
// caller's perspective: for a known email a reset token is issued and
// mailed; for an unknown one the service sleeps a random 1.5–2.5s so
// response timing does not reveal whether the account exists.
func (s *AuthService) RequestReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.sleep(time.Duration(1500+rand.Intn(1000)) * time.Millisecond)
			return nil
		}
		return fmt.Errorf("service/auth: looking up %s for reset: %w", email, err)
	}

	reset, err := s.tokens.Issue(ctx, user.UUID, model.TokenReset)
	if err != nil {
		return err
	}

	if s.sender == nil {
		s.logger.Warn("mail sender not configured, skipping reset email",
			slog.String("uuid", user.UUID))
		return nil
	}
	body := fmt.Sprintf("A password reset was requested for your account.\n\nReset it here: %s%s?token=%s\n\nIf you didn't request this, you can ignore this email.",
		s.mailCfg.PublicURL, s.mailCfg.ResetPath, reset.Token)
	if err := s.sender.Send(ctx, user.Email, "RavenHacks password reset", body); err != nil {
		// Deliberately not surfaced: the endpoint always returns 200.
		s.logger.Error("sending reset email failed",
			slog.String("uuid", user.UUID),
			slog.String("error", err.Error()))
	}
	return nil
}

// PerformReset redeems a reset token: sets the new password and revokes
// every outstanding access, refresh, and reset token of the account, in
// one transaction, forcing re-authentication everywhere.
func (s *AuthService) PerformReset(ctx context.Context, token, newPassword string) error {
	status, uid, err := s.tokens.Verify(ctx, token, model.TokenReset)
	if err != nil {
		return err
	}
	if status != model.TokenValid {
		return apperror.ValidationFailed("token", "invalid reset token")
	}
	if len(newPassword) < 8 {
		return apperror.ValidationFailed("password", "password must be at least 8 characters")
	}

	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("service/auth: hashing password: %w", err)
	}
	if err := s.users.ResetPassword(ctx, uid, hash); err != nil {
		return fmt.Errorf("service/auth: resetting password for %s: %w", uid, err)
	}

	s.logger.Info("password reset completed", slog.String("uuid", uid))
	return nil
}

// Logout revokes the caller's presented refresh token. Revoking a token
// that is already gone is not an error.
func (s *AuthService) Logout(ctx context.Context, uid, refreshToken string) error {
	if _, err := s.tokens.Revoke(ctx, model.TokenRefresh, uid, refreshToken); err != nil {
		return err
	}
	return nil
}

// InvalidateAll revokes every access and refresh token of the account,
// the "log me out everywhere" operation.
func (s *AuthService) InvalidateAll(ctx context.Context, uid string) error {
	return s.tokens.RevokeAll(ctx, uid, model.TokenAccess, model.TokenRefresh)
}

// Confirm redeems a single-use confirm token and marks the account's
// email as confirmed.
func (s *AuthService) Confirm(ctx context.Context, token string) error {
	status, uid, err := s.tokens.Verify(ctx, token, model.TokenConfirm)
	if err != nil {
		return err
	}
	if status != model.TokenValid {
		return apperror.ValidationFailed("token", "invalid confirmation token")
	}

	redeemed, err := s.users.ConfirmAccount(ctx, uid, token)
	if err != nil {
		return fmt.Errorf("service/auth: confirming account %s: %w", uid, err)
	}
	if !redeemed {
		// Verified a moment ago but the record is gone now: a
		// concurrent redemption won.
		return apperror.ValidationFailed("token", "invalid confirmation token")
	}

	s.logger.Info("email confirmed", slog.String("uuid", uid))
	return nil
}

// issuePair issues a fresh access + refresh token pair.
func (s *AuthService) issuePair(ctx context.Context, uid string) (*AuthResult, error) {
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

func (s *AuthService) sendConfirmation(ctx context.Context, email, confirmToken string) {
	if s.sender == nil {
		s.logger.Warn("mail sender not configured, skipping confirmation email")
		return
	}
	body := fmt.Sprintf("Welcome to RavenHacks!\n\nConfirm your email here: %s%s?token=%s",
		s.mailCfg.PublicURL, s.mailCfg.ConfirmPath, confirmToken)
	if err := s.sender.Send(ctx, email, "Confirm your RavenHacks account", body); err != nil {
		s.logger.Error("sending confirmation email failed", slog.String("error", err.Error()))
	}
}
