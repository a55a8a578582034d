package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ravenhacks/backend/internal/apperror"
	"github.com/ravenhacks/backend/internal/model"
	"github.com/ravenhacks/backend/internal/repository"
)

// UserService is the admin-facing account surface: listing, lookup,
// role changes, and deletion.
type UserService struct {
	users  repository.UserRepository
	logger *slog.Logger
}

// NewUserService creates a UserService.
func NewUserService(users repository.UserRepository, logger *slog.Logger) *UserService {
	return &UserService{users: users, logger: logger}
}

// Get returns the account with the given uuid.
func (s *UserService) Get(ctx context.Context, uid string) (*model.User, error) {
	user, err := s.users.GetByUUID(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("service/user: fetching %s: %w", uid, err)
	}
	return user, nil
}

// List returns every account.
func (s *UserService) List(ctx context.Context) ([]model.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/user: listing accounts: %w", err)
	}
	return users, nil
}

// SetRole changes an account's role. Organizer-only at the HTTP layer.
func (s *UserService) SetRole(ctx context.Context, uid string, role model.Role) (*model.User, error) {
	if !role.Valid() {
		return nil, apperror.ValidationFailed("role", "unknown role")
	}

	user, err := s.users.GetByUUID(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("service/user: fetching %s: %w", uid, err)
	}
	user.Role = role
	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("service/user: updating role for %s: %w", uid, err)
	}

	s.logger.Info("role changed",
		slog.String("uuid", uid),
		slog.String("role", role.String()))
	return user, nil
}

// Delete removes an account. Its token records and ledger entries
// cascade away with it.
func (s *UserService) Delete(ctx context.Context, uid string) error {
	if err := s.users.Delete(ctx, uid); err != nil {
		return fmt.Errorf("service/user: deleting %s: %w", uid, err)
	}
	s.logger.Info("account deleted", slog.String("uuid", uid))
	return nil
}
