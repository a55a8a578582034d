package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ravenhacks/backend/internal/apperror"
	"github.com/ravenhacks/backend/internal/model"
	"github.com/ravenhacks/backend/internal/repository"
)

// PointsService manages the gamified points balance: sponsors and
// organizers award points, hackers redeem them for swag, and everyone
// can see the leaderboard.
type PointsService struct {
	points repository.PointsRepository
	logger *slog.Logger
}

// NewPointsService creates a PointsService.
func NewPointsService(points repository.PointsRepository, logger *slog.Logger) *PointsService {
	return &PointsService{points: points, logger: logger}
}

// Award credits points to an account.
func (s *PointsService) Award(ctx context.Context, uid string, amount int, reason string) (*model.PointsEntry, error) {
	if amount <= 0 {
		return nil, apperror.ValidationFailed("amount", "award amount must be positive")
	}

	entry := &model.PointsEntry{UserUUID: uid, Delta: amount, Reason: reason}
	if err := s.points.Adjust(ctx, entry); err != nil {
		return nil, fmt.Errorf("service/points: awarding %d to %s: %w", amount, uid, err)
	}

	s.logger.Info("points awarded",
		slog.String("uuid", uid),
		slog.Int("amount", amount))
	return entry, nil
}

// Redeem debits points from the caller's own balance. Redemptions that
// would overdraw fail with a validation error.
func (s *PointsService) Redeem(ctx context.Context, uid string, amount int, reason string) (*model.PointsEntry, error) {
	if amount <= 0 {
		return nil, apperror.ValidationFailed("amount", "redemption amount must be positive")
	}

	entry := &model.PointsEntry{UserUUID: uid, Delta: -amount, Reason: reason}
	if err := s.points.Adjust(ctx, entry); err != nil {
		return nil, fmt.Errorf("service/points: redeeming %d from %s: %w", amount, uid, err)
	}

	s.logger.Info("points redeemed",
		slog.String("uuid", uid),
		slog.Int("amount", amount))
	return entry, nil
}

// Leaderboard returns the top balances.
func (s *PointsService) Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	entries, err := s.points.Leaderboard(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("service/points: loading leaderboard: %w", err)
	}
	return entries, nil
}
