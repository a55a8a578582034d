package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/ravenhacks/backend/internal/apperror"
	"github.com/ravenhacks/backend/internal/model"
	"github.com/ravenhacks/backend/internal/repository"
)

// compile-time check that *DB implements repository.PointsRepository
var _ repository.PointsRepository = (*DB)(nil)

// Adjust applies a delta to the user's balance and appends a ledger
// entry. The balance read, guard, update, and insert all happen inside
// one transaction so concurrent redemptions cannot overdraw.
func (db *DB) Adjust(ctx context.Context, entry *model.PointsEntry) error {
	entry.ID = xid.New().String()
	entry.CreatedAt = time.Now()

	return db.inTx(ctx, func(tx *sql.Tx) error {
		var balance int
		err := tx.QueryRowContext(ctx,
			`SELECT points FROM users WHERE uuid = ?`, entry.UserUUID,
		).Scan(&balance)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.NotFound("user", entry.UserUUID)
			}
			return fmt.Errorf("sqlite: reading balance for %s: %w", entry.UserUUID, err)
		}

		if balance+entry.Delta < 0 {
			return apperror.ValidationFailed("amount", "insufficient points balance")
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET points = points + ?, updated_at = ? WHERE uuid = ?`,
			entry.Delta, time.Now(), entry.UserUUID,
		); err != nil {
			return fmt.Errorf("sqlite: adjusting balance for %s: %w", entry.UserUUID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO points_entries (id, uuid, delta, reason, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			entry.ID, entry.UserUUID, entry.Delta, entry.Reason, entry.CreatedAt,
		); err != nil {
			return fmt.Errorf("sqlite: appending ledger entry for %s: %w", entry.UserUUID, err)
		}
		return nil
	})
}

// Leaderboard returns the top balances, highest first.
func (db *DB) Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT uuid, email, points FROM users ORDER BY points DESC, email ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.UUID, &e.Email, &e.Points); err != nil {
			return nil, fmt.Errorf("sqlite: scanning leaderboard row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
