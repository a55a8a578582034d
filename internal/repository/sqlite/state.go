package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/ravenhacks/backend/internal/model"
	"github.com/ravenhacks/backend/internal/repository"
)

// compile-time check that *DB implements repository.StateRepository
var _ repository.StateRepository = (*DB)(nil)

// SaveState stores a freshly generated OAuth state nonce.
func (db *DB) SaveState(ctx context.Context, provider model.Provider, state string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO oauth_states (state, provider) VALUES (?, ?)`,
		state, string(provider),
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving oauth state: %w", err)
	}
	return nil
}

// Consume deletes the nonce in a single conditional statement and
// reports whether a row was removed. Two racing callbacks presenting the
// same state cannot both observe true; the DELETE is the check.
func (db *DB) Consume(ctx context.Context, provider model.Provider, state string) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM oauth_states WHERE state = ? AND provider = ?`,
		state, string(provider),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: consuming oauth state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteOlderThan sweeps nonces that were initiated but never consumed.
func (db *DB) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM oauth_states WHERE created_at < ?`,
		time.Now().Add(-age),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: sweeping oauth states: %w", err)
	}
	return res.RowsAffected()
}
