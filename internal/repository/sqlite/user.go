package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ravenhacks/backend/internal/apperror"
	"github.com/ravenhacks/backend/internal/model"
	"github.com/ravenhacks/backend/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `uuid, email, password_hash, role, github_id, discord_id, confirmed, points, created_at, updated_at`

// Create inserts a new account. Email and provider-id uniqueness are
// enforced by the schema; violations surface as conflicts.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (uuid, email, password_hash, role, github_id, discord_id, confirmed, points, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.UUID,
		user.Email,
		user.PasswordHash,
		user.Role,
		nullable(user.GitHubID),
		nullable(user.DiscordID),
		user.Confirmed,
		user.Points,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("an account with that email or linked identity already exists")
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.UUID, err)
	}
	return nil
}

// CreateWithTokens inserts the account and its initial token records in
// one transaction, so a failure cannot leave an account half-created.
func (db *DB) CreateWithTokens(ctx context.Context, user *model.User, grants []model.TokenGrant) error {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	return db.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (uuid, email, password_hash, role, github_id, discord_id, confirmed, points, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			user.UUID,
			user.Email,
			user.PasswordHash,
			user.Role,
			nullable(user.GitHubID),
			nullable(user.DiscordID),
			user.Confirmed,
			user.Points,
			user.CreatedAt,
			user.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("an account with that email or linked identity already exists")
			}
			return fmt.Errorf("sqlite: inserting user %s: %w", user.UUID, err)
		}

		for _, g := range grants {
			table, err := tokenTable(g.Type)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`INSERT INTO %s (token, uuid) VALUES (?, ?)`, table),
				g.Token, user.UUID,
			); err != nil {
				return fmt.Errorf("sqlite: inserting %s token for %s: %w", g.Type, user.UUID, err)
			}
		}
		return nil
	})
}

// GetByUUID retrieves an account by its stable id.
func (db *DB) GetByUUID(ctx context.Context, uuid string) (*model.User, error) {
	return db.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE uuid = ?`, uuid)
}

// GetByEmail retrieves an account by email (case-insensitive).
func (db *DB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

// GetByProviderID retrieves the account linked to the given external id.
func (db *DB) GetByProviderID(ctx context.Context, provider model.Provider, id string) (*model.User, error) {
	column, err := providerColumn(provider)
	if err != nil {
		return nil, err
	}
	return db.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, id)
}

func (db *DB) getUser(ctx context.Context, query string, arg any) (*model.User, error) {
	var (
		u         model.User
		githubID  sql.NullString
		discordID sql.NullString
	)
	err := db.conn.QueryRowContext(ctx, query, arg).Scan(
		&u.UUID,
		&u.Email,
		&u.PasswordHash,
		&u.Role,
		&githubID,
		&discordID,
		&u.Confirmed,
		&u.Points,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", fmt.Sprint(arg))
		}
		return nil, fmt.Errorf("sqlite: getting user: %w", err)
	}
	u.GitHubID = githubID.String
	u.DiscordID = discordID.String
	return &u, nil
}

// List returns every account, newest first.
func (db *DB) List(ctx context.Context) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var (
			u         model.User
			githubID  sql.NullString
			discordID sql.NullString
		)
		if err := rows.Scan(
			&u.UUID, &u.Email, &u.PasswordHash, &u.Role,
			&githubID, &discordID, &u.Confirmed, &u.Points,
			&u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		u.GitHubID = githubID.String
		u.DiscordID = discordID.String
		users = append(users, u)
	}
	return users, rows.Err()
}

// Update persists the mutable fields of an existing account.
func (db *DB) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users
		 SET email = ?, password_hash = ?, role = ?, github_id = ?, discord_id = ?,
		     confirmed = ?, points = ?, updated_at = ?
		 WHERE uuid = ?`,
		user.Email,
		user.PasswordHash,
		user.Role,
		nullable(user.GitHubID),
		nullable(user.DiscordID),
		user.Confirmed,
		user.Points,
		user.UpdatedAt,
		user.UUID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("an account with that email or linked identity already exists")
		}
		return fmt.Errorf("sqlite: updating user %s: %w", user.UUID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", user.UUID, err)
	}
	if n == 0 {
		return apperror.NotFound("user", user.UUID)
	}
	return nil
}

// ResetPassword sets the new hash and revokes every outstanding access,
// refresh, and reset token of the account in one transaction, forcing a
// full re-authentication everywhere.
func (db *DB) ResetPassword(ctx context.Context, uuid, passwordHash string) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET password_hash = ?, updated_at = ? WHERE uuid = ?`,
			passwordHash, time.Now(), uuid,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating password for %s: %w", uuid, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return apperror.NotFound("user", uuid)
		}

		for _, table := range []string{"access_tokens", "refresh_tokens", "reset_tokens"} {
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`DELETE FROM %s WHERE uuid = ?`, table), uuid,
			); err != nil {
				return fmt.Errorf("sqlite: revoking %s for %s: %w", table, uuid, err)
			}
		}
		return nil
	})
}

// ConfirmAccount redeems a confirm token: deletes the record and marks
// the account confirmed in one transaction. A token whose record is
// already gone returns false and mutates nothing.
func (db *DB) ConfirmAccount(ctx context.Context, uuid, token string) (bool, error) {
	redeemed := false
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM confirm_tokens WHERE token = ? AND uuid = ?`, token, uuid,
		)
		if err != nil {
			return fmt.Errorf("sqlite: consuming confirm token: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil // already redeemed or revoked
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET confirmed = 1, updated_at = ? WHERE uuid = ?`,
			time.Now(), uuid,
		); err != nil {
			return fmt.Errorf("sqlite: confirming user %s: %w", uuid, err)
		}
		redeemed = true
		return nil
	})
	return redeemed, err
}

// Delete removes an account. Token records and ledger entries cascade.
func (db *DB) Delete(ctx context.Context, uuid string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE uuid = ?`, uuid)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", uuid, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NotFound("user", uuid)
	}
	return nil
}

// nullable maps "" to NULL so the UNIQUE constraints on provider-id
// columns only apply to linked accounts.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func providerColumn(p model.Provider) (string, error) {
	switch p {
	case model.ProviderGitHub:
		return "github_id", nil
	case model.ProviderDiscord:
		return "discord_id", nil
	default:
		return "", fmt.Errorf("sqlite: unknown provider %q", p)
	}
}
