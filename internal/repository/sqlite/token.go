package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ravenhacks/backend/internal/model"
	"github.com/ravenhacks/backend/internal/repository"
)

// compile-time check that *DB implements repository.TokenRepository
var _ repository.TokenRepository = (*DB)(nil)

// tokenTable maps a token type to its table. Each type has its own table
// so revocation of one type never touches another.
func tokenTable(typ model.TokenType) (string, error) {
	switch typ {
	case model.TokenAccess:
		return "access_tokens", nil
	case model.TokenRefresh:
		return "refresh_tokens", nil
	case model.TokenReset:
		return "reset_tokens", nil
	case model.TokenConfirm:
		return "confirm_tokens", nil
	default:
		return "", fmt.Errorf("sqlite: unknown token type %q", typ)
	}
}

// Save records a freshly issued token.
func (db *DB) Save(ctx context.Context, typ model.TokenType, uuid, token string) error {
	table, err := tokenTable(typ)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (token, uuid) VALUES (?, ?)`, table),
		token, uuid,
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving %s token for %s: %w", typ, uuid, err)
	}
	return nil
}

// Exists reports whether the exact token string has a live record.
func (db *DB) Exists(ctx context.Context, typ model.TokenType, token string) (bool, error) {
	table, err := tokenTable(typ)
	if err != nil {
		return false, err
	}
	var one int
	err = db.conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT 1 FROM %s WHERE token = ?`, table), token,
	).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("sqlite: looking up %s token: %w", typ, err)
	}
	return true, nil
}

// DeleteUserToken deletes the record matching both owner and token
// string. Returns false when no such record existed.
func (db *DB) DeleteUserToken(ctx context.Context, typ model.TokenType, uuid, token string) (bool, error) {
	table, err := tokenTable(typ)
	if err != nil {
		return false, err
	}
	res, err := db.conn.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE token = ? AND uuid = ?`, table),
		token, uuid,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: deleting %s token for %s: %w", typ, uuid, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteAllForUser revokes every token of the given types owned by the
// user. All deletions happen in one transaction.
func (db *DB) DeleteAllForUser(ctx context.Context, uuid string, types ...model.TokenType) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		for _, typ := range types {
			table, err := tokenTable(typ)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`DELETE FROM %s WHERE uuid = ?`, table), uuid,
			); err != nil {
				return fmt.Errorf("sqlite: revoking %s tokens for %s: %w", typ, uuid, err)
			}
		}
		return nil
	})
}
