// Package repository declares the storage interfaces the service layer
// depends on. The sqlite subpackage implements all of them on one DB
// handle; tests substitute in-memory fakes.
package repository

import (
	"context"
	"time"

	"github.com/ravenhacks/backend/internal/model"
)

// UserRepository stores accounts.
//
// Multi-step operations (CreateWithTokens, ResetPassword, ConfirmAccount,
// Delete) are declared as single methods so the implementation can run
// them inside one transaction; partial failure must not leave an account
// without its tokens or a reset without its revocations.
type UserRepository interface {
	// Create inserts a new account. Fails with a conflict if the email
	// or a provider id is already taken.
	Create(ctx context.Context, user *model.User) error

	// CreateWithTokens inserts a new account and its freshly minted
	// token records in a single transaction.
	CreateWithTokens(ctx context.Context, user *model.User, grants []model.TokenGrant) error

	GetByUUID(ctx context.Context, uuid string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)

	// GetByProviderID looks up the account linked to the given external
	// provider id. Returns apperror.ErrNotFound when no account has it.
	GetByProviderID(ctx context.Context, provider model.Provider, id string) (*model.User, error)

	List(ctx context.Context) ([]model.User, error)

	// Update persists mutable fields (provider ids, role, confirmed,
	// password hash) of an existing account.
	Update(ctx context.Context, user *model.User) error

	// ResetPassword sets a new password hash and deletes every
	// outstanding access, refresh, and reset token of the account, all
	// in one transaction.
	ResetPassword(ctx context.Context, uuid, passwordHash string) error

	// ConfirmAccount consumes a confirm token and marks the account
	// confirmed in one transaction. Returns false when the token record
	// was already gone (revoked or already redeemed).
	ConfirmAccount(ctx context.Context, uuid, token string) (bool, error)

	// Delete removes the account and cascades to its token records.
	Delete(ctx context.Context, uuid string) error
}

// TokenRepository stores issued token records, one logical table per
// token type. A record's existence is the liveness source of truth:
// deleting it revokes the token regardless of signature validity.
type TokenRepository interface {
	Save(ctx context.Context, typ model.TokenType, uuid, token string) error

	// Exists reports whether the exact token string has a live record.
	Exists(ctx context.Context, typ model.TokenType, token string) (bool, error)

	// DeleteUserToken deletes the record matching both owner and token
	// string. Returns false if no such record existed.
	DeleteUserToken(ctx context.Context, typ model.TokenType, uuid, token string) (bool, error)

	// DeleteAllForUser revokes every token of the given types owned by
	// the user, in one transaction.
	DeleteAllForUser(ctx context.Context, uuid string, types ...model.TokenType) error
}

// StateRepository stores OAuth CSRF state nonces.
type StateRepository interface {
	SaveState(ctx context.Context, provider model.Provider, state string) error

	// Consume atomically deletes the nonce and reports whether it
	// existed. Only the caller that observes true may proceed, which
	// makes concurrent replays of the same state lose the race.
	Consume(ctx context.Context, provider model.Provider, state string) (bool, error)

	// DeleteOlderThan sweeps nonces that were never consumed.
	DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// PointsRepository maintains the points balance and ledger.
type PointsRepository interface {
	// Adjust applies a delta to the user's balance and appends a ledger
	// entry in one transaction. A debit that would take the balance
	// negative fails with a validation error.
	Adjust(ctx context.Context, entry *model.PointsEntry) error

	Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)
}
