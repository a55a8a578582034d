package sqlite

import (
	"context"
	"testing"

	"github.com/ravenhacks/backend/internal/model"
)

// newTestDB opens an in-memory database with the full schema applied.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("New(:memory:): %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser inserts a user and fails the test on error.
func createTestUser(t *testing.T, db *DB, uuid, email string) *model.User {
	t.Helper()
	user := &model.User{
		UUID:         uuid,
		Email:        email,
		PasswordHash: "$2a$04$fakehashfortesting",
		Role:         model.RoleHacker,
	}
	if err := db.Create(context.Background(), user); err != nil {
		t.Fatalf("creating test user %s: %v", uuid, err)
	}
	return user
}
