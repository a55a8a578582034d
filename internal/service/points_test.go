package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/ravenhacks/backend/internal/apperror"
	"github.com/ravenhacks/backend/internal/model"
)

// fakePointsRepo keeps balances in a map and enforces the no-overdraw
// rule the same way the real store does.
type fakePointsRepo struct {
	mu       sync.Mutex
	balances map[string]int
	entries  []model.PointsEntry
}

func newFakePointsRepo() *fakePointsRepo {
	return &fakePointsRepo{balances: make(map[string]int)}
}

func (f *fakePointsRepo) Adjust(ctx context.Context, entry *model.PointsEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := f.balances[entry.UserUUID] + entry.Delta
	if next < 0 {
		return apperror.ValidationFailed("amount", "insufficient points balance")
	}
	f.balances[entry.UserUUID] = next
	entry.ID = "entry-fake"
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakePointsRepo) Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.LeaderboardEntry, 0, len(f.balances))
	for uid, pts := range f.balances {
		out = append(out, model.LeaderboardEntry{UUID: uid, Points: pts})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Points > out[j].Points })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func TestAwardAndRedeem(t *testing.T) {
	repo := newFakePointsRepo()
	svc := NewPointsService(repo, testLogger())

	entry, err := svc.Award(context.Background(), "u1", 100, "won the ctf")
	if err != nil {
		t.Fatalf("Award() error = %v", err)
	}
	if entry.Delta != 100 {
		t.Errorf("Delta = %d, want 100", entry.Delta)
	}

	entry, err = svc.Redeem(context.Background(), "u1", 40, "t-shirt")
	if err != nil {
		t.Fatalf("Redeem() error = %v", err)
	}
	if entry.Delta != -40 {
		t.Errorf("Delta = %d, want -40", entry.Delta)
	}

	if repo.balances["u1"] != 60 {
		t.Errorf("balance = %d, want 60", repo.balances["u1"])
	}
}

func TestAward_NonPositiveAmount(t *testing.T) {
	svc := NewPointsService(newFakePointsRepo(), testLogger())

	for _, amount := range []int{0, -5} {
		_, err := svc.Award(context.Background(), "u1", amount, "nope")
		if !errors.Is(err, apperror.ErrValidation) {
			t.Errorf("Award(%d) error = %v, want validation error", amount, err)
		}
	}
}

func TestRedeem_Overdraw(t *testing.T) {
	repo := newFakePointsRepo()
	svc := NewPointsService(repo, testLogger())

	if _, err := svc.Award(context.Background(), "u1", 10, "seed"); err != nil {
		t.Fatalf("Award() error = %v", err)
	}

	_, err := svc.Redeem(context.Background(), "u1", 11, "too much")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("Redeem() overdraw error = %v, want validation error", err)
	}
	if repo.balances["u1"] != 10 {
		t.Errorf("balance = %d, want unchanged 10", repo.balances["u1"])
	}
}

func TestLeaderboard(t *testing.T) {
	repo := newFakePointsRepo()
	svc := NewPointsService(repo, testLogger())

	for uid, pts := range map[string]int{"a": 10, "b": 30, "c": 20} {
		if _, err := svc.Award(context.Background(), uid, pts, "seed"); err != nil {
			t.Fatalf("Award(%s) error = %v", uid, err)
		}
	}

	entries, err := svc.Leaderboard(context.Background(), 2)
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	if entries[0].UUID != "b" || entries[1].UUID != "c" {
		t.Errorf("order = %s, %s; want b, c", entries[0].UUID, entries[1].UUID)
	}
}
