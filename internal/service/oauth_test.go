package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/ravenhacks/backend/internal/apperror"
	"github.com/ravenhacks/backend/internal/auth"
	"github.com/ravenhacks/backend/internal/model"
)

type oauthFixture struct {
	users    *fakeUserRepo
	tokens   *fakeTokenRepo
	states   *fakeStateRepo
	github   *fakeProvider
	discordP *fakeProvider
	roles    *fakeRoleAssigner
	svc      *OAuthService
}

func newOAuthFixture(t *testing.T) *oauthFixture {
	t.Helper()
	f := &oauthFixture{
		tokens:   newFakeTokenRepo(),
		states:   newFakeStateRepo(),
		github:   &fakeProvider{name: model.ProviderGitHub},
		discordP: &fakeProvider{name: model.ProviderDiscord},
		roles:    &fakeRoleAssigner{},
	}
	f.users = newFakeUserRepo(f.tokens)

	tokenSvc := newTestTokenService(t, f.tokens)
	f.svc = NewOAuthService(f.users, f.states, tokenSvc,
		[]auth.OAuthProvider{f.github, f.discordP}, f.roles,
		"https://ravenhacks.example.com", testLogger())
	return f
}

// beginSignin runs the redirect leg and returns the state parameter the
// provider URL carries.
func (f *oauthFixture) beginSignin(t *testing.T, provider model.Provider) string {
	t.Helper()
	redirect, err := f.svc.BeginSignin(context.Background(), provider)
	if err != nil {
		t.Fatalf("BeginSignin(%s) error = %v", provider, err)
	}
	return stateParam(t, redirect)
}

func (f *oauthFixture) beginLink(t *testing.T, provider model.Provider, uid string) string {
	t.Helper()
	redirect, err := f.svc.BeginLink(context.Background(), provider, uid)
	if err != nil {
		t.Fatalf("BeginLink(%s) error = %v", provider, err)
	}
	return stateParam(t, redirect)
}

func stateParam(t *testing.T, redirect string) string {
	t.Helper()
	u, err := url.Parse(redirect)
	if err != nil {
		t.Fatalf("parsing redirect URL %q: %v", redirect, err)
	}
	state := u.Query().Get("state")
	if state == "" {
		t.Fatalf("redirect URL %q carries no state", redirect)
	}
	return state
}

func TestBeginSignin_UnknownProvider(t *testing.T) {
	f := newOAuthFixture(t)

	_, err := f.svc.BeginSignin(context.Background(), model.Provider("gitlab"))
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("BeginSignin(gitlab) error = %v, want not found", err)
	}
}

func TestCompleteSignin_FreshSignup(t *testing.T) {
	f := newOAuthFixture(t)
	f.github.identity = &auth.Identity{ID: "gh-42", Email: "Octo@Example.com", Username: "octo"}

	state := f.beginSignin(t, model.ProviderGitHub)
	res, err := f.svc.CompleteSignin(context.Background(), model.ProviderGitHub, state, "code-1")
	if err != nil {
		t.Fatalf("CompleteSignin() error = %v", err)
	}
	if res.AccessToken == nil || res.RefreshToken == nil {
		t.Fatal("fresh signup must issue a token pair")
	}

	user, err := f.users.GetByUUID(context.Background(), res.UUID)
	if err != nil {
		t.Fatalf("account not created: %v", err)
	}
	if user.Email != "octo@example.com" {
		t.Errorf("Email = %q, want lowercased", user.Email)
	}
	if user.GitHubID != "gh-42" {
		t.Errorf("GitHubID = %q, want %q", user.GitHubID, "gh-42")
	}
	if !user.Confirmed {
		t.Error("OAuth signup must start confirmed: the provider verified the email")
	}
	if user.Role != model.RoleHacker {
		t.Errorf("Role = %v, want RoleHacker", user.Role)
	}
	if user.PasswordHash != "" {
		t.Error("OAuth signup must have no password")
	}
}

func TestCompleteSignin_ReturningUser(t *testing.T) {
	f := newOAuthFixture(t)
	f.github.identity = &auth.Identity{ID: "gh-42", Email: "octo@example.com"}

	state := f.beginSignin(t, model.ProviderGitHub)
	first, err := f.svc.CompleteSignin(context.Background(), model.ProviderGitHub, state, "code-1")
	if err != nil {
		t.Fatalf("signup error = %v", err)
	}

	state = f.beginSignin(t, model.ProviderGitHub)
	second, err := f.svc.CompleteSignin(context.Background(), model.ProviderGitHub, state, "code-2")
	if err != nil {
		t.Fatalf("returning signin error = %v", err)
	}
	if second.UUID != first.UUID {
		t.Errorf("returning user uuid = %q, want %q", second.UUID, first.UUID)
	}

	users, _ := f.users.List(context.Background())
	if len(users) != 1 {
		t.Errorf("have %d accounts, want 1", len(users))
	}
}

func TestCompleteSignin_EmailTakenByPasswordAccount(t *testing.T) {
	f := newOAuthFixture(t)

	existing := &model.User{UUID: "u1", Email: "taken@example.com", PasswordHash: "x", Role: model.RoleHacker}
	if err := f.users.Create(context.Background(), existing); err != nil {
		t.Fatalf("seeding user: %v", err)
	}

	f.github.identity = &auth.Identity{ID: "gh-42", Email: "taken@example.com"}

	state := f.beginSignin(t, model.ProviderGitHub)
	_, err := f.svc.CompleteSignin(context.Background(), model.ProviderGitHub, state, "code-1")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("CompleteSignin() error = %v, want conflict", err)
	}

	// The existing account must be untouched.
	user, _ := f.users.GetByUUID(context.Background(), "u1")
	if user.GitHubID != "" {
		t.Error("conflicting signin must not mutate the existing account")
	}
}

func TestCompleteSignin_ProviderLinkedToDifferentEmail(t *testing.T) {
	f := newOAuthFixture(t)

	// gh-42 is linked to an account whose email differs from what the
	// provider reports now.
	linked := &model.User{UUID: "u1", Email: "old@example.com", GitHubID: "gh-42", Role: model.RoleHacker}
	if err := f.users.Create(context.Background(), linked); err != nil {
		t.Fatalf("seeding user: %v", err)
	}

	f.github.identity = &auth.Identity{ID: "gh-42", Email: "new@example.com"}

	state := f.beginSignin(t, model.ProviderGitHub)
	_, err := f.svc.CompleteSignin(context.Background(), model.ProviderGitHub, state, "code-1")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("CompleteSignin() error = %v, want conflict", err)
	}

	users, _ := f.users.List(context.Background())
	if len(users) != 1 {
		t.Errorf("have %d accounts, want 1 (no signup on conflict)", len(users))
	}
}

func TestCompleteSignin_StateIsSingleUse(t *testing.T) {
	f := newOAuthFixture(t)
	f.github.identity = &auth.Identity{ID: "gh-42", Email: "octo@example.com"}

	state := f.beginSignin(t, model.ProviderGitHub)
	if _, err := f.svc.CompleteSignin(context.Background(), model.ProviderGitHub, state, "code-1"); err != nil {
		t.Fatalf("first callback error = %v", err)
	}

	// Replaying the consumed state must be rejected before any exchange.
	_, err := f.svc.CompleteSignin(context.Background(), model.ProviderGitHub, state, "code-1")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("replayed state error = %v, want validation error", err)
	}
}

func TestCompleteSignin_UnknownState(t *testing.T) {
	f := newOAuthFixture(t)

	for _, state := range []string{"", "never-issued"} {
		_, err := f.svc.CompleteSignin(context.Background(), model.ProviderGitHub, state, "code-1")
		if !errors.Is(err, apperror.ErrValidation) {
			t.Errorf("state %q: error = %v, want validation error", state, err)
		}
	}
}

func TestCompleteSignin_WrongProviderState(t *testing.T) {
	f := newOAuthFixture(t)
	f.discordP.identity = &auth.Identity{ID: "d-1", Email: "d@example.com"}

	// A state issued for GitHub presented on the Discord callback.
	state := f.beginSignin(t, model.ProviderGitHub)
	_, err := f.svc.CompleteSignin(context.Background(), model.ProviderDiscord, state, "code-1")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("cross-provider state error = %v, want validation error", err)
	}
}

func TestCompleteLink(t *testing.T) {
	f := newOAuthFixture(t)

	target := &model.User{UUID: "u1", Email: "user@example.com", PasswordHash: "x", Role: model.RoleHacker}
	if err := f.users.Create(context.Background(), target); err != nil {
		t.Fatalf("seeding user: %v", err)
	}

	f.github.identity = &auth.Identity{ID: "gh-42", Email: "whatever@example.com"}

	state := f.beginLink(t, model.ProviderGitHub, "u1")
	if !strings.HasSuffix(state, "/u1") {
		t.Fatalf("link state %q should carry the uuid suffix", state)
	}

	if err := f.svc.CompleteLink(context.Background(), model.ProviderGitHub, state, "code-1"); err != nil {
		t.Fatalf("CompleteLink() error = %v", err)
	}

	user, _ := f.users.GetByUUID(context.Background(), "u1")
	if user.GitHubID != "gh-42" {
		t.Errorf("GitHubID = %q, want %q", user.GitHubID, "gh-42")
	}
}

func TestCompleteLink_DiscordAssignsRole(t *testing.T) {
	f := newOAuthFixture(t)

	target := &model.User{UUID: "u1", Email: "user@example.com", PasswordHash: "x"}
	if err := f.users.Create(context.Background(), target); err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	f.discordP.identity = &auth.Identity{ID: "d-777", Email: "user@example.com"}

	state := f.beginLink(t, model.ProviderDiscord, "u1")
	if err := f.svc.CompleteLink(context.Background(), model.ProviderDiscord, state, "code-1"); err != nil {
		t.Fatalf("CompleteLink() error = %v", err)
	}

	if len(f.roles.assigned) != 1 || f.roles.assigned[0] != "d-777" {
		t.Errorf("assigned = %v, want [d-777]", f.roles.assigned)
	}
}

func TestCompleteLink_RoleWebhookFailureDoesNotUndoLink(t *testing.T) {
	f := newOAuthFixture(t)

	target := &model.User{UUID: "u1", Email: "user@example.com", PasswordHash: "x"}
	if err := f.users.Create(context.Background(), target); err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	f.discordP.identity = &auth.Identity{ID: "d-777", Email: "user@example.com"}
	f.roles.err = errors.New("webhook down")

	state := f.beginLink(t, model.ProviderDiscord, "u1")
	if err := f.svc.CompleteLink(context.Background(), model.ProviderDiscord, state, "code-1"); err != nil {
		t.Fatalf("CompleteLink() error = %v, webhook failures are best-effort", err)
	}

	user, _ := f.users.GetByUUID(context.Background(), "u1")
	if user.DiscordID != "d-777" {
		t.Error("link must persist even when the role webhook fails")
	}
}

func TestCompleteLink_ProviderAlreadyLinkedElsewhere(t *testing.T) {
	f := newOAuthFixture(t)

	owner := &model.User{UUID: "u1", Email: "owner@example.com", GitHubID: "gh-42"}
	target := &model.User{UUID: "u2", Email: "target@example.com", PasswordHash: "x"}
	for _, u := range []*model.User{owner, target} {
		if err := f.users.Create(context.Background(), u); err != nil {
			t.Fatalf("seeding user: %v", err)
		}
	}
	f.github.identity = &auth.Identity{ID: "gh-42", Email: "owner@example.com"}

	state := f.beginLink(t, model.ProviderGitHub, "u2")
	err := f.svc.CompleteLink(context.Background(), model.ProviderGitHub, state, "code-1")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("CompleteLink() error = %v, want conflict", err)
	}
}

func TestCompleteLink_TargetAlreadyLinked(t *testing.T) {
	f := newOAuthFixture(t)

	target := &model.User{UUID: "u1", Email: "user@example.com", GitHubID: "gh-old"}
	if err := f.users.Create(context.Background(), target); err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	f.github.identity = &auth.Identity{ID: "gh-new", Email: "user@example.com"}

	state := f.beginLink(t, model.ProviderGitHub, "u1")
	err := f.svc.CompleteLink(context.Background(), model.ProviderGitHub, state, "code-1")
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("CompleteLink() error = %v, want conflict (unlink first)", err)
	}

	user, _ := f.users.GetByUUID(context.Background(), "u1")
	if user.GitHubID != "gh-old" {
		t.Error("existing link must be untouched")
	}
}

func TestUnlink(t *testing.T) {
	f := newOAuthFixture(t)

	target := &model.User{UUID: "u1", Email: "user@example.com", GitHubID: "gh-42"}
	if err := f.users.Create(context.Background(), target); err != nil {
		t.Fatalf("seeding user: %v", err)
	}

	if err := f.svc.Unlink(context.Background(), model.ProviderGitHub, "u1"); err != nil {
		t.Fatalf("Unlink() error = %v", err)
	}

	user, _ := f.users.GetByUUID(context.Background(), "u1")
	if user.GitHubID != "" {
		t.Errorf("GitHubID = %q, want empty after unlink", user.GitHubID)
	}
}

func TestStateNoncesAreUnique(t *testing.T) {
	f := newOAuthFixture(t)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		state := f.beginSignin(t, model.ProviderGitHub)
		if seen[state] {
			t.Fatalf("duplicate state nonce %q", state)
		}
		seen[state] = true
	}
}
