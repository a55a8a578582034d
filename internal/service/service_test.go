package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ravenhacks/backend/internal/apperror"
	"github.com/ravenhacks/backend/internal/auth"
	"github.com/ravenhacks/backend/internal/model"
)

// The fakes below are in-memory implementations of the repository
// interfaces. Hand-rolled fakes (not a mock framework) keep the tests
// easy to read: what the fake does is right here.

// fakeTokenRepo stores token records per type, keyed token -> owner uuid.
type fakeTokenRepo struct {
	mu      sync.Mutex
	records map[model.TokenType]map[string]string
	saveErr error
}

func newFakeTokenRepo() *fakeTokenRepo {
	r := &fakeTokenRepo{records: make(map[model.TokenType]map[string]string)}
	for _, typ := range model.TokenTypes {
		r.records[typ] = make(map[string]string)
	}
	return r
}

func (f *fakeTokenRepo) Save(ctx context.Context, typ model.TokenType, uuid, token string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[typ][token] = uuid
	return nil
}

func (f *fakeTokenRepo) Exists(ctx context.Context, typ model.TokenType, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[typ][token]
	return ok, nil
}

func (f *fakeTokenRepo) DeleteUserToken(ctx context.Context, typ model.TokenType, uuid, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	owner, ok := f.records[typ][token]
	if !ok || owner != uuid {
		return false, nil
	}
	delete(f.records[typ], token)
	return true, nil
}

func (f *fakeTokenRepo) DeleteAllForUser(ctx context.Context, uuid string, types ...model.TokenType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, typ := range types {
		for token, owner := range f.records[typ] {
			if owner == uuid {
				delete(f.records[typ], token)
			}
		}
	}
	return nil
}

func (f *fakeTokenRepo) count(typ model.TokenType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records[typ])
}

// fakeUserRepo stores users keyed by uuid. It shares a fakeTokenRepo so
// the transactional methods (CreateWithTokens, ResetPassword,
// ConfirmAccount) can touch token records the way the real store does.
type fakeUserRepo struct {
	mu        sync.Mutex
	users     map[string]*model.User
	tokens    *fakeTokenRepo
	createErr error
	updateErr error
}

func newFakeUserRepo(tokens *fakeTokenRepo) *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User), tokens: tokens}
}

func (f *fakeUserRepo) Create(ctx context.Context, user *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == user.Email {
			return apperror.Conflict("an account with that email already exists")
		}
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	copied := *user
	f.users[user.UUID] = &copied
	return nil
}

func (f *fakeUserRepo) CreateWithTokens(ctx context.Context, user *model.User, grants []model.TokenGrant) error {
	if err := f.Create(ctx, user); err != nil {
		return err
	}
	for _, g := range grants {
		if err := f.tokens.Save(ctx, g.Type, user.UUID, g.Token); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeUserRepo) GetByUUID(ctx context.Context, uuid string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[uuid]
	if !ok {
		return nil, apperror.NotFound("user", uuid)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeUserRepo) GetByProviderID(ctx context.Context, provider model.Provider, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if id != "" && u.ProviderID(provider) == id {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", id)
}

func (f *fakeUserRepo) List(ctx context.Context) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out, nil
}

func (f *fakeUserRepo) Update(ctx context.Context, user *model.User) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.UUID]; !ok {
		return apperror.NotFound("user", user.UUID)
	}
	user.UpdatedAt = time.Now()
	copied := *user
	f.users[user.UUID] = &copied
	return nil
}

func (f *fakeUserRepo) ResetPassword(ctx context.Context, uuid, passwordHash string) error {
	f.mu.Lock()
	u, ok := f.users[uuid]
	if !ok {
		f.mu.Unlock()
		return apperror.NotFound("user", uuid)
	}
	u.PasswordHash = passwordHash
	f.mu.Unlock()

	return f.tokens.DeleteAllForUser(ctx, uuid,
		model.TokenAccess, model.TokenRefresh, model.TokenReset)
}

func (f *fakeUserRepo) ConfirmAccount(ctx context.Context, uuid, token string) (bool, error) {
	ok, err := f.tokens.DeleteUserToken(ctx, model.TokenConfirm, uuid, token)
	if err != nil || !ok {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, found := f.users[uuid]; found {
		u.Confirmed = true
	}
	return true, nil
}

func (f *fakeUserRepo) Delete(ctx context.Context, uuid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[uuid]; !ok {
		return apperror.NotFound("user", uuid)
	}
	delete(f.users, uuid)
	return nil
}

// fakeStateRepo stores nonces keyed by provider/state.
type fakeStateRepo struct {
	mu     sync.Mutex
	states map[string]bool
}

func newFakeStateRepo() *fakeStateRepo {
	return &fakeStateRepo{states: make(map[string]bool)}
}

func (f *fakeStateRepo) key(provider model.Provider, state string) string {
	return string(provider) + "|" + state
}

func (f *fakeStateRepo) SaveState(ctx context.Context, provider model.Provider, state string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[f.key(provider, state)] = true
	return nil
}

func (f *fakeStateRepo) Consume(ctx context.Context, provider model.Provider, state string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := f.key(provider, state)
	if !f.states[k] {
		return false, nil
	}
	delete(f.states, k)
	return true, nil
}

func (f *fakeStateRepo) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	return 0, nil
}

// fakeSender records outgoing mail.
type fakeSender struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

type sentMail struct {
	to, subject, body string
}

func (f *fakeSender) Send(ctx context.Context, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

// fakeProvider returns a fixed identity from Exchange.
type fakeProvider struct {
	name        model.Provider
	identity    *auth.Identity
	exchangeErr error
}

func (f *fakeProvider) Name() model.Provider { return f.name }

func (f *fakeProvider) AuthCodeURL(state, redirectURI string) string {
	return "https://provider.example.com/authorize?state=" + state
}

func (f *fakeProvider) Exchange(ctx context.Context, code, redirectURI string) (*auth.Identity, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	if f.identity == nil {
		return nil, errors.New("fakeProvider: no identity configured")
	}
	return f.identity, nil
}

// fakeRoleAssigner records role-assignment calls.
type fakeRoleAssigner struct {
	assigned []string
	err      error
}

func (f *fakeRoleAssigner) AssignRole(ctx context.Context, discordID string) error {
	if f.err != nil {
		return f.err
	}
	f.assigned = append(f.assigned, discordID)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestTokenService(t *testing.T, store *fakeTokenRepo) *TokenService {
	t.Helper()
	codec, err := auth.NewTokenCodec("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	return NewTokenService(codec, store)
}
