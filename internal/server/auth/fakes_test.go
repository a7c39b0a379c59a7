package auth

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iudanet/projecthub/internal/clock"
	"github.com/iudanet/projecthub/internal/crypto"
	"github.com/iudanet/projecthub/internal/models"
	"github.com/iudanet/projecthub/internal/server/jwt"
	"github.com/iudanet/projecthub/internal/server/ledger"
	"github.com/iudanet/projecthub/internal/server/storage"
	"github.com/iudanet/projecthub/internal/server/throttle"
)

// memStore is an in-memory implementation of the storage interfaces used by auth
type memStore struct {
	users        map[int64]*models.User
	tokens       map[string]*models.RefreshToken
	blacklist    map[string]time.Time
	resets       map[string]*models.PasswordResetToken
	attempts     []*models.LoginAttempt
	appendError  error
	consumeError error
	mu           sync.Mutex
	nextID       int64
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[int64]*models.User{},
		tokens:    map[string]*models.RefreshToken{},
		blacklist: map[string]time.Time{},
		resets:    map[string]*models.PasswordResetToken{},
	}
}

func (m *memStore) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return storage.ErrUserAlreadyExists
		}
	}
	m.nextID++
	user.ID = m.nextID
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

func (m *memStore) GetUserByID(ctx context.Context, userID int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) FindRefreshToken(ctx context.Context, identifier string) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[identifier]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) SaveRefreshToken(ctx context.Context, token *models.RefreshToken, flush bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *token
	m.tokens[token.Identifier] = &cp
	return nil
}

func (m *memStore) GetUserTokens(ctx context.Context, userID int64) ([]*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*models.RefreshToken
	for _, t := range m.tokens {
		if t.UserID == userID {
			cp := *t
			res = append(res, &cp)
		}
	}
	return res, nil
}

func (m *memStore) RevokeUserTokens(ctx context.Context, userID int64, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tokens {
		if t.UserID == userID && t.IsValid(at) {
			t.Revoke(at)
			n++
		}
	}
	return n, nil
}

func (m *memStore) AddToBlacklist(ctx context.Context, key string, revokedAt, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blacklist[key] = expiresAt
	return nil
}

func (m *memStore) IsBlacklisted(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blacklist[key]
	return ok, nil
}

func (m *memStore) PurgeExpiredBlacklist(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func (m *memStore) SaveResetToken(ctx context.Context, token *models.PasswordResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	token.ID = m.nextID
	cp := *token
	m.resets[token.TokenHash] = &cp
	return nil
}

func (m *memStore) GetResetToken(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.resets[tokenHash]
	if !ok {
		return nil, storage.ErrResetTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) ConsumeResetToken(ctx context.Context, id int64, passwordHash string, usedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.resets {
		if t.ID != id {
			continue
		}
		if t.UsedAt != nil {
			return storage.ErrResetTokenUsed
		}
		if m.consumeError != nil {
			return m.consumeError
		}
		u, ok := m.users[t.UserID]
		if !ok {
			return storage.ErrUserNotFound
		}
		u.PasswordHash = passwordHash
		u.UpdatedAt = usedAt
		t.UsedAt = &usedAt
		return nil
	}
	return storage.ErrResetTokenNotFound
}

func (m *memStore) AppendLoginAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendError != nil {
		return m.appendError
	}
	attempt.Sequence = int64(len(m.attempts) + 1)
	cp := *attempt
	m.attempts = append(m.attempts, &cp)
	return nil
}

func (m *memStore) LoginAttemptsSince(ctx context.Context, ip, identifier string, since time.Time) ([]*models.LoginAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*models.LoginAttempt
	for _, a := range m.attempts {
		if a.IPAddress == ip && a.Identifier == identifier && !a.AttemptedAt.Before(since) {
			cp := *a
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].AttemptedAt.Equal(res[j].AttemptedAt) {
			return res[i].AttemptedAt.After(res[j].AttemptedAt)
		}
		return res[i].Sequence > res[j].Sequence
	})
	return res, nil
}

func (m *memStore) attemptsFor(ip, identifier string) []*models.LoginAttempt {
	res, _ := m.LoginAttemptsSince(context.Background(), ip, identifier, time.Time{})
	return res
}

type queuedEmail struct {
	data      map[string]string
	template  string
	recipient string
}

type fakeQueue struct {
	emails []queuedEmail
	mu     sync.Mutex
}

func (q *fakeQueue) QueueEmail(ctx context.Context, template, recipient string, data map[string]string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.emails = append(q.emails, queuedEmail{template: template, recipient: recipient, data: data})
	return nil
}

const testPassword = "correct horse battery"

type testEnv struct {
	store   *memStore
	clock   *clock.Manual
	signer  *jwt.Service
	service *Service
	flow    *Flow
	queue   *fakeQueue
	hasher  *crypto.PasswordHasher
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, cfg Config, withTokens bool) *testEnv {
	t.Helper()

	store := newMemStore()
	clk := clock.NewManual(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))

	signer, err := jwt.NewService([]byte("auth-test-secret-with-32-plus-bytes!"), "projecthub", clk)
	require.NoError(t, err)

	hasher, err := crypto.NewPasswordHasher(crypto.Params{
		Memory:     8 * 1024,
		Time:       1,
		Threads:    1,
		SaltLength: 16,
		KeyLength:  32,
	})
	require.NoError(t, err)

	deps := ServiceDeps{
		Users:     store,
		Blacklist: store,
		Signer:    signer,
		Hasher:    hasher,
		Clock:     clk,
		Logger:    testLogger(),
	}
	if withTokens {
		deps.Tokens = store
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = 15 * time.Minute
	}

	service, err := NewService(deps, cfg)
	require.NoError(t, err)

	engine, err := throttle.New(ledger.New(store), clk, throttle.Config{MaxAttempts: 3, Window: 5 * time.Minute})
	require.NoError(t, err)

	queue := &fakeQueue{}
	flow, err := NewFlow(FlowDeps{
		Service:  service,
		Throttle: engine,
		Ledger:   ledger.New(store),
		Users:    store,
		Resets:   store,
		Mail:     queue,
		Clock:    clk,
		Logger:   testLogger(),
	})
	require.NoError(t, err)

	return &testEnv{
		store:   store,
		clock:   clk,
		signer:  signer,
		service: service,
		flow:    flow,
		queue:   queue,
		hasher:  hasher,
	}
}

func (e *testEnv) createUser(t *testing.T, email string) *models.User {
	t.Helper()
	hash, err := e.hasher.Hash(testPassword)
	require.NoError(t, err)
	user := &models.User{Email: email, Name: "Test", PasswordHash: hash, CreatedAt: e.clock.Now()}
	require.NoError(t, e.store.CreateUser(context.Background(), user))
	return user
}
