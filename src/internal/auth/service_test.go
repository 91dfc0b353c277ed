package auth

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"budgetbook-svc/src/internal/config"
	"budgetbook-svc/src/internal/events"
	"budgetbook-svc/src/internal/models"
	"budgetbook-svc/src/internal/ratelimit"
	"budgetbook-svc/src/internal/token"
	"budgetbook-svc/src/internal/user"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*user.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*user.User)}
}

func (f *fakeUserStore) Create(_ context.Context, u *user.User) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return nil, models.ErrDuplicateUser
		}
	}
	u.ID = primitive.NewObjectID()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	f.users[u.ID.Hex()] = u
	return u, nil
}

func (f *fakeUserStore) GetByID(_ context.Context, id string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserStore) GetByUsername(_ context.Context, username string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, models.ErrUserNotFound
}

func (f *fakeUserStore) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username || u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUserStore) RecordLoginSuccess(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return models.ErrUserNotFound
	}
	u.FailedLoginAttempts = 0
	u.IsActive = true
	u.LastLogin = &at
	return nil
}

func (f *fakeUserStore) IncrementFailedLogins(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return models.ErrUserNotFound
	}
	u.FailedLoginAttempts++
	return nil
}

func (f *fakeUserStore) SetActive(_ context.Context, id string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return models.ErrUserNotFound
	}
	u.IsActive = active
	return nil
}

func (f *fakeUserStore) BumpTokenVersion(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return models.ErrUserNotFound
	}
	u.TokenVersion++
	u.IsActive = false
	return nil
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]*models.Session)}
}

func (f *fakeSessionStore) Create(_ context.Context, userID, userAgent, ip string, ttl time.Duration) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	s := &models.Session{
		SessionID:    uuid.New().String(),
		UserID:       userID,
		UserAgent:    userAgent,
		IPAddress:    ip,
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
		LastActiveAt: now,
	}
	f.sessions[s.SessionID] = s
	return s, nil
}

func (f *fakeSessionStore) GetByID(_ context.Context, sessionID string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSessionStore) GetByRefreshToken(_ context.Context, refreshToken string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.RefreshToken == refreshToken {
			copied := *s
			return &copied, nil
		}
	}
	return nil, models.ErrSessionNotFound
}

func (f *fakeSessionStore) UpdateRefreshToken(_ context.Context, sessionID, refreshToken string, expiresAt time.Time, userAgent, ip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return models.ErrSessionNotFound
	}
	s.RefreshToken = refreshToken
	s.ExpiresAt = expiresAt
	if userAgent != "" {
		s.UserAgent = userAgent
	}
	if ip != "" {
		s.IPAddress = ip
	}
	s.LastActiveAt = time.Now()
	return nil
}

func (f *fakeSessionStore) Delete(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, sessionID)
	return nil
}

func (f *fakeSessionStore) DeleteByRefreshToken(_ context.Context, refreshToken string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for id, s := range f.sessions {
		if s.RefreshToken == refreshToken {
			delete(f.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeSessionStore) DeleteAllForUser(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for id, s := range f.sessions {
		if s.UserID == userID {
			delete(f.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeSessionStore) CountForUser(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, s := range f.sessions {
		if s.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (f *fakeSessionStore) DeleteOldestForUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var owned []*models.Session
	for _, s := range f.sessions {
		if s.UserID == userID {
			owned = append(owned, s)
		}
	}
	if len(owned) == 0 {
		return nil
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].CreatedAt.Before(owned[j].CreatedAt) })
	delete(f.sessions, owned[0].SessionID)
	return nil
}

type nopCache struct{}

func (nopCache) GetSession(context.Context, string, string) (*models.Session, error) { return nil, nil }
func (nopCache) CacheSession(context.Context, *models.Session) error                 { return nil }
func (nopCache) InvalidateSession(context.Context, string, string) error             { return nil }
func (nopCache) InvalidateAllForUser(context.Context, string) error                  { return nil }

func testSettings() *config.SecuritySettings {
	return &config.SecuritySettings{
		JwtKey:                "test-signing-key",
		AccessTokenTTLMinutes: 15,
		RefreshTokenTTLHours:  168,
		BcryptCost:            bcrypt.MinCost,
		DefaultMaxSessions:    5,
		RateLimit: config.RateLimitConfig{
			MaxAttempts:   5,
			WindowMinutes: 15,
			BlockMinutes:  30,
		},
	}
}

type testEnv struct {
	svc      Service
	users    *fakeUserStore
	sessions *fakeSessionStore
	codec    *token.Codec
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testSettings()
	users := newFakeUserStore()
	sessions := newFakeSessionStore()
	codec := token.NewCodec(*cfg)
	svc := NewService(users, sessions, nopCache{}, codec, ratelimit.New(cfg.RateLimit), events.NopPublisher{}, cfg)
	return &testEnv{svc: svc, users: users, sessions: sessions, codec: codec}
}

func (e *testEnv) registerUser(t *testing.T, username string) (*user.User, *TokenPair) {
	t.Helper()
	u, pair, err := e.svc.Register(context.Background(), RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "Str0ng!Pass",
	}, "test-agent", "10.0.0.1")
	require.NoError(t, err)
	return u, pair
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.svc.Register(context.Background(), RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "short",
	}, "", "")

	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NotEmpty(t, verr.Violations)
	assert.Empty(t, env.users.users)
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	env := newTestEnv(t)
	env.registerUser(t, "alice")

	_, _, err := env.svc.Register(context.Background(), RegisterRequest{
		Username: "alice",
		Email:    "other@example.com",
		Password: "Str0ng!Pass",
	}, "", "")
	assert.ErrorIs(t, err, models.ErrDuplicateUser)
}

func TestRegisterLogsUserIn(t *testing.T) {
	env := newTestEnv(t)
	u, pair := env.registerUser(t, "alice")

	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, "Str0ng!Pass", u.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("Str0ng!Pass")))

	claims, err := env.svc.VerifyAccessToken(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID.Hex(), claims.UserID)
	assert.Equal(t, user.RoleUser, claims.Role)

	count, _ := env.sessions.CountForUser(context.Background(), u.ID.Hex())
	assert.EqualValues(t, 1, count)
}

func TestLoginIssuesVerifiableTokens(t *testing.T) {
	env := newTestEnv(t)
	env.registerUser(t, "alice")

	u, pair, err := env.svc.Login(context.Background(), Credentials{
		Username: "alice",
		Password: "Str0ng!Pass",
	}, "agent", "10.0.0.2")
	require.NoError(t, err)

	claims, err := env.svc.VerifyAccessToken(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID.Hex(), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, string(token.KindAccess), claims.TokenType)

	session, err := env.sessions.GetByID(context.Background(), claims.SessionID)
	require.NoError(t, err)
	assert.Equal(t, pair.RefreshToken, session.RefreshToken)
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	u, _ := env.registerUser(t, "alice")

	_, _, err := env.svc.Login(context.Background(), Credentials{
		Username: "alice",
		Password: "Wr0ng!Pass",
	}, "", "10.0.0.1")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	stored, _ := env.users.GetByID(context.Background(), u.ID.Hex())
	assert.Equal(t, 1, stored.FailedLoginAttempts)
}

func TestLoginUnknownUserLooksLikeBadPassword(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.svc.Login(context.Background(), Credentials{
		Username: "nobody",
		Password: "Str0ng!Pass",
	}, "", "10.0.0.1")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestLoginBlockedAccount(t *testing.T) {
	env := newTestEnv(t)
	u, _ := env.registerUser(t, "alice")
	env.users.users[u.ID.Hex()].IsBlocked = true

	_, _, err := env.svc.Login(context.Background(), Credentials{
		Username: "alice",
		Password: "Str0ng!Pass",
	}, "", "10.0.0.1")
	assert.ErrorIs(t, err, models.ErrAccountBlocked)
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEnv(t)
	env.registerUser(t, "alice")

	creds := Credentials{Username: "alice", Password: "Wr0ng!Pass"}
	for i := 0; i < 5; i++ {
		_, _, err := env.svc.Login(context.Background(), creds, "", "10.0.0.1")
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	}

	// The sixth attempt does not reach password checking, even with the
	// correct password.
	_, _, err := env.svc.Login(context.Background(), Credentials{
		Username: "alice",
		Password: "Str0ng!Pass",
	}, "", "10.0.0.1")

	var rlErr *models.RateLimitError
	require.ErrorAs(t, err, &rlErr)
	assert.Greater(t, rlErr.RetryAfter, time.Duration(0))

	// A different source address keeps its own budget.
	_, _, err = env.svc.Login(context.Background(), Credentials{
		Username: "alice",
		Password: "Str0ng!Pass",
	}, "", "10.0.0.9")
	assert.NoError(t, err)
}

func TestRefreshTokenRotatesSingleUse(t *testing.T) {
	env := newTestEnv(t)
	_, pair := env.registerUser(t, "alice")

	rotated, err := env.svc.RefreshToken(context.Background(), pair.RefreshToken, "agent", "10.0.0.1")
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, rotated.AccessToken)

	// Old token is spent.
	_, err = env.svc.RefreshToken(context.Background(), pair.RefreshToken, "agent", "10.0.0.1")
	assert.ErrorIs(t, err, models.ErrInvalidToken)
	assert.False(t, env.svc.IsRefreshTokenValid(context.Background(), pair.RefreshToken))

	// New token works.
	_, err = env.svc.RefreshToken(context.Background(), rotated.RefreshToken, "agent", "10.0.0.1")
	assert.NoError(t, err)
}

func TestRefreshTokenKeepsSessionID(t *testing.T) {
	env := newTestEnv(t)
	_, pair := env.registerUser(t, "alice")

	before, err := env.codec.Decode(pair.RefreshToken)
	require.NoError(t, err)

	rotated, err := env.svc.RefreshToken(context.Background(), pair.RefreshToken, "", "")
	require.NoError(t, err)

	after, err := env.codec.Decode(rotated.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, before.SessionID, after.SessionID)
}

func TestRefreshTokenGarbage(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.RefreshToken(context.Background(), "not-a-token", "", "")
	assert.ErrorIs(t, err, models.ErrInvalidToken)
}

func TestRefreshTokenRejectedForBlockedUser(t *testing.T) {
	env := newTestEnv(t)
	u, pair := env.registerUser(t, "alice")
	env.users.users[u.ID.Hex()].IsBlocked = true

	_, err := env.svc.RefreshToken(context.Background(), pair.RefreshToken, "", "")
	assert.ErrorIs(t, err, models.ErrAccountBlocked)
}

func TestTerminateAllUserSessions(t *testing.T) {
	env := newTestEnv(t)
	u, pair := env.registerUser(t, "alice")

	require.NoError(t, env.svc.TerminateAllUserSessions(context.Background(), u.ID.Hex()))

	// Sessions gone, refresh path dead.
	count, _ := env.sessions.CountForUser(context.Background(), u.ID.Hex())
	assert.EqualValues(t, 0, count)
	_, err := env.svc.RefreshToken(context.Background(), pair.RefreshToken, "", "")
	assert.ErrorIs(t, err, models.ErrInvalidToken)

	// The still-unexpired access token is rejected by the version bump.
	_, err = env.svc.VerifyAccessToken(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, models.ErrTokenVersionMismatch)
}

func TestLogoutInvalidatesRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	u, pair := env.registerUser(t, "alice")

	require.NoError(t, env.svc.Logout(context.Background(), pair.RefreshToken))

	assert.False(t, env.svc.IsRefreshTokenValid(context.Background(), pair.RefreshToken))
	_, err := env.svc.RefreshToken(context.Background(), pair.RefreshToken, "", "")
	assert.ErrorIs(t, err, models.ErrInvalidToken)

	stored, _ := env.users.GetByID(context.Background(), u.ID.Hex())
	assert.False(t, stored.IsActive)

	// Logging out twice is not an error.
	assert.NoError(t, env.svc.Logout(context.Background(), pair.RefreshToken))
}

func TestSessionLimitEvictsOldest(t *testing.T) {
	env := newTestEnv(t)
	u, firstPair := env.registerUser(t, "alice")
	env.users.users[u.ID.Hex()].MaxSessionCount = 2

	firstClaims, err := env.codec.Decode(firstPair.RefreshToken)
	require.NoError(t, err)
	// Force ordering so the registration session is unambiguously oldest.
	env.sessions.sessions[firstClaims.SessionID].CreatedAt = time.Now().Add(-time.Hour)

	creds := Credentials{Username: "alice", Password: "Str0ng!Pass"}
	_, _, err = env.svc.Login(context.Background(), creds, "", "10.0.0.2")
	require.NoError(t, err)
	_, _, err = env.svc.Login(context.Background(), creds, "", "10.0.0.3")
	require.NoError(t, err)

	count, _ := env.sessions.CountForUser(context.Background(), u.ID.Hex())
	assert.EqualValues(t, 2, count)

	_, err = env.sessions.GetByID(context.Background(), firstClaims.SessionID)
	assert.True(t, errors.Is(err, models.ErrSessionNotFound))
	assert.False(t, env.svc.IsRefreshTokenValid(context.Background(), firstPair.RefreshToken))
}

func TestVerifyAccessTokenRejectsRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	_, pair := env.registerUser(t, "alice")

	_, err := env.svc.VerifyAccessToken(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, models.ErrInvalidToken)
}

func TestVerifyAccessTokenForDeletedUser(t *testing.T) {
	env := newTestEnv(t)
	u, pair := env.registerUser(t, "alice")
	delete(env.users.users, u.ID.Hex())

	_, err := env.svc.VerifyAccessToken(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}
