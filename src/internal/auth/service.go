package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"budgetbook-svc/src/internal/config"
	"budgetbook-svc/src/internal/events"
	"budgetbook-svc/src/internal/models"
	"budgetbook-svc/src/internal/password"
	"budgetbook-svc/src/internal/ratelimit"
	"budgetbook-svc/src/internal/token"
	"budgetbook-svc/src/internal/user"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// UserStore is the slice of the user repository the auth service needs.
type UserStore interface {
	Create(ctx context.Context, u *user.User) (*user.User, error)
	GetByID(ctx context.Context, id string) (*user.User, error)
	GetByUsername(ctx context.Context, username string) (*user.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	RecordLoginSuccess(ctx context.Context, id string, at time.Time) error
	IncrementFailedLogins(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) error
	BumpTokenVersion(ctx context.Context, id string) error
}

// SessionStore is the slice of the session repository the auth service needs.
type SessionStore interface {
	Create(ctx context.Context, userID, userAgent, ip string, ttl time.Duration) (*models.Session, error)
	GetByID(ctx context.Context, sessionID string) (*models.Session, error)
	GetByRefreshToken(ctx context.Context, refreshToken string) (*models.Session, error)
	UpdateRefreshToken(ctx context.Context, sessionID, refreshToken string, expiresAt time.Time, userAgent, ip string) error
	Delete(ctx context.Context, sessionID string) error
	DeleteByRefreshToken(ctx context.Context, refreshToken string) (int64, error)
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
	CountForUser(ctx context.Context, userID string) (int64, error)
	DeleteOldestForUser(ctx context.Context, userID string) error
}

// SessionCache is the redis-backed session cache; every method is optional
// correctness-wise, the mongo record stays authoritative.
type SessionCache interface {
	GetSession(ctx context.Context, userID, sessionID string) (*models.Session, error)
	CacheSession(ctx context.Context, session *models.Session) error
	InvalidateSession(ctx context.Context, userID, sessionID string) error
	InvalidateAllForUser(ctx context.Context, userID string) error
}

// TokenPair is one access/refresh credential pair.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RegisterRequest carries the registration form fields.
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Credentials carries the login form fields.
type Credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type Service interface {
	Register(ctx context.Context, req RegisterRequest, userAgent, ip string) (*user.User, *TokenPair, error)
	Login(ctx context.Context, creds Credentials, userAgent, ip string) (*user.User, *TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken, userAgent, ip string) (*TokenPair, error)
	IsRefreshTokenValid(ctx context.Context, refreshToken string) bool
	Logout(ctx context.Context, refreshToken string) error
	TerminateAllUserSessions(ctx context.Context, userID string) error
	VerifyAccessToken(ctx context.Context, accessToken string) (*token.Claims, error)
}

type service struct {
	users       UserStore
	sessions    SessionStore
	cache       SessionCache
	codec       *token.Codec
	limiter     *ratelimit.Limiter
	publisher   events.Publisher
	policy      password.Policy
	bcryptCost  int
	maxSessions int
}

func NewService(
	users UserStore,
	sessions SessionStore,
	sessionCache SessionCache,
	codec *token.Codec,
	limiter *ratelimit.Limiter,
	publisher events.Publisher,
	cfg *config.SecuritySettings,
) Service {
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	return &service{
		users:       users,
		sessions:    sessions,
		cache:       sessionCache,
		codec:       codec,
		limiter:     limiter,
		publisher:   publisher,
		policy:      password.DefaultPolicy(),
		bcryptCost:  cost,
		maxSessions: cfg.DefaultMaxSessions,
	}
}

func (s *service) Register(ctx context.Context, req RegisterRequest, userAgent, ip string) (*user.User, *TokenPair, error) {
	if violations := password.Validate(req.Password, s.policy); len(violations) > 0 {
		return nil, nil, &models.ValidationError{Violations: violations}
	}

	exists, err := s.users.ExistsByUsernameOrEmail(ctx, req.Username, req.Email)
	if err != nil {
		return nil, nil, err
	}
	if exists {
		return nil, nil, models.ErrDuplicateUser
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, nil, err
	}

	newUser, err := s.users.Create(ctx, &user.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         user.RoleUser,
		IsActive:     true,
	})
	if err != nil {
		return nil, nil, err
	}

	tokens, session, err := s.createSession(ctx, newUser, userAgent, ip)
	if err != nil {
		return nil, nil, err
	}

	s.publisher.PublishActivity(models.ActivityMessage{
		UserID:    newUser.ID.Hex(),
		SessionID: session.SessionID,
		Action:    models.ActionRegistered,
		IPAddress: ip,
		UserAgent: userAgent,
	})

	logrus.WithFields(logrus.Fields{
		"user_id":  newUser.ID.Hex(),
		"username": newUser.Username,
	}).Info("User registered and logged in")

	return newUser, tokens, nil
}

func (s *service) Login(ctx context.Context, creds Credentials, userAgent, ip string) (*user.User, *TokenPair, error) {
	rateIdentifier := fmt.Sprintf("%s:%s", creds.Username, ip)
	if err := s.limiter.Check(rateIdentifier); err != nil {
		return nil, nil, err
	}

	u, err := s.users.GetByUsername(ctx, creds.Username)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			// Same failure as a bad password so usernames cannot be probed.
			return nil, nil, models.ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if u.IsBlocked {
		logrus.WithField("username", creds.Username).Warn("Login rejected for blocked account")
		return nil, nil, models.ErrAccountBlocked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(creds.Password)); err != nil {
		if incErr := s.users.IncrementFailedLogins(ctx, u.ID.Hex()); incErr != nil {
			logrus.WithError(incErr).WithField("username", creds.Username).Error("Failed to record failed login")
		}
		s.publisher.PublishActivity(models.ActivityMessage{
			UserID:    u.ID.Hex(),
			Action:    models.ActionLoginFailed,
			IPAddress: ip,
			UserAgent: userAgent,
		})
		return nil, nil, models.ErrInvalidCredentials
	}

	s.limiter.Clear(rateIdentifier)

	now := time.Now()
	if err := s.users.RecordLoginSuccess(ctx, u.ID.Hex(), now); err != nil {
		return nil, nil, err
	}
	u.FailedLoginAttempts = 0
	u.IsActive = true
	u.LastLogin = &now

	tokens, session, err := s.createSession(ctx, u, userAgent, ip)
	if err != nil {
		return nil, nil, err
	}

	s.publisher.PublishActivity(models.ActivityMessage{
		UserID:    u.ID.Hex(),
		SessionID: session.SessionID,
		Action:    models.ActionLogin,
		IPAddress: ip,
		UserAgent: userAgent,
	})

	logrus.WithFields(logrus.Fields{
		"user_id":    u.ID.Hex(),
		"username":   u.Username,
		"session_id": session.SessionID,
	}).Info("Login successful")

	return u, tokens, nil
}

// RefreshToken rotates the token pair for the session embedded in the
// presented refresh token. The session record is keyed by session id and the
// stored refresh token must match the presented one exactly; a mismatch means
// the token was already rotated (or stolen) and is rejected.
func (s *service) RefreshToken(ctx context.Context, refreshToken, userAgent, ip string) (*TokenPair, error) {
	claims, err := s.codec.Decode(refreshToken)
	if err != nil || claims.SessionID == "" {
		return nil, models.ErrInvalidToken
	}

	session, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return nil, models.ErrInvalidToken
		}
		return nil, err
	}

	if session.RefreshToken != refreshToken {
		logrus.WithField("session_id", session.SessionID).Warn("Presented refresh token does not match stored token")
		return nil, models.ErrInvalidToken
	}

	if session.IsExpired(time.Now()) {
		s.dropSession(ctx, session)
		return nil, models.ErrTokenExpired
	}

	u, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, models.ErrInvalidToken
		}
		return nil, err
	}

	if u.IsBlocked {
		return nil, models.ErrAccountBlocked
	}
	if !u.IsActive {
		return nil, models.ErrAccountInactive
	}
	if u.TokenVersion != claims.TokenVersion {
		return nil, models.ErrTokenVersionMismatch
	}

	tokens, err := s.rotate(ctx, u, session, userAgent, ip)
	if err != nil {
		return nil, err
	}

	s.publisher.PublishActivity(models.ActivityMessage{
		UserID:    u.ID.Hex(),
		SessionID: session.SessionID,
		Action:    models.ActionTokenRefreshed,
		IPAddress: ip,
		UserAgent: userAgent,
	})

	return tokens, nil
}

// IsRefreshTokenValid runs the same validity checks as RefreshToken but never
// mutates anything and never issues tokens.
func (s *service) IsRefreshTokenValid(ctx context.Context, refreshToken string) bool {
	claims, err := s.codec.Decode(refreshToken)
	if err != nil || claims.SessionID == "" {
		return false
	}

	session := s.lookupSession(ctx, claims.UserID, claims.SessionID)
	if session == nil {
		return false
	}

	if session.RefreshToken != refreshToken {
		return false
	}
	if session.IsExpired(time.Now()) {
		return false
	}

	u, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return false
	}
	if u.IsBlocked || !u.IsActive {
		return false
	}
	return u.TokenVersion == claims.TokenVersion
}

func (s *service) Logout(ctx context.Context, refreshToken string) error {
	session, err := s.sessions.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			// Already logged out; nothing to do.
			return nil
		}
		return err
	}

	if err := s.users.SetActive(ctx, session.UserID, false); err != nil {
		logrus.WithError(err).WithField("user_id", session.UserID).Error("Failed to mark user inactive on logout")
	}

	// Delete-many: a login race can leave duplicate rows for one token.
	if _, err := s.sessions.DeleteByRefreshToken(ctx, refreshToken); err != nil {
		return err
	}

	if err := s.cache.InvalidateSession(ctx, session.UserID, session.SessionID); err != nil {
		logrus.WithError(err).Debug("Failed to invalidate cached session on logout")
	}

	s.publisher.PublishActivity(models.ActivityMessage{
		UserID:    session.UserID,
		SessionID: session.SessionID,
		Action:    models.ActionLogout,
	})

	return nil
}

// TerminateAllUserSessions is the administrative kill switch: bumping the
// token version invalidates every outstanding token at once, including ones
// already in a client's possession.
func (s *service) TerminateAllUserSessions(ctx context.Context, userID string) error {
	if err := s.users.BumpTokenVersion(ctx, userID); err != nil {
		return err
	}

	deleted, err := s.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.cache.InvalidateAllForUser(ctx, userID); err != nil {
		logrus.WithError(err).Debug("Failed to invalidate cached sessions on terminate")
	}

	s.publisher.PublishActivity(models.ActivityMessage{
		UserID: userID,
		Action: models.ActionSessionsTerminated,
	})

	logrus.WithFields(logrus.Fields{
		"user_id":          userID,
		"sessions_deleted": deleted,
	}).Info("All user sessions terminated")

	return nil
}

func (s *service) VerifyAccessToken(ctx context.Context, accessToken string) (*token.Claims, error) {
	claims, err := s.codec.Verify(accessToken)
	if err != nil {
		if errors.Is(err, models.ErrTokenExpired) {
			return nil, models.ErrTokenExpired
		}
		return nil, models.ErrInvalidToken
	}

	if claims.TokenType != string(token.KindAccess) {
		return nil, models.ErrInvalidToken
	}

	u, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, models.ErrUserNotFound
		}
		return nil, err
	}

	if u.TokenVersion != claims.TokenVersion {
		return nil, models.ErrTokenVersionMismatch
	}
	if u.IsBlocked {
		return nil, models.ErrAccountBlocked
	}

	return claims, nil
}

// createSession enforces the per-user session cap (evicting the oldest
// sessions), creates the session record, and issues the token pair.
func (s *service) createSession(ctx context.Context, u *user.User, userAgent, ip string) (*TokenPair, *models.Session, error) {
	if err := s.enforceSessionLimit(ctx, u); err != nil {
		return nil, nil, err
	}

	session, err := s.sessions.Create(ctx, u.ID.Hex(), userAgent, ip, s.codec.RefreshTTL())
	if err != nil {
		return nil, nil, err
	}

	payload := token.Payload{
		UserID:       u.ID.Hex(),
		Username:     u.Username,
		Role:         u.Role,
		SessionID:    session.SessionID,
		TokenVersion: u.TokenVersion,
	}

	accessToken, err := s.codec.Sign(payload, token.KindAccess)
	if err != nil {
		return nil, nil, err
	}
	refreshToken, err := s.codec.Sign(payload, token.KindRefresh)
	if err != nil {
		return nil, nil, err
	}

	// A session without its refresh token is not valid for anything, so a
	// failed write fails the whole request.
	if err := s.sessions.UpdateRefreshToken(ctx, session.SessionID, refreshToken, session.ExpiresAt, "", ""); err != nil {
		return nil, nil, err
	}
	session.RefreshToken = refreshToken

	if err := s.cache.CacheSession(ctx, session); err != nil {
		logrus.WithError(err).Debug("Failed to cache new session")
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, session, nil
}

func (s *service) rotate(ctx context.Context, u *user.User, session *models.Session, userAgent, ip string) (*TokenPair, error) {
	payload := token.Payload{
		UserID:       u.ID.Hex(),
		Username:     u.Username,
		Role:         u.Role,
		SessionID:    session.SessionID,
		TokenVersion: u.TokenVersion,
	}

	accessToken, err := s.codec.Sign(payload, token.KindAccess)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.codec.Sign(payload, token.KindRefresh)
	if err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(s.codec.RefreshTTL())
	// The rotation must not appear to succeed while the stored session still
	// holds the old token, so a failed write fails the request.
	if err := s.sessions.UpdateRefreshToken(ctx, session.SessionID, refreshToken, expiresAt, userAgent, ip); err != nil {
		return nil, err
	}

	session.RefreshToken = refreshToken
	session.ExpiresAt = expiresAt
	if err := s.cache.CacheSession(ctx, session); err != nil {
		logrus.WithError(err).Debug("Failed to cache rotated session")
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// enforceSessionLimit evicts oldest sessions until the user is below their
// cap. The user's own value wins; zero falls back to the system default;
// a zero default means unlimited.
func (s *service) enforceSessionLimit(ctx context.Context, u *user.User) error {
	limit := u.MaxSessionCount
	if limit <= 0 {
		limit = s.maxSessions
	}
	if limit <= 0 {
		return nil
	}

	count, err := s.sessions.CountForUser(ctx, u.ID.Hex())
	if err != nil {
		return err
	}

	for count >= int64(limit) {
		if err := s.sessions.DeleteOldestForUser(ctx, u.ID.Hex()); err != nil {
			return err
		}
		count--
		logrus.WithFields(logrus.Fields{
			"user_id": u.ID.Hex(),
			"limit":   limit,
		}).Info("Evicted oldest session to stay within session limit")
	}

	return nil
}

// lookupSession tries the redis cache first and falls back to mongo.
func (s *service) lookupSession(ctx context.Context, userID, sessionID string) *models.Session {
	if userID != "" {
		if cached, err := s.cache.GetSession(ctx, userID, sessionID); err == nil && cached != nil {
			return cached
		}
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil
	}
	if err := s.cache.CacheSession(ctx, session); err != nil {
		logrus.WithError(err).Debug("Failed to cache session on lookup")
	}
	return session
}

// dropSession removes an expired session; cleanup failures are logged, not
// surfaced, since deleting an already-gone row is not the caller's problem.
func (s *service) dropSession(ctx context.Context, session *models.Session) {
	if err := s.sessions.Delete(ctx, session.SessionID); err != nil {
		logrus.WithError(err).WithField("session_id", session.SessionID).Warn("Failed to delete expired session")
	}
	if err := s.cache.InvalidateSession(ctx, session.UserID, session.SessionID); err != nil {
		logrus.WithError(err).Debug("Failed to invalidate expired cached session")
	}
}
