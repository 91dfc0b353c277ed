package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"budgetbook-svc/src/internal/config"
	"budgetbook-svc/src/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const sessionKeyPattern = "session:%s:%s" // session:userID:sessionID

type Service interface {
	GetSession(ctx context.Context, userID, sessionID string) (*models.Session, error)
	CacheSession(ctx context.Context, session *models.Session) error
	InvalidateSession(ctx context.Context, userID, sessionID string) error
	InvalidateAllForUser(ctx context.Context, userID string) error
	SaveUserStats(ctx context.Context, stats *models.Stats) error
	GetUserStats(ctx context.Context) (*models.Stats, error)
}

type cacheService struct {
	client *redis.Client
	cfg    *config.CacheConfig
}

func NewCacheService(client *redis.Client, cfg *config.Configuration) Service {
	return &cacheService{
		client: client,
		cfg:    &cfg.Cache,
	}
}

// cachedSession re-exposes the refresh token that the Session JSON projection
// hides from API clients; redis needs it for validity checks.
type cachedSession struct {
	models.Session
	RefreshToken string `json:"refreshToken"`
}

func (c *cacheService) GetSession(ctx context.Context, userID, sessionID string) (*models.Session, error) {
	key := fmt.Sprintf(sessionKeyPattern, userID, sessionID)

	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // cache miss, not an error
		}
		logrus.WithError(err).WithField("key", key).Error("Failed to get session from cache")
		return nil, models.ErrRedisGet
	}

	var cached cachedSession
	if err := json.Unmarshal([]byte(data), &cached); err != nil {
		logrus.WithError(err).WithField("key", key).Error("Failed to unmarshal cached session")
		return nil, models.ErrRedisGet
	}

	session := cached.Session
	session.RefreshToken = cached.RefreshToken
	return &session, nil
}

func (c *cacheService) CacheSession(ctx context.Context, session *models.Session) error {
	key := fmt.Sprintf(sessionKeyPattern, session.UserID, session.SessionID)

	data, err := json.Marshal(cachedSession{Session: *session, RefreshToken: session.RefreshToken})
	if err != nil {
		logrus.WithError(err).WithField("session_id", session.SessionID).Error("Failed to marshal session for cache")
		return models.ErrRedisSet
	}

	ttl := time.Duration(c.cfg.SessionExpirationMinutes) * time.Minute
	if until := time.Until(session.ExpiresAt); until < ttl {
		ttl = until
	}
	if ttl <= 0 {
		logrus.WithField("session_id", session.SessionID).Warn("Session already expired, not caching")
		return nil
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		logrus.WithError(err).WithField("session_id", session.SessionID).Error("Failed to cache session")
		return models.ErrRedisSet
	}

	return nil
}

func (c *cacheService) InvalidateSession(ctx context.Context, userID, sessionID string) error {
	key := fmt.Sprintf(sessionKeyPattern, userID, sessionID)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		logrus.WithError(err).WithField("key", key).Error("Failed to invalidate cached session")
		return models.ErrRedisDelete
	}
	return nil
}

func (c *cacheService) InvalidateAllForUser(ctx context.Context, userID string) error {
	pattern := fmt.Sprintf(sessionKeyPattern, userID, "*")

	keys, err := c.client.Keys(ctx, pattern).Result()
	if err != nil {
		logrus.WithError(err).WithField("pattern", pattern).Error("Failed to scan cached sessions")
		return models.ErrRedisDelete
	}
	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to invalidate cached sessions")
		return models.ErrRedisDelete
	}
	return nil
}

func (c *cacheService) SaveUserStats(ctx context.Context, stats *models.Stats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal user stats for cache")
		return models.ErrRedisSet
	}

	ttl := time.Duration(c.cfg.UserStatExpirationMinutes) * time.Minute
	if err := c.client.Set(ctx, c.cfg.UserStatKey, data, ttl).Err(); err != nil {
		logrus.WithError(err).Error("Failed to cache user stats")
		return models.ErrRedisSet
	}
	return nil
}

func (c *cacheService) GetUserStats(ctx context.Context) (*models.Stats, error) {
	data, err := c.client.Get(ctx, c.cfg.UserStatKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		logrus.WithError(err).Error("Failed to get user stats from cache")
		return nil, models.ErrRedisGet
	}

	var stats models.Stats
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		logrus.WithError(err).Error("Failed to unmarshal cached user stats")
		return nil, models.ErrRedisGet
	}

	return &stats, nil
}
