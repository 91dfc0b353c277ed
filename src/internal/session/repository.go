package session

import (
	"context"
	"errors"
	"time"

	"budgetbook-svc/src/clients"
	"budgetbook-svc/src/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
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

type repository struct {
	collection *mongo.Collection
}

func NewSessionRepository(db *clients.MongoDB, collectionName string) Repository {
	return &repository{collection: db.Database.Collection(collectionName)}
}

func (r *repository) Create(ctx context.Context, userID, userAgent, ip string, ttl time.Duration) (*models.Session, error) {
	now := time.Now()
	session := &models.Session{
		SessionID:    uuid.New().String(),
		UserID:       userID,
		UserAgent:    userAgent,
		IPAddress:    ip,
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
		LastActiveAt: now,
	}

	if _, err := r.collection.InsertOne(ctx, session); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to create session")
		return nil, models.ErrSessionCreating
	}

	return session, nil
}

func (r *repository) GetByID(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	filter := bson.M{"session_id": sessionID}

	err := r.collection.FindOne(ctx, filter).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrSessionNotFound
		}
		logrus.WithError(err).WithField("session_id", sessionID).Error("Failed to get session")
		return nil, models.ErrDatabaseQuery
	}

	return &session, nil
}

func (r *repository) GetByRefreshToken(ctx context.Context, refreshToken string) (*models.Session, error) {
	var session models.Session
	filter := bson.M{"refresh_token": refreshToken}

	err := r.collection.FindOne(ctx, filter).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrSessionNotFound
		}
		logrus.WithError(err).Error("Failed to get session by refresh token")
		return nil, models.ErrDatabaseQuery
	}

	return &session, nil
}

// UpdateRefreshToken replaces the stored refresh token in place and slides
// the expiry window. Empty userAgent/ip keep the previous values.
func (r *repository) UpdateRefreshToken(ctx context.Context, sessionID, refreshToken string, expiresAt time.Time, userAgent, ip string) error {
	set := bson.M{
		"refresh_token":  refreshToken,
		"expires_at":     expiresAt,
		"last_active_at": time.Now(),
	}
	if userAgent != "" {
		set["user_agent"] = userAgent
	}
	if ip != "" {
		set["ip_address"] = ip
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"session_id": sessionID}, bson.M{"$set": set})
	if err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Error("Failed to update session refresh token")
		return models.ErrSessionUpdating
	}
	if result.MatchedCount == 0 {
		return models.ErrSessionNotFound
	}

	return nil
}

func (r *repository) Delete(ctx context.Context, sessionID string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"session_id": sessionID})
	if err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Error("Failed to delete session")
		return models.ErrSessionDeleting
	}
	return nil
}

// DeleteByRefreshToken removes every session holding refreshToken. Races at
// login can leave duplicates, which is why this is a delete-many.
func (r *repository) DeleteByRefreshToken(ctx context.Context, refreshToken string) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"refresh_token": refreshToken})
	if err != nil {
		logrus.WithError(err).Error("Failed to delete sessions by refresh token")
		return 0, models.ErrSessionDeleting
	}
	return result.DeletedCount, nil
}

func (r *repository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to delete user sessions")
		return 0, models.ErrSessionDeleting
	}
	return result.DeletedCount, nil
}

func (r *repository) CountForUser(ctx context.Context, userID string) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"user_id": userID})
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to count user sessions")
		return 0, models.ErrDatabaseQuery
	}
	return count, nil
}

// DeleteOldestForUser evicts the least recently created session, used when a
// new login would exceed the user's session cap.
func (r *repository) DeleteOldestForUser(ctx context.Context, userID string) error {
	opts := options.FindOneAndDelete().SetSort(bson.M{"created_at": 1})
	err := r.collection.FindOneAndDelete(ctx, bson.M{"user_id": userID}, opts).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil
		}
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to evict oldest session")
		return models.ErrSessionDeleting
	}
	return nil
}
