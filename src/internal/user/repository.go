package user

import (
	"context"
	"errors"
	"time"

	"budgetbook-svc/src/clients"
	"budgetbook-svc/src/internal/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	regexKey   = "$regex"
	optionsKey = "$options"
)

type Repository interface {
	Create(ctx context.Context, u *User) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	RecordLoginSuccess(ctx context.Context, id string, at time.Time) error
	IncrementFailedLogins(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) error
	BumpTokenVersion(ctx context.Context, id string) error
	SetBlocked(ctx context.Context, id string, blocked bool) error
	SetRole(ctx context.Context, id, role string) error
	SetMaxSessionCount(ctx context.Context, id string, limit int) error
	GetAllUsers(ctx context.Context, req *ListRequest) ([]*User, int64, error)
	GetUserStats(ctx context.Context) (*models.Stats, error)
}

type userRepository struct {
	collection *mongo.Collection
}

func NewUserRepository(mongoClient *clients.MongoDB, collectionName string) Repository {
	return &userRepository{
		collection: mongoClient.Database.Collection(collectionName),
	}
}

func (r *userRepository) Create(ctx context.Context, u *User) (*User, error) {
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, u)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, models.ErrDuplicateUser
		}
		logrus.WithError(err).WithField("username", u.Username).Error("Failed to insert user")
		return nil, models.ErrDatabaseInsert
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		u.ID = oid
	}
	return u, nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, models.ErrUserNotFound
	}

	var u User
	if err := r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrUserNotFound
		}
		logrus.WithError(err).WithField("user_id", id).Error("Failed to get user")
		return nil, models.ErrDatabaseQuery
	}
	return &u, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	if err := r.collection.FindOne(ctx, bson.M{"username": username}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrUserNotFound
		}
		logrus.WithError(err).WithField("username", username).Error("Failed to get user by username")
		return nil, models.ErrDatabaseQuery
	}
	return &u, nil
}

func (r *userRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	filter := bson.M{"$or": []bson.M{
		{"username": username},
		{"email": email},
	}}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		logrus.WithError(err).Error("Failed to check username/email uniqueness")
		return false, models.ErrDatabaseQuery
	}
	return count > 0, nil
}

func (r *userRepository) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	update := bson.M{"$set": bson.M{
		"failed_login_attempts": 0,
		"last_login":            at,
		"is_active":             true,
		"updated_at":            at,
	}}
	return r.updateByID(ctx, id, update)
}

func (r *userRepository) IncrementFailedLogins(ctx context.Context, id string) error {
	update := bson.M{
		"$inc": bson.M{"failed_login_attempts": 1},
		"$set": bson.M{"updated_at": time.Now()},
	}
	return r.updateByID(ctx, id, update)
}

func (r *userRepository) SetActive(ctx context.Context, id string, active bool) error {
	update := bson.M{"$set": bson.M{
		"is_active":  active,
		"updated_at": time.Now(),
	}}
	return r.updateByID(ctx, id, update)
}

func (r *userRepository) BumpTokenVersion(ctx context.Context, id string) error {
	update := bson.M{
		"$inc": bson.M{"token_version": 1},
		"$set": bson.M{
			"is_active":  false,
			"updated_at": time.Now(),
		},
	}
	return r.updateByID(ctx, id, update)
}

func (r *userRepository) SetBlocked(ctx context.Context, id string, blocked bool) error {
	update := bson.M{"$set": bson.M{
		"is_blocked": blocked,
		"updated_at": time.Now(),
	}}
	return r.updateByID(ctx, id, update)
}

func (r *userRepository) SetRole(ctx context.Context, id, role string) error {
	update := bson.M{"$set": bson.M{
		"role":       role,
		"updated_at": time.Now(),
	}}
	return r.updateByID(ctx, id, update)
}

func (r *userRepository) SetMaxSessionCount(ctx context.Context, id string, limit int) error {
	update := bson.M{"$set": bson.M{
		"max_session_count": limit,
		"updated_at":        time.Now(),
	}}
	return r.updateByID(ctx, id, update)
}

func (r *userRepository) updateByID(ctx context.Context, id string, update bson.M) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.ErrUserNotFound
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		logrus.WithError(err).WithField("user_id", id).Error("Failed to update user")
		return models.ErrDatabaseUpdate
	}
	if result.MatchedCount == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

func (r *userRepository) GetAllUsers(ctx context.Context, req *ListRequest) ([]*User, int64, error) {
	filter := bson.M{}

	if req.Role != "" {
		filter["role"] = req.Role
	}

	if req.Search != "" {
		filter["$or"] = []bson.M{
			{"username": bson.M{regexKey: req.Search, optionsKey: "i"}},
			{"email": bson.M{regexKey: req.Search, optionsKey: "i"}},
		}
	}

	totalCount, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		logrus.WithError(err).Error("Failed to count users")
		return nil, 0, models.ErrDatabaseQuery
	}

	skip := (req.Page - 1) * req.Limit

	opts := options.Find().
		SetLimit(int64(req.Limit)).
		SetSkip(int64(skip)).
		SetSort(bson.M{"created_at": -1})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		logrus.WithError(err).Error("Failed to find users")
		return nil, 0, models.ErrDatabaseQuery
	}
	defer cursor.Close(ctx)

	var users []*User
	for cursor.Next(ctx) {
		var u User
		if err := cursor.Decode(&u); err != nil {
			logrus.WithError(err).Error("Failed to decode user")
			continue
		}
		users = append(users, &u)
	}

	if err := cursor.Err(); err != nil {
		logrus.WithError(err).Error("Cursor error")
		return nil, 0, models.ErrDatabaseQuery
	}

	return users, totalCount, nil
}

func (r *userRepository) GetUserStats(ctx context.Context) (*models.Stats, error) {
	total, err := r.countUsers(ctx, bson.M{})
	if err != nil {
		return nil, err
	}

	active, err := r.countUsers(ctx, bson.M{"is_active": true})
	if err != nil {
		return nil, err
	}

	blocked, err := r.countUsers(ctx, bson.M{"is_blocked": true})
	if err != nil {
		return nil, err
	}

	admins, err := r.countUsers(ctx, bson.M{"role": RoleAdmin})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	newThisMonth, err := r.countUsers(ctx, bson.M{"created_at": bson.M{"$gte": startOfMonth}})
	if err != nil {
		return nil, err
	}

	return &models.Stats{
		Total:        total,
		Active:       active,
		Inactive:     total - active,
		Blocked:      blocked,
		Admins:       admins,
		NewThisMonth: newThisMonth,
	}, nil
}

func (r *userRepository) countUsers(ctx context.Context, filter bson.M) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		logrus.WithError(err).Error("Failed to count users")
		return 0, models.ErrDatabaseQuery
	}
	return count, nil
}
