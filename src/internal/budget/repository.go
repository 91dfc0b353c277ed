package budget

import (
	"context"
	"time"

	"budgetbook-svc/src/clients"
	"budgetbook-svc/src/internal/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	Create(ctx context.Context, item *Item) (*Item, error)
	List(ctx context.Context, filter ListFilter) ([]*Item, error)
	Delete(ctx context.Context, userID, itemID string) error
}

type repository struct {
	collection *mongo.Collection
}

func NewBudgetRepository(db *clients.MongoDB, collectionName string) Repository {
	return &repository{
		collection: db.Database.Collection(collectionName),
	}
}

func (r *repository) Create(ctx context.Context, item *Item) (*Item, error) {
	now := time.Now()
	item.ID = primitive.NewObjectID()
	item.CreatedAt = now
	item.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, item); err != nil {
		logrus.WithError(err).Error("Failed to insert budget item")
		return nil, models.ErrDatabaseInsert
	}

	return item, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]*Item, error) {
	query := bson.M{
		"user_id": filter.UserID,
		"month":   filter.Month,
		"year":    filter.Year,
	}
	if filter.Type != "" {
		query["type"] = filter.Type
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		logrus.WithError(err).Error("Failed to query budget items")
		return nil, models.ErrDatabaseQuery
	}
	defer cursor.Close(ctx)

	items := []*Item{}
	if err := cursor.All(ctx, &items); err != nil {
		logrus.WithError(err).Error("Failed to decode budget items")
		return nil, models.ErrDatabaseQuery
	}

	return items, nil
}

// Delete removes one item, scoped to the owner so one user cannot delete
// another user's lines.
func (r *repository) Delete(ctx context.Context, userID, itemID string) error {
	objectID, err := primitive.ObjectIDFromHex(itemID)
	if err != nil {
		return models.ErrRecordNotFound
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{
		"_id":     objectID,
		"user_id": userID,
	})
	if err != nil {
		logrus.WithError(err).Error("Failed to delete budget item")
		return models.ErrDatabaseDelete
	}
	if result.DeletedCount == 0 {
		return models.ErrRecordNotFound
	}

	return nil
}
