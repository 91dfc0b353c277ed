package budget

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	TypeIncome  = "income"
	TypeExpense = "expense"
)

// Item is one budget line owned by a user for a given month.
type Item struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    string             `bson:"user_id" json:"-"`
	Type      string             `bson:"type" json:"type"`
	Category  string             `bson:"category" json:"category"`
	Label     string             `bson:"label" json:"label"`
	Amount    int64              `bson:"amount" json:"amount"`
	Currency  string             `bson:"currency" json:"currency"`
	Month     int                `bson:"month" json:"month"`
	Year      int                `bson:"year" json:"year"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updatedAt"`
}

// CreateRequest is the payload for adding a budget line. Amount is in minor
// currency units.
type CreateRequest struct {
	Type     string `json:"type" binding:"required,oneof=income expense"`
	Category string `json:"category" binding:"required"`
	Label    string `json:"label"`
	Amount   int64  `json:"amount" binding:"required,gt=0"`
	Currency string `json:"currency"`
	Month    int    `json:"month" binding:"required,min=1,max=12"`
	Year     int    `json:"year" binding:"required,min=2000"`
}

// ListFilter scopes a listing to one user's month.
type ListFilter struct {
	UserID string
	Month  int
	Year   int
	Type   string
}
