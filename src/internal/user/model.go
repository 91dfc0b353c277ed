package user

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type User struct {
	ID                  primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Username            string             `json:"username" bson:"username"`
	Email               string             `json:"email" bson:"email"`
	PasswordHash        string             `json:"-" bson:"password_hash"`
	Role                string             `json:"role" bson:"role"`
	IsActive            bool               `json:"isActive" bson:"is_active"`
	IsBlocked           bool               `json:"isBlocked" bson:"is_blocked"`
	FailedLoginAttempts int                `json:"failedLoginAttempts" bson:"failed_login_attempts"`
	TokenVersion        int                `json:"tokenVersion" bson:"token_version"`
	MaxSessionCount     int                `json:"maxSessionCount" bson:"max_session_count"`
	LastLogin           *time.Time         `json:"lastLogin,omitempty" bson:"last_login,omitempty"`
	CreatedAt           time.Time          `json:"createdAt" bson:"created_at"`
	UpdatedAt           time.Time          `json:"updatedAt" bson:"updated_at"`
}

// Profile is the safe projection of a user returned to clients; it never
// carries the password hash.
type Profile struct {
	ID              string     `json:"id"`
	Username        string     `json:"username"`
	Email           string     `json:"email"`
	Role            string     `json:"role"`
	IsActive        bool       `json:"isActive"`
	IsBlocked       bool       `json:"isBlocked"`
	MaxSessionCount int        `json:"maxSessionCount"`
	LastLogin       *time.Time `json:"lastLogin,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Role constants
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ToProfile converts a User to its safe projection.
func (u *User) ToProfile() *Profile {
	return &Profile{
		ID:              u.ID.Hex(),
		Username:        u.Username,
		Email:           u.Email,
		Role:            u.Role,
		IsActive:        u.IsActive,
		IsBlocked:       u.IsBlocked,
		MaxSessionCount: u.MaxSessionCount,
		LastLogin:       u.LastLogin,
		CreatedAt:       u.CreatedAt,
	}
}

// IsAdmin checks if user is admin
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// ListRequest carries paging and filters for the admin user list.
type ListRequest struct {
	Page   int    `json:"page" form:"page"`
	Limit  int    `json:"limit" form:"limit"`
	Role   string `json:"role" form:"role"`
	Search string `json:"search" form:"search"`
}

// ListResponse is the admin user list page.
type ListResponse struct {
	Users      []*Profile `json:"users"`
	TotalCount int64      `json:"totalCount"`
	Page       int        `json:"page"`
	Limit      int        `json:"limit"`
	TotalPages int        `json:"totalPages"`
}
