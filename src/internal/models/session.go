package models

import "time"

// Session is the server-side record of one logged-in client. The stored
// refresh token is the single currently valid one for this session; a
// presented refresh token that does not match exactly is rejected.
type Session struct {
	SessionID    string    `bson:"session_id" json:"sessionId"`
	UserID       string    `bson:"user_id" json:"userId"`
	RefreshToken string    `bson:"refresh_token" json:"-"`
	UserAgent    string    `bson:"user_agent,omitempty" json:"userAgent,omitempty"`
	IPAddress    string    `bson:"ip_address,omitempty" json:"ipAddress,omitempty"`
	ExpiresAt    time.Time `bson:"expires_at" json:"expiresAt"`
	CreatedAt    time.Time `bson:"created_at" json:"createdAt"`
	LastActiveAt time.Time `bson:"last_active_at" json:"lastActiveAt"`
}

func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
