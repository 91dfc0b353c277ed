package models

import "time"

// ActivityMessage is published to the events exchange for every notable
// auth event. Publishing is best effort; consumers build audit trails.
type ActivityMessage struct {
	UserID    string            `json:"user_id"`
	SessionID string            `json:"session_id,omitempty"`
	Action    string            `json:"action"`
	IPAddress string            `json:"ip_address,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Activity action constants
const (
	ActionRegistered         = "registered"
	ActionLogin              = "login"
	ActionLoginFailed        = "login_failed"
	ActionTokenRefreshed     = "token_refreshed"
	ActionLogout             = "logout"
	ActionSessionsTerminated = "sessions_terminated"
)
