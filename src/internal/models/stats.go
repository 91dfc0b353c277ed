package models

// Stats aggregates the user base for the admin dashboard endpoint.
type Stats struct {
	Total        int64 `json:"total"`
	Active       int64 `json:"active"`
	Inactive     int64 `json:"inactive"`
	Blocked      int64 `json:"blocked"`
	Admins       int64 `json:"admins"`
	NewThisMonth int64 `json:"newThisMonth"`
}
