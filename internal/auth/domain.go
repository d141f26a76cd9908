package auth

import "time"

// User represents an authenticated user account. GroupID and GroupName come
// from the user's group membership and travel with the session so document
// access checks can match against them.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	IsActive     bool
	GroupID      string
	GroupName    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
