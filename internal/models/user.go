package models

import "time"

// User represents a user account in the system.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never expose this to the client
	CreatedAt    time.Time `json:"createdAt"`
}

// Viewer is the verified identity behind a request. A nil *Viewer is an anonymous visitor.
type Viewer struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
}
