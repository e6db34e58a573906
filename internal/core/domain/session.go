package domain

import "time"

// Identity is an authenticated principal. It only lives for the duration of a
// request and is never persisted.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// Session is a decoded session credential.
type Session struct {
	Identity  Identity
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
