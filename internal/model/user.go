// Package model defines the data structures used throughout the application.
package model

import "time"

// User is a registered dashboard account.
//
// Username is the identity carried by the session cookie, so it is unique
// and non-empty. HashedPassword is a bcrypt digest and never leaves the
// server: it is excluded from JSON.
type User struct {
	ID             int64     `json:"id"        db:"id"`
	Username       string    `json:"username"  db:"username"`
	HashedPassword string    `json:"-"         db:"hashed_password"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}
