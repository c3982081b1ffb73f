package auth

import (
	"errors"
	"time"
)

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ErrEmailTaken indicates the email is already registered.
var ErrEmailTaken = errors.New("auth: email already registered")
