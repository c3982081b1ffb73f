package users

import "errors"

// Profile carries the identity attributes the workflow attaches to actions:
// who the user is, which organization they belong to, and the department
// shown on requisitions they raise.
type Profile struct {
	UserID      int64
	Email       string
	DisplayName string
	OrgID       int64
	Department  string
}

var (
	// ErrNotFound indicates the profile does not exist.
	ErrNotFound = errors.New("users: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("users: invalid input")
)
