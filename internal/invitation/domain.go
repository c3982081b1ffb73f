// Package invitation manages role-scoped onboarding invitations. Accounts
// are created only by accepting an invitation; there is no open signup.
package invitation

import "time"

// Invitation statuses.
const (
	StatusPending  = "PENDING"
	StatusAccepted = "ACCEPTED"
	StatusRevoked  = "REVOKED"
)

// DefaultTTL is how long an invitation stays redeemable.
const DefaultTTL = 7 * 24 * time.Hour

// Invitation represents a pending or consumed invite.
type Invitation struct {
	ID         int64
	OrgID      int64
	Email      string
	Role       string
	Token      string
	Status     string
	InvitedBy  int64
	ExpiresAt  time.Time
	CreatedAt  time.Time
	AcceptedAt *time.Time
}

// Expired reports whether the invitation is past its redeem-by time.
func (i Invitation) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}
