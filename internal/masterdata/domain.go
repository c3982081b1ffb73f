// Package masterdata manages the reference data the procurement workflow
// draws from: spend categories and the supplier directory.
package masterdata

import "time"

// Category kinds. Categories classify requisition spend.
const (
	KindExpense = "EXPENSE"
	KindAsset   = "ASSET"
)

// Category represents an organization-scoped spend category.
type Category struct {
	ID          int64     `json:"id"`
	OrgID       int64     `json:"org_id"`
	Name        string    `json:"name"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Supplier represents a vendor the organization can solicit quotes from.
// UserID links the supplier to its portal account once one exists.
type Supplier struct {
	ID        int64     `json:"id"`
	OrgID     int64     `json:"org_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	UserID    *int64    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
