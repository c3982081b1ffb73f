// Package requisition implements the purchase requisition lifecycle: an
// employee raises a request for spend, the head of department and finance
// review it, and finance may split it into independent child requisitions.
// Every transition appends one entry to the requisition's history in the
// same transaction as the status change.
package requisition

import (
	"math"
	"time"
)

// Requisition statuses.
const (
	StatusPendingHOD     = "PENDING_HOD_APPROVAL"
	StatusHODApproved    = "HOD_APPROVED"
	StatusHODDeclined    = "HOD_DECLINED"
	StatusPendingFinance = "PENDING_FINANCE_APPROVAL"
	StatusFinanceApprove = "FINANCE_APPROVED"
	StatusFinanceDecline = "FINANCE_DECLINED"
	StatusSplit          = "SPLIT"
)

// Display substatuses mirrored onto hod_status / finance_status. The main
// status drives the machine; these exist for list screens only.
const (
	SubstatusPending  = "PENDING"
	SubstatusApproved = "APPROVED"
	SubstatusDeclined = "DECLINED"
	SubstatusSkipped  = "SKIPPED"
	SubstatusSplit    = "SPLIT"
)

// Urgency levels.
const (
	UrgencyLow    = "LOW"
	UrgencyNormal = "NORMAL"
	UrgencyHigh   = "HIGH"
	UrgencyUrgent = "URGENT"
)

// History action tags.
const (
	ActionCreated           = "PR_CREATED"
	ActionHODApproved       = "HOD_APPROVED"
	ActionHODDeclined       = "HOD_DECLINED"
	ActionFinanceApproved   = "FINANCE_APPROVED"
	ActionFinanceDeclined   = "FINANCE_DECLINED"
	ActionSplitByFinance    = "PR_SPLIT_BY_FINANCE"
	ActionSplitChildCreated = "PR_SPLIT_CREATED_BY_FINANCE"
	ActionQuoteAccepted     = "QUOTE_ACCEPTED"
	ActionInvoiceUploaded   = "INVOICE_UPLOADED"
)

// Item is one requisition line.
type Item struct {
	ID          int64   `json:"id"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
}

// HistoryEntry is one append-only audit record on a requisition.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	ActorID   int64     `json:"actor_id"`
	ActorName string    `json:"actor_name"`
	Details   string    `json:"details"`
	At        time.Time `json:"at"`
}

// Requisition is the central request-for-spend entity.
type Requisition struct {
	ID             int64          `json:"id"`
	TransactionID  string         `json:"transaction_id"`
	OrgID          int64          `json:"org_id"`
	RequesterID    int64          `json:"requester_id"`
	RequesterName  string         `json:"requester_name"`
	Department     string         `json:"department"`
	Status         string         `json:"status"`
	HODStatus      string         `json:"hod_status"`
	FinanceStatus  string         `json:"finance_status"`
	TotalAmount    float64        `json:"total_amount"`
	Currency       string         `json:"currency"`
	Urgency        string         `json:"urgency"`
	DueDate        *time.Time     `json:"due_date,omitempty"`
	PaymentDueDate *time.Time     `json:"payment_due_date,omitempty"`
	DocumentKey    string         `json:"document_key,omitempty"`
	ParentID       *int64         `json:"parent_pr_id,omitempty"`
	CategoryID     *int64         `json:"category_id,omitempty"`
	Items          []Item         `json:"items,omitempty"`
	History        []HistoryEntry `json:"history,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Terminal reports whether the status admits no further transition.
func Terminal(status string) bool {
	switch status {
	case StatusHODDeclined, StatusFinanceDecline, StatusFinanceApprove, StatusSplit:
		return true
	}
	return false
}

// ValidUrgency reports whether the urgency value is one of the known levels.
func ValidUrgency(u string) bool {
	switch u {
	case UrgencyLow, UrgencyNormal, UrgencyHigh, UrgencyUrgent:
		return true
	}
	return false
}

// LineTotal computes a line amount rounded to cents.
func LineTotal(quantity, unitPrice float64) float64 {
	return roundMoney(quantity * unitPrice)
}

// SumItems computes the requisition total from its lines.
func SumItems(items []Item) float64 {
	var total float64
	for _, it := range items {
		total += it.Total
	}
	return roundMoney(total)
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
