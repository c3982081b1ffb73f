// Package quotation implements the request-for-quote cycle: finance fans
// requests out to suppliers for an approved requisition, suppliers respond
// with priced quotes, and finance accepts exactly one quote per
// requisition, atomically rejecting the competition.
package quotation

import "time"

// QuoteRequest statuses.
const (
	RequestPending  = "PENDING"
	RequestAccepted = "ACCEPTED"
	RequestDeclined = "DECLINED"
	RequestQuoted   = "QUOTED"
)

// Quote statuses.
const (
	QuoteSubmitted       = "SUBMITTED"
	QuoteAccepted        = "ACCEPTED"
	QuoteRejected        = "REJECTED"
	QuoteInvoiceUploaded = "INVOICE_UPLOADED"
)

// RequestItem is a line snapshotted from the requisition at solicitation
// time, so later edits to the requisition never change what the supplier
// was asked to price.
type RequestItem struct {
	ID          int64   `json:"id"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
}

// QuoteRequest is finance's solicitation of pricing from one supplier.
type QuoteRequest struct {
	ID         int64         `json:"id"`
	PRID       int64         `json:"pr_id"`
	OrgID      int64         `json:"org_id"`
	SupplierID int64         `json:"supplier_id"`
	Message    string        `json:"message,omitempty"`
	Status     string        `json:"status"`
	Items      []RequestItem `json:"items,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Quote is a supplier's priced response to a QuoteRequest.
type Quote struct {
	ID               int64      `json:"id"`
	QuoteRequestID   int64      `json:"quote_request_id"`
	PRID             int64      `json:"pr_id"`
	OrgID            int64      `json:"org_id"`
	SupplierID       int64      `json:"supplier_id"`
	SupplierName     string     `json:"supplier_name,omitempty"`
	Amount           float64    `json:"amount"`
	DeliveryEstimate string     `json:"delivery_estimate,omitempty"`
	ValidUntil       *time.Time `json:"valid_until,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	DocumentKey      string     `json:"document_key,omitempty"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
