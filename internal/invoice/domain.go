// Package invoice implements the invoice subsystem: suppliers upload one
// immutable invoice per accepted quote, and finance walks payment status
// strictly forward to PAID.
package invoice

import "time"

// Payment statuses, in order. Transitions only move forward.
const (
	StatusUploaded        = "UPLOADED"
	StatusAwaitingPayment = "AWAITING_PAYMENT"
	StatusPaid            = "PAID"
)

// Invoice is a supplier's billing document for one accepted quote. Rows are
// immutable after insert except for the payment status.
type Invoice struct {
	ID            int64     `json:"id"`
	QuoteID       int64     `json:"quote_id"`
	PRID          int64     `json:"pr_id"`
	OrgID         int64     `json:"org_id"`
	SupplierID    int64     `json:"supplier_id"`
	SupplierName  string    `json:"supplier_name,omitempty"`
	InvoiceNumber string    `json:"invoice_number"`
	Amount        float64   `json:"amount"`
	DocumentKey   string    `json:"document_key"`
	FileName      string    `json:"file_name"`
	ContentType   string    `json:"content_type"`
	SizeBytes     int64     `json:"size_bytes"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
