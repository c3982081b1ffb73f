// Package notify turns workflow state changes into role-targeted alert
// tasks. It is a pure consumer: services work unchanged with a nil
// notifier, and a failed enqueue never affects the state change that
// triggered it.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/procureflow/procureflow/internal/invoice"
	"github.com/procureflow/procureflow/internal/quotation"
	"github.com/procureflow/procureflow/internal/rbac"
	"github.com/procureflow/procureflow/internal/requisition"
	"github.com/procureflow/procureflow/jobs"
)

// Enqueuer submits alert tasks to the background queue.
type Enqueuer interface {
	EnqueueRoleAlert(ctx context.Context, payload jobs.RoleAlertPayload) error
}

// Notifier satisfies the notifier ports of the requisition, quotation, and
// invoice services.
type Notifier struct {
	queue  Enqueuer
	logger *slog.Logger
}

// New constructs a Notifier.
func New(queue Enqueuer, logger *slog.Logger) *Notifier {
	return &Notifier{queue: queue, logger: logger}
}

// RequisitionStatusChanged alerts whichever role the requisition now waits
// on; terminal states alert the requesting side instead.
func (n *Notifier) RequisitionStatusChanged(ctx context.Context, pr requisition.Requisition, action string) error {
	role := rbac.RoleEmployee
	switch pr.Status {
	case requisition.StatusPendingHOD:
		role = rbac.RoleHOD
	case requisition.StatusPendingFinance:
		role = rbac.RoleFinance
	}
	return n.enqueue(ctx, jobs.RoleAlertPayload{
		OrgID:  pr.OrgID,
		Role:   string(role),
		Action: action,
		Title:  fmt.Sprintf("Requisition %s", pr.TransactionID),
		Body:   fmt.Sprintf("Requisition %s is now %s", pr.TransactionID, pr.Status),
		PRID:   pr.ID,
	})
}

// QuoteEvent alerts finance about new quotes and the supplier side about
// decisions on theirs.
func (n *Notifier) QuoteEvent(ctx context.Context, q quotation.Quote, action string) error {
	role := rbac.RoleSupplier
	if action == "QUOTE_SUBMITTED" {
		role = rbac.RoleFinance
	}
	return n.enqueue(ctx, jobs.RoleAlertPayload{
		OrgID:  q.OrgID,
		Role:   string(role),
		Action: action,
		Title:  fmt.Sprintf("Quote from %s", q.SupplierName),
		Body:   fmt.Sprintf("Quote %d on requisition %d: %s", q.ID, q.PRID, action),
		PRID:   q.PRID,
	})
}

// InvoiceEvent alerts finance about uploads and the supplier side about
// payment progress.
func (n *Notifier) InvoiceEvent(ctx context.Context, inv invoice.Invoice, action string) error {
	role := rbac.RoleSupplier
	if action == "INVOICE_UPLOADED" {
		role = rbac.RoleFinance
	}
	return n.enqueue(ctx, jobs.RoleAlertPayload{
		OrgID:  inv.OrgID,
		Role:   string(role),
		Action: action,
		Title:  fmt.Sprintf("Invoice %s", inv.InvoiceNumber),
		Body:   fmt.Sprintf("Invoice %s from %s: %s", inv.InvoiceNumber, inv.SupplierName, action),
		PRID:   inv.PRID,
	})
}

func (n *Notifier) enqueue(ctx context.Context, payload jobs.RoleAlertPayload) error {
	if n == nil || n.queue == nil {
		return nil
	}
	if err := n.queue.EnqueueRoleAlert(ctx, payload); err != nil {
		n.logger.Warn("enqueue role alert", slog.Any("error", err), slog.String("action", payload.Action))
		return err
	}
	return nil
}
