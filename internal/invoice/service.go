package invoice

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/procureflow/procureflow/internal/masterdata"
	"github.com/procureflow/procureflow/internal/quotation"
	"github.com/procureflow/procureflow/internal/rbac"
	"github.com/procureflow/procureflow/internal/requisition"
	"github.com/procureflow/procureflow/internal/shared"
	"github.com/procureflow/procureflow/internal/storage"
)

// QuoteDirectory exposes the quote side of the upload gate.
type QuoteDirectory interface {
	GetQuote(ctx context.Context, id int64) (quotation.Quote, error)
}

// SupplierDirectory resolves supplier identity for the acting user.
type SupplierDirectory interface {
	SupplierForUser(ctx context.Context, userID int64) (masterdata.Supplier, error)
}

// SystemNotes posts system-authored notes into the requisition's
// conversation thread. Best effort.
type SystemNotes interface {
	PostSystemNote(ctx context.Context, orgID, prID int64, body string) error
}

// Notifier observes invoice events for role-targeted alerts. Best effort.
type Notifier interface {
	InvoiceEvent(ctx context.Context, inv Invoice, action string) error
}

// Service implements invoice upload and payment progression.
type Service struct {
	repo      Repository
	store     storage.Store
	quotes    QuoteDirectory
	suppliers SupplierDirectory
	notes     SystemNotes
	notifier  Notifier
	logger    *slog.Logger
}

// NewService constructs a Service instance.
func NewService(repo Repository, store storage.Store, quotes QuoteDirectory, suppliers SupplierDirectory, notes SystemNotes, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{repo: repo, store: store, quotes: quotes, suppliers: suppliers, notes: notes, notifier: notifier, logger: logger}
}

// UploadInput carries one invoice upload.
type UploadInput struct {
	QuoteID       int64
	InvoiceNumber string
	Amount        float64
	FileName      string
	ContentType   string
	Size          int64
	File          io.Reader
}

// Upload stores a supplier's invoice against an accepted quote. The invoice
// row and the quote's INVOICE_UPLOADED flip commit in one transaction. The
// blob is written first and deleted again if that transaction fails, so no
// stored file is ever left without a matching invoice row. History and
// conversation notes after a successful insert are best effort and never
// unwind the upload.
func (s *Service) Upload(ctx context.Context, actor shared.Actor, in UploadInput) (Invoice, error) {
	if !rbac.Can(rbac.Role(actor.Role), rbac.CapInvoiceUpload) {
		return Invoice{}, shared.ErrForbidden
	}
	in.InvoiceNumber = strings.TrimSpace(in.InvoiceNumber)
	if in.InvoiceNumber == "" {
		return Invoice{}, shared.NewSafeError("An invoice number is required")
	}
	if in.File == nil || in.Size <= 0 {
		return Invoice{}, shared.NewSafeError("An invoice file is required")
	}

	supplier, err := s.suppliers.SupplierForUser(ctx, actor.UserID)
	if err != nil {
		if err == shared.ErrNotFound {
			return Invoice{}, shared.NewSafeError("Your account is not linked to a supplier")
		}
		return Invoice{}, err
	}
	quote, err := s.quotes.GetQuote(ctx, in.QuoteID)
	if err != nil {
		return Invoice{}, err
	}
	if quote.SupplierID != supplier.ID {
		return Invoice{}, shared.ErrForbidden
	}
	switch quote.Status {
	case quotation.QuoteAccepted, quotation.QuoteInvoiceUploaded:
	default:
		return Invoice{}, shared.NewSafeError("This quote has not yet been approved; invoices can only be uploaded for accepted quotes")
	}
	if _, err := s.repo.GetByQuote(ctx, quote.ID); err == nil {
		return Invoice{}, shared.NewSafeError("An invoice has already been uploaded for this quote and cannot be replaced")
	} else if err != shared.ErrNotFound {
		return Invoice{}, err
	}

	key := storage.Key("invoices", "supplier-"+strconv.FormatInt(supplier.ID, 10), "quote-"+strconv.FormatInt(quote.ID, 10))
	doc, err := s.store.Put(ctx, key, in.ContentType, in.File, in.Size)
	if err != nil {
		switch err {
		case storage.ErrTooLarge:
			return Invoice{}, shared.NewSafeError("The invoice file is too large")
		case storage.ErrUnsupportedType:
			return Invoice{}, shared.NewSafeError("This file type is not accepted for invoices")
		}
		return Invoice{}, err
	}

	amount := in.Amount
	if amount <= 0 {
		amount = quote.Amount
	}
	inv := Invoice{
		QuoteID:       quote.ID,
		PRID:          quote.PRID,
		OrgID:         quote.OrgID,
		SupplierID:    supplier.ID,
		SupplierName:  supplier.Name,
		InvoiceNumber: in.InvoiceNumber,
		Amount:        amount,
		DocumentKey:   doc.Key,
		FileName:      in.FileName,
		ContentType:   doc.ContentType,
		SizeBytes:     doc.Size,
	}
	if err := s.repo.Insert(ctx, &inv); err != nil {
		if delErr := s.store.Delete(ctx, doc.Key); delErr != nil {
			s.logger.Error("delete orphaned invoice blob", slog.Any("error", delErr), slog.String("key", doc.Key))
		}
		if err == ErrInvoiceExists {
			return Invoice{}, shared.NewSafeError("An invoice has already been uploaded for this quote and cannot be replaced")
		}
		if err == ErrQuoteNotAccepted {
			return Invoice{}, shared.NewSafeError("This quote has not yet been approved; invoices can only be uploaded for accepted quotes")
		}
		return Invoice{}, err
	}

	s.recordUpload(ctx, actor, inv)
	s.notifyEvent(ctx, inv, "INVOICE_UPLOADED")
	return inv, nil
}

// Get loads one invoice, scoped to the caller's organization.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (Invoice, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if inv.OrgID != actor.OrgID {
		return Invoice{}, shared.ErrNotFound
	}
	return inv, nil
}

// ListForOrg returns the organization's invoices for finance review.
func (s *Service) ListForOrg(ctx context.Context, actor shared.Actor) ([]Invoice, error) {
	if !rbac.Can(rbac.Role(actor.Role), rbac.CapInvoiceProgress) {
		return nil, shared.ErrForbidden
	}
	return s.repo.ListForOrg(ctx, actor.OrgID)
}

// ListForSupplier returns the acting supplier's own invoices.
func (s *Service) ListForSupplier(ctx context.Context, actor shared.Actor) ([]Invoice, error) {
	if !rbac.Can(rbac.Role(actor.Role), rbac.CapInvoiceUpload) {
		return nil, shared.ErrForbidden
	}
	supplier, err := s.suppliers.SupplierForUser(ctx, actor.UserID)
	if err != nil {
		if err == shared.ErrNotFound {
			return nil, shared.NewSafeError("Your account is not linked to a supplier")
		}
		return nil, err
	}
	return s.repo.ListForSupplier(ctx, supplier.ID)
}

// MarkAwaitingPayment moves an uploaded invoice to AWAITING_PAYMENT.
func (s *Service) MarkAwaitingPayment(ctx context.Context, actor shared.Actor, id int64) (Invoice, error) {
	return s.advance(ctx, actor, id, []string{StatusUploaded}, StatusAwaitingPayment, "INVOICE_AWAITING_PAYMENT")
}

// MarkPaid moves an invoice awaiting payment to PAID.
func (s *Service) MarkPaid(ctx context.Context, actor shared.Actor, id int64) (Invoice, error) {
	return s.advance(ctx, actor, id, []string{StatusAwaitingPayment}, StatusPaid, "INVOICE_PAID")
}

func (s *Service) advance(ctx context.Context, actor shared.Actor, id int64, from []string, to, action string) (Invoice, error) {
	if !rbac.Can(rbac.Role(actor.Role), rbac.CapInvoiceProgress) {
		return Invoice{}, shared.ErrForbidden
	}
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if inv.OrgID != actor.OrgID {
		return Invoice{}, shared.ErrNotFound
	}
	ok, err := s.repo.AdvanceStatus(ctx, id, from, to)
	if err != nil {
		return Invoice{}, err
	}
	if !ok {
		return Invoice{}, shared.NewSafeError("Invoice payment status can only move forward")
	}
	inv.Status = to
	s.notifyEvent(ctx, inv, action)
	return inv, nil
}

// BulkMarkPaid marks every listed invoice that is awaiting payment as PAID
// and returns how many changed.
func (s *Service) BulkMarkPaid(ctx context.Context, actor shared.Actor, ids []int64) (int64, error) {
	if !rbac.Can(rbac.Role(actor.Role), rbac.CapInvoiceProgress) {
		return 0, shared.ErrForbidden
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return s.repo.BulkMarkPaid(ctx, actor.OrgID, ids)
}

func (s *Service) recordUpload(ctx context.Context, actor shared.Actor, inv Invoice) {
	details := fmt.Sprintf("Invoice %s uploaded by %s for %s", inv.InvoiceNumber, inv.SupplierName, formatMoney(inv.Amount))
	err := s.repo.AppendRequisitionHistory(ctx, inv.PRID, requisition.HistoryEntry{
		Action:    requisition.ActionInvoiceUploaded,
		ActorID:   actor.UserID,
		ActorName: actor.DisplayName,
		Details:   details,
		At:        time.Now(),
	})
	if err != nil {
		s.logger.Warn("append invoice history", slog.Any("error", err), slog.Int64("pr_id", inv.PRID))
	}
	if s.notes != nil {
		if err := s.notes.PostSystemNote(ctx, inv.OrgID, inv.PRID, details); err != nil {
			s.logger.Warn("post invoice system note", slog.Any("error", err), slog.Int64("pr_id", inv.PRID))
		}
	}
}

func (s *Service) notifyEvent(ctx context.Context, inv Invoice, action string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.InvoiceEvent(ctx, inv, action); err != nil {
		s.logger.Warn("notify invoice event", slog.Any("error", err), slog.Int64("invoice_id", inv.ID))
	}
}

var moneyPrinter = message.NewPrinter(language.English)

func formatMoney(amount float64) string {
	return moneyPrinter.Sprintf("%v", number.Decimal(amount, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}
