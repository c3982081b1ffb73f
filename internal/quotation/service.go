package quotation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/procureflow/procureflow/internal/masterdata"
	"github.com/procureflow/procureflow/internal/rbac"
	"github.com/procureflow/procureflow/internal/requisition"
	"github.com/procureflow/procureflow/internal/shared"
)

// RequisitionDirectory loads requisitions for the solicitation gate.
type RequisitionDirectory interface {
	Get(ctx context.Context, orgID, id int64) (requisition.Requisition, error)
}

// SupplierDirectory resolves supplier identity.
type SupplierDirectory interface {
	SupplierForUser(ctx context.Context, userID int64) (masterdata.Supplier, error)
	SupplierInOrg(ctx context.Context, orgID, id int64) (masterdata.Supplier, error)
}

// Notifier observes quote events for role-targeted alerts. Best effort.
type Notifier interface {
	QuoteEvent(ctx context.Context, q Quote, action string) error
}

// Service implements the quotation cycle.
type Service struct {
	repo         RepositoryPort
	requisitions RequisitionDirectory
	suppliers    SupplierDirectory
	notifier     Notifier
	logger       *slog.Logger
}

// NewService constructs a Service instance.
func NewService(repo RepositoryPort, requisitions RequisitionDirectory, suppliers SupplierDirectory, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{repo: repo, requisitions: requisitions, suppliers: suppliers, notifier: notifier, logger: logger}
}

// SendRequestInput carries the solicitation parameters.
type SendRequestInput struct {
	PRID       int64
	SupplierID int64
	ItemIDs    []int64
	Message    string
}

// SendRequest solicits a quote from one supplier for an approved
// requisition. Fan-out to several suppliers means calling this once per
// supplier; nothing prevents competing requests for the same requisition.
func (s *Service) SendRequest(ctx context.Context, actor shared.Actor, in SendRequestInput) (QuoteRequest, error) {
	if !rbac.Can(rbac.Role(actor.Role), rbac.CapQuoteRequest) {
		return QuoteRequest{}, shared.ErrForbidden
	}
	pr, err := s.requisitions.Get(ctx, actor.OrgID, in.PRID)
	if err != nil {
		return QuoteRequest{}, err
	}
	if pr.Status != requisition.StatusFinanceApprove {
		return QuoteRequest{}, shared.NewSafeError("Quotes can only be requested for finance-approved requisitions")
	}
	if _, err := s.suppliers.SupplierInOrg(ctx, actor.OrgID, in.SupplierID); err != nil {
		if err == shared.ErrNotFound {
			return QuoteRequest{}, shared.NewSafeError("Unknown supplier")
		}
		return QuoteRequest{}, err
	}

	items, err := snapshotItems(pr.Items, in.ItemIDs)
	if err != nil {
		return QuoteRequest{}, err
	}
	req := QuoteRequest{
		PRID:       pr.ID,
		OrgID:      actor.OrgID,
		SupplierID: in.SupplierID,
		Message:    strings.TrimSpace(in.Message),
		Items:      items,
	}
	if err := s.repo.CreateRequest(ctx, &req); err != nil {
		return QuoteRequest{}, err
	}
	return req, nil
}

// RequestsForSupplier lists the acting supplier's solicitation inbox.
func (s *Service) RequestsForSupplier(ctx context.Context, actor shared.Actor) ([]QuoteRequest, error) {
	supplier, err := s.resolveSupplier(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.repo.ListRequestsForSupplier(ctx, supplier.ID)
}

// RequestsForPR lists solicitations raised for one requisition.
func (s *Service) RequestsForPR(ctx context.Context, actor shared.Actor, prID int64) ([]QuoteRequest, error) {
	if !rbac.Can(rbac.Role(actor.Role), rbac.CapQuoteReview) {
		return nil, shared.ErrForbidden
	}
	return s.repo.ListRequestsForPR(ctx, actor.OrgID, prID)
}

// AcceptRequest marks a pending solicitation accepted by its supplier.
func (s *Service) AcceptRequest(ctx context.Context, actor shared.Actor, requestID int64) error {
	return s.respondToRequest(ctx, actor, requestID, RequestAccepted)
}

// DeclineRequest marks a pending solicitation declined by its supplier.
func (s *Service) DeclineRequest(ctx context.Context, actor shared.Actor, requestID int64) error {
	return s.respondToRequest(ctx, actor, requestID, RequestDeclined)
}

func (s *Service) respondToRequest(ctx context.Context, actor shared.Actor, requestID int64, to string) error {
	if !rbac.Can(rbac.Role(actor.Role), rbac.CapQuoteRespond) {
		return shared.ErrForbidden
	}
	supplier, err := s.resolveSupplier(ctx, actor)
	if err != nil {
		return err
	}
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.SupplierID != supplier.ID {
		return shared.ErrForbidden
	}
	ok, err := s.repo.UpdateRequestStatus(ctx, requestID, []string{RequestPending}, to)
	if err != nil {
		return err
	}
	if !ok {
		return shared.NewSafeError("This quote request is no longer pending")
	}
	return nil
}

// SubmitQuoteInput carries a supplier's priced response.
type SubmitQuoteInput struct {
	RequestID        int64
	Amount           float64
	DeliveryEstimate string
	ValidUntil       *time.Time
	Notes            string
	DocumentKey      string
}

// SubmitQuote records the supplier's response and flips the request to
// QUOTED. Accepting the request first is optional; a declined request
// cannot be quoted.
func (s *Service) SubmitQuote(ctx context.Context, actor shared.Actor, in SubmitQuoteInput) (Quote, error) {
	if !rbac.Can(rbac.Role(actor.Role), rbac.CapQuoteRespond) {
		return Quote{}, shared.ErrForbidden
	}
	if in.Amount <= 0 {
		return Quote{}, shared.NewSafeError("Quote amount must be greater than zero")
	}
	supplier, err := s.resolveSupplier(ctx, actor)
	if err != nil {
		return Quote{}, err
	}
	req, err := s.repo.GetRequest(ctx, in.RequestID)
	if err != nil {
		return Quote{}, err
	}
	if req.SupplierID != supplier.ID {
		return Quote{}, shared.ErrForbidden
	}
	// A request flips to QUOTED on submission, so QUOTED means this
	// supplier already has a quote on file.
	if req.Status == RequestQuoted {
		return Quote{}, shared.NewSafeError("You have already submitted a quote for this request")
	}
	if req.Status != RequestPending && req.Status != RequestAccepted {
		return Quote{}, shared.NewSafeError("This quote request can no longer be quoted")
	}

	quote := Quote{
		QuoteRequestID:   req.ID,
		PRID:             req.PRID,
		OrgID:            req.OrgID,
		SupplierID:       supplier.ID,
		SupplierName:     supplier.Name,
		Amount:           quoteAmount(in.Amount),
		DeliveryEstimate: strings.TrimSpace(in.DeliveryEstimate),
		ValidUntil:       in.ValidUntil,
		Notes:            strings.TrimSpace(in.Notes),
		DocumentKey:      in.DocumentKey,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertQuote(ctx, &quote); err != nil {
			if err == ErrDuplicateQuote {
				return shared.NewSafeError("You have already submitted a quote for this request")
			}
			return err
		}
		ok, err := tx.UpdateRequestStatus(ctx, req.ID, []string{RequestPending, RequestAccepted}, RequestQuoted)
		if err != nil {
			return err
		}
		if !ok {
			return shared.NewSafeError("This quote request can no longer be quoted")
		}
		return nil
	})
	if err != nil {
		return Quote{}, err
	}
	s.notifyEvent(ctx, quote, "QUOTE_SUBMITTED")
	return quote, nil
}

// AcceptQuote accepts one quote for a requisition and rejects every
// competitor in the same transaction. The requisition total becomes the
// accepted amount and the acceptance lands in the requisition's history,
// all atomically; there is no two-step variant. Once a competing quote
// carries an invoice the award is settled and acceptance fails, because
// rejecting that sibling would orphan its invoice.
func (s *Service) AcceptQuote(ctx context.Context, actor shared.Actor, quoteID int64) (Quote, error) {
	if !rbac.Can(rbac.Role(actor.Role), rbac.CapQuoteReview) {
		return Quote{}, shared.ErrForbidden
	}

	var accepted Quote
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		quote, err := tx.GetQuoteForUpdate(ctx, quoteID)
		if err != nil {
			return err
		}
		if quote.OrgID != actor.OrgID {
			return shared.ErrNotFound
		}
		switch quote.Status {
		case QuoteSubmitted:
		case QuoteAccepted, QuoteInvoiceUploaded:
			return shared.NewSafeError("This quote has already been accepted")
		default:
			return shared.NewSafeError("Only submitted quotes can be accepted")
		}

		invoiced, err := tx.SiblingQuoteExists(ctx, quote.PRID, quote.ID, QuoteInvoiceUploaded)
		if err != nil {
			return err
		}
		if invoiced {
			return shared.NewSafeError("An invoice has already been uploaded against another quote for this requisition")
		}

		ok, err := tx.UpdateQuoteStatus(ctx, quote.ID, []string{QuoteSubmitted}, QuoteAccepted)
		if err != nil {
			return err
		}
		if !ok {
			return shared.NewSafeError("Only submitted quotes can be accepted")
		}
		rejected, err := tx.RejectSiblingQuotes(ctx, quote.PRID, quote.ID)
		if err != nil {
			return err
		}
		if err := tx.SetRequisitionTotal(ctx, quote.PRID, quote.Amount); err != nil {
			return err
		}
		supplierName := quote.SupplierName
		if supplierName == "" {
			if sup, err := s.suppliers.SupplierInOrg(ctx, quote.OrgID, quote.SupplierID); err == nil {
				supplierName = sup.Name
			}
		}
		details := fmt.Sprintf("Accepted quote from %s for %s; %d competing quote(s) auto-rejected",
			supplierName, formatMoney(quote.Amount), rejected)
		if err := tx.AppendRequisitionHistory(ctx, quote.PRID, requisition.HistoryEntry{
			Action:    requisition.ActionQuoteAccepted,
			ActorID:   actor.UserID,
			ActorName: actor.DisplayName,
			Details:   details,
			At:        time.Now(),
		}); err != nil {
			return err
		}
		quote.Status = QuoteAccepted
		quote.SupplierName = supplierName
		accepted = quote
		return nil
	})
	if err != nil {
		return Quote{}, err
	}
	s.notifyEvent(ctx, accepted, "QUOTE_ACCEPTED")
	return accepted, nil
}

// RejectQuote rejects a single submitted quote without touching its
// siblings.
func (s *Service) RejectQuote(ctx context.Context, actor shared.Actor, quoteID int64) error {
	if !rbac.Can(rbac.Role(actor.Role), rbac.CapQuoteReview) {
		return shared.ErrForbidden
	}
	var rejected Quote
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		quote, err := tx.GetQuoteForUpdate(ctx, quoteID)
		if err != nil {
			return err
		}
		if quote.OrgID != actor.OrgID {
			return shared.ErrNotFound
		}
		ok, err := tx.UpdateQuoteStatus(ctx, quote.ID, []string{QuoteSubmitted}, QuoteRejected)
		if err != nil {
			return err
		}
		if !ok {
			return shared.NewSafeError("Only submitted quotes can be rejected")
		}
		quote.Status = QuoteRejected
		rejected = quote
		return nil
	})
	if err != nil {
		return err
	}
	s.notifyEvent(ctx, rejected, "QUOTE_REJECTED")
	return nil
}

// QuotesForPR lists all quotes submitted against a requisition.
func (s *Service) QuotesForPR(ctx context.Context, actor shared.Actor, prID int64) ([]Quote, error) {
	if !rbac.Can(rbac.Role(actor.Role), rbac.CapQuoteReview) {
		return nil, shared.ErrForbidden
	}
	return s.repo.ListQuotesForPR(ctx, actor.OrgID, prID)
}

// QuotesForSupplier lists the acting supplier's own quotes.
func (s *Service) QuotesForSupplier(ctx context.Context, actor shared.Actor) ([]Quote, error) {
	supplier, err := s.resolveSupplier(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.repo.ListQuotesForSupplier(ctx, supplier.ID)
}

// GetQuote loads one quote without actor scoping. Intended for in-process
// callers such as the invoice subsystem; HTTP callers go through the list
// and accept paths.
func (s *Service) GetQuote(ctx context.Context, id int64) (Quote, error) {
	return s.repo.GetQuote(ctx, id)
}

func (s *Service) resolveSupplier(ctx context.Context, actor shared.Actor) (masterdata.Supplier, error) {
	if !rbac.Can(rbac.Role(actor.Role), rbac.CapQuoteRespond) {
		return masterdata.Supplier{}, shared.ErrForbidden
	}
	supplier, err := s.suppliers.SupplierForUser(ctx, actor.UserID)
	if err != nil {
		if err == shared.ErrNotFound {
			return masterdata.Supplier{}, shared.NewSafeError("Your account is not linked to a supplier")
		}
		return masterdata.Supplier{}, err
	}
	return supplier, nil
}

func (s *Service) notifyEvent(ctx context.Context, q Quote, action string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.QuoteEvent(ctx, q, action); err != nil {
		s.logger.Warn("notify quote event", slog.Any("error", err), slog.Int64("quote_id", q.ID))
	}
}

func snapshotItems(prItems []requisition.Item, itemIDs []int64) ([]RequestItem, error) {
	byID := make(map[int64]requisition.Item, len(prItems))
	for _, it := range prItems {
		byID[it.ID] = it
	}
	selected := prItems
	if len(itemIDs) > 0 {
		selected = make([]requisition.Item, 0, len(itemIDs))
		for _, id := range itemIDs {
			it, ok := byID[id]
			if !ok {
				return nil, shared.NewSafeError("A selected item is not on this requisition")
			}
			selected = append(selected, it)
		}
	}
	if len(selected) == 0 {
		return nil, shared.NewSafeError("At least one item must be included in the request")
	}
	items := make([]RequestItem, len(selected))
	for i, it := range selected {
		items[i] = RequestItem{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Total:       it.Total,
		}
	}
	return items, nil
}

func quoteAmount(v float64) float64 {
	return math.Round(v*100) / 100
}

var moneyPrinter = message.NewPrinter(language.English)

func formatMoney(amount float64) string {
	return moneyPrinter.Sprintf("%v", number.Decimal(amount, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}
