package requisition

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/procureflow/procureflow/internal/rbac"
	"github.com/procureflow/procureflow/internal/shared"
	"github.com/procureflow/procureflow/internal/users"
)

// Directory exposes the people data creation needs: the requester's profile
// (for the department shown on the requisition) and whether the
// organization currently has a head of department. The HOD presence check
// runs on every creation, never cached, because organizations gain and
// lose HODs.
type Directory interface {
	OrgHasHOD(ctx context.Context, orgID int64) (bool, error)
	GetProfile(ctx context.Context, userID int64) (users.Profile, error)
}

// CategoryDirectory verifies the spend category chosen at finance approval.
type CategoryDirectory interface {
	CategoryExists(ctx context.Context, orgID, categoryID int64) (bool, error)
}

// Notifier observes completed transitions and fans out role-targeted
// alerts. Failures are logged and never fail the transition.
type Notifier interface {
	RequisitionStatusChanged(ctx context.Context, pr Requisition, action string) error
}

const createAttempts = 3

// Service implements the requisition lifecycle.
type Service struct {
	repo       RepositoryPort
	directory  Directory
	categories CategoryDirectory
	notifier   Notifier
	logger     *slog.Logger
}

// NewService constructs a Service instance.
func NewService(repo RepositoryPort, directory Directory, categories CategoryDirectory, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{repo: repo, directory: directory, categories: categories, notifier: notifier, logger: logger}
}

// CreateRequest carries the input for a new requisition.
type CreateRequest struct {
	Items          []Item
	Currency       string
	Urgency        string
	DueDate        *time.Time
	PaymentDueDate *time.Time
	DocumentKey    string
}

// Create raises a new requisition for the acting user. The initial status
// depends on whether the organization has an HOD at this moment.
func (s *Service) Create(ctx context.Context, actor shared.Actor, req CreateRequest) (Requisition, error) {
	if !rbac.Can(rbac.Role(actor.Role), rbac.CapRequisitionCreate) {
		return Requisition{}, shared.ErrForbidden
	}
	items, err := normalizeItems(req.Items)
	if err != nil {
		return Requisition{}, err
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "IDR"
	}
	urgency := strings.ToUpper(strings.TrimSpace(req.Urgency))
	if urgency == "" {
		urgency = UrgencyNormal
	}
	if !ValidUrgency(urgency) {
		return Requisition{}, shared.NewSafeError("Urgency must be LOW, NORMAL, HIGH or URGENT")
	}

	hasHOD, err := s.directory.OrgHasHOD(ctx, actor.OrgID)
	if err != nil {
		return Requisition{}, err
	}
	profile, err := s.directory.GetProfile(ctx, actor.UserID)
	if err != nil {
		return Requisition{}, err
	}

	pr := Requisition{
		OrgID:          actor.OrgID,
		RequesterID:    actor.UserID,
		RequesterName:  actor.DisplayName,
		Department:     profile.Department,
		TotalAmount:    SumItems(items),
		Currency:       currency,
		Urgency:        urgency,
		DueDate:        req.DueDate,
		PaymentDueDate: req.PaymentDueDate,
		DocumentKey:    req.DocumentKey,
	}
	if hasHOD {
		pr.Status = StatusPendingHOD
		pr.HODStatus = SubstatusPending
		pr.FinanceStatus = ""
	} else {
		pr.Status = StatusPendingFinance
		pr.HODStatus = SubstatusSkipped
		pr.FinanceStatus = SubstatusPending
	}

	for attempt := 0; attempt < createAttempts; attempt++ {
		pr.TransactionID = NewTransactionID(time.Now())
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			if err := tx.Insert(ctx, &pr); err != nil {
				return err
			}
			inserted, err := tx.InsertItems(ctx, pr.ID, items)
			if err != nil {
				return err
			}
			pr.Items = inserted
			entry := HistoryEntry{
				Action:    ActionCreated,
				ActorID:   actor.UserID,
				ActorName: actor.DisplayName,
				Details:   fmt.Sprintf("Requisition %s created with %d item(s), total %s", pr.TransactionID, len(inserted), formatMoney(pr.Currency, pr.TotalAmount)),
				At:        time.Now(),
			}
			pr.History = []HistoryEntry{entry}
			return tx.AppendHistory(ctx, pr.ID, entry)
		})
		if err != ErrDuplicateTransactionID {
			break
		}
	}
	if err != nil {
		return Requisition{}, err
	}

	s.notifyChange(ctx, pr, ActionCreated)
	return pr, nil
}

// Get loads one requisition. Employees may only see their own.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (Requisition, error) {
	if !rbac.Can(rbac.Role(actor.Role), rbac.CapRequisitionView) {
		return Requisition{}, shared.ErrForbidden
	}
	pr, err := s.repo.Get(ctx, actor.OrgID, id)
	if err != nil {
		return Requisition{}, err
	}
	if actor.Role == string(rbac.RoleEmployee) && pr.RequesterID != actor.UserID {
		return Requisition{}, shared.ErrForbidden
	}
	return pr, nil
}

// List returns a filtered page of requisitions for the actor's
// organization. Employees are always scoped to their own.
func (s *Service) List(ctx context.Context, actor shared.Actor, f ListFilters) ([]Requisition, int, error) {
	if !rbac.Can(rbac.Role(actor.Role), rbac.CapRequisitionView) {
		return nil, 0, shared.ErrForbidden
	}
	f.OrgID = actor.OrgID
	if actor.Role == string(rbac.RoleEmployee) {
		f.RequesterID = actor.UserID
	}
	return s.repo.List(ctx, f)
}

// HODApprove moves a requisition from the HOD queue into the finance queue.
func (s *Service) HODApprove(ctx context.Context, actor shared.Actor, id int64, comment string) (Requisition, error) {
	return s.review(ctx, actor, id, reviewStep{
		capability:    rbac.CapHODReview,
		comment:       comment,
		from:          []string{StatusPendingHOD},
		to:            StatusPendingFinance,
		hodStatus:     SubstatusApproved,
		financeStatus: SubstatusPending,
		action:        ActionHODApproved,
		notAwaiting:   "This requisition is not awaiting HOD review",
	})
}

// HODDecline terminally declines a requisition at the HOD step.
func (s *Service) HODDecline(ctx context.Context, actor shared.Actor, id int64, comment string) (Requisition, error) {
	return s.review(ctx, actor, id, reviewStep{
		capability:    rbac.CapHODReview,
		comment:       comment,
		from:          []string{StatusPendingHOD},
		to:            StatusHODDeclined,
		hodStatus:     SubstatusDeclined,
		financeStatus: "",
		action:        ActionHODDeclined,
		notAwaiting:   "This requisition is not awaiting HOD review",
	})
}

// FinanceApprove terminally approves a requisition, attaching the spend
// category. The category is immutable afterwards.
func (s *Service) FinanceApprove(ctx context.Context, actor shared.Actor, id, categoryID int64, comment string) (Requisition, error) {
	if !rbac.Can(rbac.Role(actor.Role), rbac.CapFinanceReview) {
		return Requisition{}, shared.ErrForbidden
	}
	if strings.TrimSpace(comment) == "" {
		return Requisition{}, shared.NewSafeError("A comment is required to approve or decline")
	}
	if categoryID <= 0 {
		return Requisition{}, shared.NewSafeError("A category is required for finance approval")
	}
	exists, err := s.categories.CategoryExists(ctx, actor.OrgID, categoryID)
	if err != nil {
		return Requisition{}, err
	}
	if !exists {
		return Requisition{}, shared.NewSafeError("The chosen category does not exist")
	}

	var result Requisition
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pr, err := tx.GetForUpdate(ctx, actor.OrgID, id)
		if err != nil {
			return err
		}
		if pr.Status != StatusPendingFinance {
			return transitionConflict(pr.Status, "This requisition is not awaiting finance review")
		}
		ok, err := tx.UpdateStatus(ctx, pr.ID, []string{StatusPendingFinance}, StatusFinanceApprove, pr.HODStatus, SubstatusApproved)
		if err != nil {
			return err
		}
		if !ok {
			return shared.NewSafeError("This requisition is not awaiting finance review")
		}
		if err := tx.SetCategory(ctx, pr.ID, categoryID); err != nil {
			return err
		}
		entry := HistoryEntry{
			Action:    ActionFinanceApproved,
			ActorID:   actor.UserID,
			ActorName: actor.DisplayName,
			Details:   comment,
			At:        time.Now(),
		}
		if err := tx.AppendHistory(ctx, pr.ID, entry); err != nil {
			return err
		}
		pr.Status = StatusFinanceApprove
		pr.FinanceStatus = SubstatusApproved
		pr.CategoryID = &categoryID
		result = pr
		return nil
	})
	if err != nil {
		return Requisition{}, err
	}
	s.notifyChange(ctx, result, ActionFinanceApproved)
	return result, nil
}

// FinanceDecline terminally declines a requisition at the finance step.
func (s *Service) FinanceDecline(ctx context.Context, actor shared.Actor, id int64, comment string) (Requisition, error) {
	return s.review(ctx, actor, id, reviewStep{
		capability:    rbac.CapFinanceReview,
		comment:       comment,
		from:          []string{StatusPendingFinance},
		to:            StatusFinanceDecline,
		hodStatus:     "",
		financeStatus: SubstatusDeclined,
		action:        ActionFinanceDeclined,
		notAwaiting:   "This requisition is not awaiting finance review",
	})
}

// SplitGroup assigns a subset of the parent's items to one child.
type SplitGroup struct {
	ItemIDs []int64
	Comment string
}

// Split partitions a requisition's items into independent child
// requisitions. The children and the parent's terminal SPLIT status commit
// in one transaction; a failure anywhere leaves no partial children.
func (s *Service) Split(ctx context.Context, actor shared.Actor, parentID int64, groups []SplitGroup) ([]Requisition, error) {
	if !rbac.Can(rbac.Role(actor.Role), rbac.CapRequisitionSplit) {
		return nil, shared.ErrForbidden
	}
	nonEmpty := make([]SplitGroup, 0, len(groups))
	for _, g := range groups {
		if len(g.ItemIDs) == 0 {
			continue
		}
		if strings.TrimSpace(g.Comment) == "" {
			return nil, shared.NewSafeError("Every split group needs a comment")
		}
		nonEmpty = append(nonEmpty, g)
	}
	if len(nonEmpty) < 2 {
		return nil, shared.NewSafeError("A split needs at least two groups with items")
	}

	var children []Requisition
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		parent, err := tx.GetForUpdate(ctx, actor.OrgID, parentID)
		if err != nil {
			return err
		}
		if parent.ParentID != nil {
			return shared.NewSafeError("A requisition created by a split cannot be split again")
		}
		if parent.Status != StatusPendingFinance {
			return transitionConflict(parent.Status, "Only requisitions awaiting finance review can be split")
		}
		itemsByID, err := partitionItems(parent.Items, nonEmpty)
		if err != nil {
			return err
		}

		now := time.Now()
		children = children[:0]
		for i, g := range nonEmpty {
			childItems := make([]Item, 0, len(g.ItemIDs))
			for _, itemID := range g.ItemIDs {
				childItems = append(childItems, itemsByID[itemID])
			}
			child := Requisition{
				TransactionID:  ChildTransactionID(parent.TransactionID, i+1),
				OrgID:          parent.OrgID,
				RequesterID:    parent.RequesterID,
				RequesterName:  parent.RequesterName,
				Department:     parent.Department,
				Status:         StatusPendingFinance,
				HODStatus:      parent.HODStatus,
				FinanceStatus:  SubstatusPending,
				TotalAmount:    SumItems(childItems),
				Currency:       parent.Currency,
				Urgency:        parent.Urgency,
				DueDate:        parent.DueDate,
				PaymentDueDate: parent.PaymentDueDate,
				ParentID:       &parent.ID,
			}
			if err := tx.Insert(ctx, &child); err != nil {
				return err
			}
			if child.Items, err = tx.InsertItems(ctx, child.ID, childItems); err != nil {
				return err
			}
			entry := HistoryEntry{
				Action:    ActionSplitChildCreated,
				ActorID:   actor.UserID,
				ActorName: actor.DisplayName,
				Details:   fmt.Sprintf("Created from split of %s: %s", parent.TransactionID, strings.TrimSpace(g.Comment)),
				At:        now,
			}
			if err := tx.AppendHistory(ctx, child.ID, entry); err != nil {
				return err
			}
			child.History = []HistoryEntry{entry}
			children = append(children, child)
		}

		ok, err := tx.UpdateStatus(ctx, parent.ID, []string{StatusPendingFinance}, StatusSplit, parent.HODStatus, SubstatusSplit)
		if err != nil {
			return err
		}
		if !ok {
			return shared.NewSafeError("Only requisitions awaiting finance review can be split")
		}
		ids := make([]string, len(children))
		for i, c := range children {
			ids[i] = c.TransactionID
		}
		return tx.AppendHistory(ctx, parent.ID, HistoryEntry{
			Action:    ActionSplitByFinance,
			ActorID:   actor.UserID,
			ActorName: actor.DisplayName,
			Details:   fmt.Sprintf("Split into %d requisitions: %s", len(children), strings.Join(ids, ", ")),
			At:        now,
		})
	})
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		s.notifyChange(ctx, child, ActionSplitChildCreated)
	}
	return children, nil
}

type reviewStep struct {
	capability    rbac.Capability
	comment       string
	from          []string
	to            string
	hodStatus     string
	financeStatus string
	action        string
	notAwaiting   string
}

func (s *Service) review(ctx context.Context, actor shared.Actor, id int64, step reviewStep) (Requisition, error) {
	if !rbac.Can(rbac.Role(actor.Role), step.capability) {
		return Requisition{}, shared.ErrForbidden
	}
	if strings.TrimSpace(step.comment) == "" {
		return Requisition{}, shared.NewSafeError("A comment is required to approve or decline")
	}

	var result Requisition
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pr, err := tx.GetForUpdate(ctx, actor.OrgID, id)
		if err != nil {
			return err
		}
		allowed := false
		for _, from := range step.from {
			if pr.Status == from {
				allowed = true
				break
			}
		}
		if !allowed {
			return transitionConflict(pr.Status, step.notAwaiting)
		}
		hodStatus := step.hodStatus
		if hodStatus == "" {
			hodStatus = pr.HODStatus
		}
		financeStatus := step.financeStatus
		if financeStatus == "" && step.to != StatusHODDeclined {
			financeStatus = pr.FinanceStatus
		}
		ok, err := tx.UpdateStatus(ctx, pr.ID, step.from, step.to, hodStatus, financeStatus)
		if err != nil {
			return err
		}
		if !ok {
			return shared.NewSafeError(step.notAwaiting)
		}
		if err := tx.AppendHistory(ctx, pr.ID, HistoryEntry{
			Action:    step.action,
			ActorID:   actor.UserID,
			ActorName: actor.DisplayName,
			Details:   step.comment,
			At:        time.Now(),
		}); err != nil {
			return err
		}
		pr.Status = step.to
		pr.HODStatus = hodStatus
		pr.FinanceStatus = financeStatus
		result = pr
		return nil
	})
	if err != nil {
		return Requisition{}, err
	}
	s.notifyChange(ctx, result, step.action)
	return result, nil
}

func (s *Service) notifyChange(ctx context.Context, pr Requisition, action string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.RequisitionStatusChanged(ctx, pr, action); err != nil {
		s.logger.Warn("notify status change", slog.Any("error", err), slog.String("transaction_id", pr.TransactionID))
	}
}

func transitionConflict(status, pending string) error {
	if Terminal(status) {
		return shared.NewSafeError("This requisition has already been finalized")
	}
	return shared.NewSafeError(pending)
}

func normalizeItems(in []Item) ([]Item, error) {
	if len(in) == 0 {
		return nil, shared.NewSafeError("At least one item is required")
	}
	items := make([]Item, len(in))
	for i, it := range in {
		it.Description = strings.TrimSpace(it.Description)
		if it.Description == "" {
			return nil, shared.NewSafeError("Every item needs a description")
		}
		if it.Quantity <= 0 {
			return nil, shared.NewSafeError("Item quantity must be greater than zero")
		}
		if it.UnitPrice < 0 {
			return nil, shared.NewSafeError("Item unit price cannot be negative")
		}
		it.Total = LineTotal(it.Quantity, it.UnitPrice)
		it.ID = 0
		items[i] = it
	}
	return items, nil
}

// partitionItems checks that the groups assign every parent item to exactly
// one group, with no unknown or duplicated item IDs.
func partitionItems(parentItems []Item, groups []SplitGroup) (map[int64]Item, error) {
	byID := make(map[int64]Item, len(parentItems))
	for _, it := range parentItems {
		byID[it.ID] = it
	}
	seen := make(map[int64]bool, len(parentItems))
	assigned := 0
	for _, g := range groups {
		for _, id := range g.ItemIDs {
			if _, ok := byID[id]; !ok {
				return nil, shared.NewSafeError("A split group references an item that is not on this requisition")
			}
			if seen[id] {
				return nil, shared.NewSafeError("An item cannot appear in more than one split group")
			}
			seen[id] = true
			assigned++
		}
	}
	if assigned != len(parentItems) {
		return nil, shared.NewSafeError("Every item must be assigned to a split group")
	}
	return byID, nil
}

var moneyPrinter = message.NewPrinter(language.English)

func formatMoney(currency string, amount float64) string {
	return moneyPrinter.Sprintf("%s %v", currency, number.Decimal(amount, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}
