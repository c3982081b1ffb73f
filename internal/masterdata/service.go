package masterdata

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/procureflow/procureflow/internal/rbac"
	"github.com/procureflow/procureflow/internal/shared"
)

// Auditor records master data changes in the operational audit trail.
// Failures are logged by the caller and never fail the write.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service wraps master data business rules. Reads are open to any
// authenticated actor in the organization; writes require the master data
// capability.
type Service struct {
	repo    Repository
	auditor Auditor
	logger  *slog.Logger
}

// NewService creates a new master data service.
func NewService(repo Repository, auditor Auditor, logger *slog.Logger) *Service {
	return &Service{repo: repo, auditor: auditor, logger: logger}
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action, entity string, entityID int64) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Record(ctx, shared.AuditLog{
		ActorID:  actor.UserID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		At:       time.Now(),
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("record masterdata audit", slog.Any("error", err), slog.String("action", action))
	}
}

// ListCategories returns the actor's organization categories.
func (s *Service) ListCategories(ctx context.Context, actor shared.Actor) ([]Category, error) {
	return s.repo.ListCategories(ctx, actor.OrgID)
}

// GetCategory fetches one category by ID within the actor's organization.
func (s *Service) GetCategory(ctx context.Context, actor shared.Actor, id int64) (Category, error) {
	if id <= 0 {
		return Category{}, shared.ErrNotFound
	}
	return s.repo.GetCategory(ctx, actor.OrgID, id)
}

// CategoryExists reports whether the category belongs to the organization.
// The requisition engine calls this before attaching a category at finance
// approval.
func (s *Service) CategoryExists(ctx context.Context, orgID, id int64) (bool, error) {
	if id <= 0 {
		return false, nil
	}
	return s.repo.CategoryExists(ctx, orgID, id)
}

// CreateCategory validates and persists a new category.
func (s *Service) CreateCategory(ctx context.Context, actor shared.Actor, c Category) (Category, error) {
	if !rbac.Can(rbac.Role(actor.Role), rbac.CapMasterdataManage) {
		return Category{}, shared.ErrForbidden
	}
	if err := validateCategory(&c); err != nil {
		return Category{}, err
	}
	c.OrgID = actor.OrgID
	created, err := s.repo.CreateCategory(ctx, c)
	if err == ErrDuplicateName {
		return Category{}, shared.NewSafeError("A category with this name already exists")
	}
	if err == nil {
		s.recordAudit(ctx, actor, "CATEGORY_CREATED", "category", created.ID)
	}
	return created, err
}

// UpdateCategory validates and persists category changes.
func (s *Service) UpdateCategory(ctx context.Context, actor shared.Actor, c Category) error {
	if !rbac.Can(rbac.Role(actor.Role), rbac.CapMasterdataManage) {
		return shared.ErrForbidden
	}
	if c.ID <= 0 {
		return shared.ErrNotFound
	}
	if err := validateCategory(&c); err != nil {
		return err
	}
	c.OrgID = actor.OrgID
	err := s.repo.UpdateCategory(ctx, c)
	if err == ErrDuplicateName {
		return shared.NewSafeError("A category with this name already exists")
	}
	if err == nil {
		s.recordAudit(ctx, actor, "CATEGORY_UPDATED", "category", c.ID)
	}
	return err
}

// DeleteCategory removes a category not referenced by any requisition.
func (s *Service) DeleteCategory(ctx context.Context, actor shared.Actor, id int64) error {
	if !rbac.Can(rbac.Role(actor.Role), rbac.CapMasterdataManage) {
		return shared.ErrForbidden
	}
	err := s.repo.DeleteCategory(ctx, actor.OrgID, id)
	if err == ErrInUse {
		return shared.NewSafeError("This category is used by existing requisitions and cannot be deleted")
	}
	if err == nil {
		s.recordAudit(ctx, actor, "CATEGORY_DELETED", "category", id)
	}
	return err
}

// ListSuppliers returns the actor's organization suppliers.
func (s *Service) ListSuppliers(ctx context.Context, actor shared.Actor) ([]Supplier, error) {
	return s.repo.ListSuppliers(ctx, actor.OrgID)
}

// GetSupplier fetches one supplier by ID within the actor's organization.
func (s *Service) GetSupplier(ctx context.Context, actor shared.Actor, id int64) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, shared.ErrNotFound
	}
	return s.repo.GetSupplier(ctx, actor.OrgID, id)
}

// SupplierInOrg loads a supplier by id scoped to an organization, for
// in-process callers that carry no actor.
func (s *Service) SupplierInOrg(ctx context.Context, orgID, id int64) (Supplier, error) {
	return s.repo.GetSupplier(ctx, orgID, id)
}

// SupplierForUser resolves the supplier record tied to a portal account.
// Quotation and invoice operations call this to scope supplier actors to
// their own records.
func (s *Service) SupplierForUser(ctx context.Context, userID int64) (Supplier, error) {
	return s.repo.GetSupplierByUser(ctx, userID)
}

// CreateSupplier validates and persists a new supplier.
func (s *Service) CreateSupplier(ctx context.Context, actor shared.Actor, sup Supplier) (Supplier, error) {
	if !rbac.Can(rbac.Role(actor.Role), rbac.CapMasterdataManage) {
		return Supplier{}, shared.ErrForbidden
	}
	if err := validateSupplier(&sup); err != nil {
		return Supplier{}, err
	}
	sup.OrgID = actor.OrgID
	created, err := s.repo.CreateSupplier(ctx, sup)
	if err == ErrDuplicateName {
		return Supplier{}, shared.NewSafeError("A supplier with this name already exists")
	}
	if err == nil {
		s.recordAudit(ctx, actor, "SUPPLIER_CREATED", "supplier", created.ID)
	}
	return created, err
}

// UpdateSupplier validates and persists supplier changes.
func (s *Service) UpdateSupplier(ctx context.Context, actor shared.Actor, sup Supplier) error {
	if !rbac.Can(rbac.Role(actor.Role), rbac.CapMasterdataManage) {
		return shared.ErrForbidden
	}
	if sup.ID <= 0 {
		return shared.ErrNotFound
	}
	if err := validateSupplier(&sup); err != nil {
		return err
	}
	sup.OrgID = actor.OrgID
	err := s.repo.UpdateSupplier(ctx, sup)
	if err == ErrDuplicateName {
		return shared.NewSafeError("A supplier with this name already exists")
	}
	if err == nil {
		s.recordAudit(ctx, actor, "SUPPLIER_UPDATED", "supplier", sup.ID)
	}
	return err
}

// LinkSupplierUser attaches a portal account to a supplier record. Fails if
// the supplier already has an account.
func (s *Service) LinkSupplierUser(ctx context.Context, actor shared.Actor, supplierID, userID int64) error {
	if !rbac.Can(rbac.Role(actor.Role), rbac.CapMasterdataManage) {
		return shared.ErrForbidden
	}
	err := s.repo.LinkSupplierUser(ctx, actor.OrgID, supplierID, userID)
	if err == shared.ErrNotFound {
		return shared.NewSafeError("Supplier not found or already linked to an account")
	}
	if err == nil {
		s.recordAudit(ctx, actor, "SUPPLIER_USER_LINKED", "supplier", supplierID)
	}
	return err
}

func validateCategory(c *Category) error {
	c.Name = strings.TrimSpace(c.Name)
	c.Kind = strings.ToUpper(strings.TrimSpace(c.Kind))
	c.Description = strings.TrimSpace(c.Description)
	if c.Name == "" {
		return shared.NewSafeError("Category name is required")
	}
	if c.Kind != KindExpense && c.Kind != KindAsset {
		return shared.NewSafeError("Category kind must be EXPENSE or ASSET")
	}
	return nil
}

func validateSupplier(s *Supplier) error {
	s.Name = strings.TrimSpace(s.Name)
	s.Email = strings.ToLower(strings.TrimSpace(s.Email))
	if s.Name == "" {
		return shared.NewSafeError("Supplier name is required")
	}
	if s.Email != "" && !strings.Contains(s.Email, "@") {
		return shared.NewSafeError("Supplier email is not valid")
	}
	return nil
}
