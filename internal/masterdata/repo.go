package masterdata

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procureflow/procureflow/internal/shared"
)

// Repository sentinels.
var (
	// ErrInUse indicates the record is referenced by workflow data.
	ErrInUse = errors.New("masterdata: record in use")
	// ErrDuplicateName indicates a name collision within the organization.
	ErrDuplicateName = errors.New("masterdata: duplicate name")
)

// Repository defines persistence operations for master data.
type Repository interface {
	ListCategories(ctx context.Context, orgID int64) ([]Category, error)
	GetCategory(ctx context.Context, orgID, id int64) (Category, error)
	CategoryExists(ctx context.Context, orgID, id int64) (bool, error)
	CreateCategory(ctx context.Context, c Category) (Category, error)
	UpdateCategory(ctx context.Context, c Category) error
	DeleteCategory(ctx context.Context, orgID, id int64) error

	ListSuppliers(ctx context.Context, orgID int64) ([]Supplier, error)
	GetSupplier(ctx context.Context, orgID, id int64) (Supplier, error)
	GetSupplierByUser(ctx context.Context, userID int64) (Supplier, error)
	CreateSupplier(ctx context.Context, s Supplier) (Supplier, error)
	UpdateSupplier(ctx context.Context, s Supplier) error
	LinkSupplierUser(ctx context.Context, orgID, supplierID, userID int64) error
}

type repo struct {
	db *pgxpool.Pool
}

// NewRepository creates a new master data repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repo{db: db}
}

func (r *repo) ListCategories(ctx context.Context, orgID int64) ([]Category, error) {
	query := `SELECT id, org_id, name, kind, description, created_at, updated_at
FROM categories WHERE org_id = $1 ORDER BY name`
	rows, err := r.db.Query(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.OrgID, &c.Name, &c.Kind, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *repo) GetCategory(ctx context.Context, orgID, id int64) (Category, error) {
	query := `SELECT id, org_id, name, kind, description, created_at, updated_at
FROM categories WHERE org_id = $1 AND id = $2`
	var c Category
	err := r.db.QueryRow(ctx, query, orgID, id).Scan(&c.ID, &c.OrgID, &c.Name, &c.Kind, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Category{}, shared.ErrNotFound
	}
	return c, err
}

func (r *repo) CategoryExists(ctx context.Context, orgID, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM categories WHERE org_id = $1 AND id = $2)`, orgID, id).Scan(&exists)
	return exists, err
}

func (r *repo) CreateCategory(ctx context.Context, c Category) (Category, error) {
	query := `INSERT INTO categories (org_id, name, kind, description, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5) RETURNING id`
	now := time.Now()
	err := r.db.QueryRow(ctx, query, c.OrgID, c.Name, c.Kind, c.Description, now).Scan(&c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return Category{}, ErrDuplicateName
		}
		return Category{}, err
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	return c, nil
}

func (r *repo) UpdateCategory(ctx context.Context, c Category) error {
	query := `UPDATE categories SET name = $1, kind = $2, description = $3, updated_at = $4
WHERE org_id = $5 AND id = $6`
	tag, err := r.db.Exec(ctx, query, c.Name, c.Kind, c.Description, time.Now(), c.OrgID, c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateName
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repo) DeleteCategory(ctx context.Context, orgID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM categories WHERE org_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repo) ListSuppliers(ctx context.Context, orgID int64) ([]Supplier, error) {
	query := `SELECT id, org_id, name, email, phone, address, user_id, created_at, updated_at
FROM suppliers WHERE org_id = $1 ORDER BY name`
	rows, err := r.db.Query(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var suppliers []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.OrgID, &s.Name, &s.Email, &s.Phone, &s.Address, &s.UserID, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, rows.Err()
}

func (r *repo) GetSupplier(ctx context.Context, orgID, id int64) (Supplier, error) {
	query := `SELECT id, org_id, name, email, phone, address, user_id, created_at, updated_at
FROM suppliers WHERE org_id = $1 AND id = $2`
	var s Supplier
	err := r.db.QueryRow(ctx, query, orgID, id).Scan(&s.ID, &s.OrgID, &s.Name, &s.Email, &s.Phone, &s.Address, &s.UserID, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, shared.ErrNotFound
	}
	return s, err
}

func (r *repo) GetSupplierByUser(ctx context.Context, userID int64) (Supplier, error) {
	query := `SELECT id, org_id, name, email, phone, address, user_id, created_at, updated_at
FROM suppliers WHERE user_id = $1`
	var s Supplier
	err := r.db.QueryRow(ctx, query, userID).Scan(&s.ID, &s.OrgID, &s.Name, &s.Email, &s.Phone, &s.Address, &s.UserID, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, shared.ErrNotFound
	}
	return s, err
}

func (r *repo) CreateSupplier(ctx context.Context, s Supplier) (Supplier, error) {
	query := `INSERT INTO suppliers (org_id, name, email, phone, address, user_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7) RETURNING id`
	now := time.Now()
	err := r.db.QueryRow(ctx, query, s.OrgID, s.Name, s.Email, s.Phone, s.Address, s.UserID, now).Scan(&s.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return Supplier{}, ErrDuplicateName
		}
		return Supplier{}, err
	}
	s.CreatedAt = now
	s.UpdatedAt = now
	return s, nil
}

func (r *repo) UpdateSupplier(ctx context.Context, s Supplier) error {
	query := `UPDATE suppliers SET name = $1, email = $2, phone = $3, address = $4, updated_at = $5
WHERE org_id = $6 AND id = $7`
	tag, err := r.db.Exec(ctx, query, s.Name, s.Email, s.Phone, s.Address, time.Now(), s.OrgID, s.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateName
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repo) LinkSupplierUser(ctx context.Context, orgID, supplierID, userID int64) error {
	query := `UPDATE suppliers SET user_id = $1, updated_at = now()
WHERE org_id = $2 AND id = $3 AND user_id IS NULL`
	tag, err := r.db.Exec(ctx, query, userID, orgID, supplierID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
