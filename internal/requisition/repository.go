package requisition

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procureflow/procureflow/internal/platform/db"
	"github.com/procureflow/procureflow/internal/shared"
)

// ErrDuplicateTransactionID signals a transaction_id collision; the caller
// regenerates the suffix and retries.
var ErrDuplicateTransactionID = errors.New("requisition: duplicate transaction id")

// ListFilters narrows and paginates requisition listings.
type ListFilters struct {
	OrgID       int64
	Status      string
	RequesterID int64
	ParentID    int64
	Page        int
	PerPage     int
}

// RepositoryPort describes the persistence operations the service uses
// outside a transaction.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	Get(ctx context.Context, orgID, id int64) (Requisition, error)
	List(ctx context.Context, f ListFilters) ([]Requisition, int, error)
}

// TxRepository describes the operations available inside a transaction.
// Every status mutation and its history append run through one of these.
type TxRepository interface {
	GetForUpdate(ctx context.Context, orgID, id int64) (Requisition, error)
	Insert(ctx context.Context, pr *Requisition) error
	InsertItems(ctx context.Context, prID int64, items []Item) ([]Item, error)
	AppendHistory(ctx context.Context, prID int64, e HistoryEntry) error
	UpdateStatus(ctx context.Context, id int64, from []string, to, hodStatus, financeStatus string) (bool, error)
	SetCategory(ctx context.Context, id, categoryID int64) error
}

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGRepository implements RepositoryPort using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

// Get loads a requisition with its items and history.
func (r *PGRepository) Get(ctx context.Context, orgID, id int64) (Requisition, error) {
	pr, err := scanOne(ctx, r.pool, `SELECT `+prColumns+` FROM purchase_requisitions WHERE org_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return Requisition{}, err
	}
	if pr.Items, err = loadItems(ctx, r.pool, pr.ID); err != nil {
		return Requisition{}, err
	}
	if pr.History, err = loadHistory(ctx, r.pool, pr.ID); err != nil {
		return Requisition{}, err
	}
	return pr, nil
}

// List returns a filtered, paginated page of requisitions plus the total
// match count. Items and history are not loaded for listings.
func (r *PGRepository) List(ctx context.Context, f ListFilters) ([]Requisition, int, error) {
	where := []string{"org_id = $1"}
	args := []any{f.OrgID}
	argNum := 2

	if f.Status != "" {
		where = append(where, "status = $"+itoa(argNum))
		args = append(args, f.Status)
		argNum++
	}
	if f.RequesterID != 0 {
		where = append(where, "requester_id = $"+itoa(argNum))
		args = append(args, f.RequesterID)
		argNum++
	}
	if f.ParentID != 0 {
		where = append(where, "parent_pr_id = $"+itoa(argNum))
		args = append(args, f.ParentID)
		argNum++
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_requisitions WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := f.PerPage
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	query := `SELECT ` + prColumns + ` FROM purchase_requisitions WHERE ` + cond +
		` ORDER BY created_at DESC LIMIT $` + itoa(argNum) + ` OFFSET $` + itoa(argNum+1)
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Requisition
	for rows.Next() {
		pr, err := scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, pr)
	}
	return out, total, rows.Err()
}

type txRepo struct {
	q dbtx
}

// GetForUpdate loads and row-locks a requisition with its items.
func (t *txRepo) GetForUpdate(ctx context.Context, orgID, id int64) (Requisition, error) {
	pr, err := scanOne(ctx, t.q, `SELECT `+prColumns+` FROM purchase_requisitions WHERE org_id = $1 AND id = $2 FOR UPDATE`, orgID, id)
	if err != nil {
		return Requisition{}, err
	}
	if pr.Items, err = loadItems(ctx, t.q, pr.ID); err != nil {
		return Requisition{}, err
	}
	return pr, nil
}

// Insert persists the requisition row and assigns its ID.
func (t *txRepo) Insert(ctx context.Context, pr *Requisition) error {
	const query = `
INSERT INTO purchase_requisitions
  (transaction_id, org_id, requester_id, requester_name, department,
   status, hod_status, finance_status, total_amount, currency, urgency,
   due_date, payment_due_date, document_key, parent_pr_id, category_id,
   created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NULLIF($14, ''), $15, $16, now(), now())
RETURNING id, created_at, updated_at`

	err := t.q.QueryRow(ctx, query,
		pr.TransactionID, pr.OrgID, pr.RequesterID, pr.RequesterName, pr.Department,
		pr.Status, pr.HODStatus, pr.FinanceStatus, pr.TotalAmount, pr.Currency, pr.Urgency,
		pr.DueDate, pr.PaymentDueDate, pr.DocumentKey, pr.ParentID, pr.CategoryID,
	).Scan(&pr.ID, &pr.CreatedAt, &pr.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateTransactionID
		}
		return err
	}
	return nil
}

// InsertItems persists the lines for a requisition, preserving order.
func (t *txRepo) InsertItems(ctx context.Context, prID int64, items []Item) ([]Item, error) {
	const query = `
INSERT INTO pr_items (pr_id, position, description, quantity, unit_price, total)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`

	out := make([]Item, len(items))
	for i, it := range items {
		if err := t.q.QueryRow(ctx, query, prID, i, it.Description, it.Quantity, it.UnitPrice, it.Total).Scan(&it.ID); err != nil {
			return nil, err
		}
		out[i] = it
	}
	return out, nil
}

// AppendHistory adds one audit entry. Rows are insert-only; there is no
// update or delete path.
func (t *txRepo) AppendHistory(ctx context.Context, prID int64, e HistoryEntry) error {
	const query = `
INSERT INTO pr_history (pr_id, action, actor_id, actor_name, details, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := t.q.Exec(ctx, query, prID, e.Action, e.ActorID, e.ActorName, e.Details, e.At.UTC())
	return err
}

// UpdateStatus transitions the requisition if its current status is in the
// allowed set, refreshing the display substatuses. Returns false when the
// row was not in an allowed state.
func (t *txRepo) UpdateStatus(ctx context.Context, id int64, from []string, to, hodStatus, financeStatus string) (bool, error) {
	query := `UPDATE purchase_requisitions
SET status = $1, hod_status = $2, finance_status = $3, updated_at = now()
WHERE id = $4 AND status = ANY($5)`

	tag, err := t.q.Exec(ctx, query, to, hodStatus, financeStatus, id, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetCategory attaches the spend category chosen at finance approval.
func (t *txRepo) SetCategory(ctx context.Context, id, categoryID int64) error {
	_, err := t.q.Exec(ctx, `UPDATE purchase_requisitions SET category_id = $1, updated_at = now() WHERE id = $2`, categoryID, id)
	return err
}

const prColumns = `id, transaction_id, org_id, requester_id, requester_name, department,
status, hod_status, finance_status, total_amount, currency, urgency,
due_date, payment_due_date, COALESCE(document_key, ''), parent_pr_id, category_id,
created_at, updated_at`

func scanOne(ctx context.Context, q dbtx, query string, args ...any) (Requisition, error) {
	pr, err := scanRow(q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Requisition{}, shared.ErrNotFound
	}
	return pr, err
}

func scanRow(row pgx.Row) (Requisition, error) {
	var pr Requisition
	err := row.Scan(
		&pr.ID, &pr.TransactionID, &pr.OrgID, &pr.RequesterID, &pr.RequesterName, &pr.Department,
		&pr.Status, &pr.HODStatus, &pr.FinanceStatus, &pr.TotalAmount, &pr.Currency, &pr.Urgency,
		&pr.DueDate, &pr.PaymentDueDate, &pr.DocumentKey, &pr.ParentID, &pr.CategoryID,
		&pr.CreatedAt, &pr.UpdatedAt,
	)
	return pr, err
}

func loadItems(ctx context.Context, q dbtx, prID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT id, description, quantity, unit_price, total FROM pr_items WHERE pr_id = $1 ORDER BY position`, prID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Description, &it.Quantity, &it.UnitPrice, &it.Total); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func loadHistory(ctx context.Context, q dbtx, prID int64) ([]HistoryEntry, error) {
	rows, err := q.Query(ctx, `SELECT id, action, actor_id, actor_name, details, occurred_at FROM pr_history WHERE pr_id = $1 ORDER BY occurred_at, id`, prID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.Action, &e.ActorID, &e.ActorName, &e.Details, &e.At); err != nil {
			return nil, err
		}
		history = append(history, e)
	}
	return history, rows.Err()
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

var _ RepositoryPort = (*PGRepository)(nil)
var _ TxRepository = (*txRepo)(nil)
