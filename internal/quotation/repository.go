package quotation

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procureflow/procureflow/internal/platform/db"
	"github.com/procureflow/procureflow/internal/requisition"
	"github.com/procureflow/procureflow/internal/shared"
)

// ErrDuplicateQuote indicates the supplier already quoted this request.
var ErrDuplicateQuote = errors.New("quotation: duplicate quote")

// RepositoryPort describes quotation persistence outside a transaction.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	CreateRequest(ctx context.Context, req *QuoteRequest) error
	GetRequest(ctx context.Context, id int64) (QuoteRequest, error)
	ListRequestsForSupplier(ctx context.Context, supplierID int64) ([]QuoteRequest, error)
	ListRequestsForPR(ctx context.Context, orgID, prID int64) ([]QuoteRequest, error)
	UpdateRequestStatus(ctx context.Context, id int64, from []string, to string) (bool, error)
	GetQuote(ctx context.Context, id int64) (Quote, error)
	ListQuotesForPR(ctx context.Context, orgID, prID int64) ([]Quote, error)
	ListQuotesForSupplier(ctx context.Context, supplierID int64) ([]Quote, error)
}

// TxRepository describes the operations of the atomic accept path and quote
// submission. Accepting one quote, rejecting its siblings, updating the
// requisition total, and appending the history entry all commit together.
type TxRepository interface {
	GetQuoteForUpdate(ctx context.Context, id int64) (Quote, error)
	InsertQuote(ctx context.Context, q *Quote) error
	UpdateQuoteStatus(ctx context.Context, id int64, from []string, to string) (bool, error)
	SiblingQuoteExists(ctx context.Context, prID, excludeID int64, status string) (bool, error)
	RejectSiblingQuotes(ctx context.Context, prID, acceptedID int64) (int64, error)
	UpdateRequestStatus(ctx context.Context, id int64, from []string, to string) (bool, error)
	SetRequisitionTotal(ctx context.Context, prID int64, total float64) error
	AppendRequisitionHistory(ctx context.Context, prID int64, e requisition.HistoryEntry) error
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

// CreateRequest persists a quote request and its item snapshot.
func (r *PGRepository) CreateRequest(ctx context.Context, req *QuoteRequest) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const insert = `
INSERT INTO quote_requests (pr_id, org_id, supplier_id, message, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, 'PENDING', now(), now())
RETURNING id, created_at, updated_at`
		err := tx.QueryRow(ctx, insert, req.PRID, req.OrgID, req.SupplierID, req.Message).
			Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
		if err != nil {
			return err
		}
		req.Status = RequestPending

		const insertItem = `
INSERT INTO quote_request_items (request_id, position, description, quantity, unit_price, total)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`
		for i := range req.Items {
			it := &req.Items[i]
			if err := tx.QueryRow(ctx, insertItem, req.ID, i, it.Description, it.Quantity, it.UnitPrice, it.Total).Scan(&it.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetRequest loads one quote request with its item snapshot.
func (r *PGRepository) GetRequest(ctx context.Context, id int64) (QuoteRequest, error) {
	const query = `
SELECT id, pr_id, org_id, supplier_id, COALESCE(message, ''), status, created_at, updated_at
FROM quote_requests WHERE id = $1`
	var req QuoteRequest
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&req.ID, &req.PRID, &req.OrgID, &req.SupplierID, &req.Message, &req.Status, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return QuoteRequest{}, shared.ErrNotFound
		}
		return QuoteRequest{}, err
	}
	if req.Items, err = loadRequestItems(ctx, r.pool, req.ID); err != nil {
		return QuoteRequest{}, err
	}
	return req, nil
}

// ListRequestsForSupplier returns the supplier's inbox, newest first.
func (r *PGRepository) ListRequestsForSupplier(ctx context.Context, supplierID int64) ([]QuoteRequest, error) {
	const query = `
SELECT id, pr_id, org_id, supplier_id, COALESCE(message, ''), status, created_at, updated_at
FROM quote_requests WHERE supplier_id = $1 ORDER BY created_at DESC`
	return r.listRequests(ctx, query, supplierID)
}

// ListRequestsForPR returns all solicitations raised for a requisition.
func (r *PGRepository) ListRequestsForPR(ctx context.Context, orgID, prID int64) ([]QuoteRequest, error) {
	const query = `
SELECT id, pr_id, org_id, supplier_id, COALESCE(message, ''), status, created_at, updated_at
FROM quote_requests WHERE org_id = $1 AND pr_id = $2 ORDER BY created_at DESC`
	return r.listRequests(ctx, query, orgID, prID)
}

func (r *PGRepository) listRequests(ctx context.Context, query string, args ...any) ([]QuoteRequest, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QuoteRequest
	for rows.Next() {
		var req QuoteRequest
		if err := rows.Scan(&req.ID, &req.PRID, &req.OrgID, &req.SupplierID, &req.Message, &req.Status, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// UpdateRequestStatus transitions a request if its status is in the allowed
// set.
func (r *PGRepository) UpdateRequestStatus(ctx context.Context, id int64, from []string, to string) (bool, error) {
	return updateRequestStatus(ctx, r.pool, id, from, to)
}

// GetQuote loads one quote.
func (r *PGRepository) GetQuote(ctx context.Context, id int64) (Quote, error) {
	return scanQuote(r.pool.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes q JOIN suppliers s ON s.id = q.supplier_id WHERE q.id = $1`, id))
}

// ListQuotesForPR returns all quotes submitted against a requisition.
func (r *PGRepository) ListQuotesForPR(ctx context.Context, orgID, prID int64) ([]Quote, error) {
	return r.listQuotes(ctx, `SELECT `+quoteColumns+` FROM quotes q JOIN suppliers s ON s.id = q.supplier_id
WHERE q.org_id = $1 AND q.pr_id = $2 ORDER BY q.created_at DESC`, orgID, prID)
}

// ListQuotesForSupplier returns the supplier's submitted quotes.
func (r *PGRepository) ListQuotesForSupplier(ctx context.Context, supplierID int64) ([]Quote, error) {
	return r.listQuotes(ctx, `SELECT `+quoteColumns+` FROM quotes q JOIN suppliers s ON s.id = q.supplier_id
WHERE q.supplier_id = $1 ORDER BY q.created_at DESC`, supplierID)
}

func (r *PGRepository) listQuotes(ctx context.Context, query string, args ...any) ([]Quote, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

type txRepo struct {
	q dbtx
}

// GetQuoteForUpdate loads and row-locks a quote.
func (t *txRepo) GetQuoteForUpdate(ctx context.Context, id int64) (Quote, error) {
	const query = `
SELECT q.id, q.quote_request_id, q.pr_id, q.org_id, q.supplier_id, '', q.amount,
COALESCE(q.delivery_estimate, ''), q.valid_until, COALESCE(q.notes, ''), COALESCE(q.document_key, ''),
q.status, q.created_at, q.updated_at
FROM quotes q WHERE q.id = $1 FOR UPDATE`
	return scanQuote(t.q.QueryRow(ctx, query, id))
}

// InsertQuote persists a new quote. The unique index on
// (quote_request_id, supplier_id) enforces one quote per supplier per
// request.
func (t *txRepo) InsertQuote(ctx context.Context, q *Quote) error {
	const query = `
INSERT INTO quotes (quote_request_id, pr_id, org_id, supplier_id, amount,
  delivery_estimate, valid_until, notes, document_key, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''), NULLIF($9, ''), 'SUBMITTED', now(), now())
RETURNING id, created_at, updated_at`
	err := t.q.QueryRow(ctx, query,
		q.QuoteRequestID, q.PRID, q.OrgID, q.SupplierID, q.Amount,
		q.DeliveryEstimate, q.ValidUntil, q.Notes, q.DocumentKey,
	).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateQuote
		}
		return err
	}
	q.Status = QuoteSubmitted
	return nil
}

// UpdateQuoteStatus transitions a quote if its status is in the allowed
// set.
func (t *txRepo) UpdateQuoteStatus(ctx context.Context, id int64, from []string, to string) (bool, error) {
	tag, err := t.q.Exec(ctx, `UPDATE quotes SET status = $1, updated_at = now() WHERE id = $2 AND status = ANY($3)`, to, id, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SiblingQuoteExists reports whether any other quote for the requisition is
// in the given status.
func (t *txRepo) SiblingQuoteExists(ctx context.Context, prID, excludeID int64, status string) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM quotes WHERE pr_id = $1 AND id <> $2 AND status = $3)`, prID, excludeID, status).Scan(&exists)
	return exists, err
}

// RejectSiblingQuotes forces every other live quote for the requisition to
// REJECTED and returns how many were rejected.
func (t *txRepo) RejectSiblingQuotes(ctx context.Context, prID, acceptedID int64) (int64, error) {
	const query = `
UPDATE quotes SET status = 'REJECTED', updated_at = now()
WHERE pr_id = $1 AND id <> $2 AND status IN ('SUBMITTED', 'ACCEPTED')`
	tag, err := t.q.Exec(ctx, query, prID, acceptedID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txRepo) UpdateRequestStatus(ctx context.Context, id int64, from []string, to string) (bool, error) {
	return updateRequestStatus(ctx, t.q, id, from, to)
}

// SetRequisitionTotal aligns the requisition total with the accepted quote.
func (t *txRepo) SetRequisitionTotal(ctx context.Context, prID int64, total float64) error {
	_, err := t.q.Exec(ctx, `UPDATE purchase_requisitions SET total_amount = $1, updated_at = now() WHERE id = $2`, total, prID)
	return err
}

// AppendRequisitionHistory appends the acceptance entry to the
// requisition's audit trail inside the same transaction.
func (t *txRepo) AppendRequisitionHistory(ctx context.Context, prID int64, e requisition.HistoryEntry) error {
	const query = `
INSERT INTO pr_history (pr_id, action, actor_id, actor_name, details, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := t.q.Exec(ctx, query, prID, e.Action, e.ActorID, e.ActorName, e.Details, e.At.UTC())
	return err
}

const quoteColumns = `q.id, q.quote_request_id, q.pr_id, q.org_id, q.supplier_id, s.name, q.amount,
COALESCE(q.delivery_estimate, ''), q.valid_until, COALESCE(q.notes, ''), COALESCE(q.document_key, ''),
q.status, q.created_at, q.updated_at`

func scanQuote(row pgx.Row) (Quote, error) {
	var q Quote
	err := row.Scan(
		&q.ID, &q.QuoteRequestID, &q.PRID, &q.OrgID, &q.SupplierID, &q.SupplierName, &q.Amount,
		&q.DeliveryEstimate, &q.ValidUntil, &q.Notes, &q.DocumentKey,
		&q.Status, &q.CreatedAt, &q.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Quote{}, shared.ErrNotFound
	}
	return q, err
}

func updateRequestStatus(ctx context.Context, q dbtx, id int64, from []string, to string) (bool, error) {
	tag, err := q.Exec(ctx, `UPDATE quote_requests SET status = $1, updated_at = now() WHERE id = $2 AND status = ANY($3)`, to, id, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func loadRequestItems(ctx context.Context, q dbtx, requestID int64) ([]RequestItem, error) {
	rows, err := q.Query(ctx, `SELECT id, description, quantity, unit_price, total FROM quote_request_items WHERE request_id = $1 ORDER BY position`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []RequestItem
	for rows.Next() {
		var it RequestItem
		if err := rows.Scan(&it.ID, &it.Description, &it.Quantity, &it.UnitPrice, &it.Total); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

var _ RepositoryPort = (*PGRepository)(nil)
var _ TxRepository = (*txRepo)(nil)
