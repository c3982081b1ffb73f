package invoice

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

// ErrInvoiceExists indicates a quote already carries an invoice. The unique
// index on quotes is the authoritative guard; the service also checks first
// for a friendlier path.
var ErrInvoiceExists = errors.New("invoice: invoice already exists for quote")

// ErrQuoteNotAccepted indicates the backing quote left the accepted state
// before the invoice row could commit.
var ErrQuoteNotAccepted = errors.New("invoice: quote not accepted")

// Repository describes invoice persistence.
type Repository interface {
	Insert(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id int64) (Invoice, error)
	GetByQuote(ctx context.Context, quoteID int64) (Invoice, error)
	ListForOrg(ctx context.Context, orgID int64) ([]Invoice, error)
	ListForSupplier(ctx context.Context, supplierID int64) ([]Invoice, error)
	AdvanceStatus(ctx context.Context, id int64, from []string, to string) (bool, error)
	BulkMarkPaid(ctx context.Context, orgID int64, ids []int64) (int64, error)
	AppendRequisitionHistory(ctx context.Context, prID int64, e requisition.HistoryEntry) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const invoiceColumns = `i.id, i.quote_id, i.pr_id, i.org_id, i.supplier_id, s.name, i.invoice_number,
i.amount, i.document_key, i.file_name, i.content_type, i.size_bytes, i.status, i.created_at, i.updated_at`

// Insert persists a new invoice and flips the backing quote to
// INVOICE_UPLOADED in the same transaction. The unique index on quote_id
// enforces one invoice per quote; a quote that is no longer accepted rolls
// the whole insert back with ErrQuoteNotAccepted.
func (r *PGRepository) Insert(ctx context.Context, inv *Invoice) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const query = `
INSERT INTO invoices (quote_id, pr_id, org_id, supplier_id, invoice_number,
  amount, document_key, file_name, content_type, size_bytes, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'UPLOADED', now(), now())
RETURNING id, created_at, updated_at`
		err := tx.QueryRow(ctx, query,
			inv.QuoteID, inv.PRID, inv.OrgID, inv.SupplierID, inv.InvoiceNumber,
			inv.Amount, inv.DocumentKey, inv.FileName, inv.ContentType, inv.SizeBytes,
		).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrInvoiceExists
			}
			return err
		}
		tag, err := tx.Exec(ctx, `UPDATE quotes SET status = 'INVOICE_UPLOADED', updated_at = now() WHERE id = $1 AND status = 'ACCEPTED'`, inv.QuoteID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return ErrQuoteNotAccepted
		}
		inv.Status = StatusUploaded
		return nil
	})
}

// Get loads one invoice.
func (r *PGRepository) Get(ctx context.Context, id int64) (Invoice, error) {
	return scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices i JOIN suppliers s ON s.id = i.supplier_id WHERE i.id = $1`, id))
}

// GetByQuote loads the invoice attached to a quote, if any.
func (r *PGRepository) GetByQuote(ctx context.Context, quoteID int64) (Invoice, error) {
	return scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices i JOIN suppliers s ON s.id = i.supplier_id WHERE i.quote_id = $1`, quoteID))
}

// ListForOrg returns the organization's invoices, newest first.
func (r *PGRepository) ListForOrg(ctx context.Context, orgID int64) ([]Invoice, error) {
	return r.list(ctx, `SELECT `+invoiceColumns+` FROM invoices i JOIN suppliers s ON s.id = i.supplier_id
WHERE i.org_id = $1 ORDER BY i.created_at DESC`, orgID)
}

// ListForSupplier returns the supplier's own invoices, newest first.
func (r *PGRepository) ListForSupplier(ctx context.Context, supplierID int64) ([]Invoice, error) {
	return r.list(ctx, `SELECT `+invoiceColumns+` FROM invoices i JOIN suppliers s ON s.id = i.supplier_id
WHERE i.supplier_id = $1 ORDER BY i.created_at DESC`, supplierID)
}

func (r *PGRepository) list(ctx context.Context, query string, args ...any) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// AdvanceStatus transitions an invoice if its status is in the allowed set.
func (r *PGRepository) AdvanceStatus(ctx context.Context, id int64, from []string, to string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE invoices SET status = $1, updated_at = now() WHERE id = $2 AND status = ANY($3)`, to, id, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// BulkMarkPaid marks every listed invoice that is awaiting payment as PAID in
// one statement and returns how many rows changed.
func (r *PGRepository) BulkMarkPaid(ctx context.Context, orgID int64, ids []int64) (int64, error) {
	const query = `
UPDATE invoices SET status = 'PAID', updated_at = now()
WHERE org_id = $1 AND id = ANY($2) AND status = 'AWAITING_PAYMENT'`
	tag, err := r.pool.Exec(ctx, query, orgID, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// AppendRequisitionHistory records the upload on the requisition's audit
// trail. Callers treat failures as non-fatal.
func (r *PGRepository) AppendRequisitionHistory(ctx context.Context, prID int64, e requisition.HistoryEntry) error {
	const query = `
INSERT INTO pr_history (pr_id, action, actor_id, actor_name, details, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, prID, e.Action, e.ActorID, e.ActorName, e.Details, e.At.UTC())
	return err
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.ID, &inv.QuoteID, &inv.PRID, &inv.OrgID, &inv.SupplierID, &inv.SupplierName, &inv.InvoiceNumber,
		&inv.Amount, &inv.DocumentKey, &inv.FileName, &inv.ContentType, &inv.SizeBytes,
		&inv.Status, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, shared.ErrNotFound
	}
	return inv, err
}

var _ Repository = (*PGRepository)(nil)
