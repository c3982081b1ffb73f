package messaging

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procureflow/procureflow/internal/platform/db"
)

// Repository describes message persistence.
type Repository interface {
	Insert(ctx context.Context, m *Message) error
	ListForPR(ctx context.Context, orgID, prID int64) ([]Message, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Insert persists a message and its attachments together.
func (r *PGRepository) Insert(ctx context.Context, m *Message) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const insert = `
INSERT INTO pr_messages (pr_id, org_id, author_id, author_name, body, is_system, created_at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, now())
RETURNING id, created_at`
		err := tx.QueryRow(ctx, insert, m.PRID, m.OrgID, m.AuthorID, m.AuthorName, m.Body, m.System).
			Scan(&m.ID, &m.CreatedAt)
		if err != nil {
			return err
		}

		const insertAttachment = `
INSERT INTO pr_message_attachments (message_id, document_key, file_name, content_type)
VALUES ($1, $2, $3, NULLIF($4, ''))
RETURNING id`
		for i := range m.Attachments {
			a := &m.Attachments[i]
			a.MessageID = m.ID
			if err := tx.QueryRow(ctx, insertAttachment, m.ID, a.DocumentKey, a.FileName, a.ContentType).Scan(&a.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListForPR returns the thread oldest first, attachments included.
func (r *PGRepository) ListForPR(ctx context.Context, orgID, prID int64) ([]Message, error) {
	const query = `
SELECT id, pr_id, org_id, author_id, COALESCE(author_name, ''), body, is_system, created_at
FROM pr_messages WHERE org_id = $1 AND pr_id = $2 ORDER BY created_at, id`
	rows, err := r.pool.Query(ctx, query, orgID, prID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	byID := make(map[int64]int)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.PRID, &m.OrgID, &m.AuthorID, &m.AuthorName, &m.Body, &m.System, &m.CreatedAt); err != nil {
			return nil, err
		}
		byID[m.ID] = len(out)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	const attachments = `
SELECT a.id, a.message_id, a.document_key, a.file_name, COALESCE(a.content_type, '')
FROM pr_message_attachments a
JOIN pr_messages m ON m.id = a.message_id
WHERE m.org_id = $1 AND m.pr_id = $2 ORDER BY a.id`
	arows, err := r.pool.Query(ctx, attachments, orgID, prID)
	if err != nil {
		return nil, err
	}
	defer arows.Close()
	for arows.Next() {
		var a Attachment
		if err := arows.Scan(&a.ID, &a.MessageID, &a.DocumentKey, &a.FileName, &a.ContentType); err != nil {
			return nil, err
		}
		if idx, ok := byID[a.MessageID]; ok {
			out[idx].Attachments = append(out[idx].Attachments, a)
		}
	}
	return out, arows.Err()
}

var _ Repository = (*PGRepository)(nil)
