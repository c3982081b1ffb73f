package invitation

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procureflow/procureflow/internal/shared"
)

// ErrDuplicatePending indicates an open invitation already exists for the
// email within the organization.
var ErrDuplicatePending = errors.New("invitation: pending invite exists")

// Repository defines persistence operations for invitations.
type Repository interface {
	Create(ctx context.Context, inv Invitation) (int64, error)
	GetByToken(ctx context.Context, token string) (Invitation, error)
	MarkAccepted(ctx context.Context, id int64) (bool, error)
	Revoke(ctx context.Context, id, orgID int64) (bool, error)
	ListByOrg(ctx context.Context, orgID int64) ([]Invitation, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Create inserts a pending invitation. A partial unique index on
// (org_id, lower(email)) WHERE status = 'PENDING' backs the duplicate check.
func (r *PGRepository) Create(ctx context.Context, inv Invitation) (int64, error) {
	const query = `
INSERT INTO invitations (org_id, email, role, token, status, invited_by, expires_at, created_at)
VALUES ($1, lower($2), $3, $4, 'PENDING', $5, $6, now())
RETURNING id`

	var id int64
	err := r.pool.QueryRow(ctx, query,
		inv.OrgID, inv.Email, inv.Role, inv.Token, inv.InvitedBy, inv.ExpiresAt.UTC(),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicatePending
		}
		return 0, err
	}
	return id, nil
}

// GetByToken fetches an invitation by its redemption token.
func (r *PGRepository) GetByToken(ctx context.Context, token string) (Invitation, error) {
	const query = `
SELECT id, org_id, email, role, token, status, invited_by, expires_at, created_at, accepted_at
FROM invitations
WHERE token = $1`

	var inv Invitation
	err := r.pool.QueryRow(ctx, query, token).Scan(
		&inv.ID, &inv.OrgID, &inv.Email, &inv.Role, &inv.Token,
		&inv.Status, &inv.InvitedBy, &inv.ExpiresAt, &inv.CreatedAt, &inv.AcceptedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invitation{}, shared.ErrNotFound
		}
		return Invitation{}, err
	}
	return inv, nil
}

// MarkAccepted flips a pending invitation to accepted. The conditional
// update makes redemption single-use even under concurrent accepts.
func (r *PGRepository) MarkAccepted(ctx context.Context, id int64) (bool, error) {
	const query = `
UPDATE invitations
SET status = 'ACCEPTED', accepted_at = now()
WHERE id = $1 AND status = 'PENDING'`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Revoke cancels a pending invitation.
func (r *PGRepository) Revoke(ctx context.Context, id, orgID int64) (bool, error) {
	const query = `
UPDATE invitations
SET status = 'REVOKED'
WHERE id = $1 AND org_id = $2 AND status = 'PENDING'`

	tag, err := r.pool.Exec(ctx, query, id, orgID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListByOrg returns all invitations for an organization, newest first.
func (r *PGRepository) ListByOrg(ctx context.Context, orgID int64) ([]Invitation, error) {
	const query = `
SELECT id, org_id, email, role, token, status, invited_by, expires_at, created_at, accepted_at
FROM invitations
WHERE org_id = $1
ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Invitation
	for rows.Next() {
		var inv Invitation
		if err := rows.Scan(
			&inv.ID, &inv.OrgID, &inv.Email, &inv.Role, &inv.Token,
			&inv.Status, &inv.InvitedBy, &inv.ExpiresAt, &inv.CreatedAt, &inv.AcceptedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
