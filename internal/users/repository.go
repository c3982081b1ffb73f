package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for profiles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetProfile returns the profile for a user.
func (r *Repository) GetProfile(ctx context.Context, userID int64) (Profile, error) {
	const query = `SELECT p.user_id, u.email, p.display_name, p.org_id, p.department
FROM profiles p
JOIN users u ON u.id = p.user_id
WHERE p.user_id = $1`
	var p Profile
	err := r.pool.QueryRow(ctx, query, userID).Scan(&p.UserID, &p.Email, &p.DisplayName, &p.OrgID, &p.Department)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, err
	}
	return p, nil
}

// UpsertProfile creates or updates a profile.
func (r *Repository) UpsertProfile(ctx context.Context, p Profile) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO profiles (user_id, display_name, org_id, department)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO UPDATE SET display_name = EXCLUDED.display_name, org_id = EXCLUDED.org_id, department = EXCLUDED.department`,
		p.UserID, p.DisplayName, p.OrgID, p.Department)
	return err
}

// CountHODs returns the number of users holding the HOD role in the
// organization. Re-queried on every requisition creation so a newly added or
// removed HOD takes effect immediately.
func (r *Repository) CountHODs(ctx context.Context, orgID int64) (int, error) {
	const query = `SELECT COUNT(*)
FROM user_roles r
JOIN profiles p ON p.user_id = r.user_id
WHERE p.org_id = $1 AND r.role = 'HOD'`
	var count int
	if err := r.pool.QueryRow(ctx, query, orgID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
