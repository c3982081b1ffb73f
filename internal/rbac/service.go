package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procureflow/procureflow/internal/shared"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("rbac: not found")

// Service resolves caller identity and role from the database.
type Service struct {
	pool *pgxpool.Pool
}

// NewService constructs a Service backed by the provided pool.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// ResolveActor loads the caller's profile and role into an Actor. Every
// authenticated request resolves its actor exactly once, in middleware.
func (s *Service) ResolveActor(ctx context.Context, userID int64) (shared.Actor, error) {
	const query = `SELECT p.user_id, p.display_name, p.org_id, COALESCE(r.role, 'EMPLOYEE')
FROM profiles p
LEFT JOIN user_roles r ON r.user_id = p.user_id
WHERE p.user_id = $1`
	var actor shared.Actor
	err := s.pool.QueryRow(ctx, query, userID).Scan(&actor.UserID, &actor.DisplayName, &actor.OrgID, &actor.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.Actor{}, ErrNotFound
		}
		return shared.Actor{}, err
	}
	return actor, nil
}

// AssignRole assigns a role to the given user, replacing any previous one.
func (s *Service) AssignRole(ctx context.Context, userID int64, role Role) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO user_roles (user_id, role) VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE SET role = EXCLUDED.role`, userID, string(role))
	return err
}

// RemoveRole removes a role from a user.
func (s *Service) RemoveRole(ctx context.Context, userID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID)
	return err
}
