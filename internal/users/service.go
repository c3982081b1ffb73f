package users

import (
	"context"
	"strings"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	GetProfile(ctx context.Context, userID int64) (Profile, error)
	UpsertProfile(ctx context.Context, p Profile) error
	CountHODs(ctx context.Context, orgID int64) (int, error)
}

// Service wraps profile business rules.
type Service struct {
	repo RepositoryPort
}

// NewService constructs a new Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// GetProfile fetches a profile by user ID.
func (s *Service) GetProfile(ctx context.Context, userID int64) (Profile, error) {
	return s.repo.GetProfile(ctx, userID)
}

// SaveProfile validates and persists a profile.
func (s *Service) SaveProfile(ctx context.Context, p Profile) error {
	if p.UserID == 0 || strings.TrimSpace(p.DisplayName) == "" {
		return ErrValidation
	}
	return s.repo.UpsertProfile(ctx, p)
}

// OrgHasHOD reports whether the organization currently has at least one
// head of department.
func (s *Service) OrgHasHOD(ctx context.Context, orgID int64) (bool, error) {
	count, err := s.repo.CountHODs(ctx, orgID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
