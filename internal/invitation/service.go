package invitation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/procureflow/procureflow/internal/rbac"
	"github.com/procureflow/procureflow/internal/shared"
	"github.com/procureflow/procureflow/internal/users"
)

// UserRegistrar creates the account when an invitation is redeemed.
type UserRegistrar interface {
	RegisterUser(ctx context.Context, email, password string) (int64, error)
}

// ProfileWriter persists the new user's profile.
type ProfileWriter interface {
	SaveProfile(ctx context.Context, p users.Profile) error
}

// RoleAssigner grants the invited role.
type RoleAssigner interface {
	AssignRole(ctx context.Context, userID int64, role rbac.Role) error
}

// Mailer delivers the invitation email. Delivery happens off the request
// path; a nil Mailer disables it.
type Mailer interface {
	SendInvitation(ctx context.Context, email, token, role string, expiresAt time.Time) error
}

var invitableRoles = map[string]struct{}{
	string(rbac.RoleEmployee): {},
	string(rbac.RoleHOD):      {},
	string(rbac.RoleFinance):  {},
	string(rbac.RoleSupplier): {},
}

// Service implements invitation issuance and redemption.
type Service struct {
	repo      Repository
	registrar UserRegistrar
	profiles  ProfileWriter
	roles     RoleAssigner
	mailer    Mailer
	logger    *slog.Logger
}

// NewService constructs a Service instance.
func NewService(repo Repository, registrar UserRegistrar, profiles ProfileWriter, roles RoleAssigner, mailer Mailer, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		registrar: registrar,
		profiles:  profiles,
		roles:     roles,
		mailer:    mailer,
		logger:    logger,
	}
}

// Invite issues a single-use invitation for the actor's organization.
func (s *Service) Invite(ctx context.Context, actor shared.Actor, email, role string) (Invitation, error) {
	if !rbac.Can(rbac.Role(actor.Role), rbac.CapInvitationManage) {
		return Invitation{}, shared.ErrForbidden
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return Invitation{}, shared.NewSafeError("A valid email address is required")
	}
	role = strings.ToUpper(strings.TrimSpace(role))
	if _, ok := invitableRoles[role]; !ok {
		return Invitation{}, shared.NewSafeError("Unknown role for invitation")
	}

	inv := Invitation{
		OrgID:     actor.OrgID,
		Email:     email,
		Role:      role,
		Token:     uuid.NewString(),
		Status:    StatusPending,
		InvitedBy: actor.UserID,
		ExpiresAt: time.Now().Add(DefaultTTL),
	}
	id, err := s.repo.Create(ctx, inv)
	if err != nil {
		if err == ErrDuplicatePending {
			return Invitation{}, shared.NewSafeError("An invitation for this email is already pending")
		}
		return Invitation{}, err
	}
	inv.ID = id

	if s.mailer != nil {
		if err := s.mailer.SendInvitation(ctx, inv.Email, inv.Token, inv.Role, inv.ExpiresAt); err != nil {
			// The invite stays redeemable; the token can be resent.
			s.logger.Warn("send invitation email", slog.Any("error", err), slog.String("email", inv.Email))
		}
	}
	return inv, nil
}

// AcceptRequest carries the fields needed to redeem an invitation.
type AcceptRequest struct {
	Token       string
	Password    string
	DisplayName string
	Department  string
}

// Accept redeems a pending invitation: creates the account, writes the
// profile, and grants the invited role. Redemption is single-use; the
// conditional status flip loses cleanly if two accepts race.
func (s *Service) Accept(ctx context.Context, req AcceptRequest) (int64, error) {
	if strings.TrimSpace(req.DisplayName) == "" {
		return 0, shared.NewSafeError("Display name is required")
	}
	inv, err := s.repo.GetByToken(ctx, strings.TrimSpace(req.Token))
	if err != nil {
		if err == shared.ErrNotFound {
			return 0, shared.NewSafeError("This invitation link is not valid")
		}
		return 0, err
	}
	if inv.Status != StatusPending {
		return 0, shared.NewSafeError("This invitation has already been used")
	}
	if inv.Expired(time.Now()) {
		return 0, shared.NewSafeError("This invitation has expired")
	}

	userID, err := s.registrar.RegisterUser(ctx, inv.Email, req.Password)
	if err != nil {
		return 0, err
	}
	profile := users.Profile{
		UserID:      userID,
		Email:       inv.Email,
		DisplayName: strings.TrimSpace(req.DisplayName),
		OrgID:       inv.OrgID,
		Department:  strings.TrimSpace(req.Department),
	}
	if err := s.profiles.SaveProfile(ctx, profile); err != nil {
		return 0, err
	}
	if err := s.roles.AssignRole(ctx, userID, rbac.Role(inv.Role)); err != nil {
		return 0, err
	}

	used, err := s.repo.MarkAccepted(ctx, inv.ID)
	if err != nil {
		return 0, err
	}
	if !used {
		return 0, shared.NewSafeError("This invitation has already been used")
	}
	return userID, nil
}

// Revoke cancels a pending invitation in the actor's organization.
func (s *Service) Revoke(ctx context.Context, actor shared.Actor, id int64) error {
	if !rbac.Can(rbac.Role(actor.Role), rbac.CapInvitationManage) {
		return shared.ErrForbidden
	}
	ok, err := s.repo.Revoke(ctx, id, actor.OrgID)
	if err != nil {
		return err
	}
	if !ok {
		return shared.NewSafeError("No pending invitation to revoke")
	}
	return nil
}

// List returns all invitations for the actor's organization.
func (s *Service) List(ctx context.Context, actor shared.Actor) ([]Invitation, error) {
	if !rbac.Can(rbac.Role(actor.Role), rbac.CapInvitationManage) {
		return nil, shared.ErrForbidden
	}
	return s.repo.ListByOrg(ctx, actor.OrgID)
}
