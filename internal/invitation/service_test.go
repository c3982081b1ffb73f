package invitation

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/procureflow/procureflow/internal/rbac"
	"github.com/procureflow/procureflow/internal/shared"
	"github.com/procureflow/procureflow/internal/users"
)

type fakeRepo struct {
	invites map[int64]*Invitation
	nextID  int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{invites: make(map[int64]*Invitation), nextID: 1}
}

func (f *fakeRepo) Create(ctx context.Context, inv Invitation) (int64, error) {
	for _, existing := range f.invites {
		if existing.OrgID == inv.OrgID && existing.Email == inv.Email && existing.Status == StatusPending {
			return 0, ErrDuplicatePending
		}
	}
	inv.ID = f.nextID
	inv.CreatedAt = time.Now()
	f.nextID++
	f.invites[inv.ID] = &inv
	return inv.ID, nil
}

func (f *fakeRepo) GetByToken(ctx context.Context, token string) (Invitation, error) {
	for _, inv := range f.invites {
		if inv.Token == token {
			return *inv, nil
		}
	}
	return Invitation{}, shared.ErrNotFound
}

func (f *fakeRepo) MarkAccepted(ctx context.Context, id int64) (bool, error) {
	inv, ok := f.invites[id]
	if !ok || inv.Status != StatusPending {
		return false, nil
	}
	now := time.Now()
	inv.Status = StatusAccepted
	inv.AcceptedAt = &now
	return true, nil
}

func (f *fakeRepo) Revoke(ctx context.Context, id, orgID int64) (bool, error) {
	inv, ok := f.invites[id]
	if !ok || inv.OrgID != orgID || inv.Status != StatusPending {
		return false, nil
	}
	inv.Status = StatusRevoked
	return true, nil
}

func (f *fakeRepo) ListByOrg(ctx context.Context, orgID int64) ([]Invitation, error) {
	var out []Invitation
	for _, inv := range f.invites {
		if inv.OrgID == orgID {
			out = append(out, *inv)
		}
	}
	return out, nil
}

type fakeRegistrar struct {
	nextID  int64
	created map[string]int64
}

func (f *fakeRegistrar) RegisterUser(ctx context.Context, email, password string) (int64, error) {
	if f.created == nil {
		f.created = make(map[string]int64)
	}
	f.nextID++
	f.created[email] = f.nextID
	return f.nextID, nil
}

type fakeProfiles struct {
	saved []users.Profile
}

func (f *fakeProfiles) SaveProfile(ctx context.Context, p users.Profile) error {
	f.saved = append(f.saved, p)
	return nil
}

type fakeRoles struct {
	assigned map[int64]rbac.Role
}

func (f *fakeRoles) AssignRole(ctx context.Context, userID int64, role rbac.Role) error {
	if f.assigned == nil {
		f.assigned = make(map[int64]rbac.Role)
	}
	f.assigned[userID] = role
	return nil
}

type fakeMailer struct {
	sent []string
}

func (f *fakeMailer) SendInvitation(ctx context.Context, email, token, role string, expiresAt time.Time) error {
	f.sent = append(f.sent, email)
	return nil
}

func newTestService(repo *fakeRepo, mailer Mailer) (*Service, *fakeRegistrar, *fakeProfiles, *fakeRoles) {
	registrar := &fakeRegistrar{}
	profiles := &fakeProfiles{}
	roles := &fakeRoles{}
	svc := NewService(repo, registrar, profiles, roles, mailer, slog.Default())
	return svc, registrar, profiles, roles
}

func financeActor() shared.Actor {
	return shared.Actor{UserID: 10, DisplayName: "Fin Lead", Role: "FINANCE", OrgID: 1}
}

func TestInviteIssuesTokenAndMails(t *testing.T) {
	repo := newFakeRepo()
	mailer := &fakeMailer{}
	svc, _, _, _ := newTestService(repo, mailer)

	inv, err := svc.Invite(context.Background(), financeActor(), "New.HOD@Example.com", "hod")
	require.NoError(t, err)
	require.Equal(t, "new.hod@example.com", inv.Email)
	require.Equal(t, "HOD", inv.Role)
	require.NotEmpty(t, inv.Token)
	require.Equal(t, StatusPending, inv.Status)
	require.WithinDuration(t, time.Now().Add(DefaultTTL), inv.ExpiresAt, time.Minute)
	require.Equal(t, []string{"new.hod@example.com"}, mailer.sent)
}

func TestInviteRequiresCapability(t *testing.T) {
	svc, _, _, _ := newTestService(newFakeRepo(), nil)
	employee := shared.Actor{UserID: 3, Role: "EMPLOYEE", OrgID: 1}

	_, err := svc.Invite(context.Background(), employee, "x@example.com", "EMPLOYEE")
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestInviteRejectsUnknownRole(t *testing.T) {
	svc, _, _, _ := newTestService(newFakeRepo(), nil)
	_, err := svc.Invite(context.Background(), financeActor(), "x@example.com", "OVERLORD")
	require.Error(t, err)
	require.Equal(t, "Unknown role for invitation", shared.UserSafeMessage(err))
}

func TestInviteRejectsDuplicatePending(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _, _ := newTestService(repo, nil)
	ctx := context.Background()

	_, err := svc.Invite(ctx, financeActor(), "dup@example.com", "EMPLOYEE")
	require.NoError(t, err)
	_, err = svc.Invite(ctx, financeActor(), "dup@example.com", "EMPLOYEE")
	require.Error(t, err)
	require.Equal(t, "An invitation for this email is already pending", shared.UserSafeMessage(err))
}

func TestAcceptCreatesAccountProfileAndRole(t *testing.T) {
	repo := newFakeRepo()
	svc, registrar, profiles, roles := newTestService(repo, nil)
	ctx := context.Background()

	inv, err := svc.Invite(ctx, financeActor(), "sup@example.com", "SUPPLIER")
	require.NoError(t, err)

	userID, err := svc.Accept(ctx, AcceptRequest{
		Token:       inv.Token,
		Password:    "long-enough",
		DisplayName: "Acme Sales",
		Department:  "",
	})
	require.NoError(t, err)
	require.Equal(t, registrar.created["sup@example.com"], userID)
	require.Len(t, profiles.saved, 1)
	require.Equal(t, int64(1), profiles.saved[0].OrgID)
	require.Equal(t, rbac.RoleSupplier, roles.assigned[userID])

	stored, err := repo.GetByToken(ctx, inv.Token)
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, stored.Status)
}

func TestAcceptIsSingleUse(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _, _ := newTestService(repo, nil)
	ctx := context.Background()

	inv, err := svc.Invite(ctx, financeActor(), "once@example.com", "EMPLOYEE")
	require.NoError(t, err)

	_, err = svc.Accept(ctx, AcceptRequest{Token: inv.Token, Password: "long-enough", DisplayName: "First"})
	require.NoError(t, err)
	_, err = svc.Accept(ctx, AcceptRequest{Token: inv.Token, Password: "long-enough", DisplayName: "Second"})
	require.Error(t, err)
	require.Equal(t, "This invitation has already been used", shared.UserSafeMessage(err))
}

func TestAcceptExpiredInvitation(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _, _ := newTestService(repo, nil)
	ctx := context.Background()

	inv, err := svc.Invite(ctx, financeActor(), "late@example.com", "EMPLOYEE")
	require.NoError(t, err)
	repo.invites[inv.ID].ExpiresAt = time.Now().Add(-time.Hour)

	_, err = svc.Accept(ctx, AcceptRequest{Token: inv.Token, Password: "long-enough", DisplayName: "Late"})
	require.Error(t, err)
	require.Equal(t, "This invitation has expired", shared.UserSafeMessage(err))
}

func TestRevokePendingInvitation(t *testing.T) {
	repo := newFakeRepo()
	svc, _, _, _ := newTestService(repo, nil)
	ctx := context.Background()

	inv, err := svc.Invite(ctx, financeActor(), "gone@example.com", "EMPLOYEE")
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, financeActor(), inv.ID))

	_, err = svc.Accept(ctx, AcceptRequest{Token: inv.Token, Password: "long-enough", DisplayName: "Gone"})
	require.Error(t, err)
}
