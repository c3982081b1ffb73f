package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/procureflow/procureflow/internal/shared"
)

type fakeRepo struct {
	users    map[string]*User
	nextID   int64
	sessions map[string]int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: make(map[string]*User), nextID: 1, sessions: make(map[string]int64)}
}

func (f *fakeRepo) addUser(email, password string, active bool) *User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	user := &User{ID: f.nextID, Email: email, PasswordHash: string(hash), IsActive: active}
	f.nextID++
	f.users[email] = user
	return user
}

func (f *fakeRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	user, ok := f.users[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

func (f *fakeRepo) CreateUser(ctx context.Context, email, passwordHash string) (int64, error) {
	if _, ok := f.users[email]; ok {
		return 0, ErrEmailTaken
	}
	user := &User{ID: f.nextID, Email: email, PasswordHash: passwordHash, IsActive: true}
	f.nextID++
	f.users[email] = user
	return user.ID, nil
}

func (f *fakeRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	f.sessions[id] = userID
	return nil
}

func (f *fakeRepo) DeleteSession(ctx context.Context, id string) error {
	delete(f.sessions, id)
	return nil
}

func (f *fakeRepo) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func TestAuthenticateSuccess(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser("hod@example.com", "correct-horse", true)
	svc := NewService(repo)

	user, err := svc.Authenticate(context.Background(), "hod@example.com", "correct-horse")
	require.NoError(t, err)
	require.Equal(t, "hod@example.com", user.Email)
}

func TestAuthenticateWrongPassword(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser("hod@example.com", "correct-horse", true)
	svc := NewService(repo)

	_, err := svc.Authenticate(context.Background(), "hod@example.com", "battery-staple")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateInactiveUser(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser("gone@example.com", "correct-horse", false)
	svc := NewService(repo)

	_, err := svc.Authenticate(context.Background(), "gone@example.com", "correct-horse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateUnknownEmail(t *testing.T) {
	svc := NewService(newFakeRepo())
	_, err := svc.Authenticate(context.Background(), "nobody@example.com", "whatever1")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestRegisterUser(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	id, err := svc.RegisterUser(context.Background(), "New.Supplier@Example.com ", "long-enough")
	require.NoError(t, err)
	require.NotZero(t, id)

	// Stored lowercase, logins are case-insensitive at the repository.
	user, err := repo.FindByEmail(context.Background(), "new.supplier@example.com")
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("long-enough")))
}

func TestRegisterUserShortPassword(t *testing.T) {
	svc := NewService(newFakeRepo())
	_, err := svc.RegisterUser(context.Background(), "x@example.com", "short")
	require.Error(t, err)
	var safe *shared.SafeError
	require.ErrorAs(t, err, &safe)
}

func TestRegisterUserDuplicateEmail(t *testing.T) {
	repo := newFakeRepo()
	repo.addUser("taken@example.com", "correct-horse", true)
	svc := NewService(repo)

	_, err := svc.RegisterUser(context.Background(), "taken@example.com", "long-enough")
	require.Error(t, err)
	require.Equal(t, "This email is already registered", shared.UserSafeMessage(err))
}
