package user

import (
	"context"
	"testing"
	"time"

	"gamezone/internal/middleware"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type memRepository struct {
	users    map[string]*User
	detached map[string]int64
}

func newMemRepository() *memRepository {
	return &memRepository{users: map[string]*User{}, detached: map[string]int64{}}
}

func (m *memRepository) GetByID(_ context.Context, id string) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memRepository) GetByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepository) Create(_ context.Context, u *User) error {
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memRepository) DeleteDetachingSessions(_ context.Context, u *User) (int64, error) {
	if _, ok := m.users[u.ID]; !ok {
		return 0, ErrNotFound
	}
	delete(m.users, u.ID)
	return m.detached[u.ID], nil
}

const testSecret = "test-secret"

func newTestService(repo Repository, clock clockwork.Clock) Service {
	return NewService(repo, nil, zap.NewNop(), Options{
		JWTSecret:  testSecret,
		JWTTTL:     time.Hour,
		BcryptCost: bcrypt.MinCost,
		Clock:      clock,
	})
}

func TestCreateUserAndLogin(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Now())
	svc := newTestService(newMemRepository(), clock)
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, CreateUserRequest{
		Email: " Ana@Example.com ", Name: "Ana", Role: RoleAssistant, Password: "correct-horse",
	})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", u.Email)
	assert.NotEqual(t, "correct-horse", u.PasswordHash)

	_, err = svc.Login(ctx, "ana@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "ghost@example.com", "correct-horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	res, err := svc.Login(ctx, "ANA@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(time.Hour).Unix(), res.ExpiresAt.Unix())

	claims, err := middleware.ParseToken(testSecret, res.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.Subject)
	assert.Equal(t, string(RoleAssistant), claims.Role)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	svc := newTestService(newMemRepository(), clockwork.NewFakeClock())
	ctx := context.Background()
	req := CreateUserRequest{Email: "dup@example.com", Name: "A", Role: RoleVisitor, Password: "password1"}

	_, err := svc.CreateUser(ctx, req)
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, req)
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestDeleteUserReportsDetachedSessions(t *testing.T) {
	repo := newMemRepository()
	svc := newTestService(repo, clockwork.NewFakeClock())
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, CreateUserRequest{Email: "v@example.com", Name: "V", Role: RoleVisitor, Password: "password1"})
	require.NoError(t, err)
	repo.detached[u.ID] = 2

	res, err := svc.DeleteUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.DetachedSessions)

	_, err = svc.GetUser(ctx, u.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.DeleteUser(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
}
