package user

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mensalize/billing-api/internal/types"
)

// MockUserRepo is a mock implementation of Repository.
type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) Create(ctx context.Context, params types.CreateUserParams, passwordHash string) (*types.User, error) {
	args := m.Called(ctx, params, passwordHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.User), args.Error(1)
}

func (m *MockUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*types.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.User), args.Error(1)
}

func (m *MockUserRepo) GetByEmail(ctx context.Context, email string) (*types.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.User), args.Error(1)
}

func (m *MockUserRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepo) List(ctx context.Context) ([]*types.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.User), args.Error(1)
}

func (m *MockUserRepo) Update(ctx context.Context, id uuid.UUID, params types.UpdateUserParams) (*types.User, error) {
	args := m.Called(ctx, id, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.User), args.Error(1)
}

func (m *MockUserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func TestRegisterHashesPassword(t *testing.T) {
	repo := new(MockUserRepo)
	svc := NewService(repo, slog.Default())

	params := types.CreateUserParams{
		Name:     "Maria Silva",
		Email:    "maria@example.com",
		Password: "s3cret-password",
	}

	var storedHash string
	repo.On("Create", mock.Anything, params, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { storedHash = args.Get(2).(string) }).
		Return(&types.User{ID: uuid.New(), Name: params.Name, Email: params.Email, Role: types.RoleSubscriber}, nil)

	u, err := svc.Register(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, params.Email, u.Email)

	// The plaintext never reaches storage; the stored hash verifies.
	assert.NotEqual(t, params.Password, storedHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(params.Password)))
}

func TestRegisterRejectsUnknownRole(t *testing.T) {
	repo := new(MockUserRepo)
	svc := NewService(repo, slog.Default())

	_, err := svc.Register(context.Background(), types.CreateUserParams{
		Name:     "Maria Silva",
		Email:    "maria@example.com",
		Password: "s3cret-password",
		Role:     "SUPERUSER",
	})
	assert.ErrorIs(t, err, types.ErrBadRequest)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateRejectsUnknownRole(t *testing.T) {
	repo := new(MockUserRepo)
	svc := NewService(repo, slog.Default())

	bad := types.UserRole("SUPERUSER")
	_, err := svc.Update(context.Background(), uuid.New(), types.UpdateUserParams{Role: &bad})
	assert.ErrorIs(t, err, types.ErrBadRequest)
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}
