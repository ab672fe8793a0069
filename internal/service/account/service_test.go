package account

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	// Minimum cost keeps the bcrypt work factor cheap in tests.
	svc, err := NewService(NewMemoryRepository(), 4, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterRequest{
		Username:  "Alice",
		Email:     "alice@example.com",
		FirstName: "Alice",
		LastName:  "Liddell",
		Password:  "wonderland8",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice", user.Username, "usernames are normalized to lowercase")
	assert.NotEqual(t, "wonderland8", user.PasswordHash)

	got, err := svc.Authenticate(ctx, "ALICE", "wonderland8")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{Username: "bob", Password: "password1"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterRequest{Username: "Bob", Password: "password2"})
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{Username: "  ", Password: "password1"})
	assert.ErrorIs(t, err, ErrUsernameRequired)

	_, err = svc.Register(ctx, RegisterRequest{Username: "carol", Password: "short"})
	assert.ErrorIs(t, err, ErrPasswordTooShort)
}

func TestAuthenticateFailures(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{Username: "dave", Password: "password1"})
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "dave", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody", "password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
