package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/edvault/edvault-api/internal/models"
	"github.com/edvault/edvault-api/pkg/config"
	appErrors "github.com/edvault/edvault-api/pkg/errors"
)

type fakeUserStore struct {
	users map[string]*models.User
}

func (f *fakeUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserStore) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	if u, ok := f.users[id]; ok {
		u.LastLoginAt = &ts
	}
	return nil
}

func newAuthFixture(t *testing.T) (*AuthService, *fakeUserStore) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	users := &fakeUserStore{users: map[string]*models.User{
		"user-1": {
			ID:           "user-1",
			Email:        "viewer@example.com",
			FullName:     "Test Viewer",
			PasswordHash: string(hash),
			Role:         models.RoleStudent,
			Active:       true,
		},
	}}
	svc := NewAuthService(users, config.JWTConfig{
		Secret:     "jwt-secret",
		Expiration: time.Hour,
		Issuer:     "edvault",
	}, nil)
	return svc, users
}

func TestLoginIssuesValidToken(t *testing.T) {
	svc, users := newAuthFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "viewer@example.com",
		Password: "s3cret",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, "user-1", resp.User.ID)
	require.NotNil(t, users.users["user-1"].LastLoginAt)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "viewer@example.com",
		Password: "wrong",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestLoginUnknownEmail(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "nobody@example.com",
		Password: "s3cret",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestLoginInactiveAccount(t *testing.T) {
	svc, users := newAuthFixture(t)
	users.users["user-1"].Active = false

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "viewer@example.com",
		Password: "s3cret",
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInactiveAccount))
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, err := svc.ValidateToken("not.a.token")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	svc, users := newAuthFixture(t)

	other := NewAuthService(users, config.JWTConfig{
		Secret:     "different-secret",
		Expiration: time.Hour,
		Issuer:     "edvault",
	}, nil)
	resp, err := other.Login(context.Background(), models.LoginRequest{
		Email:    "viewer@example.com",
		Password: "s3cret",
	})
	require.NoError(t, err)

	_, err = svc.ValidateToken(resp.AccessToken)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}
