package usecases

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-secret"

func TestAuthUsecase_RegisterAndLogin(t *testing.T) {
	users := newFakeUsers()
	uc := NewAuthUsecase(users, testJWTSecret)
	ctx := context.Background()

	user, err := uc.Register(ctx, "shop", "s3cret")
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.NotEqual(t, "s3cret", user.PasswordHash)

	_, err = uc.Register(ctx, "shop", "other")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	tokenString, err := uc.Login(ctx, "shop", "s3cret")
	require.NoError(t, err)

	token, err := jwt.Parse(tokenString, func(*jwt.Token) (interface{}, error) {
		return []byte(testJWTSecret), nil
	})
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, float64(user.ID), claims["user_id"])
	assert.Equal(t, "user", claims["role"])
}

func TestAuthUsecase_LoginRejectsBadCredentials(t *testing.T) {
	uc := NewAuthUsecase(newFakeUsers(), testJWTSecret)
	ctx := context.Background()
	_, err := uc.Register(ctx, "shop", "s3cret")
	require.NoError(t, err)

	_, err = uc.Login(ctx, "shop", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = uc.Login(ctx, "nobody", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthUsecase_EnsureAdmin(t *testing.T) {
	users := newFakeUsers()
	uc := NewAuthUsecase(users, testJWTSecret)
	ctx := context.Background()

	require.NoError(t, uc.EnsureAdmin(ctx, "admin", ""))
	assert.Empty(t, users.byID)

	require.NoError(t, uc.EnsureAdmin(ctx, "admin", "pw"))
	require.NoError(t, uc.EnsureAdmin(ctx, "admin", "pw"))
	assert.Len(t, users.byID, 1)

	admin, err := users.GetByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", admin.Role)
}
