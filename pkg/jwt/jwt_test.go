package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/sellerchat/pkg/errcode"
)

const secret = "test-secret"

func TestGenerateAndParse(t *testing.T) {
	token, err := GenerateToken("sl__42", 5, []string{"seller"}, secret, 1)
	require.NoError(t, err)

	claims, err := ParseToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, "sl__42", claims.UserId)
	assert.Equal(t, 5, claims.PlatformId)
	assert.True(t, claims.HasAnyRole("buyer", "seller"))
	assert.False(t, claims.HasAnyRole("admin"))

	_, err = ParseToken(token, "other-secret")
	assert.ErrorIs(t, err, errcode.ErrTokenInvalid)

	_, err = ValidateToken(token, secret, "sl__43", 5)
	assert.ErrorIs(t, err, errcode.ErrTokenMismatch)
}

func TestParseExpired(t *testing.T) {
	claims := Claims{
		UserId: "by__1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = ParseToken(token, secret)
	assert.ErrorIs(t, err, errcode.ErrTokenExpired)
}

func TestParseExternalToken(t *testing.T) {
	sign := func(c ExternalClaims) string {
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}

	claims, err := ParseExternalToken(sign(ExternalClaims{UserId: 42, Role: "seller"}), secret, "buyer", 5)
	require.NoError(t, err)
	assert.Equal(t, "sl__42", claims.UserId)
	assert.Equal(t, []string{"seller"}, claims.Roles)
	assert.Equal(t, 5, claims.PlatformId)

	claims, err = ParseExternalToken(sign(ExternalClaims{UserId: 7}), secret, "buyer", 5)
	require.NoError(t, err)
	assert.Equal(t, "by__7", claims.UserId)

	_, err = ParseExternalToken(sign(ExternalClaims{UserId: 7, Role: "guest"}), secret, "buyer", 5)
	assert.ErrorIs(t, err, errcode.ErrTokenInvalid)
}
