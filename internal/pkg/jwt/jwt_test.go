package jwt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessToken_RoundTrip(t *testing.T) {
	token, err := GenerateAccessToken(7, 12, "alice", "member", "s3cret", 15)
	require.NoError(t, err)

	claims, err := ValidateAccessToken(token, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, uint(12), claims.MemberID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "member", claims.Role)
	assert.Equal(t, "7", claims.Subject)
}

func TestAccessToken_WrongSecret(t *testing.T) {
	token, err := GenerateAccessToken(1, 0, "bob", "staff", "one", 15)
	require.NoError(t, err)

	_, err = ValidateAccessToken(token, "two")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestAccessToken_Expired(t *testing.T) {
	token, err := GenerateAccessToken(1, 0, "bob", "staff", "k", -1)
	require.NoError(t, err)

	_, err = ValidateAccessToken(token, "k")
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestRefreshToken_RoundTrip(t *testing.T) {
	token, err := GenerateRefreshToken(3, "tok-1", "r", 7)
	require.NoError(t, err)

	claims, err := ValidateRefreshToken(token, "r")
	require.NoError(t, err)
	assert.Equal(t, uint(3), claims.UserID)
	assert.Equal(t, "tok-1", claims.TokenID)

	_, err = ValidateRefreshToken("not-a-token", "r")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
