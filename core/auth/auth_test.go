package auth

import (
	"errors"
	"testing"
	"time"

	"gridloop/core/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("Abcdefg1!")
	require.NoError(t, err)
	assert.NotEqual(t, "Abcdefg1!", hash)

	assert.True(t, VerifyPassword("Abcdefg1!", hash))
	assert.False(t, VerifyPassword("wrong", hash))
}

func TestTokenRoundTrip(t *testing.T) {
	a := NewAuthenticator("test-secret", time.Hour)

	token, err := a.IssueToken("user-1", "alice")
	require.NoError(t, err)

	claims, err := a.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestTokenExpired(t *testing.T) {
	a := NewAuthenticator("test-secret", -time.Minute)

	token, err := a.IssueToken("user-1", "alice")
	require.NoError(t, err)

	_, err = a.VerifyToken(token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrAuthorization))
}

func TestTokenWrongSecret(t *testing.T) {
	issuer := NewAuthenticator("secret-a", time.Hour)
	verifier := NewAuthenticator("secret-b", time.Hour)

	token, err := issuer.IssueToken("user-1", "alice")
	require.NoError(t, err)

	_, err = verifier.VerifyToken(token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrAuthorization))
}

func TestTokenGarbage(t *testing.T) {
	a := NewAuthenticator("test-secret", time.Hour)
	_, err := a.VerifyToken("not.a.token")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrAuthorization))
}
