package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidateJWT(t *testing.T) {
	tok, err := IssueJWT("u1", "alice", "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateJWT(tok, "secret")
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "alice", claims.Username)
}

func TestValidateJWT_WrongSecret(t *testing.T) {
	tok, err := IssueJWT("u1", "alice", "secret", time.Hour)
	require.NoError(t, err)

	_, err = ValidateJWT(tok, "other")
	assert.Error(t, err)
}

func TestValidateJWT_Expired(t *testing.T) {
	tok, err := IssueJWT("u1", "alice", "secret", -time.Minute)
	require.NoError(t, err)

	_, err = ValidateJWT(tok, "secret")
	assert.Error(t, err)
}

func TestIssueJWT_EmptySecret(t *testing.T) {
	_, err := IssueJWT("u1", "alice", "", time.Hour)
	assert.Error(t, err)
}
