package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	tok, err := GenerateToken("u1", "ana@example.com", "admin", "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(tok, "secret")
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "admin", claims.Role)

	_, err = ParseToken(tok, "other")
	assert.Error(t, err)
}

func TestParseExpired(t *testing.T) {
	tok, err := GenerateToken("u1", "", "user", "secret", -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(tok, "secret")
	assert.Error(t, err)
}
