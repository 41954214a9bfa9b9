package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagemorph/pagemorph/internal/models"
)

func testSubject() models.Subject {
	return models.Subject{
		UserID:      uuid.New(),
		WorkspaceID: uuid.New(),
		Role:        models.RoleMember,
		SessionID:   uuid.New(),
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	subject := testSubject()

	token, err := GenerateAccessToken(subject, "secret", 15*time.Minute)
	require.NoError(t, err)

	claims, err := ParseAccessToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, subject, claims.Subject())
}

func TestAccessTokenWrongSecret(t *testing.T) {
	token, err := GenerateAccessToken(testSubject(), "secret", 15*time.Minute)
	require.NoError(t, err)

	_, err = ParseAccessToken(token, "other-secret")
	assert.Error(t, err)
}

func TestAccessTokenExpired(t *testing.T) {
	token, err := GenerateAccessToken(testSubject(), "secret", -time.Minute)
	require.NoError(t, err)

	_, err = ParseAccessToken(token, "secret")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestAccessTokenGarbage(t *testing.T) {
	_, err := ParseAccessToken("not.a.token", "secret")
	assert.Error(t, err)
}

func TestRefreshTokenMinting(t *testing.T) {
	token1, hash1, err := NewRefreshToken()
	require.NoError(t, err)
	token2, hash2, err := NewRefreshToken()
	require.NoError(t, err)

	assert.NotEqual(t, token1, token2)
	assert.NotEqual(t, hash1, hash2)
	assert.Equal(t, hash1, HashRefreshToken(token1))
	assert.NotContains(t, hash1, token1)
}
