package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagepass/internal/models"
)

func TestTokens_IssueAndVerify(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	raw, err := tokens.Issue(&models.User{ID: "u1", Username: "alice"})
	require.NoError(t, err)

	claims, err := tokens.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.ID)
	assert.Equal(t, "alice", claims.Username)
}

func TestTokens_RejectsExpired(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	tokens.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	raw, err := tokens.Issue(&models.User{ID: "u1", Username: "alice"})
	require.NoError(t, err)

	tokens.now = time.Now
	_, err = tokens.Verify(context.Background(), raw)
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
}

func TestTokens_RejectsWrongSecretAndGarbage(t *testing.T) {
	raw, err := NewTokens("other", time.Hour).Issue(&models.User{ID: "u1"})
	require.NoError(t, err)

	tokens := NewTokens("secret", time.Hour)
	_, err = tokens.Verify(context.Background(), raw)
	assert.ErrorIs(t, err, models.ErrUnauthenticated)

	_, err = tokens.Verify(context.Background(), "not.a.jwt")
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
}

func TestTokens_RejectsOtherAlgorithms(t *testing.T) {
	claims := jwt.MapClaims{"id": "u1", "exp": time.Now().Add(time.Hour).Unix()}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewTokens("secret", time.Hour).Verify(context.Background(), raw)
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
}

func TestExtractTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	_, err := ExtractTokenFromRequest(r)
	assert.Error(t, err)

	r.Header.Set("Authorization", "Token abc")
	_, err = ExtractTokenFromRequest(r)
	assert.Error(t, err)

	r.Header.Set("Authorization", "bearer abc")
	tok, err := ExtractTokenFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "hunter22"))
	assert.False(t, CheckPassword(hash, "hunter23"))
}
