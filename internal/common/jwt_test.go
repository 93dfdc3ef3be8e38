package common

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quickchat/internal/config"
)

func newTestJWT(t *testing.T, ttl time.Duration) *JWTManager {
	t.Helper()
	m, err := NewJWTManager(&config.Config{Auth: config.AuthConfig{
		JWTSecret: "test-secret",
		TokenTTL:  ttl,
		Issuer:    "quickchat-test",
	}})
	require.NoError(t, err)
	return m
}

func TestNewJWTManager_RequiresSecret(t *testing.T) {
	_, err := NewJWTManager(&config.Config{})
	assert.Error(t, err)
}

func TestJWTManager_RoundTrip(t *testing.T) {
	m := newTestJWT(t, time.Hour)

	token, err := m.GenerateToken(42)
	require.NoError(t, err)

	claims, err := m.ValidToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.UserID)
	assert.Equal(t, "quickchat-test", claims.Issuer)
}

func TestJWTManager_Rejects(t *testing.T) {
	m := newTestJWT(t, time.Hour)
	expired := newTestJWT(t, -time.Minute)

	expiredToken, err := expired.GenerateToken(7)
	require.NoError(t, err)

	other, err := NewJWTManager(&config.Config{Auth: config.AuthConfig{JWTSecret: "other", TokenTTL: time.Hour}})
	require.NoError(t, err)
	foreignToken, err := other.GenerateToken(7)
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: 7}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":  expiredToken,
		"foreign":  foreignToken,
		"none alg": noneToken,
		"garbage":  "not-a-jwt",
		"empty":    "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := m.ValidToken(token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnauthorized))
		})
	}
}
