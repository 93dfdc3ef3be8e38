package common

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=query-tok", nil)
	assert.Equal(t, "query-tok", TokenFromRequest(r))

	r.Header.Set("token", "legacy-tok")
	assert.Equal(t, "legacy-tok", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer bearer-tok")
	assert.Equal(t, "bearer-tok", TokenFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "", TokenFromRequest(r))
}

func TestAuthMiddleware(t *testing.T) {
	m := newTestJWT(t, time.Hour)
	token, err := m.GenerateToken(9)
	require.NoError(t, err)

	var seen uint64
	handler := m.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("valid token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/messages/users", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, uint64(9), seen)
	})

	t.Run("missing token", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/messages/users", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"success":false,"message":"authorization required"}`, w.Body.String())
	})
}

func TestUserIDFromContext_Zero(t *testing.T) {
	_, ok := UserIDFromContext(WithUserID(httptest.NewRequest(http.MethodGet, "/", nil).Context(), 0))
	assert.False(t, ok)
}
