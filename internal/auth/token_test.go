package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidecast/pkg/types"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := Sign("secret-1", "teacher-1")
	require.NoError(t, err)

	parser := NewTokenParser("secret-1")
	userID, err := parser.UserID(token)
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", userID)
}

func TestWrongSecretRejected(t *testing.T) {
	token, err := Sign("secret-1", "teacher-1")
	require.NoError(t, err)

	parser := NewTokenParser("other-secret")
	_, err = parser.UserID(token)
	assert.ErrorIs(t, err, types.ErrForbidden)
}

func TestGarbageRejected(t *testing.T) {
	parser := NewTokenParser("secret-1")
	_, err := parser.UserID("not.a.token")
	assert.ErrorIs(t, err, types.ErrForbidden)
}

func TestFromRequest(t *testing.T) {
	parser := NewTokenParser("secret-1")
	token, err := Sign("secret-1", "student-7")
	require.NoError(t, err)

	t.Run("bearer header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/sessions", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		userID, err := parser.FromRequest(r)
		require.NoError(t, err)
		assert.Equal(t, "student-7", userID)
	})

	t.Run("query parameter", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws?token="+token, nil)
		userID, err := parser.FromRequest(r)
		require.NoError(t, err)
		assert.Equal(t, "student-7", userID)
	})

	t.Run("cookie", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/sessions", nil)
		r.AddCookie(&http.Cookie{Name: "JWT", Value: token})
		userID, err := parser.FromRequest(r)
		require.NoError(t, err)
		assert.Equal(t, "student-7", userID)
	})

	t.Run("missing", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/sessions", nil)
		_, err := parser.FromRequest(r)
		assert.ErrorIs(t, err, types.ErrForbidden)
	})
}
