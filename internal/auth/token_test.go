package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintAndVerify(t *testing.T) {
	tok, err := Mint("secret", Caller{UserID: "u1", Role: "manager", Service: "sales-api"}, time.Minute)
	require.NoError(t, err)

	c, err := Verify("secret", tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", c.UserID)
	assert.Equal(t, "manager", c.Role)
	assert.Equal(t, "sales-api", c.Service)
}

func TestVerifyWrongSecret(t *testing.T) {
	tok, err := Mint("secret-a", Caller{UserID: "u1"}, time.Minute)
	require.NoError(t, err)

	_, err = Verify("secret-b", tok)
	assert.Error(t, err)
}

func TestVerifyExpired(t *testing.T) {
	tok, err := Mint("secret", Caller{UserID: "u1"}, -time.Minute)
	require.NoError(t, err)

	_, err = Verify("secret", tok)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	var got Caller
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := Middleware("secret")(next)

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bad token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set(HeaderInternalToken, "not-a-jwt")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		tok, err := Mint("secret", Caller{UserID: "u9", Role: "seller"}, time.Minute)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set(HeaderInternalToken, tok)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "u9", got.UserID)
		assert.Equal(t, "seller", got.Role)
	})
}
