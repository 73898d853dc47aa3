package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/judyrop/storefront/internal/testutil"
)

type stubVerifier map[string]Identity

func (s stubVerifier) Verify(_ context.Context, raw string) (*Identity, error) {
	id, ok := s[raw]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return &id, nil
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	verifier := stubVerifier{"good": {Subject: "user-1", Email: "ana@example.com"}}
	r.Use(Middleware(verifier, CookieConfig{Name: "cart_session", TTL: time.Hour}, testutil.Logger()))
	r.GET("/whoami", func(c *gin.Context) {
		p := Principal(c)
		c.JSON(http.StatusOK, gin.H{"user": p.UserID, "email": p.Email, "session": p.SessionToken})
	})
	r.GET("/private", RequireUser(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func TestMiddlewareAnonymousIssuesSession(t *testing.T) {
	r := newRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	require.Equal(t, http.StatusOK, w.Code)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "cart_session", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body["user"])
	assert.Equal(t, cookies[0].Value, body["session"])

	// The issued cookie is reused on the next request.
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Result().Cookies())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, cookies[0].Value, body["session"])
}

func TestMiddlewareReplacesForgedSession(t *testing.T) {
	r := newRouter()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: "cart_session", Value: "../../etc"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Len(t, w.Result().Cookies(), 1)
	assert.NotEqual(t, "../../etc", w.Result().Cookies()[0].Value)
}

func TestMiddlewareBearer(t *testing.T) {
	r := newRouter()

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "user-1", body["user"])
	assert.Equal(t, "ana@example.com", body["email"])

	for _, header := range []string{"Bearer bad", "Basic abc"} {
		req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", header)
		w = httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
	}
}

func TestRequireUser(t *testing.T) {
	r := newRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer good")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims map[string]interface{}) string {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: key}, (&jose.SignerOptions{}).WithType("JWT"))
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	obj, err := signer.Sign(payload)
	require.NoError(t, err)
	raw, err := obj.CompactSerialize()
	require.NoError(t, err)
	return raw
}

func TestOIDCVerifier(t *testing.T) {
	const issuer = "https://issuer.example.com"
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	v := NewOIDCVerifierFrom(oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: "storefront"}))

	now := time.Now()
	raw := signToken(t, key, map[string]interface{}{
		"iss":   issuer,
		"aud":   "storefront",
		"sub":   "user-42",
		"email": "user42@example.com",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	})
	identity, err := v.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "user-42", identity.Subject)
	assert.Equal(t, "user42@example.com", identity.Email)

	wrongAudience := signToken(t, key, map[string]interface{}{
		"iss": issuer,
		"aud": "someone-else",
		"sub": "user-42",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	})
	_, err = v.Verify(context.Background(), wrongAudience)
	assert.Error(t, err)

	expired := signToken(t, key, map[string]interface{}{
		"iss": issuer,
		"aud": "storefront",
		"sub": "user-42",
		"iat": now.Add(-2 * time.Hour).Unix(),
		"exp": now.Add(-time.Hour).Unix(),
	})
	_, err = v.Verify(context.Background(), expired)
	assert.Error(t, err)
}
