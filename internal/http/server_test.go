package http_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	courierhttp "courier/internal/http"
	"courier/internal/infra"
	"courier/internal/modules/invite"
	"courier/internal/modules/order"
	"courier/internal/modules/pricing"
	"courier/internal/modules/user"
)

func newServer(t *testing.T) http.Handler {
	t.Helper()
	verifier, err := infra.NewJWTVerifier("test-secret")
	require.NoError(t, err)
	invites := invite.NewService(invite.NewMemoryStore())
	users := user.NewService(user.NewMemoryStore(), invites, []string{"root"})
	quotes := pricing.NewService(nil, pricing.NewMemoryQuoteStore(), time.Minute)
	srv := courierhttp.NewServer(courierhttp.ServerDeps{
		Verifier: verifier,
		Order:    order.NewService(order.NewMemoryStore(), users, quotes, nil),
		User:     users,
		Invite:   invites,
		Pricing:  quotes,
	})
	return srv.Routes()
}

func send(h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := send(newServer(t), http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestRoutesRequireAuth(t *testing.T) {
	h := newServer(t)
	for _, path := range []string{"/api/users/me", "/api/orders", "/api/admin/invites"} {
		w := send(h, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
	w := send(h, http.MethodPost, "/api/invites/validate", `{"code":"NOPE"}`, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"valid":false}`, w.Body.String())
}

func TestBootstrapAdminWithJWT(t *testing.T) {
	h := newServer(t)
	token, err := infra.SignToken("test-secret", "root", "", time.Minute)
	require.NoError(t, err)

	w := send(h, http.MethodPost, "/api/users/register",
		`{"full_name":"Root","email":"root@example.ca","phone":"613-555-0100"}`, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"role":"admin"`)

	w = send(h, http.MethodPost, "/api/admin/invites", `{"code":"WELCOME"}`, token)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = send(h, http.MethodPost, "/api/quotes",
		`{"pickup":"Ottawa","dropoff":"Gatineau","package":{"size":"small","weight":"<5kg","speed":"standard"}}`, token)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"unavailable"`)
}
