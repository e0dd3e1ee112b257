package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/api/auth"
	"github.com/ajolla/ottowrite-sub001/internal/repository"
	"github.com/ajolla/ottowrite-sub001/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthHandler(t *testing.T) (*AuthHandler, *auth.JWTManager) {
	t.Helper()

	store := memory.New()
	require.NoError(t, repository.CreateDefaultAdmin(context.Background(), store.Admins(), "root", "s3cret-pass", "root@example.com"))

	jwt := auth.NewJWTManager("test-secret-key-with-enough-length", 2*time.Hour)
	return NewAuthHandler(store.Admins(), jwt, nil), jwt
}

func login(h *AuthHandler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body)))
	return rec
}

func TestLogin(t *testing.T) {
	h, jwt := newAuthHandler(t)

	rec := login(h, `{"username":"root","password":"s3cret-pass"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.EqualValues(t, 7200, body["expires_in"])
	assert.Equal(t, "super_admin", body["user"].(map[string]interface{})["role"])

	claims, err := jwt.ValidateToken(body["token"].(string))
	require.NoError(t, err)
	assert.True(t, auth.NewPrincipal(claims).Has(auth.RoleSuperAdmin))
	assert.True(t, auth.NewPrincipal(claims).Has(auth.RoleViewer))
}

func TestLoginRejections(t *testing.T) {
	h, _ := newAuthHandler(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"wrong password", `{"username":"root","password":"nope"}`, http.StatusUnauthorized},
		{"unknown admin", `{"username":"ghost","password":"s3cret-pass"}`, http.StatusUnauthorized},
		{"missing fields", `{"username":"root"}`, http.StatusBadRequest},
		{"malformed", `{"username":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, login(h, tt.body).Code)
		})
	}
}

func TestMeAndRefresh(t *testing.T) {
	h, jwt := newAuthHandler(t)
	token := decode(t, login(h, `{"username":"root","password":"s3cret-pass"}`))["token"].(string)

	claims, err := jwt.ValidateToken(token)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), auth.NewPrincipal(claims)))
	rec := httptest.NewRecorder()
	h.Me(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode(t, rec)
	assert.Equal(t, "root", me["username"])
	assert.NotEmpty(t, me["last_login_at"])

	rec = httptest.NewRecorder()
	h.Me(rec, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.RefreshToken(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["token"])

	req = httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	h.RefreshToken(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
