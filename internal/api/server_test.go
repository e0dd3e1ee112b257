package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/api/auth"
	"github.com/ajolla/ottowrite-sub001/internal/config"
	"github.com/ajolla/ottowrite-sub001/internal/payment"
	"github.com/ajolla/ottowrite-sub001/internal/ratelimit"
	"github.com/ajolla/ottowrite-sub001/internal/referral"
	"github.com/ajolla/ottowrite-sub001/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, limiter ratelimit.Limiter) (*Server, *auth.JWTManager) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Admin.JWTSecret = "test-secret-key-with-enough-length"
	cfg.Admin.TokenTTLHours = 1
	cfg.Referral.AttributionWindowDays = 30
	cfg.Referral.SignupURL = "https://app.example.com/signup"

	store := memory.New()
	svc := referral.NewService(referral.DefaultConfig(), store, payment.StaticPrices{"pro": 2000}, nil)
	jwt := auth.NewJWTManager(cfg.Admin.JWTSecret, time.Hour)

	return NewServer(cfg, Deps{
		Service: svc,
		Admins:  store.Admins(),
		JWT:     jwt,
		Limiter: limiter,
	}), jwt
}

func serve(s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestRouteAuthorization(t *testing.T) {
	s, jwt := newTestServer(t, nil)

	issue := func(roles ...auth.Role) string {
		token, err := jwt.IssueToken("subject", roles...)
		require.NoError(t, err)
		return token
	}
	viewer := issue(auth.RoleViewer)
	admin := issue(auth.RoleAdmin, auth.RoleViewer)
	user := issue(auth.RoleUser)

	partner := `{"name":"Jane Writer","email":"jane@example.com"}`

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		status int
	}{
		{"health is public", http.MethodGet, "/api/v1/health", "", "", http.StatusOK},
		{"ping is public", http.MethodGet, "/api/v1/ping", "", "", http.StatusOK},
		{"track redirect is public", http.MethodGet, "/api/v1/referral/track?ref=NONE", "", "", http.StatusFound},
		{"overview needs a token", http.MethodGet, "/api/v1/admin/overview", "", "", http.StatusUnauthorized},
		{"users cannot read the console", http.MethodGet, "/api/v1/admin/overview", user, "", http.StatusForbidden},
		{"viewer reads the console", http.MethodGet, "/api/v1/admin/overview", viewer, "", http.StatusOK},
		{"viewer cannot create partners", http.MethodPost, "/api/v1/admin/partners", viewer, partner, http.StatusForbidden},
		{"admin creates partners", http.MethodPost, "/api/v1/admin/partners", admin, partner, http.StatusCreated},
		{"viewer lists partners", http.MethodGet, "/api/v1/admin/partners", viewer, "", http.StatusOK},
		{"convert needs a token", http.MethodPost, "/api/v1/referral/convert", "", `{}`, http.StatusUnauthorized},
		{"non-numeric ids do not route", http.MethodGet, "/api/v1/admin/partners/abc", viewer, "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestGlobalMiddleware(t *testing.T) {
	s, _ := newTestServer(t, ratelimit.NewLocal(2))

	first := serve(s, http.MethodGet, "/api/v1/ping", "", "")
	assert.NotEmpty(t, first.Header().Get("X-Request-ID"))

	serve(s, http.MethodGet, "/api/v1/ping", "", "")
	rec := serve(s, http.MethodGet, "/api/v1/ping", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
