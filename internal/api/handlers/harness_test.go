package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/api/auth"
	"github.com/ajolla/ottowrite-sub001/internal/models"
	"github.com/ajolla/ottowrite-sub001/internal/payment"
	"github.com/ajolla/ottowrite-sub001/internal/referral"
	"github.com/ajolla/ottowrite-sub001/internal/repository/memory"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
)

const (
	testWebhookSecret = "whsec_test_secret"
	testSignupURL     = "https://app.example.com/signup?lang=en"
)

type harness struct {
	t         *testing.T
	ctx       context.Context
	store     *memory.Store
	svc       *referral.Service
	router    *mux.Router
	principal *auth.Principal
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		t:     t,
		ctx:   context.Background(),
		store: memory.New(),
	}
	h.store.AddUser(models.User{ID: "user-1", Email: "reader@example.com"})
	h.store.AddUser(models.User{ID: "user-2", Email: "writer@example.com"})

	h.svc = referral.NewService(referral.Config{
		AttributionWindow: 30 * 24 * time.Hour,
		FingerprintSalt:   "salt",
		RecurringWindow:   365 * 24 * time.Hour,
	}, h.store, payment.StaticPrices{"free": 0, "pro": 2000}, nil)

	referrals := NewReferralHandler(h.svc, ReferralHandlerConfig{SignupURL: testSignupURL}, nil)
	webhook := NewStripeWebhookHandler(h.svc, testWebhookSecret, nil)
	admin := NewAdminHandler(h.svc, nil)

	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if h.principal != nil {
				req = req.WithContext(auth.WithPrincipal(req.Context(), h.principal))
			}
			next.ServeHTTP(w, req)
		})
	})

	r.HandleFunc("/referral/track", referrals.Track).Methods(http.MethodPost)
	r.HandleFunc("/referral/track", referrals.TrackRedirect).Methods(http.MethodGet)
	r.HandleFunc("/referral/convert", referrals.Convert).Methods(http.MethodPost)
	r.HandleFunc("/webhooks/stripe", webhook.Handle).Methods(http.MethodPost)

	r.HandleFunc("/admin/overview", admin.Overview).Methods(http.MethodGet)
	r.HandleFunc("/admin/partners", admin.ListPartners).Methods(http.MethodGet)
	r.HandleFunc("/admin/partners", admin.CreatePartner).Methods(http.MethodPost)
	r.HandleFunc("/admin/partners/{id}", admin.GetPartner).Methods(http.MethodGet)
	r.HandleFunc("/admin/partners/{id}", admin.UpdatePartner).Methods(http.MethodPut)
	r.HandleFunc("/admin/partners/{id}", admin.DeletePartner).Methods(http.MethodDelete)
	r.HandleFunc("/admin/partners/{id}/codes", admin.ListCodes).Methods(http.MethodGet)
	r.HandleFunc("/admin/partners/{id}/codes", admin.CreateCode).Methods(http.MethodPost)
	r.HandleFunc("/admin/codes/{id}/status", admin.SetCodeStatus).Methods(http.MethodPut)
	r.HandleFunc("/admin/partners/{id}/conversions", admin.ListConversions).Methods(http.MethodGet)
	r.HandleFunc("/admin/conversions/{id}/approve", admin.ApproveConversion).Methods(http.MethodPost)
	r.HandleFunc("/admin/conversions/{id}/cancel", admin.CancelConversion).Methods(http.MethodPost)
	r.HandleFunc("/admin/partners/{id}/payouts", admin.SchedulePayout).Methods(http.MethodPost)
	r.HandleFunc("/admin/partners/{id}/payouts", admin.ListPayouts).Methods(http.MethodGet)
	r.HandleFunc("/admin/payouts/run", admin.RunPayouts).Methods(http.MethodPost)
	r.HandleFunc("/admin/payouts/{id}", admin.GetPayout).Methods(http.MethodGet)
	r.HandleFunc("/admin/payouts/{id}/processing", admin.MarkPayoutProcessing).Methods(http.MethodPost)
	r.HandleFunc("/admin/payouts/{id}/processed", admin.MarkPayoutProcessed).Methods(http.MethodPost)
	r.HandleFunc("/admin/payouts/{id}/failed", admin.MarkPayoutFailed).Methods(http.MethodPost)
	r.HandleFunc("/admin/payouts/{id}/cancel", admin.CancelPayout).Methods(http.MethodPost)

	h.router = r
	return h
}

func (h *harness) as(userID string, roles ...auth.Role) {
	p := &auth.Principal{UserID: userID, Roles: make(map[auth.Role]struct{})}
	for _, r := range roles {
		p.Roles[r] = struct{}{}
	}
	h.principal = p
}

func (h *harness) do(method, path string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	h.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case []byte:
			buf.Write(b)
		case string:
			buf.WriteString(b)
		default:
			require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:5123"
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// partner creates an active partner paying 200 per signup and 500 per
// subscription, with code JANE2025.
func (h *harness) partner() (*models.Partner, *models.ReferralCode) {
	h.t.Helper()

	p, err := h.svc.CreatePartner(h.ctx, referral.PartnerInput{
		Name:                   "Jane Writer",
		Email:                  "jane@example.com",
		SignupCommission:       200,
		SubscriptionCommission: 500,
	})
	require.NoError(h.t, err)

	code, err := h.svc.CreateCode(h.ctx, referral.CreateCodeInput{PartnerID: p.ID, Code: "JANE2025"})
	require.NoError(h.t, err)
	return p, code
}

func (h *harness) track(code string) *http.Cookie {
	h.t.Helper()

	rec := h.do(http.MethodPost, "/referral/track", map[string]interface{}{"code": code})
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())

	for _, c := range rec.Result().Cookies() {
		if c.Name == DefaultTrackingCookie {
			return c
		}
	}
	h.t.Fatalf("no tracking cookie set")
	return nil
}
