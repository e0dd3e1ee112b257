package handlers

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/api/auth"
	"github.com/ajolla/ottowrite-sub001/internal/models"
	"github.com/ajolla/ottowrite-sub001/internal/referral"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackSetsTrackingCookie(t *testing.T) {
	h := newHarness(t)
	h.partner()

	rec := h.do(http.MethodPost, "/referral/track", map[string]interface{}{
		"code":      " jane2025 ",
		"utmParams": map[string]string{"utm_source": "youtube", "utm_campaign": "launch"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	token, _ := body["trackingId"].(string)
	assert.Len(t, token, 64)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, DefaultTrackingCookie, c.Name)
	assert.Equal(t, token, c.Value)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, int((30 * 24 * time.Hour).Seconds()), c.MaxAge)
}

func TestTrackErrors(t *testing.T) {
	h := newHarness(t)
	_, code := h.partner()

	expired, err := h.svc.CreateCode(h.ctx, referral.CreateCodeInput{PartnerID: code.PartnerID, Code: "OLDCODE"})
	require.NoError(t, err)
	_, err = h.svc.SetCodeStatus(h.ctx, expired.ID, models.CodeStatusExpired)
	require.NoError(t, err)

	tests := []struct {
		name   string
		body   interface{}
		status int
		code   string
	}{
		{"unknown code", map[string]string{"code": "NOPE"}, http.StatusNotFound, "invalid_code"},
		{"expired code", map[string]string{"code": "oldcode"}, http.StatusUnprocessableEntity, "code_expired"},
		{"missing code", map[string]string{}, http.StatusBadRequest, "validation_error"},
		{"malformed body", "{", http.StatusBadRequest, "invalid_body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(http.MethodPost, "/referral/track", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())

			body := decode(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.code, body["error"])
			assert.NotEmpty(t, body["message"])
			assert.Empty(t, rec.Result().Cookies())
		})
	}

	rec := h.do(http.MethodPost, "/referral/track", map[string]string{"code": "oldcode"})
	assert.Equal(t, "referral code has expired", decode(t, rec)["message"])
}

func TestTrackRedirectForwardsParameters(t *testing.T) {
	h := newHarness(t)
	h.partner()

	rec := h.do(http.MethodGet, "/referral/track?ref=JANE2025&utm_source=newsletter&utm_medium=email&foo=bar", nil)
	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", location.Host)
	assert.Equal(t, "/signup", location.Path)
	assert.Equal(t, "JANE2025", location.Query().Get("ref"))
	assert.Equal(t, "newsletter", location.Query().Get("utm_source"))
	assert.Equal(t, "email", location.Query().Get("utm_medium"))
	assert.Equal(t, "en", location.Query().Get("lang"))
	assert.Empty(t, location.Query().Get("foo"))

	require.Len(t, rec.Result().Cookies(), 1)
}

func TestTrackRedirectNeverBlocksOnInvalidCode(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/referral/track?ref=GHOST", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "ref=GHOST")
	assert.Empty(t, rec.Result().Cookies())
}

func TestConvertWithTrackingCookie(t *testing.T) {
	h := newHarness(t)
	partner, _ := h.partner()
	cookie := h.track("JANE2025")

	h.as("user-1", auth.RoleUser)
	rec := h.do(http.MethodPost, "/referral/convert", map[string]string{
		"userId":         "user-1",
		"conversionType": "signup",
	}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 200, body["commissionAmount"])
	assert.NotZero(t, body["conversionId"])

	got, err := h.svc.GetPartner(h.ctx, partner.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 200, got.PendingEarnings)
	assert.EqualValues(t, 200, got.TotalEarnings)

	// Retried by the client: credited once.
	rec = h.do(http.MethodPost, "/referral/convert", map[string]string{
		"userId":         "user-1",
		"conversionType": "signup",
	}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["duplicate"])

	got, err = h.svc.GetPartner(h.ctx, partner.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 200, got.TotalEarnings)
}

func TestConvertWithoutAttribution(t *testing.T) {
	h := newHarness(t)
	h.partner()

	h.as("user-1", auth.RoleUser)
	rec := h.do(http.MethodPost, "/referral/convert", map[string]string{
		"userId":         "user-1",
		"conversionType": "signup",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "No referral attribution found", body["message"])
}

func TestConvertAuthorization(t *testing.T) {
	h := newHarness(t)
	h.partner()
	cookie := h.track("JANE2025")

	payload := map[string]string{"userId": "user-1", "conversionType": "signup"}

	h.principal = nil
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/referral/convert", payload, cookie).Code)

	h.as("user-2", auth.RoleUser)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, "/referral/convert", payload, cookie).Code)

	rec := h.do(http.MethodPost, "/referral/convert", map[string]string{"userId": "  ", "conversionType": "signup"}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing user id is invalid input, not a permission problem")
	assert.Equal(t, "validation_error", decode(t, rec)["error"])

	h.as("billing", auth.RoleService)
	rec = h.do(http.MethodPost, "/referral/convert", payload, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["success"])
}

func TestConvertErrors(t *testing.T) {
	h := newHarness(t)
	h.partner()
	h.as("ops", auth.RoleAdmin)

	tests := []struct {
		name   string
		body   map[string]string
		status int
		code   string
	}{
		{"unknown type", map[string]string{"userId": "user-1", "conversionType": "refund"}, http.StatusBadRequest, "validation_error"},
		{"tier missing", map[string]string{"userId": "user-1", "conversionType": "subscription"}, http.StatusBadRequest, "validation_error"},
		{"unknown user", map[string]string{"userId": "ghost", "conversionType": "signup"}, http.StatusNotFound, "user_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(http.MethodPost, "/referral/convert", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode(t, rec)["error"])
		})
	}
}
