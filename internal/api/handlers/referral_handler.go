package handlers

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/api/auth"
	"github.com/ajolla/ottowrite-sub001/internal/api/middleware"
	"github.com/ajolla/ottowrite-sub001/internal/logger"
	"github.com/ajolla/ottowrite-sub001/internal/referral"
)

const DefaultTrackingCookie = "referral_tracking_id"

var utmKeys = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content"}

type ReferralHandlerConfig struct {
	CookieName string
	CookieTTL  time.Duration
	SignupURL  string
}

// ReferralHandler serves the public click and conversion endpoints.
type ReferralHandler struct {
	service *referral.Service
	cfg     ReferralHandlerConfig
	logger  *logger.Logger
}

func NewReferralHandler(service *referral.Service, cfg ReferralHandlerConfig, log *logger.Logger) *ReferralHandler {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultTrackingCookie
	}
	if cfg.CookieTTL <= 0 {
		cfg.CookieTTL = 30 * 24 * time.Hour
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ReferralHandler{service: service, cfg: cfg, logger: log}
}

type trackRequest struct {
	Code      string             `json:"code"`
	UTMParams referral.UTMParams `json:"utmParams"`
}

type trackResponse struct {
	Success    bool   `json:"success"`
	TrackingID string `json:"trackingId"`
}

// Track records a click and hands the attribution token back both in the
// body and as a cookie.
func (h *ReferralHandler) Track(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}

	result, err := h.service.Track(r.Context(), h.trackInput(r, req.Code, req.UTMParams))
	if err != nil {
		mapReferralError(w, h.logger, err)
		return
	}

	h.setTrackingCookie(w, result.TrackingID)
	respondJSON(w, http.StatusOK, trackResponse{Success: true, TrackingID: result.TrackingID})
}

// TrackRedirect serves referral links. The click is recorded best-effort;
// the visitor is always sent on to signup with ref and UTM parameters.
func (h *ReferralHandler) TrackRedirect(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	code := strings.TrimSpace(query.Get("ref"))

	if code != "" {
		utm := referral.UTMParams{
			Source:   query.Get("utm_source"),
			Medium:   query.Get("utm_medium"),
			Campaign: query.Get("utm_campaign"),
			Term:     query.Get("utm_term"),
			Content:  query.Get("utm_content"),
		}
		result, err := h.service.Track(r.Context(), h.trackInput(r, code, utm))
		if err != nil {
			h.logger.Debug("Referral link %q not tracked: %v", code, err)
		} else {
			h.setTrackingCookie(w, result.TrackingID)
		}
	}

	http.Redirect(w, r, h.signupURL(code, query), http.StatusFound)
}

func (h *ReferralHandler) signupURL(code string, query url.Values) string {
	target, err := url.Parse(h.cfg.SignupURL)
	if err != nil || h.cfg.SignupURL == "" {
		target = &url.URL{Path: "/signup"}
	}

	params := target.Query()
	if code != "" {
		params.Set("ref", code)
	}
	for _, key := range utmKeys {
		if v := query.Get(key); v != "" {
			params.Set(key, v)
		}
	}
	target.RawQuery = params.Encode()
	return target.String()
}

func (h *ReferralHandler) trackInput(r *http.Request, code string, utm referral.UTMParams) referral.TrackInput {
	return referral.TrackInput{
		Code:      code,
		ClientIP:  middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
		UTM:       utm,
	}
}

func (h *ReferralHandler) setTrackingCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cfg.CookieTTL.Seconds()),
		Expires:  time.Now().Add(h.cfg.CookieTTL),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Convert credits a business event. End users may only convert themselves;
// backend services and admins may convert anyone.
func (h *ReferralHandler) Convert(w http.ResponseWriter, r *http.Request) {
	principal := auth.FromContext(r.Context())
	if principal == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var in referral.ConversionInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}

	in.UserID = strings.TrimSpace(in.UserID)
	if in.UserID == "" {
		mapReferralError(w, h.logger, &referral.ValidationError{Field: "userId", Message: "is required"})
		return
	}
	if !principal.Acts(in.UserID) && !principal.Has(auth.RoleService, auth.RoleAdmin, auth.RoleSuperAdmin) {
		respondError(w, http.StatusForbidden, "forbidden", "Not allowed to record conversions for this user")
		return
	}

	if in.AttributionToken == "" {
		if cookie, err := r.Cookie(h.cfg.CookieName); err == nil {
			in.AttributionToken = cookie.Value
		}
	}

	result, err := h.service.ProcessConversion(r.Context(), in)
	if err != nil {
		mapReferralError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
