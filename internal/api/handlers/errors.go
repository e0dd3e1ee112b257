package handlers

import (
	"errors"
	"net/http"

	"github.com/ajolla/ottowrite-sub001/internal/logger"
	"github.com/ajolla/ottowrite-sub001/internal/referral"
)

type errorMapping struct {
	target error
	status int
	code   string
}

var referralErrors = []errorMapping{
	{referral.ErrNotFound, http.StatusNotFound, "not_found"},
	{referral.ErrInvalidCode, http.StatusNotFound, "invalid_code"},
	{referral.ErrUserNotFound, http.StatusNotFound, "user_not_found"},

	{referral.ErrCodeExpired, http.StatusUnprocessableEntity, "code_expired"},
	{referral.ErrCodeLimitReached, http.StatusUnprocessableEntity, "code_limit_reached"},
	{referral.ErrLimitExceeded, http.StatusUnprocessableEntity, "limit_exceeded"},
	{referral.ErrPartnerInactive, http.StatusUnprocessableEntity, "partner_inactive"},

	{referral.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},

	{referral.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{referral.ErrNothingToPay, http.StatusConflict, "nothing_to_pay"},
	{referral.ErrBelowMinimum, http.StatusConflict, "below_minimum"},
	{referral.ErrCodeTaken, http.StatusConflict, "code_taken"},
	{referral.ErrPartnerExists, http.StatusConflict, "partner_exists"},
	{referral.ErrGenerationExhausted, http.StatusConflict, "generation_exhausted"},
}

// mapReferralError writes the HTTP rendition of a referral service error.
// Unknown errors are logged and hidden behind a generic 500.
func mapReferralError(w http.ResponseWriter, log *logger.Logger, err error) {
	if referral.IsValidation(err) {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	if errors.Is(err, referral.ErrNoAttribution) {
		respondJSON(w, http.StatusOK, referral.ConversionResult{Success: false, Message: referral.NoAttributionMessage})
		return
	}

	for _, m := range referralErrors {
		if errors.Is(err, m.target) {
			respondError(w, m.status, m.code, err.Error())
			return
		}
	}

	log.Error("Referral request failed: %v", err)
	respondError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
}
