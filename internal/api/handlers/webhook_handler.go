package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ajolla/ottowrite-sub001/internal/logger"
	"github.com/ajolla/ottowrite-sub001/internal/models"
	"github.com/ajolla/ottowrite-sub001/internal/payment/stripe"
	"github.com/ajolla/ottowrite-sub001/internal/referral"

	stripego "github.com/stripe/stripe-go/v76"
)

const (
	maxWebhookBytes       = 1 << 16
	metadataUserID        = "user_id"
	metadataTier          = "tier"
	metadataTrackingToken = "referral_tracking_id"
)

// StripeWebhookHandler turns paid Stripe subscriptions into referral
// conversions. Stripe retries on non-2xx, so only transient failures
// answer with 5xx; the conversion key makes retries harmless.
type StripeWebhookHandler struct {
	service *referral.Service
	secret  string
	logger  *logger.Logger
}

func NewStripeWebhookHandler(service *referral.Service, secret string, log *logger.Logger) *StripeWebhookHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &StripeWebhookHandler{
		service: service,
		secret:  secret,
		logger:  log.With("component", "stripe-webhook"),
	}
}

func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		respondError(w, http.StatusServiceUnavailable, "not_configured", "Stripe webhooks are not configured")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "Failed to read request body")
		return
	}

	event, err := stripe.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), h.secret)
	if err != nil {
		h.logger.Warn("Rejected webhook: %v", err)
		respondError(w, http.StatusBadRequest, "invalid_signature", err.Error())
		return
	}

	in, ok, err := conversionFromEvent(event)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if !ok {
		respondJSON(w, http.StatusOK, map[string]interface{}{"received": true, "ignored": true})
		return
	}

	result, err := h.service.ProcessConversion(r.Context(), in)
	switch {
	case err == nil:
	case referral.IsValidation(err), errors.Is(err, referral.ErrUserNotFound), errors.Is(err, referral.ErrLimitExceeded):
		h.logger.Warn("Ignoring %s event %s: %v", event.Type, event.ID, err)
		respondJSON(w, http.StatusOK, map[string]interface{}{"received": true, "ignored": true, "reason": err.Error()})
		return
	default:
		h.logger.Error("Failed to process %s event %s: %v", event.Type, event.ID, err)
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to process event")
		return
	}

	h.logger.Info("Processed %s event %s for user %s: success=%t commission=%d",
		event.Type, event.ID, in.UserID, result.Success, result.CommissionAmount)
	respondJSON(w, http.StatusOK, map[string]interface{}{"received": true, "result": result})
}

// conversionFromEvent maps a Stripe event to a conversion. Events that do
// not describe a paid subscription or a plan change report ok=false.
func conversionFromEvent(event stripego.Event) (referral.ConversionInput, bool, error) {
	if event.Data == nil {
		return referral.ConversionInput{}, false, nil
	}

	switch string(event.Type) {
	case stripe.EventCheckoutSessionCompleted:
		var session stripego.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return referral.ConversionInput{}, false, fmt.Errorf("invalid checkout session: %w", err)
		}
		if string(session.Mode) != "subscription" {
			return referral.ConversionInput{}, false, nil
		}

		userID := strings.TrimSpace(session.Metadata[metadataUserID])
		if userID == "" {
			userID = strings.TrimSpace(session.ClientReferenceID)
		}
		tier := strings.TrimSpace(session.Metadata[metadataTier])
		if userID == "" || tier == "" {
			return referral.ConversionInput{}, false, nil
		}

		in := referral.ConversionInput{
			UserID:           userID,
			Type:             models.ConversionTypeSubscription,
			SubscriptionTier: tier,
			AttributionToken: session.Metadata[metadataTrackingToken],
		}
		if session.Subscription != nil {
			in.SubscriptionID = session.Subscription.ID
		}
		return in, true, nil

	case stripe.EventSubscriptionUpdated:
		var sub stripego.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return referral.ConversionInput{}, false, fmt.Errorf("invalid subscription: %w", err)
		}
		if sub.Status != stripego.SubscriptionStatusActive && sub.Status != stripego.SubscriptionStatusTrialing {
			return referral.ConversionInput{}, false, nil
		}
		// Renewals also fire this event; only a change of items is a plan change.
		if _, changed := event.Data.PreviousAttributes["items"]; !changed {
			return referral.ConversionInput{}, false, nil
		}

		userID := strings.TrimSpace(sub.Metadata[metadataUserID])
		tier := strings.TrimSpace(sub.Metadata[metadataTier])
		if userID == "" || tier == "" {
			return referral.ConversionInput{}, false, nil
		}

		return referral.ConversionInput{
			UserID:           userID,
			Type:             models.ConversionTypeUpgrade,
			SubscriptionTier: tier,
			SubscriptionID:   sub.ID,
		}, true, nil
	}

	return referral.ConversionInput{}, false, nil
}
