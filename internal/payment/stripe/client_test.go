package stripe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripego "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// lookupKeys collects lookup_keys[...] query values regardless of how the
// array is indexed.
func lookupKeys(r *http.Request) []string {
	var keys []string
	for k, v := range r.URL.Query() {
		if strings.HasPrefix(k, "lookup_keys") {
			keys = append(keys, v...)
		}
	}
	return keys
}

func TestTierPriceByLookupKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		assert.Equal(t, "/v1/prices", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("active"))

		w.Header().Set("Content-Type", "application/json")
		keys := lookupKeys(r)
		if len(keys) == 1 && keys[0] == "pro" {
			w.Write([]byte(`{"object":"list","url":"/v1/prices","has_more":false,"data":[{"id":"price_1","object":"price","lookup_key":"pro","unit_amount":2000,"currency":"usd","active":true}]}`))
			return
		}
		w.Write([]byte(`{"object":"list","url":"/v1/prices","has_more":false,"data":[]}`))
	}))
	defer srv.Close()

	c := NewClient("sk_test_123", srv.URL, nil)

	price, err := c.TierPrice(context.Background(), " Pro ")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), price)

	_, err = c.TierPrice(context.Background(), "enterprise")
	assert.ErrorIs(t, err, payment.ErrUnknownTier)
}

func TestAPIErrorIsDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Invalid API Key"}}`))
	}))
	defer srv.Close()

	_, err := NewClient("bad", srv.URL, nil).TierPrice(context.Background(), "pro")
	require.Error(t, err)
	assert.False(t, errors.Is(err, payment.ErrUnknownTier))

	var apiErr *stripego.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.HTTPStatusCode)
	assert.Equal(t, "Invalid API Key", apiErr.Msg)
}

func TestConstructEventVerifiesSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","object":"event","type":"customer.subscription.updated","data":{"object":{"id":"sub_1","status":"active"},"previous_attributes":{"items":{}}}}`)
	now := time.Now()

	event, err := ConstructEvent(payload, SignatureHeader(payload, "whsec_test", now), "whsec_test")
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, EventSubscriptionUpdated, string(event.Type))
	require.NotNil(t, event.Data)
	assert.Contains(t, event.Data.PreviousAttributes, "items")

	_, err = ConstructEvent(payload, SignatureHeader(payload, "other", now), "whsec_test")
	assert.ErrorIs(t, err, webhook.ErrNoValidSignature)

	_, err = ConstructEvent([]byte(`{}`), SignatureHeader(payload, "whsec_test", now), "whsec_test")
	assert.ErrorIs(t, err, webhook.ErrNoValidSignature)

	_, err = ConstructEvent(payload, SignatureHeader(payload, "whsec_test", now.Add(-10*time.Minute)), "whsec_test")
	assert.ErrorIs(t, err, webhook.ErrTooOld)

	_, err = ConstructEvent(payload, "", "whsec_test")
	assert.Error(t, err)
}
