package stripe

import (
	"time"

	stripego "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventSubscriptionUpdated      = "customer.subscription.updated"
)

const DefaultTolerance = webhook.DefaultTolerance

// ConstructEvent verifies the Stripe-Signature header against the raw
// payload and decodes the event. Events from any API version are accepted;
// callers only read fields that are stable across versions.
func ConstructEvent(payload []byte, header, secret string) (stripego.Event, error) {
	return webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		Tolerance:                DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
}

// SignatureHeader signs payload as Stripe would at the given time. Used by
// tests and local tooling.
func SignatureHeader(payload []byte, secret string, at time.Time) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: at,
	})
	return signed.Header
}
