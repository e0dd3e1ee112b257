// Package events publishes referral lifecycle events to Redis pub/sub or
// Kafka for downstream consumers and the admin activity feed.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	TypeClickTracked        = "click.tracked"
	TypeConversionRecorded  = "conversion.recorded"
	TypeConversionApproved  = "conversion.approved"
	TypeConversionCancelled = "conversion.cancelled"
	TypePayoutScheduled     = "payout.scheduled"
	TypePayoutCompleted     = "payout.completed"
	TypePayoutFailed        = "payout.failed"
	TypePayoutCancelled     = "payout.cancelled"
)

type Event struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	PartnerID  uint                   `json:"partner_id,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

func New(eventType string, partnerID uint, data map[string]interface{}) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		PartnerID:  partnerID,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event Event) error

func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

type noop struct{}

func (noop) Publish(context.Context, Event) error { return nil }

// Noop drops every event.
func Noop() Publisher {
	return noop{}
}

// FanOut delivers each event to every publisher and joins their errors.
type FanOut []Publisher

func (f FanOut) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
