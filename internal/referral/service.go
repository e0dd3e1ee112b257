package referral

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/events"
	"github.com/ajolla/ottowrite-sub001/internal/logger"
	"github.com/ajolla/ottowrite-sub001/internal/ratelimit"
	"github.com/ajolla/ottowrite-sub001/internal/repository"
)

// PriceProvider supplies the price of a paid tier in minor units.
type PriceProvider interface {
	TierPrice(ctx context.Context, tier string) (int64, error)
}

type Config struct {
	AttributionWindow      time.Duration
	CodeGenerationAttempts int
	FingerprintSalt        string
	RecurringWindow        time.Duration
	MinimumPayout          int64
}

func DefaultConfig() Config {
	return Config{
		AttributionWindow:      30 * 24 * time.Hour,
		CodeGenerationAttempts: 10,
		RecurringWindow:        365 * 24 * time.Hour,
	}
}

// Service implements the referral lifecycle: codes, clicks, attribution,
// commissions and payouts. Every cross-record invariant is enforced by the
// store, so any number of Service instances may run side by side.
type Service struct {
	cfg       Config
	store     repository.Store
	pricing   PriceProvider
	publisher events.Publisher
	limiter   ratelimit.Limiter
	logger    *logger.Logger
	now       func() time.Time
	random    io.Reader
}

type Option func(*Service)

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClickLimiter limits Track calls per client IP.
func WithClickLimiter(l ratelimit.Limiter) Option {
	return func(s *Service) { s.limiter = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithRandom(r io.Reader) Option {
	return func(s *Service) { s.random = r }
}

func NewService(cfg Config, store repository.Store, pricing PriceProvider, log *logger.Logger, opts ...Option) *Service {
	if cfg.CodeGenerationAttempts <= 0 {
		cfg.CodeGenerationAttempts = DefaultConfig().CodeGenerationAttempts
	}
	if cfg.AttributionWindow <= 0 {
		cfg.AttributionWindow = DefaultConfig().AttributionWindow
	}
	if log == nil {
		log = logger.Nop()
	}

	s := &Service{
		cfg:       cfg,
		store:     store,
		pricing:   pricing,
		publisher: events.Noop(),
		logger:    log.With("component", "referral"),
		now:       time.Now,
		random:    rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

func (s *Service) publish(ctx context.Context, eventType string, partnerID uint, data map[string]interface{}) {
	if err := s.publisher.Publish(ctx, events.New(eventType, partnerID, data)); err != nil {
		s.logger.Warn("Failed to publish %s event: %v", eventType, err)
	}
}

// notFound converts a repository miss into the domain error.
func notFound(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s %w", what, ErrNotFound)
	}
	return err
}
