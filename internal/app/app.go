// Package app wires configuration into the long-lived collaborators shared
// by the API and the payout runner.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/config"
	"github.com/ajolla/ottowrite-sub001/internal/events"
	"github.com/ajolla/ottowrite-sub001/internal/logger"
	"github.com/ajolla/ottowrite-sub001/internal/payment"
	"github.com/ajolla/ottowrite-sub001/internal/payment/stripe"
	"github.com/ajolla/ottowrite-sub001/internal/ratelimit"
	"github.com/ajolla/ottowrite-sub001/internal/referral"
	"github.com/ajolla/ottowrite-sub001/internal/repository"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Infra holds the database and Redis connections. Redis is nil when it is
// not configured or unreachable outside production.
type Infra struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *gorm.DB
	Redis  *redis.Client
	Store  *repository.GormStore
	Admins repository.AdminRepository

	closers []func() error
}

func Open(cfg *config.Config, log *logger.Logger) (*Infra, error) {
	db, err := repository.InitDatabase(cfg.Database, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("Database connected")

	infra := &Infra{
		Config: cfg,
		Logger: log,
		DB:     db,
		Store:  repository.NewGormStore(db),
		Admins: repository.NewAdminRepository(db),
	}
	infra.closers = append(infra.closers, func() error { return repository.CloseDatabase(db) })

	client, err := repository.NewRedisClient(cfg.Redis)
	switch {
	case err != nil && cfg.App.Environment == "production":
		infra.Close()
		return nil, err
	case err != nil:
		log.Warn("Redis not available, falling back to in-process limits: %v", err)
	case client != nil:
		infra.Redis = client
		infra.closers = append(infra.closers, func() error { return repository.CloseRedisClient(client) })
		log.Info("Redis connected")
	}

	return infra, nil
}

// Close releases connections in reverse order of opening.
func (i *Infra) Close() error {
	var errs []error
	for n := len(i.closers) - 1; n >= 0; n-- {
		errs = append(errs, i.closers[n]())
	}
	i.closers = nil
	return errors.Join(errs...)
}

// Publisher builds the configured event sink. The returned publisher is
// never nil; with the redis driver and no Redis it is a no-op.
func (i *Infra) Publisher() (events.Publisher, error) {
	switch i.Config.Events.Driver {
	case "redis":
		if i.Redis == nil {
			i.Logger.Warn("Events driver is redis but Redis is not connected, events are dropped")
			return events.Noop(), nil
		}
		return events.NewRedisPublisher(i.Redis, i.Config.Events.Channel), nil

	case "kafka":
		kafka, err := events.NewKafkaPublisher(i.Config.Events.KafkaBrokers, i.Config.Events.KafkaTopic)
		if err != nil {
			return nil, err
		}
		i.closers = append(i.closers, kafka.Close)
		return kafka, nil
	}
	return events.Noop(), nil
}

// RateLimiter returns a Redis window shared by all instances, or a local
// token bucket when Redis is absent.
func (i *Infra) RateLimiter(prefix string, perMinute int) ratelimit.Limiter {
	if i.Redis != nil {
		return ratelimit.NewRedisWindow(i.Redis, prefix, perMinute, time.Minute)
	}

	local := ratelimit.NewLocal(perMinute)
	ctx, cancel := context.WithCancel(context.Background())
	i.closers = append(i.closers, func() error { cancel(); return nil })
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				local.Sweep()
			}
		}
	}()
	return local
}

// Service assembles the referral service over the Postgres store.
func (i *Infra) Service(publisher events.Publisher) *referral.Service {
	opts := []referral.Option{referral.WithPublisher(publisher)}
	if i.Config.Referral.TrackRateLimit > 0 {
		opts = append(opts, referral.WithClickLimiter(i.RateLimiter("referral:track", i.Config.Referral.TrackRateLimit)))
	}
	return referral.NewService(ServiceConfig(i.Config), i.Store, Pricing(i.Config, i.Logger), i.Logger, opts...)
}

func ServiceConfig(cfg *config.Config) referral.Config {
	return referral.Config{
		AttributionWindow:      cfg.AttributionWindow(),
		CodeGenerationAttempts: cfg.Referral.CodeGenerationAttempts,
		FingerprintSalt:        cfg.Referral.FingerprintSalt,
		RecurringWindow:        time.Duration(cfg.Commission.RecurringWindowDays) * 24 * time.Hour,
		MinimumPayout:          cfg.Payout.MinimumAmount,
	}
}

// Pricing picks the tier price source: Stripe lookup keys or the static
// table from configuration.
func Pricing(cfg *config.Config, log *logger.Logger) referral.PriceProvider {
	if cfg.Commission.PricingSource == "stripe" {
		return stripe.NewClient(cfg.Stripe.SecretKey, cfg.Stripe.BaseURL, log)
	}
	return payment.StaticPrices(cfg.Commission.TierPrices)
}
