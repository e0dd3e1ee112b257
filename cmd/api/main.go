package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/api"
	"github.com/ajolla/ottowrite-sub001/internal/api/auth"
	"github.com/ajolla/ottowrite-sub001/internal/api/handlers"
	"github.com/ajolla/ottowrite-sub001/internal/api/websocket"
	"github.com/ajolla/ottowrite-sub001/internal/app"
	"github.com/ajolla/ottowrite-sub001/internal/config"
	"github.com/ajolla/ottowrite-sub001/internal/events"
	"github.com/ajolla/ottowrite-sub001/internal/logger"
	"github.com/ajolla/ottowrite-sub001/internal/repository"
	"github.com/ajolla/ottowrite-sub001/internal/version"
)

const overviewInterval = 30 * time.Second

func main() {
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		logger.New("info", "production").Fatal("Failed to load config: %v", err)
	}

	log := logger.New(cfg.App.LogLevel, cfg.App.Environment)
	defer log.Sync()

	log.Info("Starting referral API %s (%s)", version.GetVersion(), cfg.App.Environment)
	log.Debug("Configuration: %s", cfg.SafeString())

	infra, err := app.Open(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize: %v", err)
	}
	defer infra.Close()

	if err := repository.AutoMigrate(infra.DB); err != nil {
		log.Fatal("Failed to migrate database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if username := os.Getenv("ADMIN_DEFAULT_USERNAME"); username != "" {
		password := os.Getenv("ADMIN_DEFAULT_PASSWORD")
		email := os.Getenv("ADMIN_DEFAULT_EMAIL")

		if password != "" && email != "" {
			if err := repository.CreateDefaultAdmin(ctx, infra.Admins, username, password, email); err != nil {
				log.Warn("Could not create default admin: %v", err)
			} else {
				log.Info("Default admin created: %s", username)
			}
		}
	}

	publisher, err := infra.Publisher()
	if err != nil {
		log.Fatal("Failed to initialize event publisher: %v", err)
	}

	// With the redis driver every instance and the payout runner publish on
	// the channel, so consoles are fed from the subscription. Otherwise the
	// hub only sees this instance's events.
	hub := websocket.NewHub(log)
	go hub.Run(ctx)

	if cfg.Events.Driver == "redis" && infra.Redis != nil {
		err := events.Subscribe(ctx, infra.Redis, cfg.Events.Channel, log, func(e events.Event) {
			hub.Publish(ctx, e)
		})
		if err != nil {
			log.Fatal("Failed to subscribe to events: %v", err)
		}
	} else {
		publisher = events.FanOut{publisher, hub}
	}

	service := infra.Service(publisher)

	monitor := websocket.NewMonitorService(hub, websocket.OverviewFunc(func(ctx context.Context) (interface{}, error) {
		return service.Overview(ctx)
	}), overviewInterval)
	go monitor.Run(ctx)

	checks := map[string]handlers.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := infra.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if infra.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return infra.Redis.Ping(ctx).Err()
		}
	}

	server := api.NewServer(cfg, api.Deps{
		Service:      service,
		Admins:       infra.Admins,
		JWT:          auth.NewJWTManager(cfg.Admin.JWTSecret, cfg.TokenTTL()),
		Limiter:      infra.RateLimiter("api", cfg.Admin.RateLimit),
		Hub:          hub,
		HealthChecks: checks,
		Logger:       log,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("Server failed: %v", err)
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down referral API...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown: %v", err)
	}

	log.Info("Referral API stopped")
}
