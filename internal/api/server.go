package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ajolla/ottowrite-sub001/internal/api/auth"
	"github.com/ajolla/ottowrite-sub001/internal/api/handlers"
	"github.com/ajolla/ottowrite-sub001/internal/api/middleware"
	"github.com/ajolla/ottowrite-sub001/internal/api/websocket"
	"github.com/ajolla/ottowrite-sub001/internal/config"
	"github.com/ajolla/ottowrite-sub001/internal/logger"
	"github.com/ajolla/ottowrite-sub001/internal/ratelimit"
	"github.com/ajolla/ottowrite-sub001/internal/referral"
	"github.com/ajolla/ottowrite-sub001/internal/repository"

	"github.com/gorilla/mux"
)

// Deps are the collaborators the HTTP layer is built from. Limiter and Hub
// are optional.
type Deps struct {
	Service      *referral.Service
	Admins       repository.AdminRepository
	JWT          *auth.JWTManager
	Limiter      ratelimit.Limiter
	Hub          *websocket.Hub
	HealthChecks map[string]handlers.HealthCheck
	Logger       *logger.Logger
}

// Server is the referral HTTP API: public click tracking, conversions,
// Stripe webhooks and the admin console.
type Server struct {
	config     *config.Config
	deps       Deps
	httpServer *http.Server
	router     *mux.Router
	logger     *logger.Logger

	healthHandler   *handlers.HealthHandler
	authHandler     *handlers.AuthHandler
	referralHandler *handlers.ReferralHandler
	webhookHandler  *handlers.StripeWebhookHandler
	adminHandler    *handlers.AdminHandler
	wsHandler       *websocket.Handler
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	if deps.JWT == nil {
		deps.JWT = auth.NewJWTManager(cfg.Admin.JWTSecret, cfg.TokenTTL())
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		logger: log.With("component", "api"),
	}

	s.healthHandler = handlers.NewHealthHandler(deps.HealthChecks)
	s.authHandler = handlers.NewAuthHandler(deps.Admins, deps.JWT, s.logger)
	s.referralHandler = handlers.NewReferralHandler(deps.Service, handlers.ReferralHandlerConfig{
		CookieName: cfg.Referral.CookieName,
		CookieTTL:  cfg.AttributionWindow(),
		SignupURL:  cfg.Referral.SignupURL,
	}, s.logger)
	s.webhookHandler = handlers.NewStripeWebhookHandler(deps.Service, cfg.Stripe.WebhookSecret, s.logger)
	s.adminHandler = handlers.NewAdminHandler(deps.Service, s.logger)
	if deps.Hub != nil {
		s.wsHandler = websocket.NewHandler(deps.Hub, deps.JWT, cfg.Admin.AllowedOrigins, s.logger)
	}

	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := mux.NewRouter()

	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.LoggingMiddleware(s.logger))
	r.Use(middleware.RecoveryMiddleware(s.logger))
	r.Use(middleware.CORSMiddleware(s.config.Admin.AllowedOrigins))
	if s.deps.Limiter != nil {
		r.Use(middleware.RateLimitMiddleware(s.deps.Limiter, s.logger))
	}

	api := r.PathPrefix("/api/v1").Subrouter()

	// Public
	api.HandleFunc("/health", s.healthHandler.Health).Methods(http.MethodGet)
	api.HandleFunc("/ping", s.healthHandler.Ping).Methods(http.MethodGet)

	api.HandleFunc("/auth/login", s.authHandler.Login).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", s.authHandler.RefreshToken).Methods(http.MethodPost)

	api.HandleFunc("/referral/track", s.referralHandler.Track).Methods(http.MethodPost)
	api.HandleFunc("/referral/track", s.referralHandler.TrackRedirect).Methods(http.MethodGet)

	api.HandleFunc("/webhooks/stripe", s.webhookHandler.Handle).Methods(http.MethodPost)

	// The websocket authenticates itself: browsers cannot send headers on
	// the upgrade request.
	if s.wsHandler != nil {
		api.HandleFunc("/admin/activity/ws", s.wsHandler.ServeActivity).Methods(http.MethodGet)
	}

	// Any valid token
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.JWTAuthMiddleware(s.deps.JWT))

	protected.HandleFunc("/auth/me", s.authHandler.Me).Methods(http.MethodGet)
	protected.HandleFunc("/referral/convert", s.referralHandler.Convert).Methods(http.MethodPost)

	// Console reads (viewer+)
	viewer := protected.PathPrefix("/admin").Subrouter()
	viewer.Use(middleware.RequireRole(auth.RoleViewer, auth.RoleAdmin, auth.RoleSuperAdmin))

	viewer.HandleFunc("/overview", s.adminHandler.Overview).Methods(http.MethodGet)
	viewer.HandleFunc("/partners", s.adminHandler.ListPartners).Methods(http.MethodGet)
	viewer.HandleFunc("/partners/{id:[0-9]+}", s.adminHandler.GetPartner).Methods(http.MethodGet)
	viewer.HandleFunc("/partners/{id:[0-9]+}/codes", s.adminHandler.ListCodes).Methods(http.MethodGet)
	viewer.HandleFunc("/partners/{id:[0-9]+}/conversions", s.adminHandler.ListConversions).Methods(http.MethodGet)
	viewer.HandleFunc("/partners/{id:[0-9]+}/payouts", s.adminHandler.ListPayouts).Methods(http.MethodGet)
	viewer.HandleFunc("/payouts/{id:[0-9]+}", s.adminHandler.GetPayout).Methods(http.MethodGet)

	// Console writes (admin+)
	admin := protected.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireAdmin)

	admin.HandleFunc("/partners", s.adminHandler.CreatePartner).Methods(http.MethodPost)
	admin.HandleFunc("/partners/{id:[0-9]+}", s.adminHandler.UpdatePartner).Methods(http.MethodPut)
	admin.HandleFunc("/partners/{id:[0-9]+}", s.adminHandler.DeletePartner).Methods(http.MethodDelete)
	admin.HandleFunc("/partners/{id:[0-9]+}/codes", s.adminHandler.CreateCode).Methods(http.MethodPost)
	admin.HandleFunc("/codes/{id:[0-9]+}/status", s.adminHandler.SetCodeStatus).Methods(http.MethodPut)

	admin.HandleFunc("/conversions/{id:[0-9]+}/approve", s.adminHandler.ApproveConversion).Methods(http.MethodPost)
	admin.HandleFunc("/conversions/{id:[0-9]+}/cancel", s.adminHandler.CancelConversion).Methods(http.MethodPost)

	admin.HandleFunc("/partners/{id:[0-9]+}/payouts", s.adminHandler.SchedulePayout).Methods(http.MethodPost)
	admin.HandleFunc("/payouts/run", s.adminHandler.RunPayouts).Methods(http.MethodPost)
	admin.HandleFunc("/payouts/{id:[0-9]+}/processing", s.adminHandler.MarkPayoutProcessing).Methods(http.MethodPost)
	admin.HandleFunc("/payouts/{id:[0-9]+}/processed", s.adminHandler.MarkPayoutProcessed).Methods(http.MethodPost)
	admin.HandleFunc("/payouts/{id:[0-9]+}/failed", s.adminHandler.MarkPayoutFailed).Methods(http.MethodPost)
	admin.HandleFunc("/payouts/{id:[0-9]+}/cancel", s.adminHandler.CancelPayout).Methods(http.MethodPost)

	s.router = r
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Admin.Host, s.config.Admin.Port)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("Referral API listening on %s", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Shutting down referral API...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("Referral API stopped")
	return nil
}

func (s *Server) Router() *mux.Router {
	return s.router
}
