// Package server is the composition root: it wires repositories, services
// and handlers together and owns the HTTP listener lifecycle.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dockhive/dockhive/internal/auth"
	"github.com/dockhive/dockhive/internal/config"
	"github.com/dockhive/dockhive/internal/engine"
	"github.com/dockhive/dockhive/internal/handler"
	"github.com/dockhive/dockhive/internal/mail"
	"github.com/dockhive/dockhive/internal/middleware"
	"github.com/dockhive/dockhive/internal/ports"
	sqliteRepo "github.com/dockhive/dockhive/internal/repository/sqlite"
	"github.com/dockhive/dockhive/internal/service"
)

// Server holds the HTTP router and the resources it owns.
type Server struct {
	router     *chi.Mux
	cfg        *config.Config
	logger     *slog.Logger
	db         *sqliteRepo.DB
	containers *service.ContainerService
}

// New assembles the full dependency graph.
//
// The engine comes in as an interface so main can hand over a real Docker
// client while tests construct the server pieces with a double.
func New(cfg *config.Config, eng engine.Engine, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	allocator, err := ports.NewAllocator(cfg.PortRangeStart, cfg.PortRangeEnd)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating port allocator: %w", err)
	}

	// Re-lease every port the catalog already holds so a restart can't
	// hand the same port out twice.
	leased, err := db.LeasedPorts(context.Background())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("reading leased ports: %w", err)
	}
	allocator.Seed(leased)

	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService()

	var mailer mail.Mailer
	if cfg.SMTPHost != "" {
		mailer = mail.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom)
	} else {
		logger.Warn("SMTP_HOST not set, verification mail delivery is disabled")
		mailer = &mail.NoopMailer{Logger: logger}
	}

	authService := service.NewAuthService(
		db, db, db, tokens, passwords, mailer,
		cfg.BaseURL, cfg.AllowedEmailDomains, logger,
	)
	creditService := service.NewCreditService(db, db, logger)
	containerService := service.NewContainerService(
		db, db, allocator, eng,
		service.ContainerPolicy{
			PlanLimit:        cfg.PlanContainerLimit,
			DefaultImage:     cfg.DefaultImage,
			ContainerPort:    cfg.ContainerPort,
			DefaultCPUShares: cfg.DefaultCPUShares,
		},
		logger,
	)

	s := &Server{
		router:     chi.NewRouter(),
		cfg:        cfg,
		logger:     logger,
		db:         db,
		containers: containerService,
	}

	s.setupRoutes(tokens, authService, creditService, containerService)

	return s, nil
}

func (s *Server) setupRoutes(
	tokens *auth.TokenService,
	authService *service.AuthService,
	creditService *service.CreditService,
	containerService *service.ContainerService,
) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	authHandler := handler.NewAuthHandler(authService, s.cfg.LoginRedirectURL, s.logger)
	creditHandler := handler.NewCreditHandler(creditService, s.logger)
	containerHandler := handler.NewContainerHandler(containerService, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		// Public.
		r.Post("/signup", authHandler.HandleSignup)
		r.Get("/verify", authHandler.HandleVerify)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/calculate", containerHandler.HandleCalculate)

		// Authenticated.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))

			r.Post("/containers", containerHandler.HandleCreate)
			r.Get("/containers", containerHandler.HandleList)
			r.Post("/containers/{name}/start", containerHandler.HandleStart)
			r.Post("/containers/{name}/stop", containerHandler.HandleStop)
			r.Delete("/containers/{name}", containerHandler.HandleDelete)

			r.Get("/credits", creditHandler.HandleBalance)
			r.Put("/admin/credits", creditHandler.HandleSetCredits)
		})
	})
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully: stop accepting connections, drain in-flight requests, wait for
// detached provisioning work to settle, close the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("database", s.cfg.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		// Accepted provisioning work runs to completion or failure; give
		// it the chance to record its outcome before the DB closes.
		s.containers.WaitForProvisioning()

		s.logger.Info("server stopped gracefully")
	}

	return nil
}
