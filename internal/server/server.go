// Package server wires the application together: it owns the database
// handle, builds the service graph, mounts the routes, and runs the
// HTTP listener with graceful shutdown. This is the composition root:
// every dependency is constructed here or in main and passed down.
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

	"github.com/ravenhacks/backend/internal/auth"
	"github.com/ravenhacks/backend/internal/config"
	"github.com/ravenhacks/backend/internal/discord"
	"github.com/ravenhacks/backend/internal/handler"
	"github.com/ravenhacks/backend/internal/mail"
	"github.com/ravenhacks/backend/internal/middleware"
	"github.com/ravenhacks/backend/internal/model"
	sqliteRepo "github.com/ravenhacks/backend/internal/repository/sqlite"
	"github.com/ravenhacks/backend/internal/service"
)

// Retention policy for unconsumed OAuth state nonces: swept hourly,
// anything older than ten minutes is dead.
const (
	stateSweepInterval = time.Hour
	stateMaxAge        = 10 * time.Minute
)

// Server owns the router, the database handle, and the background
// state-nonce sweeper.
type Server struct {
	router   *chi.Mux
	cfg      *config.Config
	logger   *slog.Logger
	db       *sqliteRepo.DB
	settings *config.SettingsStore
}

// New builds the full dependency graph.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	settings, err := config.NewSettingsStore(cfg.Settings.Path)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("loading event settings: %w", err)
	}

	s := &Server{
		router:   chi.NewRouter(),
		cfg:      cfg,
		logger:   logger,
		db:       db,
		settings: settings,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	codec, err := auth.NewTokenCodec(s.cfg.Auth.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token codec: %w", err)
	}
	passwords := auth.NewPasswordService()
	tokens := service.NewTokenService(codec, s.db)

	var sender mail.Sender
	if s.cfg.Mail.Configured() {
		sender = mail.NewMailgun(s.cfg.Mail.Domain, s.cfg.Mail.APIKey, s.cfg.Mail.From)
	} else {
		s.logger.Warn("mailgun not configured, confirmation and reset emails disabled")
	}

	var roles discord.RoleAssigner
	if s.cfg.Discord.WebhookURL != "" {
		roles = discord.NewWebhook(s.cfg.Discord.WebhookURL, s.cfg.Discord.RoleID)
	}

	var providers []auth.OAuthProvider
	if s.cfg.OAuth.GitHub.Configured() {
		providers = append(providers, auth.NewGitHubProvider(
			s.cfg.OAuth.GitHub.ClientID, s.cfg.OAuth.GitHub.ClientSecret))
	}
	if s.cfg.OAuth.Discord.Configured() {
		providers = append(providers, auth.NewDiscordProvider(
			s.cfg.OAuth.Discord.ClientID, s.cfg.OAuth.Discord.ClientSecret))
	}

	authSvc := service.NewAuthService(s.db, tokens, passwords, sender, service.MailConfig{
		PublicURL:   s.cfg.Server.PublicURL,
		ConfirmPath: s.cfg.Mail.ConfirmPath,
		ResetPath:   s.cfg.Mail.ResetPath,
	}, s.logger)
	oauthSvc := service.NewOAuthService(s.db, s.db, tokens, providers, roles,
		s.cfg.Server.PublicURL, s.logger)
	userSvc := service.NewUserService(s.db, s.logger)
	pointsSvc := service.NewPointsService(s.db, s.logger)

	authHandler := handler.NewAuthHandler(authSvc, s.logger)
	oauthHandler := handler.NewOAuthHandler(oauthSvc, s.logger)
	userHandler := handler.NewUserHandler(authSvc, userSvc, s.logger)
	pointsHandler := handler.NewPointsHandler(pointsSvc, s.logger)
	adminHandler := handler.NewAdminHandler(s.settings, s.logger)

	requireHacker := auth.Require(model.RoleHacker, tokens, s.db)
	requireSponsor := auth.Require(model.RoleSponsor, tokens, s.db)
	requireOrganizer := auth.Require(model.RoleOrganizer, tokens, s.db)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.HandleLogin)
			r.Post("/refresh", authHandler.HandleRefresh)
			r.Post("/reset", authHandler.HandleResetRequest)
			r.Post("/performReset", authHandler.HandlePerformReset)

			r.Group(func(r chi.Router) {
				r.Use(requireHacker)
				r.Post("/logout", authHandler.HandleLogout)
				r.Post("/invalidate", authHandler.HandleInvalidate)
			})

			r.Route("/{provider:github|discord}", func(r chi.Router) {
				r.Get("/", oauthHandler.HandleBeginSignin)
				r.Get("/callback/signin", oauthHandler.HandleSigninCallback)
				r.Get("/callback/link", oauthHandler.HandleLinkCallback)

				r.Group(func(r chi.Router) {
					r.Use(requireHacker)
					r.Get("/link", oauthHandler.HandleBeginLink)
					r.Delete("/link", oauthHandler.HandleUnlink)
				})
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/", userHandler.HandleRegister)
			r.Post("/confirm", userHandler.HandleConfirm)

			r.Group(func(r chi.Router) {
				r.Use(requireHacker)
				r.Get("/me", userHandler.HandleMe)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireOrganizer)
				r.Get("/", userHandler.HandleList)
				r.Get("/{uuid}", userHandler.HandleGet)
				r.Patch("/{uuid}/role", userHandler.HandleSetRole)
				r.Delete("/{uuid}", userHandler.HandleDelete)
			})
		})

		r.Route("/points", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(requireSponsor)
				r.Post("/award", pointsHandler.HandleAward)
			})
			r.Group(func(r chi.Router) {
				r.Use(requireHacker)
				r.Post("/redeem", pointsHandler.HandleRedeem)
				r.Get("/leaderboard", pointsHandler.HandleLeaderboard)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireOrganizer)
			r.Get("/settings", adminHandler.HandleGetSettings)
			r.Post("/settings/reload", adminHandler.HandleReload)
		})
	})

	return nil
}

// Start runs the HTTP server and the state-nonce sweeper until SIGINT
// or SIGTERM, then shuts down gracefully and closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go s.sweepStates(sweepCtx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Server.Port),
			slog.String("publicURL", s.cfg.Server.PublicURL),
			slog.String("database", s.cfg.Database.Path),
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
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// sweepStates periodically deletes OAuth state nonces that were
// initiated but never consumed.
func (s *Server) sweepStates(ctx context.Context) {
	ticker := time.NewTicker(stateSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.db.DeleteOlderThan(ctx, stateMaxAge)
			if err != nil {
				s.logger.Error("state sweep failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				s.logger.Info("swept stale oauth states", slog.Int64("count", n))
			}
		}
	}
}
