// Package server wires the dependency graph and owns the HTTP lifecycle:
// router, routes, middleware, graceful shutdown. main.go stays minimal and
// everything here is constructible in tests without a process.
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
	"github.com/redis/go-redis/v9"

	"github.com/bell-ha/artist-promotion-platform/internal/auth"
	"github.com/bell-ha/artist-promotion-platform/internal/config"
	"github.com/bell-ha/artist-promotion-platform/internal/handler"
	"github.com/bell-ha/artist-promotion-platform/internal/middleware"
	"github.com/bell-ha/artist-promotion-platform/internal/otp"
	sqliteRepo "github.com/bell-ha/artist-promotion-platform/internal/repository/sqlite"
	"github.com/bell-ha/artist-promotion-platform/internal/service"
)

// Server owns the router and the resources that must be released on
// shutdown (the SQLite pool, the Redis client).
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	rdb    *redis.Client
}

// New assembles the full dependency chain:
//
//	sqlite.DB → UserRepository ┐
//	TokenService, Passwords    ├→ AuthService → AuthHandler → routes
//	GoogleProvider, otp.Store  ┘
//
// Handlers never touch the database; the service never touches HTTP.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", cfg.RedisAddr, err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		rdb:    rdb,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		rdb.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

func (s *Server) setupRoutes() error {
	// Global middleware, in order: request IDs for tracing, real client IPs
	// behind proxies, panic recovery, then our request log.
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return err
	}

	google := auth.NewGoogleProvider(
		s.config.GoogleClientID,
		s.config.GoogleClientSecret,
		s.config.GoogleCallbackURL,
	)

	authService := service.NewAuthService(
		s.db,
		tokens,
		auth.NewPasswordService(),
		google,
		otp.NewStore(s.rdb),
		&otp.LogMailer{Logger: s.logger},
		s.config.OTPTTL,
		s.logger,
	)
	authHandler := handler.NewAuthHandler(authService, s.logger)

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/send-otp", authHandler.HandleSendSignupOTP)
		r.Post("/verify-otp", authHandler.HandleVerifySignupOTP)
		r.Post("/signup", authHandler.HandleSignUp)
		r.Get("/check-nickname", authHandler.HandleCheckNickname)
		r.Post("/update-nickname", authHandler.HandleUpdateNickname)
		r.Post("/google", authHandler.HandleGoogle)
		r.Route("/forgot-password", func(r chi.Router) {
			r.Post("/send-otp", authHandler.HandleSendResetOTP)
			r.Post("/verify-otp", authHandler.HandleVerifyResetOTP)
			r.Post("/reset", authHandler.HandleResetPassword)
		})
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))
		r.Get("/me", authHandler.HandleMe)
	})

	return nil
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully: stop accepting connections, drain in-flight requests (30s),
// close the database and Redis client.
func (s *Server) Start() error {
	defer s.db.Close()
	defer s.rdb.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
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
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
			slog.String("redis", s.config.RedisAddr),
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
