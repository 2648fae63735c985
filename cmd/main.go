package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"billing_auth/internal/auth"
	"billing_auth/internal/config"
	"billing_auth/internal/http_server/handlers/emailcheck"
	"billing_auth/internal/http_server/handlers/login"
	"billing_auth/internal/http_server/handlers/register"
	resendEmail "billing_auth/internal/http_server/handlers/resend_verification_email"
	"billing_auth/internal/http_server/handlers/verify"
	"billing_auth/internal/lib/jwt"
	"billing_auth/internal/rabbitmq"
	"billing_auth/internal/storage/postgres"
	"billing_auth/internal/sweeper"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad("./config/config.yaml")

	log := setupLogger(cfg.Env)

	log.Info("starting billing auth service", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("Shutdown signal received")
		cancel()
	}()

	storage, err := postgres.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect postgres", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer storage.Close()

	if err := storage.RunMigrations(ctx); err != nil {
		log.Error("failed to run migrations", slog.String("err", err.Error()))
		os.Exit(1)
	}

	msgBroker, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Error("failed to connect rabbitmq", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer msgBroker.Close()

	issuer, err := jwt.New(
		cfg.Tokens.BearerTokenSecret,
		cfg.Tokens.Issuer,
		cfg.Tokens.Audience,
		cfg.Tokens.BearerTokenTTL,
	)
	if err != nil {
		log.Error("failed to configure token issuer", slog.String("err", err.Error()))
		os.Exit(1)
	}

	authService := auth.New(
		log,
		storage,
		storage,
		storage,
		issuer,
		msgBroker,
		cfg.HTTPServer.BaseURL,
		cfg.Tokens.VerificationTokenTTL,
	)

	go sweeper.New(log, storage, cfg.Sweeper.Interval).Run(ctx)

	router := setupRouter(log, authService)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", slog.String("err", err.Error()))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", slog.String("err", err.Error()))
	} else {
		log.Info("Server stopped gracefully")
	}

	log.Info("Main service stopped")
}

func setupRouter(log *slog.Logger, authService *auth.Auth) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	validate := validator.New()

	r.Post("/register",
		register.New(log, validate, authService),
	)
	r.Post("/login",
		login.New(log, validate, authService),
	)
	r.Get("/verify",
		verify.New(log, authService),
	)
	r.Post("/verify/resend",
		resendEmail.New(log, validate, authService),
	)
	r.Get("/email/check",
		emailcheck.New(log, validate, authService),
	)

	return r
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
