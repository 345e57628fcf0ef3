package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace_auth/internal/auth"
	"marketplace_auth/internal/config"
	changePassword "marketplace_auth/internal/http_server/handlers/change_password"
	forgotPassword "marketplace_auth/internal/http_server/handlers/forgot_password"
	"marketplace_auth/internal/http_server/handlers/login"
	"marketplace_auth/internal/http_server/handlers/logout"
	"marketplace_auth/internal/http_server/handlers/refresh"
	"marketplace_auth/internal/http_server/handlers/register"
	resetPassword "marketplace_auth/internal/http_server/handlers/reset_password"
	revokeTokens "marketplace_auth/internal/http_server/handlers/revoke_tokens"
	validateReset "marketplace_auth/internal/http_server/handlers/validate_reset"
	"marketplace_auth/internal/jobs"
	"marketplace_auth/internal/lib/jwt"
	sl "marketplace_auth/internal/lib/logger"
	"marketplace_auth/internal/lib/password"
	"marketplace_auth/internal/middleware/authn"
	rateLimit "marketplace_auth/internal/middleware/ratelimit"
	"marketplace_auth/internal/notification"
	"marketplace_auth/internal/rabbitmq"
	"marketplace_auth/internal/storage/bolt"
	"marketplace_auth/internal/storage/postgres"
	"marketplace_auth/internal/storage/redis"
	"marketplace_auth/internal/storage/sqlite"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"
)

type credentialStore interface {
	auth.UserSaver
	auth.UserProvider
	auth.TokenStore
}

func main() {
	cfg := config.MustLoad()

	log := sl.Setup(cfg.Env)

	log.Info("starting auth service", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Error("failed to open credential store", sl.Err(err))
		os.Exit(1)
	}
	defer closeStore()

	denylist, purger, closeDenylist, err := openDenylist(ctx, cfg)
	if err != nil {
		log.Error("failed to open reset token denylist", sl.Err(err))
		os.Exit(1)
	}
	defer closeDenylist()

	msgBroker, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Error("failed to connect rabbitmq", sl.Err(err))
		os.Exit(1)
	}
	defer msgBroker.Close()

	hasher, err := password.New(cfg.Password.BcryptCost)
	if err != nil {
		log.Error("failed to init password hasher", sl.Err(err))
		os.Exit(1)
	}

	signer := jwt.NewSigner(cfg.Tokens.Secret, cfg.Tokens.Issuer, cfg.Tokens.Audience, cfg.Tokens.AccessTokenTTL)

	tokenService := auth.NewTokenService(
		log,
		signer,
		store,
		store,
		cfg.Tokens.RefreshTokenTTL,
		cfg.Tokens.RememberMeRefreshTokenTTL,
	)

	authService := auth.New(
		log,
		hasher,
		store,
		store,
		tokenService,
		denylist,
		notification.New(log, msgBroker, cfg.HTTPServer.PublicURL),
		cfg.Tokens.PasswordResetTokenTTL,
	)

	scheduler := jobs.NewScheduler(log, cfg.Cleanup.Schedule, tokenService, purger)
	if err := scheduler.Start(); err != nil {
		log.Error("failed to start cleanup scheduler", sl.Err(err))
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      setupRouter(log, authService, signer),
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", sl.Err(err))
			stop()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", sl.Err(err))
	} else {
		log.Info("Server stopped gracefully")
	}

	scheduler.Stop(shutdownCtx)

	log.Info("Main service stopped")
}

func setupRouter(log *slog.Logger, authService *auth.Auth, signer *jwt.Signer) *chi.Mux {
	validate := validator.New()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/auth", func(r chi.Router) {
		r.With(rateLimit.Register()).Post("/register", register.New(log, validate, authService))
		r.With(rateLimit.Login()).Post("/login", login.New(log, validate, authService))
		r.With(rateLimit.Refresh()).Post("/refresh", refresh.New(log, validate, authService))
		r.With(rateLimit.Logout()).Post("/logout", logout.New(log, validate, authService))
		r.With(rateLimit.ForgotPassword()).Post("/forgot-password", forgotPassword.New(log, validate, authService))
		r.With(rateLimit.ResetPassword()).Post("/reset-password", resetPassword.New(log, validate, authService))
		r.With(rateLimit.ResetPassword()).Get("/reset-password/validate", validateReset.New(log, authService))

		r.Group(func(r chi.Router) {
			r.Use(authn.New(log, signer))

			r.With(rateLimit.ChangePassword()).Post("/change-password", changePassword.New(log, validate, authService))
			r.Post("/users/{id}/revoke-tokens", revokeTokens.New(log, authService))
		})
	})

	return r
}

func openStore(ctx context.Context, cfg *config.Config) (credentialStore, func(), error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverSQLite:
		repo, err := sqlite.New(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { _ = repo.Close() }, nil
	default:
		repo, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	}
}

// openDenylist returns a purger only for the bolt driver; Redis expires keys
// itself.
func openDenylist(ctx context.Context, cfg *config.Config) (auth.ResetTokenDenylist, jobs.DenylistPurger, func(), error) {
	switch cfg.Denylist.Driver {
	case config.DenylistDriverBolt:
		repo, err := bolt.New(ctx, cfg.Denylist.BoltPath)
		if err != nil {
			return nil, nil, nil, err
		}
		return repo, repo, func() { _ = repo.Close() }, nil
	default:
		repo, err := redis.New(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, nil, err
		}
		return repo, nil, repo.Close, nil
	}
}
