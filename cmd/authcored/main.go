package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fennelauth/authcore/internal/api"
	"github.com/fennelauth/authcore/internal/audit"
	"github.com/fennelauth/authcore/internal/clock"
	"github.com/fennelauth/authcore/internal/config"
	"github.com/fennelauth/authcore/internal/credential"
	"github.com/fennelauth/authcore/internal/engine"
	"github.com/fennelauth/authcore/internal/httputil"
	"github.com/fennelauth/authcore/internal/mailer"
	"github.com/fennelauth/authcore/internal/postgres"
	"github.com/fennelauth/authcore/internal/revocation"
	"github.com/fennelauth/authcore/internal/token"
	"github.com/fennelauth/authcore/internal/twofa"
	"github.com/fennelauth/authcore/internal/valkey"
	"github.com/fennelauth/authcore/internal/value"
	"github.com/fennelauth/authcore/internal/workerpool"
)

// Build metadata injected via ldflags at compile time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.IsDevelopment() {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger()
	}

	log.Info().
		Str("version", version).
		Str("commit", commit).
		Str("built", date).
		Str("env", cfg.ServerEnv).
		Msg("Starting authcore")

	if cfg.CORSAllowOrigins == "*" {
		log.Warn().Msg("CORS_ALLOW_ORIGINS is set to a wildcard. Set an explicit origin when in production.")
	}

	ctx := context.Background()

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConn, cfg.DatabaseMinConn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	log.Info().Msg("PostgreSQL connected")

	if err := postgres.Migrate(cfg.DatabaseURL, log.Logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info().Msg("Database migrations complete")

	rdb, err := valkey.Connect(ctx, cfg.ValkeyURL, cfg.ValkeyDialTimeout)
	if err != nil {
		return fmt.Errorf("connect valkey: %w", err)
	}
	defer func() { _ = rdb.Close() }()
	log.Info().Msg("Valkey connected")

	sysClock := clock.System{}
	hashPool := workerpool.New(runtime.NumCPU())

	creds := credential.NewPostgresStore(db, log.Logger, hashPool, hashParams(cfg))
	twoFA := twofa.NewRedisStore(rdb)
	revStore := revocation.NewRedisStore(rdb)

	tokens, err := token.NewService(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTIssuer, cfg.AccessTTL, cfg.RefreshTTL, revStore, rdb, sysClock)
	if err != nil {
		return fmt.Errorf("create token service: %w", err)
	}

	mailerImpl := buildMailer(ctx, cfg, log.Logger)
	auditSink := audit.NewLogSink(log.Logger)

	eng := engine.New(creds, tokens, twoFA, mailerImpl, sysClock, nil, auditSink, cfg)

	app := fiber.New(fiber.Config{
		AppName:   "authcore",
		BodyLimit: cfg.BodyLimitBytes(),
		// ErrorHandler catches errors returned by handlers that are not already mapped to structured API responses
		// (e.g. Fiber's built-in 404/405). errors.AsType is a generic helper added in Go 1.26.
		ErrorHandler: func(c fiber.Ctx, err error) error {
			status := fiber.StatusInternalServerError
			message := "an internal error occurred"
			code := httputil.CodeInternalError
			if fe, ok := errors.AsType[*fiber.Error](err); ok {
				status = fe.Code
				message = fe.Message
				code = fiberStatusToCode(fe.Code)
			} else {
				log.Error().Err(err).
					Str("method", c.Method()).
					Str("path", c.Path()).
					Msg("unhandled error")
			}
			return c.Status(status).JSON(httputil.ErrorResponse{
				Error: httputil.ErrorBody{Code: code, Message: message},
			})
		},
	})

	app.Use(requestid.New())
	if cfg.LogHealthRequests {
		app.Use(httputil.RequestLogger(log.Logger))
	} else {
		app.Use(httputil.RequestLogger(log.Logger, "/api/v1/health"))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:  strings.Split(cfg.CORSAllowOrigins, ","),
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"X-Request-ID"},
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        cfg.RateLimitAPIRequests,
		Expiration: time.Duration(cfg.RateLimitAPIWindowSeconds) * time.Second,
	}))

	registerRoutes(app, eng, cfg, db, rdb, log.Logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("Shutting down server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	log.Info().Str("addr", addr).Msg("Server listening")

	if err := app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

func registerRoutes(app *fiber.App, eng *engine.Engine, cfg *config.Config, db pinger, rdb *redis.Client, logger zerolog.Logger) {
	health := api.NewHealthHandler(db, redisPinger{client: rdb})
	app.Get("/api/v1/health", health.Health)

	authHandler := api.NewAuthHandler(eng, cfg, logger)
	authGroup := app.Group("/api/v1/auth")
	authGroup.Use(limiter.New(limiter.Config{
		Max:        cfg.RateLimitAuthCount,
		Expiration: time.Duration(cfg.RateLimitAuthWindowSeconds) * time.Second,
	}))
	authGroup.Post("/signup", authHandler.Signup)
	authGroup.Post("/login", authHandler.Login)
	authGroup.Post("/verify-2fa", authHandler.VerifyTwoFA)
	authGroup.Post("/logout", authHandler.Logout)
	authGroup.Post("/refresh", authHandler.Refresh)
	authGroup.Post("/forgot-password", authHandler.ForgotPassword)
	authGroup.Post("/reset-password", authHandler.ResetPassword)

	accountHandler := api.NewAccountHandler(eng, cfg, logger)
	accountGroup := app.Group("/api/v1/account")
	accountGroup.Get("/settings", accountHandler.GetSettings)
	accountGroup.Patch("/settings", accountHandler.UpdateSettings)
	accountGroup.Delete("/", accountHandler.Delete)

	app.Use(func(_ fiber.Ctx) error {
		return fiber.ErrNotFound
	})
}

// pinger is satisfied by *pgxpool.Pool; kept local to avoid importing pgxpool into this file just for the type name.
type pinger interface {
	Ping(ctx context.Context) error
}

type redisPinger struct{ client *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.client.Ping(ctx).Err() }

func hashParams(cfg *config.Config) value.HashParams {
	return value.HashParams{
		Memory:      cfg.Argon2Memory,
		Iterations:  cfg.Argon2Iterations,
		Parallelism: cfg.Argon2Parallelism,
		SaltLength:  cfg.Argon2SaltLength,
		KeyLength:   cfg.Argon2KeyLength,
	}
}

func buildMailer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) mailer.Mailer {
	if !cfg.SMTPConfigured() {
		log.Warn().Msg("SMTP_HOST is not configured. 2FA codes will be logged instead of emailed.")
		return mailer.NewLoggingMailer(logger)
	}

	smtpMailer := mailer.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom, cfg.ServerURL)
	if err := smtpMailer.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("SMTP connection test failed. 2FA codes may not be delivered.")
	} else {
		log.Info().Str("host", cfg.SMTPHost).Int("port", cfg.SMTPPort).Msg("SMTP connection verified")
	}
	return smtpMailer
}

func fiberStatusToCode(status int) httputil.ErrCode {
	switch status {
	case fiber.StatusNotFound:
		return httputil.CodeNotFound
	case fiber.StatusTooManyRequests:
		return httputil.CodeRateLimited
	default:
		if status >= 400 && status < 500 {
			return httputil.CodeInvalidBody
		}
		return httputil.CodeInternalError
	}
}
