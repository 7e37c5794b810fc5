package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/itaybe6/barber-English-sub002/libs/auth"
	"github.com/itaybe6/barber-English-sub002/libs/config"
	"github.com/itaybe6/barber-English-sub002/libs/db"
	"github.com/itaybe6/barber-English-sub002/libs/httpx"
	otelx "github.com/itaybe6/barber-English-sub002/libs/otel"
	"github.com/itaybe6/barber-English-sub002/libs/runtime"
	"github.com/itaybe6/barber-English-sub002/services/auth-service/internal/accounts"
	"github.com/itaybe6/barber-English-sub002/services/auth-service/internal/audit"
	"github.com/itaybe6/barber-English-sub002/services/auth-service/internal/handlers"
	"github.com/itaybe6/barber-English-sub002/services/auth-service/internal/mail"
	"github.com/itaybe6/barber-English-sub002/services/auth-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "auth-service")
	port := must(config.Port("PORT", "8081"))
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL := must(config.RequiredString("DATABASE_URL"))
	jwtSecret := must(config.RequiredString("JWT_SECRET"))
	issuer := config.String("JWT_ISSUER", "salon-auth")
	tokenTTL := must(config.Duration("JWT_TTL", 12*time.Hour))
	resetTTL := must(config.Duration("PASSWORD_RESET_TTL", 30*time.Minute))
	minPassword := must(config.Int("PASSWORD_MIN_LENGTH", 8))

	pool, err := db.Open(ctx, dbURL, db.Options{})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	signer, err := auth.NewSigner(jwtSecret, issuer, tokenTTL)
	if err != nil {
		logger.Error("failed to init jwt signer", "err", err)
		panic(err)
	}

	auditRepo := audit.NewRepository(pool)
	accountSvc := accounts.NewService(
		storage.NewUserRepository(pool),
		storage.NewResetRepository(pool),
		buildMailer(logger),
		signer,
		auditRepo,
		logger,
		accounts.Config{
			ResetURL:          config.String("PASSWORD_RESET_URL", "http://localhost:3000/reset-password"),
			ResetTTL:          resetTTL,
			MinPasswordLength: minPassword,
		},
	)

	resetLimit := httpx.NewRateLimiter(
		must(config.Int("AUTH_RATE_LIMIT", 10)),
		must(config.Duration("AUTH_RATE_WINDOW", time.Minute)),
		httpx.ClientKey,
	).Middleware()

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
	)
	handlers.Routes{
		Auth:       handlers.NewAuthHandler(accountSvc, auditRepo, logger),
		Staff:      auth.RequireStaff(auth.NewVerifier(jwtSecret, issuer)),
		ResetLimit: resetLimit,
	}.Mount(mux)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.DefaultCORSPolicy(config.List("CORS_ALLOWED_ORIGINS"))),
		httpx.WithBodyLimit(64<<10),
	)
	handler = otelhttp.NewHandler(handler, "auth")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.ServeHTTP(ctx, srv, logger, 10*time.Second)
}

// buildMailer sends through SMTP when SMTP_HOST is set and only logs otherwise.
func buildMailer(logger *slog.Logger) mail.Mailer {
	host := config.String("SMTP_HOST", "")
	if host == "" {
		logger.Warn("SMTP_HOST not set; password reset emails are logged, not sent")
		return mail.NewLogMailer(logger)
	}
	m, err := mail.NewSMTPMailer(mail.SMTPConfig{
		Host:     host,
		Port:     must(config.Int("SMTP_PORT", 587)),
		Username: config.String("SMTP_USERNAME", ""),
		Password: config.String("SMTP_PASSWORD", ""),
		From:     config.String("SMTP_FROM", ""),
		SSL:      config.Bool("SMTP_SSL", false),
		Timeout:  must(config.Duration("SMTP_TIMEOUT", 10*time.Second)),
	})
	if err != nil {
		logger.Error("smtp config invalid", "err", err)
		panic(err)
	}
	return m
}
