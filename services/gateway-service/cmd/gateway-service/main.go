package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/itaybe6/barber-English-sub002/libs/auth"
	"github.com/itaybe6/barber-English-sub002/libs/config"
	"github.com/itaybe6/barber-English-sub002/libs/httpx"
	otelx "github.com/itaybe6/barber-English-sub002/libs/otel"
	"github.com/itaybe6/barber-English-sub002/libs/runtime"
	"github.com/redis/go-redis/v9"
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
	service := config.String("SERVICE_NAME", "gateway-service")
	port := must(config.Port("PORT", "8080"))
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

	jwtSecret := must(config.RequiredString("JWT_SECRET"))
	verifier := auth.NewVerifier(jwtSecret, config.String("JWT_ISSUER", "salon-auth"))

	var checks []runtime.ReadyCheck
	limiter := rateLimit(logger, &checks)

	mux := runtime.NewBaseMuxWithReady(checks...)
	if err := registerRoutes(mux, Upstreams{
		Auth:         config.String("AUTH_URL", "http://auth-service:8081"),
		Booking:      config.String("BOOKING_URL", "http://booking-service:8083"),
		Notification: config.String("NOTIFICATION_URL", "http://notification-service:8085"),
	}, verifier); err != nil {
		logger.Error("route setup failed", "err", err)
		panic(err)
	}

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.DefaultCORSPolicy(config.List("CORS_ALLOWED_ORIGINS"))),
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(must(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20)))),
		httpx.WithTimeout(must(config.Duration("REQUEST_TIMEOUT", 10*time.Second))),
		limiter,
	)
	handler = otelhttp.NewHandler(handler, "gateway")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.ServeHTTP(ctx, srv, logger, 10*time.Second)
}

// rateLimit counts per client across gateway replicas when REDIS_URL is set.
func rateLimit(logger *slog.Logger, checks *[]runtime.ReadyCheck) httpx.Middleware {
	limit := must(config.Int("RATE_LIMIT_PER_MINUTE", 120))
	redisURL := config.String("REDIS_URL", "")
	if redisURL == "" {
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limit)
		return httpx.NewRateLimiter(limit, time.Minute, httpx.ClientKey).Middleware()
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Error("invalid REDIS_URL; using in-memory rate limiter", "err", err)
		return httpx.NewRateLimiter(limit, time.Minute, httpx.ClientKey).Middleware()
	}
	rdb := redis.NewClient(opts)
	*checks = append(*checks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb), Optional: true})
	logger.Info("rate limiting enabled (redis)", "per_minute", limit)
	return httpx.NewRedisRateLimiter(rdb, limit, time.Minute, "gateway:ratelimit", httpx.ClientKey).
		Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
}
