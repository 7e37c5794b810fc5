package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/itaybe6/barber-English-sub002/libs/auth"
	"github.com/itaybe6/barber-English-sub002/libs/config"
	"github.com/itaybe6/barber-English-sub002/libs/db"
	"github.com/itaybe6/barber-English-sub002/libs/grpcx"
	"github.com/itaybe6/barber-English-sub002/libs/httpx"
	"github.com/itaybe6/barber-English-sub002/libs/kafkax"
	otelx "github.com/itaybe6/barber-English-sub002/libs/otel"
	"github.com/itaybe6/barber-English-sub002/libs/outbox"
	"github.com/itaybe6/barber-English-sub002/libs/runtime"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/appointments"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/dispatch"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/handlers"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/notify"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/recurring"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/storage"
	"github.com/itaybe6/barber-English-sub002/services/booking-service/internal/waitlist"
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
	service := config.String("SERVICE_NAME", "booking-service")
	port := must(config.Port("PORT", "8083"))
	grpcPort := must(config.Port("GRPC_PORT", "9093"))
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

	loc := must(config.Location("BUSINESS_TIMEZONE", "Asia/Jerusalem"))
	phoneRegion := config.String("PHONE_REGION", "IL")
	slotMinutes := must(config.Int("SLOT_DURATION_MINUTES", 30))
	seedInterval := must(config.Duration("RECURRING_SEED_INTERVAL", time.Hour))
	seedWeeks := must(config.Int("RECURRING_SEED_WEEKS", 2))
	jwtSecret := must(config.RequiredString("JWT_SECRET"))
	dbURL := must(config.RequiredString("DATABASE_URL"))
	brokers := config.String("KAFKA_BROKERS", "")

	pool, err := db.Open(ctx, dbURL, db.Options{})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	ruleRepo := storage.NewRuleRepository(pool)
	apptRepo := storage.NewAppointmentRepository(pool)
	waitRepo := storage.NewWaitlistRepository(pool)
	outboxRepo := outbox.NewRepository()

	dispatcher := dispatch.New(logger, storage.NewFailureRepository(pool), dispatch.Config{})
	defer dispatcher.Close()
	emitter := notify.NewEmitter(pool, outboxRepo)

	recurringSvc := recurring.NewService(ruleRepo, apptRepo, emitter, dispatcher, logger, recurring.Config{
		Location:        loc,
		PhoneRegion:     phoneRegion,
		DurationMinutes: slotMinutes,
	})
	waitlistSvc := waitlist.NewService(waitRepo, emitter, dispatcher, logger, waitlist.Config{
		Location:    loc,
		PhoneRegion: phoneRegion,
	})
	appointmentSvc := appointments.NewService(apptRepo, emitter, waitlistSvc, dispatcher, logger, appointments.Config{
		Location:        loc,
		PhoneRegion:     phoneRegion,
		DurationMinutes: slotMinutes,
	})

	go outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	}).Run(ctx)
	go recurring.NewWorker(recurringSvc, logger, recurring.WorkerConfig{
		Interval: seedInterval,
		Weeks:    seedWeeks,
	}).Run(ctx)

	healthSrv := grpcx.NewHealthServer(logger)
	healthSrv.SetServing("", true)
	healthSrv.SetServing(service, true)
	go func() {
		if err := healthSrv.Serve(ctx, ":"+grpcPort); err != nil {
			logger.Error("grpc health server error", "err", err)
		}
	}()

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers), Optional: true},
	}
	staffAuth := auth.RequireStaff(auth.NewVerifier(jwtSecret, config.String("JWT_ISSUER", "salon-auth")))
	tenant := httpx.WithBusiness(config.String("DEFAULT_BUSINESS_ID", ""))
	publicLimit := publicRateLimit(logger, &checks)

	routes := handlers.Routes{
		Recurring:    handlers.NewRecurringHandler(recurringSvc, logger),
		Waitlist:     handlers.NewWaitlistHandler(waitlistSvc, logger),
		Appointments: handlers.NewAppointmentHandler(appointmentSvc, logger),
		Staff:        staffAuth,
		Public: func(next http.Handler) http.Handler {
			return httpx.Chain(next, tenant, publicLimit)
		},
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	routes.Mount(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.DefaultCORSPolicy(config.List("CORS_ALLOWED_ORIGINS"))),
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.ServeHTTP(ctx, srv, logger, 10*time.Second)
}

// publicRateLimit shares counters through Redis when REDIS_URL is set and
// falls back to a per-process limiter otherwise.
func publicRateLimit(logger *slog.Logger, checks *[]runtime.ReadyCheck) httpx.Middleware {
	limit := must(config.Int("PUBLIC_RATE_LIMIT", 30))
	window := must(config.Duration("PUBLIC_RATE_WINDOW", time.Minute))

	redisURL := config.String("REDIS_URL", "")
	if redisURL == "" {
		return httpx.NewRateLimiter(limit, window, httpx.ClientKey).Middleware()
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Error("invalid REDIS_URL; using in-memory rate limiter", "err", err)
		return httpx.NewRateLimiter(limit, window, httpx.ClientKey).Middleware()
	}
	rdb := redis.NewClient(opts)
	*checks = append(*checks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb), Optional: true})
	return httpx.NewRedisRateLimiter(rdb, limit, window, "booking:ratelimit", httpx.ClientKey).Middleware(logger, true)
}
