package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/itaybe6/barber-English-sub002/libs/auth"
	"github.com/itaybe6/barber-English-sub002/libs/config"
	"github.com/itaybe6/barber-English-sub002/libs/db"
	"github.com/itaybe6/barber-English-sub002/libs/events"
	"github.com/itaybe6/barber-English-sub002/libs/grpcx"
	"github.com/itaybe6/barber-English-sub002/libs/httpx"
	"github.com/itaybe6/barber-English-sub002/libs/kafkax"
	otelx "github.com/itaybe6/barber-English-sub002/libs/otel"
	"github.com/itaybe6/barber-English-sub002/libs/runtime"
	"github.com/itaybe6/barber-English-sub002/services/notification-service/internal/consumer"
	"github.com/itaybe6/barber-English-sub002/services/notification-service/internal/fanout"
	"github.com/itaybe6/barber-English-sub002/services/notification-service/internal/handlers"
	"github.com/itaybe6/barber-English-sub002/services/notification-service/internal/inbox"
	"github.com/itaybe6/barber-English-sub002/services/notification-service/internal/push"
	"github.com/itaybe6/barber-English-sub002/services/notification-service/internal/sms"
	"github.com/itaybe6/barber-English-sub002/services/notification-service/internal/storage"
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
	service := config.String("SERVICE_NAME", "notification-service")
	port := must(config.Port("PORT", "8085"))
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
	brokers := config.String("KAFKA_BROKERS", "")
	phoneRegion := config.String("PHONE_REGION", "IL")

	pool, err := db.Open(ctx, dbURL, db.Options{})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	repo := storage.NewRepository(pool)
	inboxRepo := inbox.NewRepository(pool)

	fan := fanout.New(repo, pushSender(ctx, logger), smsSender(logger), logger)
	eventConsumer := consumer.New(logger, inboxRepo, consumer.Config{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
		Topics: []string{
			events.TopicWaitlistJoined,
			events.TopicSlotOpened,
			events.TopicRecurringCreated,
			events.TopicAppointmentCancelled,
		},
	}, fan.Handle)
	go eventConsumer.Run(ctx)

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers), Optional: true},
	}
	if addr := config.String("BOOKING_GRPC_ADDR", ""); addr != "" {
		conn, err := grpcx.Dial(addr, grpcx.DialOptions{Timeout: 2 * time.Second})
		if err != nil {
			logger.Error("booking grpc dial failed", "err", err, "addr", addr)
		} else {
			defer conn.Close()
			checks = append(checks, runtime.ReadyCheck{
				Name:     "booking",
				Check:    grpcx.HealthReadyCheck(conn, "booking-service"),
				Optional: true,
			})
		}
	}

	tenant := httpx.WithBusiness(config.String("DEFAULT_BUSINESS_ID", ""))
	routes := handlers.Routes{
		Notifications: handlers.NewNotificationHandler(repo, fan, logger, phoneRegion),
		Staff:         auth.RequireStaff(auth.NewVerifier(jwtSecret, config.String("JWT_ISSUER", "salon-auth"))),
		Public:        tenant,
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	routes.Mount(mux)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.DefaultCORSPolicy(config.List("CORS_ALLOWED_ORIGINS"))),
		httpx.WithBodyLimit(1<<20),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.ServeHTTP(ctx, srv, logger, 10*time.Second)
}

// pushSender uses Firebase Cloud Messaging when PUSH_PROVIDER=fcm or a
// credentials file is configured.
func pushSender(ctx context.Context, logger *slog.Logger) push.Sender {
	provider := strings.ToLower(config.String("PUSH_PROVIDER", ""))
	credentials := config.String("FCM_CREDENTIALS_FILE", "")
	if provider != "fcm" && credentials == "" {
		return push.NewNoopSender()
	}
	s, err := push.NewFCMSender(ctx, credentials, logger)
	if err != nil {
		logger.Error("fcm init failed; push disabled", "err", err)
		return push.NewNoopSender()
	}
	return s
}

func smsSender(logger *slog.Logger) sms.Sender {
	switch strings.ToLower(config.String("SMS_PROVIDER", "noop")) {
	case "webhook":
		return sms.NewWebhookSender(sms.WebhookConfig{
			URL:     config.String("SMS_WEBHOOK_URL", ""),
			Token:   config.String("SMS_WEBHOOK_TOKEN", ""),
			From:    config.String("SMS_FROM", ""),
			Timeout: must(config.Duration("SMS_TIMEOUT", 5*time.Second)),
		})
	case "noop":
		return sms.NewNoopSender()
	default:
		logger.Warn("unknown SMS_PROVIDER; sms disabled")
		return sms.NewNoopSender()
	}
}
