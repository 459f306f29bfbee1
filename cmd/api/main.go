package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/careloop/booking-platform/internal/api/router"
	"github.com/careloop/booking-platform/internal/appointments"
	appconfig "github.com/careloop/booking-platform/internal/config"
	"github.com/careloop/booking-platform/internal/db"
	"github.com/careloop/booking-platform/internal/notifications"
	"github.com/careloop/booking-platform/internal/observability/metrics"
	"github.com/careloop/booking-platform/internal/rules"
	"github.com/careloop/booking-platform/internal/schedule"
	"github.com/careloop/booking-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := db.ConnectRedis(ctx, db.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		TLS:      cfg.RedisTLS,
	})
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	bookingMetrics := metrics.NewBookingMetrics(registry)
	hubMetrics := metrics.NewHubMetrics(registry)

	// Stores and repositories.
	ruleRepo := rules.NewRepository(pool)
	slotStore := schedule.NewStore(pool)
	apptRepo := appointments.NewPgRepository(pool)
	notifStore := notifications.NewRepository(pool)
	unreadCounter := notifications.NewUnreadCounter(redisClient, notifStore, logger)

	// Notification hub with the optional email mirror.
	hubOpts := []notifications.HubOption{
		notifications.WithBuffer(cfg.SubscriberBuffer),
		notifications.WithMetrics(hubMetrics),
	}
	if cfg.SendGridAPIKey != "" && cfg.SendGridFromEmail != "" {
		sender := notifications.NewSendGridSender(cfg.SendGridAPIKey, cfg.SendGridFromName, cfg.SendGridFromEmail, logger)
		lookup := userEmailLookup(pool)
		hubOpts = append(hubOpts, notifications.WithEmailMirror(sender, lookup))
		logger.Info("email mirror enabled", "from", cfg.SendGridFromEmail)
	}
	hub := notifications.NewHub(notifStore, unreadCounter, logger, hubOpts...)

	apptService := appointments.NewService(apptRepo, hub, bookingMetrics, logger)

	// Handlers.
	routerCfg := &router.Config{
		Logger:               logger,
		RulesHandler:         rules.NewHandler(ruleRepo, logger),
		ScheduleHandler:      schedule.NewHandler(slotStore, ruleRepo, cfg.MaxExpansionDays, logger),
		AppointmentsHandler:  appointments.NewHandler(apptService, logger),
		NotificationsHandler: notifications.NewHandler(notifStore, unreadCounter, logger),
		SSEHandler:           notifications.NewSSEHandler(hub, notifStore, cfg.SSEHeartbeat, logger),
		MetricsHandler:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		HealthCheck: func(r *http.Request) error {
			pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			return pool.Ping(pingCtx)
		},
		AuthJWTSecret:      cfg.AuthJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		BookingRateLimit:   5,
		BookingRateBurst:   10,
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// No write timeout: the SSE stream holds its response open.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// userEmailLookup resolves notification recipients against the synced
// contact table. Users without a contact row simply skip the mirror.
func userEmailLookup(pool *pgxpool.Pool) notifications.RecipientLookup {
	return func(ctx context.Context, userID uuid.UUID) (string, string, bool) {
		var email, name string
		err := pool.QueryRow(ctx, `SELECT email, display_name FROM user_contacts WHERE user_id = $1`, userID).
			Scan(&email, &name)
		if err != nil || email == "" {
			return "", "", false
		}
		return email, name, true
	}
}
