package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/keremoktener/zentra/internal/api/router"
	"github.com/keremoktener/zentra/internal/booking"
	appconfig "github.com/keremoktener/zentra/internal/config"
	"github.com/keremoktener/zentra/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting zentra booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	var (
		calendar booking.Calendar
		services booking.ServiceStore
		ledger   booking.Ledger
	)
	if cfg.UseMemoryStore || cfg.DatabaseURL == "" {
		logger.Warn("running with in-memory stores; bookings will not survive restarts")
		calendar = booking.NewMemoryCalendar()
		services = booking.NewMemoryServiceStore()
		ledger = booking.NewMemoryLedger()
	} else {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create pgx pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Error("database not reachable", "error", err)
			os.Exit(1)
		}
		calendar = booking.NewPostgresCalendar(pool)
		services = booking.NewPostgresServiceStore(pool)
		ledger = booking.NewPostgresLedger(pool)
	}

	var idempotency *booking.IdempotencyStore
	if redisClient := buildRedisClient(ctx, cfg, logger); redisClient != nil {
		idempotency = booking.NewIdempotencyStore(redisClient, cfg.IdempotencyTTL)
	}

	loc := time.Local
	if tz := strings.TrimSpace(cfg.BusinessTimezone); tz != "" && !strings.EqualFold(tz, "Local") {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			logger.Warn("invalid BUSINESS_TIMEZONE, falling back to local", "tz", tz, "error", err)
		} else {
			loc = parsed
		}
	}

	metrics := booking.NewMetrics(nil)
	coordinator := booking.NewCoordinator(calendar, services, ledger, booking.ResolverOptions{
		GranularityMinutes: cfg.SlotGranularityMinutes,
		MinLeadTime:        cfg.MinLeadTime,
		Location:           loc,
	}, idempotency, metrics, logger)

	bookingHandler := booking.NewHandler(coordinator, calendar, services, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		BookingHandler:     bookingHandler,
		MetricsHandler:     promhttp.Handler(),
		AdminJWTSecret:     cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
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

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// buildRedisClient returns nil when redis is not configured or not
// reachable; the engine then runs without idempotency-key support.
func buildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *redis.Client {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	options := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		options.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available, idempotency keys disabled", "error", err)
		return nil
	}
	return client
}
