package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ezelectronics/ezelectronics-go-app/internal/api"
	"github.com/ezelectronics/ezelectronics-go-app/internal/db"
	"github.com/ezelectronics/ezelectronics-go-app/internal/lock"
	"github.com/ezelectronics/ezelectronics-go-app/internal/logging"
	"github.com/ezelectronics/ezelectronics-go-app/internal/metrics"
	"github.com/ezelectronics/ezelectronics-go-app/internal/services"
	"github.com/ezelectronics/ezelectronics-go-app/pkg/config"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()

	logger, err := logging.New(cfg.LogLevel, cfg.IsDevelopment(), cfg.OTELServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	appMetrics, meterProvider, err := metrics.InitMetrics(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize metrics", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down meter provider", zap.Error(err))
		}
	}()

	database, err := db.NewDB(cfg.GetDSN(), meterProvider.Meter(cfg.OTELServiceName), cfg.OTELServiceName, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	schemaSQL, err := os.ReadFile(cfg.SchemaPath)
	if err != nil {
		logger.Warn("could not read schema, assuming it already exists", zap.String("path", cfg.SchemaPath), zap.Error(err))
	} else if err := database.InitSchema(ctx, string(schemaSQL)); err != nil {
		logger.Warn("could not initialize schema, assuming it already exists", zap.Error(err))
	}

	locker, closeLocker := newLocker(ctx, cfg, logger)
	defer closeLocker()

	ledgerService := services.NewLedgerService(database, appMetrics, logger)
	cartService := services.NewCartService(database, ledgerService, locker, appMetrics, logger)
	userService := services.NewUserService(database, appMetrics)

	go cartService.MonitorOpenCarts(ctx, cfg.CartMonitorInterval)

	app := api.NewApp(cfg, database, appMetrics, ledgerService, cartService, userService, logger)

	router := mux.NewRouter()
	app.SetupRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      otelhttp.NewHandler(router, cfg.OTELServiceName),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("port", cfg.AppPort),
			zap.String("otlp_endpoint", cfg.OTELExporterOTLPEndpoint),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

// newLocker returns a Redis-backed locker when REDIS_ADDR is set so several
// replicas share cart locks, and an in-process one otherwise
func newLocker(ctx context.Context, cfg *config.Config, logger *zap.Logger) (lock.Locker, func()) {
	if cfg.RedisAddr == "" {
		logger.Info("using in-process cart locks")
		return lock.NewProcessLocker(), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Fatal("failed to connect to redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}

	logger.Info("using redis cart locks", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.CartLockTTL))
	return lock.NewRedisLocker(client, cfg.CartLockTTL, logger), func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
}
