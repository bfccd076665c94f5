package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fenilmodi00/ipo-allotment-client/config"
	"github.com/fenilmodi00/ipo-allotment-client/database"
	"github.com/fenilmodi00/ipo-allotment-client/handlers"
	"github.com/fenilmodi00/ipo-allotment-client/jobs"
	"github.com/fenilmodi00/ipo-allotment-client/services"
	"github.com/fenilmodi00/ipo-allotment-client/shared"
	"github.com/fenilmodi00/ipo-allotment-client/storage"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load config
	cfg := config.LoadConfig()
	unified := cfg.Unified()
	shared.ConfigureLogging(unified.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Open the key-value store holding unsaved PANs and allotment caches
	kv, err := storage.Open(ctx, unified.Store)
	if err != nil {
		logrus.Fatalf("Failed to open %s store: %v", unified.Store.Driver, err)
	}
	defer kv.Close()

	healthChecks := map[string]handlers.HealthCheck{
		"store": func(ctx context.Context) error {
			_, _, err := kv.Get(ctx, "HEALTH_PROBE")
			return err
		},
	}
	if pg, ok := kv.(*storage.PostgresStore); ok {
		healthChecks["database"] = func(ctx context.Context) error {
			return database.HealthCheck(ctx, pg.DB)
		}
	}

	// Initialize services
	backend := services.NewBackendClient(unified.Service)
	defer backend.Close()

	var cloud services.CloudPANClient
	if unified.Service.AuthToken != "" {
		cloud = backend
	}
	registry := services.NewPANRegistry(services.NewLocalPANStore(kv), cloud, unified.Service.AuthToken)
	poller := services.NewPollingClient(backend, unified.Polling)
	allotmentService := services.NewAllotmentService(registry, services.NewAllotmentCacheStore(kv), poller, unified.Reconcile)
	defer allotmentService.Close()

	logrus.WithFields(logrus.Fields{
		"store":            unified.Store.Driver,
		"backend":          unified.Service.BaseURL,
		"cloud_pans":       cloud != nil,
		"poll_max_retries": unified.Polling.MaxRetries,
		"poll_interval":    unified.Polling.RetryInterval,
		"pan_pacing":       unified.Reconcile.PANPacing,
	}).Info("IPO allotment client services initialized")

	// Start Background Jobs
	if cloud != nil {
		jobs.NewCloudPANRefreshJob(registry, unified.Reconcile.RecheckInterval).Start(ctx)
	}
	jobs.NewPendingRecheckJob(allotmentService, unified.Reconcile.RecheckInterval).Start(ctx)

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				poller.Metrics().LogSummary()
				backend.Metrics().LogSummary()
			}
		}
	}()

	// Setup Fiber
	app := fiber.New()

	// Middleware
	app.Use(logger.New())
	app.Use(cors.New())

	handlers.RegisterRoutes(app,
		handlers.NewAllotmentHandler(allotmentService),
		handlers.NewPANHandler(allotmentService),
		handlers.NewPerformanceHandler(allotmentService, healthChecks, poller.Metrics(), backend.Metrics()),
	)

	go func() {
		<-ctx.Done()
		logrus.Info("Shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logrus.WithError(err).Warn("Server shutdown failed")
		}
	}()

	// Start server
	logrus.Infof("Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		logrus.Fatalf("Server failed to start: %v", err)
	}
}
