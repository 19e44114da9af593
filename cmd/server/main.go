package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"webhook-ingest/backend/pkg/config"
	"webhook-ingest/backend/pkg/di"
	"webhook-ingest/backend/pkg/health"
	"webhook-ingest/backend/pkg/logger"
	"webhook-ingest/backend/pkg/metrics"
	"webhook-ingest/backend/pkg/router"
)

const serviceName = "webhook-ingest"

func main() {
	// Load configuration; this also reads a .env file when present
	cfg := config.Load()

	// Initialize structured logger
	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"

	log := logger.New(logConfig)
	logger.SetGlobal(log)

	if err := cfg.Validate(); err != nil {
		log.LogError(err, "Invalid configuration")
		os.Exit(1)
	}

	log.Info("Starting application", "version", os.Getenv("APP_VERSION"), "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMeter, err := metrics.SetupMeterProvider(serviceName)
	if err != nil {
		log.LogError(err, "Failed to set up meter provider")
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	if cfg.Observability.TracingEnabled {
		shutdownTracing, err := metrics.SetupTracing(serviceName)
		if err != nil {
			log.LogError(err, "Failed to set up tracing")
			os.Exit(1)
		}
		defer func() { _ = shutdownTracing(context.Background()) }()
	}

	// Initialize dependency injection container
	container, err := di.New(ctx, cfg, log)
	if err != nil {
		log.LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.LogError(err, "Failed to release resources")
		}
	}()

	// Initialize and setup router
	r, err := router.New(ctx, container)
	if err != nil {
		log.LogError(err, "Failed to initialize router")
		os.Exit(1)
	}
	r.SetupRoutes()

	if cfg.Server.GRPCHealthPort != "" {
		reporter := health.NewGRPCReporter(log)
		container.Health.Start(ctx, 10*time.Second, reporter.Update)
		go func() {
			if err := reporter.Serve(ctx, ":"+cfg.Server.GRPCHealthPort); err != nil {
				log.LogError(err, "gRPC health server stopped")
			}
		}()
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start the server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until we receive a signal or the listener fails
	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case err := <-serverErr:
		log.LogError(err, "Server failed to start")
	}

	// Create a deadline to wait for
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown the server
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}

	log.Info("Server exited gracefully")
}
