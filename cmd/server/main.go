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

	"github.com/cropsight/cropsight-api/internal/api"
	"github.com/cropsight/cropsight-api/internal/config"
	"github.com/cropsight/cropsight-api/internal/inference"
	"github.com/cropsight/cropsight-api/internal/monitor"
	"github.com/cropsight/cropsight-api/internal/pipeline"
	"github.com/cropsight/cropsight-api/internal/platform/logger"
	"github.com/cropsight/cropsight-api/internal/platform/postgres"
	"github.com/cropsight/cropsight-api/internal/store"
	"github.com/cropsight/cropsight-api/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.Setup(cfg.Server)
	log.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// An empty database URL selects the in-memory store for local
	// development; production deployments configure PostgreSQL.
	var kv store.KV
	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		if err := postgres.Migrate(db); err != nil {
			return err
		}
		log.Info("database ready")

		kv = postgres.NewKVStore(db, log)
	} else {
		log.Warn("no database URL configured, using in-memory store")
		kv = store.NewMemStore()
	}

	inferenceClient := inference.NewClient(
		cfg.Inference.BaseURL,
		time.Duration(cfg.Inference.TimeoutSeconds)*time.Second,
		log,
	)

	orchestrator := pipeline.NewOrchestrator(
		kv, inferenceClient,
		time.Duration(cfg.Monitoring.StatusTTLSeconds)*time.Second,
		log,
	)
	sessions := monitor.NewSessionManager(kv, log)
	registry := ws.NewRegistry(cfg.Monitoring.DefaultIntervalMinutes, log)

	router := api.NewRouter(
		api.NewPipelineHandler(orchestrator),
		api.NewMonitoringHandler(sessions),
		api.NewWSHandler(registry, sessions, log),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed to start: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}

	// Stop scheduler loops and close station connections, then let in-flight
	// pipeline runs finish writing their terminal status.
	registry.Shutdown()
	orchestrator.Wait()

	log.Info("server stopped")
	return nil
}
