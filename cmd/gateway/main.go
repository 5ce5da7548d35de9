// Package main provides the entry point for the routing dispatcher
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fuaadabdullah/inference-gateway/internal/backend"
	"github.com/fuaadabdullah/inference-gateway/internal/cache"
	"github.com/fuaadabdullah/inference-gateway/internal/classifier"
	"github.com/fuaadabdullah/inference-gateway/internal/config"
	"github.com/fuaadabdullah/inference-gateway/internal/dispatcher"
	"github.com/fuaadabdullah/inference-gateway/internal/health"
	"github.com/fuaadabdullah/inference-gateway/internal/metrics"
	"github.com/fuaadabdullah/inference-gateway/internal/storage"
	"github.com/fuaadabdullah/inference-gateway/pkg/types"
	"github.com/fuaadabdullah/inference-gateway/pkg/utils"
)

func main() {
	// .env is optional; real deployments set environment variables directly
	_ = godotenv.Load()

	configManager := config.NewGatewayManager()
	if err := configManager.Load(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.Get()

	logger := utils.NewLogger(&cfg.Logging)

	collector := metrics.NewCollector(cfg.Metrics.WindowSize)

	// Redis backs both the response cache and the shared failover state.
	// The gateway stays up without it: cache fails open and the health
	// state degrades to in-process memory.
	var cacheStore cache.Store
	var stateStore health.StateStore
	redisClient, err := storage.NewRedisClient(&cfg.Redis, logger)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, running with in-memory failover state and no cache")
		stateStore = health.NewMemoryStateStore()
	} else {
		defer redisClient.Close()
		cacheStore = redisClient
		stateStore = health.NewRedisStateStore(redisClient, cfg.Health.StateKey, cfg.Health.StateTTL)
	}

	responseCache := cache.New(cacheStore, &cfg.Cache, logger, collector)

	var audit *storage.AuditLog
	if cfg.Database.Enabled {
		audit, err = storage.NewAuditLog(&cfg.Database, logger)
		if err != nil {
			logger.WithError(err).Warn("Audit log unavailable, continuing without it")
			audit = nil
		} else {
			defer audit.Close()
		}
	}

	monitor := health.NewMonitor(
		health.NewHTTPProber(cfg.Backends.PrimaryURL),
		stateStore,
		&cfg.Health,
		logger,
		collector,
	)

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	go monitor.Run(monitorCtx)

	local := backend.NewLocal(&cfg.Backends, logger)
	remote := backend.NewRemote(&cfg.Backends, &cfg.Auth)

	d := dispatcher.New(
		responseCache,
		classifier.New(&cfg.Classifier),
		health.NewReader(stateStore, logger),
		monitor,
		local,
		remote,
		collector,
		logger,
	)

	server := dispatcher.NewServer(cfg, d, responseCache, collector, health.NewReader(stateStore, logger), audit, logger)

	configManager.Watch(func(updated *types.GatewayConfig) {
		logger.Info("Configuration reloaded")
		d.SetClassifier(classifier.New(&updated.Classifier))
		server.ApplyConfig(updated)
	})

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Failed to start gateway: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	stopMonitor()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
