// Package main provides the entry point for the inference proxy
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fuaadabdullah/inference-gateway/internal/config"
	"github.com/fuaadabdullah/inference-gateway/internal/proxy"
	"github.com/fuaadabdullah/inference-gateway/pkg/utils"
)

func main() {
	_ = godotenv.Load()

	configManager := config.NewProxyManager()
	if err := configManager.Load(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.Get()

	logger := utils.NewLogger(&cfg.Logging)

	server := proxy.NewServer(cfg, logger)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Failed to start inference proxy: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
