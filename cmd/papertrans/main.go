// Package main is the papertrans server: the agent-based PDF translation
// workflow behind an HTTP API with SSE and WebSocket progress streams.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/papertrans/papertrans/internal/api"
	"github.com/papertrans/papertrans/internal/common/config"
	"github.com/papertrans/papertrans/internal/common/logger"
	"github.com/papertrans/papertrans/internal/tracing"
	"github.com/papertrans/papertrans/internal/workflow"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting papertrans...")

	// 3. Initialize the workflow runtime: event bus, stores, providers,
	// agent registry and the async task service.
	runtime, cleanup, err := workflow.Provide(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize workflow runtime", zap.Error(err))
	}

	// 4. HTTP surface
	srv, err := api.NewServer(api.Deps{
		Tasks:        runtime.Service,
		Bus:          runtime.Bus,
		Glossaries:   runtime.Glossaries,
		Papers:       runtime.Papers,
		Translations: runtime.Translations,
		Logger:       log,
	})
	if err != nil {
		log.Fatal("Failed to initialize API server", zap.Error(err))
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := srv.Router()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	// Start server
	go func() {
		log.Info("HTTP server listening",
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("API configured",
		zap.String("http", "/api/v1"),
		zap.String("sse", "/sse/translation/:task_id"),
		zap.String("websocket", "/ws/translation/:task_id"),
		zap.String("health", "/health"),
	)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down papertrans...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	if err := cleanup(); err != nil {
		log.Error("Workflow runtime shutdown error", zap.Error(err))
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Error("Tracing shutdown error", zap.Error(err))
	}

	log.Info("papertrans stopped")
}
