package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cattle-worker-go/internal/api"
	"cattle-worker-go/internal/config"
	"cattle-worker-go/internal/logging"
	"cattle-worker-go/internal/services"
)

func main() {
	var (
		port     = flag.Int("port", 0, "HTTP port (overrides PORT)")
		workerID = flag.String("worker-id", "", "Worker ID (overrides WORKER_ID)")
		cameras  = flag.String("cameras", "", "YAML camera seed file (overrides CAMERAS_FILE)")
	)
	flag.Parse()

	// Setup structured logging
	zerolog.TimeFieldFormat = time.RFC3339
	console := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = log.Output(console)

	// Load configuration
	cfg := config.Load()
	if *port != 0 {
		cfg.Port = *port
	}
	if *workerID != "" {
		cfg.WorkerID = *workerID
	}
	if *cameras != "" {
		cfg.CamerasFile = *cameras
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogdyEnabled {
		writer, url, err := logging.StartLogdy(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Logdy disabled")
		} else {
			log.Logger = log.Output(io.MultiWriter(console, writer))
			log.Info().Str("url", url).Msg("Logdy UI started")
		}
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("worker_id", cfg.WorkerID).
		Str("version", cfg.Version).
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Str("db", cfg.DBPath).
		Bool("nats_enabled", cfg.NatsEnabled).
		Bool("analyzer_enabled", cfg.AnalyzerGRPCURL != "").
		Msg("Starting Cattle Worker")

	container, err := services.NewServiceContainer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	err = container.Start(startCtx)
	cancelStart()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start services")
	}

	server := api.NewServer(cfg, container)
	if err := server.Setup(); err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("Server failed")
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := container.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Service shutdown incomplete")
	} else {
		log.Info().Msg("Shutdown complete")
	}
}
