package main

import (
	"context"
	"flag"
	"incident-pipeline/internal/api"
	"incident-pipeline/internal/api/handler"
	"incident-pipeline/internal/config"
	"incident-pipeline/internal/logging"
	"incident-pipeline/internal/store"
	"incident-pipeline/pkg/router"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
)

// @title Incident Pipeline Status API
// @version 1.0
// @description Read-only history of incident export and HunchLab upload runs.
// @host localhost:8080
// @BasePath /
func main() {
	configPath := flag.String("config", config.DefaultPath, "configuration file")
	flag.Parse()

	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}

	cfg, err := config.Read(*configPath)
	if err == nil {
		err = cfg.ValidateService()
	}
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(3)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	// Init DB
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open run store", "path", cfg.Store.Path, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// Create router
	r := router.New(logger)
	r.Pretty = strings.ToLower(cfg.Logging.Format) != "json"

	// Register API routes
	api.RegisterRoutes(r, handler.New(st))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server
	if err := r.Start(ctx, cfg.API.Addr, cfg.API.ShutdownTimeout); err != nil {
		logger.Error("server stopped", "error", err)
		st.Close()
		os.Exit(1)
	}
}
