package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/api"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/config"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/factory"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults to $SNL_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.Log, os.Stdout)
	if err != nil {
		slog.Error("failed to create logger", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.SetDefault(logger)

	app, err := factory.New(factory.ConfigFrom(cfg, logger))
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	server := api.NewServer(app.Handler(), api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)

	// Long polls would hold shutdown open until they time out
	server.OnShutdown(app.Poll.Close)

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Sweep expired polling connections in the background
	go app.Run(ctx)

	logger.Info("server starting",
		slog.String("addr", server.Addr()),
		slog.String("storage", app.StorageType),
	)

	exitCode := 0
	if err := server.Run(ctx); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		exitCode = 1
	}

	if err := app.Close(); err != nil {
		logger.Error("failed to release resources", slog.String("error", err.Error()))
		exitCode = 1
	}

	logger.Info("server stopped")
	os.Exit(exitCode)
}
