// Command server runs the container provisioning API.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dockhive/dockhive/internal/config"
	"github.com/dockhive/dockhive/internal/engine/docker"
	"github.com/dockhive/dockhive/internal/server"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	dbDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", dbDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	eng, err := docker.New(logger)
	if err != nil {
		logger.Error("failed to connect to the container runtime",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer eng.Close()

	srv, err := server.New(cfg, eng, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
