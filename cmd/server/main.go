// Command server runs the Mediahub dashboard.
//
// All settings come from the environment; see internal/config for the
// full list. AUTH_SECRET_KEY is the only required one.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/sakif/mediahub/internal/config"
	"github.com/sakif/mediahub/internal/logger"
	"github.com/sakif/mediahub/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// No configured logger yet.
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New(os.Stdout, cfg.LogLevel, cfg.Debug)

	log.Info("starting",
		slog.String("app", cfg.AppName),
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.Bool("debug", cfg.Debug),
		slog.String("log_level", cfg.LogLevel),
		slog.String("database", config.DatabaseDriver(cfg.DatabaseURL)),
		slog.String("upload_backend", cfg.UploadBackend),
		slog.Bool("chat_enabled", cfg.Azure.Enabled()),
	)
	if cfg.EphemeralSecret {
		log.Warn("AUTH_SECRET_KEY not set; using a random key, sessions end on restart")
	}

	srv, err := server.New(context.Background(), cfg, log)
	if err != nil {
		log.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		log.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
