package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/scriptvox/internal/app"
	"github.com/MrWong99/scriptvox/internal/config"
	"github.com/MrWong99/scriptvox/internal/observe"
)

// version is set at link time.
var version = "dev"

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, flags.configPath)
		},
	}
}

func serve(parent context.Context, cfg *config.Config, configPath string) error {
	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(os.Stderr, level, cfg.Server.LogFormat))

	slog.Info("scriptvox starting",
		"version", version,
		"config", configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.Setup(ctx, observe.TelemetryConfig{ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg.Audio)

	providers, err := buildProviders(ctx, cfg, reg)
	if err != nil {
		return err
	}

	application, err := app.New(ctx, cfg, providers,
		app.WithMetrics(tel.Metrics()),
		app.WithMetricsHandler(tel.Handler()),
		app.WithConfigWatch(configPath, level),
	)
	if err != nil {
		closeStore(providers.Store)
		return fmt.Errorf("initialise application: %w", err)
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	} else {
		runErr = nil
		slog.Info("shutdown signal received, stopping")
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		return errors.Join(runErr, fmt.Errorf("shutdown: %w", err))
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	if runErr == nil {
		slog.Info("goodbye")
	}
	return runErr
}
