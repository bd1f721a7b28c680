package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/config"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/core"
	_ "github.com/paulodiramos/tvdefleetonline-sub002/internal/core/entities" // Register motoristas and veiculos
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/database"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/logging"
	"github.com/paulodiramos/tvdefleetonline-sub002/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"auth_enabled", cfg.Security.AuthEnabled(),
	)

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	if err := database.Migrate(ctx, pool); err != nil {
		slog.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	service := core.NewService(pool, core.ServiceConfig{
		PreviewMax: cfg.Export.PreviewMax,
		KeyTTL:     cfg.Upload.KeyTTL,
	})

	for _, def := range core.All() {
		slog.Info("entity registered", "tipo", def.Tipo, "fields", len(def.Fields))
	}

	limiter := core.NewImportLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime)
	server := web.NewServer(service, limiter, cfg)

	jobCtx, cancelJobs := context.WithCancel(context.Background())

	scheduler, err := service.StartArchiveScheduler(jobCtx, core.ArchiveConfig{
		HotRetentionDays:      cfg.Archive.HotRetentionDays,
		ArchiveRetentionYears: cfg.Archive.ArchiveRetentionYears,
		BatchSize:             cfg.Archive.BatchSize,
		Schedule:              cfg.Archive.Schedule,
	})
	if err != nil {
		slog.Error("failed to start archive scheduler", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := limiter.Status(); status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
		}

		// Shutdown also drains the import limiter
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		select {
		case <-scheduler.Stop().Done():
		case <-shutdownCtx.Done():
			slog.Warn("archive job still running at shutdown")
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	<-stopped
	slog.Info("server stopped")
}
