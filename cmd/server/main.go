package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/skuimport/internal/config"
	"github.com/JonMunkholm/skuimport/internal/core"
	"github.com/JonMunkholm/skuimport/internal/logging"
	"github.com/JonMunkholm/skuimport/internal/store/postgres"
	"github.com/JonMunkholm/skuimport/internal/web"
)

// cancelDrainTimeout bounds the wait for cancelled runs after a timed-out drain.
const cancelDrainTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	poolConfig, err := cfg.Database.PoolConfig()
	if err != nil {
		slog.Error("invalid database settings", "error", err)
		os.Exit(1)
	}

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
	}

	if cfg.Database.MigrateOnStart {
		if err := postgres.Migrate(ctx, pool); err != nil {
			slog.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		slog.Info("schema applied")
	}

	svcCfg, err := cfg.Import.ServiceConfig()
	if err != nil {
		slog.Error("invalid import settings", "error", err)
		os.Exit(1)
	}
	stores := postgres.New(pool)
	service := core.NewService(core.Stores{
		Catalog:    stores.Catalog,
		Inventory:  stores.Inventory,
		Categories: stores.Categories,
		History:    stores.History,
	}, svcCfg)

	server := web.NewServer(service, cfg)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		if status := service.LimiterStatus(); status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := service.Drain(shutdownCtx); err != nil {
				n := service.CancelAll()
				slog.Warn("imports did not complete in time, cancelled", "cancelled", n, "error", err)

				// Cancelled runs release their connections before the pool closes.
				cancelCtx, cancelWait := context.WithTimeout(context.Background(), cancelDrainTimeout)
				if err := service.Drain(cancelCtx); err != nil {
					slog.Error("cancelled imports still running", "error", err)
				}
				cancelWait()
			} else {
				slog.Info("all imports completed")
			}
		}
	}()

	if err := server.Start(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-stopped
}
