// Package app wires the database, preferences, backup manager and scheduler
// shared by the server and the command line tool.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dukerupert/crm/internal/backup"
	"github.com/dukerupert/crm/internal/config"
	"github.com/dukerupert/crm/internal/database"
	"github.com/dukerupert/crm/internal/migrate"
	"github.com/dukerupert/crm/internal/scheduler"
	"github.com/dukerupert/crm/internal/store"
	ws "github.com/dukerupert/crm/internal/websocket"
)

type App struct {
	Config    *config.Config
	Handle    *database.Handle
	Prefs     *sql.DB
	Settings  *store.SettingsStore
	Hub       *ws.Hub
	Backups   *backup.Manager
	Platform  *scheduler.CronPlatform
	Scheduler *scheduler.Adapter
	logger    *slog.Logger
}

// Open opens the live database, running pending schema steps, and builds
// the backup manager and scheduler adapter. A migration failure is fatal.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	migrateLogger := logger.With("component", "migrate")
	handle, err := database.NewHandle(ctx, cfg.DatabasePath(), func(ctx context.Context, db *sql.DB) error {
		return migrate.NewRunner(migrate.Steps(), migrateLogger).Run(ctx, db)
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	prefs, err := database.OpenPreferences(cfg.PreferencesPath())
	if err != nil {
		handle.Close()
		return nil, fmt.Errorf("open preferences: %w", err)
	}
	settings := store.NewSettingsStore(prefs)

	hub := ws.NewHub(logger.With("component", "websocket"))

	opts := []backup.Option{
		backup.WithSuspender(handle),
		backup.WithCallback(hub.NotifyBackup),
	}
	if cfg.Mirror.Enabled() {
		opts = append(opts, backup.WithMirror(backup.NewS3Mirror(cfg.Mirror)))
		logger.Info("backup mirror enabled", "bucket", cfg.Mirror.Bucket, "endpoint", cfg.Mirror.Endpoint)
	}
	mgr := backup.NewManager(cfg.BackupManagerConfig(), settings, logger, opts...)

	if err := mgr.Reconcile(ctx); err != nil {
		logger.Warn("backup counter reconcile failed", "error", err)
	}

	platform := scheduler.NewCronPlatform(logger.With("component", "cron"))

	return &App{
		Config:    cfg,
		Handle:    handle,
		Prefs:     prefs,
		Settings:  settings,
		Hub:       hub,
		Backups:   mgr,
		Platform:  platform,
		Scheduler: scheduler.NewAdapter(platform, mgr, logger),
		logger:    logger,
	}, nil
}

// Close stops the scheduler and closes both databases.
func (a *App) Close() error {
	a.Platform.Stop()
	return errors.Join(a.Prefs.Close(), a.Handle.Close())
}
