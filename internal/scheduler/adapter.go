package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/crm/internal/backup"
	"github.com/dukerupert/crm/internal/metrics"
)

// Backups is the part of *backup.Manager the adapter drives.
type Backups interface {
	AutoBackupEnabled() (bool, error)
	SetAutoBackupEnabled(enabled bool) error
	CreateIfDue(ctx context.Context) (backup.Record, bool, error)
	Interval() time.Duration
}

// Adapter connects the persisted auto-backup flag to a platform trigger.
type Adapter struct {
	mu         sync.Mutex
	platform   Platform
	backups    Backups
	token      Token
	registered bool
	logger     *slog.Logger
}

func NewAdapter(platform Platform, backups Backups, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		platform: platform,
		backups:  backups,
		logger:   logger.With("component", "scheduler"),
	}
}

// SetEnabled persists the flag, then installs or removes the platform
// trigger. The flag keeps the requested value even when the platform call
// fails; Resume retries the registration on the next start.
func (a *Adapter) SetEnabled(ctx context.Context, enabled bool) error {
	if err := a.backups.SetAutoBackupEnabled(enabled); err != nil {
		return err
	}
	if enabled {
		return a.register()
	}
	return a.unregister()
}

// Resume registers the trigger when auto backup was left enabled.
func (a *Adapter) Resume(ctx context.Context) error {
	enabled, err := a.backups.AutoBackupEnabled()
	if err != nil {
		return err
	}
	if !enabled {
		return nil
	}
	return a.register()
}

// Registered reports whether a platform trigger is currently installed.
func (a *Adapter) Registered() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.registered
}

// OnTrigger runs a scheduled backup if one is due. Calling it more often
// than the interval is harmless.
func (a *Adapter) OnTrigger(ctx context.Context) Result {
	rec, made, err := a.backups.CreateIfDue(ctx)

	var result Result
	switch {
	case err != nil:
		result = ResultFailed
		a.logger.Error("scheduled backup failed", "error", err)
	case made:
		result = ResultNewData
		a.logger.Info("scheduled backup created", "file", rec.Filename)
	default:
		result = ResultNoData
		a.logger.Debug("scheduled backup not due")
	}
	metrics.SchedulerTriggers.WithLabelValues(result.String()).Inc()
	return result
}

func (a *Adapter) register() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.registered {
		return nil
	}

	interval := a.backups.Interval()
	tok, err := a.platform.Register(interval, a.OnTrigger)
	if err != nil {
		a.logger.Warn("trigger registration failed", "error", err)
		return fmt.Errorf("%w: %v", ErrSchedulerUnavailable, err)
	}
	a.token = tok
	a.registered = true
	a.logger.Info("auto backup scheduled", "interval", interval)
	return nil
}

func (a *Adapter) unregister() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.registered {
		return nil
	}

	if err := a.platform.Unregister(a.token); err != nil {
		a.logger.Warn("trigger removal failed", "error", err)
		return fmt.Errorf("%w: %v", ErrSchedulerUnavailable, err)
	}
	a.registered = false
	a.logger.Info("auto backup unscheduled")
	return nil
}
