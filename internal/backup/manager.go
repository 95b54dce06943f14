package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/dukerupert/crm/internal/database"
	"github.com/dukerupert/crm/internal/metrics"
)

const (
	// DefaultPrefix starts every backup file name.
	DefaultPrefix = "crm_backup"
	// DefaultInterval is the minimum spacing of scheduled backups.
	DefaultInterval = 2 * time.Hour
)

// Trigger records what caused a backup.
type Trigger string

const (
	TriggerManual     Trigger = "manual"
	TriggerScheduled  Trigger = "scheduled"
	TriggerPreRestore Trigger = "pre_restore"
)

// Action names a change to the backup set.
type Action string

const (
	ActionCreated     Action = "created"
	ActionDeleted     Action = "deleted"
	ActionEvicted     Action = "evicted"
	ActionRestored    Action = "restored"
	ActionAutoChanged Action = "auto_changed"
)

// Event describes a change to the backup set or its flags.
type Event struct {
	Action  Action
	Trigger Trigger
	Record  Record
	Enabled bool
}

// EventCallback is called after every change. It runs while the manager's
// guard is held and must not call back into the Manager.
type EventCallback func(Event)

// Suspender closes the live database around a file-level replacement.
// *database.Handle satisfies it.
type Suspender interface {
	Suspend(ctx context.Context, fn func() error) error
}

// Config holds backup manager configuration.
type Config struct {
	DatabasePath   string
	BackupDir      string
	Prefix         string
	RetentionLimit int
	Interval       time.Duration
}

// Manager performs backup, restore and delete against a single database
// file and backup directory. All mutating operations and every
// read-modify-write of the persisted flags are serialized by one guard.
type Manager struct {
	mu        sync.Mutex
	cfg       Config
	store     *Store
	flags     *Flags
	retention *Retention
	suspender Suspender
	mirror    Mirror
	callback  EventCallback
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures optional Manager collaborators.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithSuspender makes Restore close the live connection around the copy.
func WithSuspender(s Suspender) Option {
	return func(m *Manager) { m.suspender = s }
}

// WithMirror enables off-site mirroring of created and removed backups.
func WithMirror(mirror Mirror) Option {
	return func(m *Manager) { m.mirror = mirror }
}

// WithCallback registers a function that receives every change event.
func WithCallback(cb EventCallback) Option {
	return func(m *Manager) { m.callback = cb }
}

// NewManager creates a backup manager. Flags are persisted in kv.
func NewManager(cfg Config, kv KV, logger *slog.Logger, opts ...Option) *Manager {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.RetentionLimit < 1 {
		cfg.RetentionLimit = DefaultRetentionLimit
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "backup")

	flags := NewFlags(kv)
	m := &Manager{
		cfg:       cfg,
		store:     NewStore(cfg.BackupDir, cfg.Prefix, logger),
		flags:     flags,
		retention: NewRetention(cfg.RetentionLimit, flags, logger),
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DatabaseLocation returns the path of the live database file.
func (m *Manager) DatabaseLocation() string {
	return m.cfg.DatabasePath
}

// BackupLocation returns the backup directory.
func (m *Manager) BackupLocation() string {
	return m.store.Dir()
}

// Interval returns the scheduled backup spacing.
func (m *Manager) Interval() time.Duration {
	return m.cfg.Interval
}

// Store exposes the naming and listing helpers.
func (m *Manager) Store() *Store {
	return m.store
}

// List returns every backup, newest first.
func (m *Manager) List(ctx context.Context) ([]Record, error) {
	return m.store.List()
}

// Status reports the flags together with a fresh count of files on disk.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	enabled, err := m.flags.AutoBackupEnabled()
	if err != nil {
		return Status{}, err
	}
	last, hasLast, err := m.flags.LastBackup()
	if err != nil {
		return Status{}, err
	}
	records, err := m.store.List()
	if err != nil {
		return Status{}, err
	}

	status := Status{AutoBackupEnabled: enabled, BackupCount: len(records)}
	if hasLast {
		status.LastBackupAtMillis = &last
		if enabled {
			next := last + m.cfg.Interval.Milliseconds()
			status.NextBackupAtMillis = &next
		}
	}
	return status, nil
}

// AutoBackupEnabled reads the persisted auto-backup flag.
func (m *Manager) AutoBackupEnabled() (bool, error) {
	return m.flags.AutoBackupEnabled()
}

// SetAutoBackupEnabled persists the auto-backup flag.
func (m *Manager) SetAutoBackupEnabled(enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.flags.SetAutoBackupEnabled(enabled); err != nil {
		return err
	}
	m.logger.Info("auto backup changed", "enabled", enabled)
	m.emit(Event{Action: ActionAutoChanged, Enabled: enabled})
	return nil
}

// Create copies the live database into a new backup file and applies the
// retention policy.
func (m *Manager) Create(ctx context.Context, trigger Trigger) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(ctx, trigger, true)
}

// CreateIfDue creates a scheduled backup when auto backup is enabled and at
// least one interval has passed since the last backup. The check and the
// create happen under the same guard, so concurrent triggers produce at
// most one backup. The returned bool reports whether a backup was made.
func (m *Manager) CreateIfDue(ctx context.Context) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	enabled, err := m.flags.AutoBackupEnabled()
	if err != nil {
		return Record{}, false, err
	}
	if !enabled {
		return Record{}, false, nil
	}

	last, ok, err := m.flags.LastBackup()
	if err != nil {
		return Record{}, false, err
	}
	if ok {
		elapsed := m.now().UnixMilli() - last
		// A negative elapsed time means the wall clock moved backwards.
		if elapsed >= 0 && elapsed < m.cfg.Interval.Milliseconds() {
			return Record{}, false, nil
		}
	}

	rec, err := m.createLocked(ctx, TriggerScheduled, true)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (m *Manager) createLocked(ctx context.Context, trigger Trigger, retain bool) (Record, error) {
	logger := m.logger.With("op_id", uuid.NewString(), "trigger", trigger)
	start := time.Now()

	rec, err := m.copyLive()
	if err != nil {
		metrics.BackupCount.WithLabelValues(string(trigger), "failure").Inc()
		logger.Error("backup failed", "error", err)
		return Record{}, err
	}

	duration := time.Since(start)
	metrics.BackupCount.WithLabelValues(string(trigger), "success").Inc()
	metrics.BackupDuration.WithLabelValues(string(trigger)).Observe(duration.Seconds())
	metrics.BackupSize.Set(float64(rec.SizeBytes))
	metrics.LastBackupTimestamp.Set(float64(rec.CreatedAtMillis) / 1000)

	if err := m.flags.SetLastBackup(rec.CreatedAtMillis); err != nil {
		logger.Warn("record last backup", "error", err)
	}
	if count, err := m.flags.Count(); err != nil {
		logger.Warn("read backup count", "error", err)
	} else if err := m.flags.SetCount(count + 1); err != nil {
		logger.Warn("increment backup count", "error", err)
	}

	logger.Info("backup created",
		"file", rec.Filename,
		"size", humanize.Bytes(uint64(rec.SizeBytes)),
		"duration", duration,
	)
	m.emit(Event{Action: ActionCreated, Trigger: trigger, Record: rec})
	m.mirrorUpload(ctx, rec, logger)

	if retain {
		m.applyRetention(ctx, logger)
	}
	return rec, nil
}

func (m *Manager) copyLive() (Record, error) {
	if err := m.store.EnsureDirectory(); err != nil {
		return Record{}, err
	}

	src := m.cfg.DatabasePath
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, fmt.Errorf("%w: %s", ErrSourceMissing, src)
		}
		return Record{}, ioError("stat", src, err)
	}

	// Two creates within one millisecond would share a name.
	ms := m.now().UnixMilli()
	dst := filepath.Join(m.store.Dir(), m.store.NameFor(ms))
	for fileExists(dst) {
		ms++
		dst = filepath.Join(m.store.Dir(), m.store.NameFor(ms))
	}

	if err := database.CopyFile(src, dst); err != nil {
		return Record{}, ioError("copy", dst, err)
	}
	info, err := os.Stat(dst)
	if err != nil {
		return Record{}, ioError("stat", dst, err)
	}

	return Record{
		Filename:        filepath.Base(dst),
		Path:            dst,
		CreatedAtMillis: ms,
		SizeBytes:       info.Size(),
	}, nil
}

// Restore replaces the live database with the backup at path. A safety
// backup of the current database is taken first and returned; it survives
// a failed copy. The retention pass runs only after the copy so the target
// cannot be evicted before it is read.
func (m *Manager) Restore(ctx context.Context, path string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	logger := m.logger.With("op_id", uuid.NewString(), "backup", filepath.Base(path))

	safety, err := m.prepareRestore(ctx, path)
	if err != nil {
		metrics.RestoreCount.WithLabelValues("failure").Inc()
		logger.Error("restore aborted", "error", err)
		return Record{}, err
	}

	// The live file is replaced from here on; cancellation no longer applies.
	ctx = context.WithoutCancel(ctx)

	dbPath := m.cfg.DatabasePath
	replace := func() error {
		if err := database.CopyFile(path, dbPath); err != nil {
			return ioError("restore", dbPath, err)
		}
		database.RemoveSidecars(dbPath)
		return nil
	}
	if m.suspender != nil {
		err = m.suspender.Suspend(ctx, replace)
	} else {
		err = replace()
	}

	m.applyRetention(ctx, logger)

	if err != nil {
		metrics.RestoreCount.WithLabelValues("failure").Inc()
		logger.Error("restore failed", "error", err, "safety_backup", safety.Filename)
		return safety, err
	}

	metrics.RestoreCount.WithLabelValues("success").Inc()
	logger.Info("database restored", "safety_backup", safety.Filename)
	m.emit(Event{Action: ActionRestored, Record: Record{Filename: filepath.Base(path), Path: path}})
	return safety, nil
}

func (m *Manager) prepareRestore(ctx context.Context, path string) (Record, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir()) {
		return Record{}, fmt.Errorf("%w: %s", ErrBackupMissing, path)
	}
	if err != nil {
		return Record{}, ioError("stat", path, err)
	}

	if err := database.CheckIntegrity(ctx, path); err != nil {
		return Record{}, ioError("verify", path, fmt.Errorf("%w: %v", ErrCorruptBackup, err))
	}

	safety, err := m.createLocked(ctx, TriggerPreRestore, false)
	if err != nil {
		return Record{}, fmt.Errorf("safety backup: %w", err)
	}
	return safety, nil
}

// Delete removes one backup file. Deleting a file that is already gone
// succeeds and leaves the counter untouched.
func (m *Manager) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.store.Contains(path) {
		return fmt.Errorf("%w: %s", ErrInvalidName, path)
	}

	logger := m.logger.With("op_id", uuid.NewString(), "file", filepath.Base(path))

	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Debug("backup already absent")
		return nil
	}
	if err != nil {
		logger.Error("delete backup", "error", err)
		return ioError("delete", path, err)
	}

	count, err := m.flags.Count()
	if err != nil {
		logger.Warn("read backup count", "error", err)
	} else if err := m.flags.SetCount(count - 1); err != nil {
		logger.Warn("decrement backup count", "error", err)
	}

	logger.Info("backup deleted")
	rec := Record{Filename: filepath.Base(path), Path: path}
	m.emit(Event{Action: ActionDeleted, Record: rec})
	m.mirrorRemove(ctx, rec.Filename, logger)
	return nil
}

// Reconcile makes sure the backup directory exists and resets the
// persisted counter to the number of files on disk.
func (m *Manager) Reconcile(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.EnsureDirectory(); err != nil {
		return err
	}
	records, err := m.store.List()
	if err != nil {
		return err
	}
	count, err := m.flags.Count()
	if err != nil {
		return err
	}
	if count == len(records) {
		return nil
	}
	m.logger.Info("backup count reconciled", "stored", count, "on_disk", len(records))
	return m.flags.SetCount(len(records))
}

func (m *Manager) applyRetention(ctx context.Context, logger *slog.Logger) {
	records, err := m.store.List()
	if err != nil {
		logger.Warn("list backups for retention", "error", err)
		return
	}
	for _, rec := range m.retention.Apply(records) {
		m.emit(Event{Action: ActionEvicted, Record: rec})
		m.mirrorRemove(ctx, rec.Filename, logger)
	}
}

func (m *Manager) mirrorUpload(ctx context.Context, rec Record, logger *slog.Logger) {
	if m.mirror == nil {
		return
	}
	if err := m.mirror.Upload(ctx, rec); err != nil {
		metrics.MirrorUploads.WithLabelValues("upload", "failure").Inc()
		logger.Warn("mirror upload failed", "file", rec.Filename, "error", err)
		return
	}
	metrics.MirrorUploads.WithLabelValues("upload", "success").Inc()
}

func (m *Manager) mirrorRemove(ctx context.Context, filename string, logger *slog.Logger) {
	if m.mirror == nil {
		return
	}
	if err := m.mirror.Remove(ctx, filename); err != nil {
		metrics.MirrorUploads.WithLabelValues("remove", "failure").Inc()
		logger.Warn("mirror remove failed", "file", filename, "error", err)
		return
	}
	metrics.MirrorUploads.WithLabelValues("remove", "success").Inc()
}

func (m *Manager) emit(e Event) {
	if m.callback != nil {
		m.callback(e)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
