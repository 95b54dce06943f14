package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/crm/internal/backup"
	"github.com/dukerupert/crm/internal/database"
	"github.com/dukerupert/crm/internal/store"
)

type fakePlatform struct {
	mu          sync.Mutex
	next        Token
	handlers    map[Token]Handler
	intervals   map[Token]time.Duration
	registerErr error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{handlers: make(map[Token]Handler), intervals: make(map[Token]time.Duration)}
}

func (p *fakePlatform) Register(interval time.Duration, h Handler) (Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.registerErr != nil {
		return 0, p.registerErr
	}
	p.next++
	p.handlers[p.next] = h
	p.intervals[p.next] = interval
	return p.next, nil
}

func (p *fakePlatform) Unregister(tok Token) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.handlers, tok)
	delete(p.intervals, tok)
	return nil
}

func (p *fakePlatform) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handlers)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func newManager(t *testing.T, now *clock) *backup.Manager {
	t.Helper()
	root := t.TempDir()
	dbPath := filepath.Join(root, "crm.db")
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	prefs, err := database.OpenPreferences(filepath.Join(root, "preferences.db"))
	require.NoError(t, err)
	t.Cleanup(func() { prefs.Close() })

	return backup.NewManager(backup.Config{
		DatabasePath: dbPath,
		BackupDir:    filepath.Join(root, "backups"),
		Interval:     2 * time.Hour,
	}, store.NewSettingsStore(prefs), quietLogger(), backup.WithClock(now.Now))
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSetEnabledRegistersAndUnregisters(t *testing.T) {
	p := newFakePlatform()
	mgr := newManager(t, &clock{t: time.Now()})
	a := NewAdapter(p, mgr, quietLogger())
	ctx := context.Background()

	require.NoError(t, a.SetEnabled(ctx, true))
	assert.True(t, a.Registered())
	assert.Equal(t, 1, p.count())
	assert.Equal(t, 2*time.Hour, p.intervals[1])

	// Enabling twice keeps one trigger.
	require.NoError(t, a.SetEnabled(ctx, true))
	assert.Equal(t, 1, p.count())

	enabled, err := mgr.AutoBackupEnabled()
	require.NoError(t, err)
	assert.True(t, enabled)

	require.NoError(t, a.SetEnabled(ctx, false))
	assert.False(t, a.Registered())
	assert.Equal(t, 0, p.count())

	enabled, err = mgr.AutoBackupEnabled()
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestSetEnabledRegistrationFailureKeepsFlag(t *testing.T) {
	p := newFakePlatform()
	p.registerErr = errors.New("background tasks disabled")
	mgr := newManager(t, &clock{t: time.Now()})
	a := NewAdapter(p, mgr, quietLogger())
	ctx := context.Background()

	err := a.SetEnabled(ctx, true)
	assert.ErrorIs(t, err, ErrSchedulerUnavailable)
	assert.False(t, a.Registered())

	enabled, err := mgr.AutoBackupEnabled()
	require.NoError(t, err)
	assert.True(t, enabled)

	// Next start retries.
	p.registerErr = nil
	restarted := NewAdapter(p, mgr, quietLogger())
	require.NoError(t, restarted.Resume(ctx))
	assert.True(t, restarted.Registered())
}

func TestResumeDisabled(t *testing.T) {
	p := newFakePlatform()
	a := NewAdapter(p, newManager(t, &clock{t: time.Now()}), quietLogger())

	require.NoError(t, a.Resume(context.Background()))
	assert.False(t, a.Registered())
	assert.Equal(t, 0, p.count())
}

func TestOnTriggerHonoursInterval(t *testing.T) {
	start := time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)
	now := &clock{t: start}
	mgr := newManager(t, now)
	a := NewAdapter(newFakePlatform(), mgr, quietLogger())
	ctx := context.Background()

	assert.Equal(t, ResultNoData, a.OnTrigger(ctx), "disabled")

	require.NoError(t, a.SetEnabled(ctx, true))
	last, err := mgr.Create(ctx, backup.TriggerManual)
	require.NoError(t, err)

	now.Set(last.CreatedAt().Add(mgr.Interval() - time.Millisecond))
	assert.Equal(t, ResultNoData, a.OnTrigger(ctx))
	records, err := mgr.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	now.Set(last.CreatedAt().Add(mgr.Interval() + time.Millisecond))
	assert.Equal(t, ResultNewData, a.OnTrigger(ctx))
	assert.Equal(t, ResultNoData, a.OnTrigger(ctx))

	records, err = mgr.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestOnTriggerConcurrentFiresBackupOnce(t *testing.T) {
	now := &clock{t: time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)}
	mgr := newManager(t, now)
	a := NewAdapter(newFakePlatform(), mgr, quietLogger())
	ctx := context.Background()
	require.NoError(t, a.SetEnabled(ctx, true))

	var wg sync.WaitGroup
	results := make(chan Result, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- a.OnTrigger(ctx)
		}()
	}
	wg.Wait()
	close(results)

	created := 0
	for r := range results {
		if r == ResultNewData {
			created++
		}
	}
	assert.Equal(t, 1, created)
}

type failingBackups struct{}

func (failingBackups) AutoBackupEnabled() (bool, error) { return true, nil }
func (failingBackups) SetAutoBackupEnabled(bool) error  { return nil }
func (failingBackups) Interval() time.Duration          { return time.Hour }
func (failingBackups) CreateIfDue(context.Context) (backup.Record, bool, error) {
	return backup.Record{}, false, backup.ErrSourceMissing
}

func TestOnTriggerFailure(t *testing.T) {
	a := NewAdapter(newFakePlatform(), failingBackups{}, quietLogger())
	assert.Equal(t, ResultFailed, a.OnTrigger(context.Background()))
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "no_data", ResultNoData.String())
	assert.Equal(t, "new_data", ResultNewData.String())
	assert.Equal(t, "failed", ResultFailed.String())
}
