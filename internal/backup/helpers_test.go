package backup

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dukerupert/crm/internal/database"
)

type memKV struct {
	mu sync.Mutex
	m  map[string]string
}

func newMemKV() *memKV {
	return &memKV{m: make(map[string]string)}
}

func (kv *memKV) Lookup(key string) (string, bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	v, ok := kv.m[key]
	return v, ok, nil
}

func (kv *memKV) Set(key, value string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.m[key] = value
	return nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

var testEpoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	mgr    *Manager
	kv     *memKV
	clock  *fakeClock
	dbPath string
	dir    string
	events []Event
}

func newFixture(t *testing.T, limit int, opts ...Option) *fixture {
	t.Helper()
	root := t.TempDir()
	dbPath := filepath.Join(root, "crm.db")

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	f := &fixture{
		kv:     newMemKV(),
		clock:  &fakeClock{t: testEpoch},
		dbPath: dbPath,
		dir:    filepath.Join(root, "backups"),
	}
	opts = append([]Option{
		WithClock(f.clock.Now),
		WithCallback(func(e Event) { f.events = append(f.events, e) }),
	}, opts...)
	f.mgr = NewManager(Config{
		DatabasePath:   dbPath,
		BackupDir:      f.dir,
		RetentionLimit: limit,
		Interval:       2 * time.Hour,
	}, f.kv, discardLogger(), opts...)
	return f
}

// write inserts a customer row through a short-lived connection so the
// file is idle again when the call returns.
func (f *fixture) write(t *testing.T, name string) {
	t.Helper()
	db, err := database.Open(f.dbPath)
	require.NoError(t, err)
	defer db.Close()
	_, err = database.Insert(context.Background(), db, `INSERT INTO customers (name) VALUES (?)`, name)
	require.NoError(t, err)
}

func (f *fixture) customers(t *testing.T) []string {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+f.dbPath+"?mode=ro")
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.Query(`SELECT name FROM customers ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		require.NoError(t, rows.Scan(&n))
		names = append(names, n)
	}
	require.NoError(t, rows.Err())
	return names
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	n, err := NewFlags(f.kv).Count()
	require.NoError(t, err)
	return n
}
