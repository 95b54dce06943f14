package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// ErrSuspended is returned by Handle.DB while the connection is closed for
// a file-level operation such as a restore.
var ErrSuspended = errors.New("database connection suspended")

// Handle owns the live connection to the CRM database file. It is created
// by the process startup routine and closed on shutdown.
type Handle struct {
	mu     sync.RWMutex
	path   string
	db     *sql.DB
	onOpen func(context.Context, *sql.DB) error
}

// NewHandle opens the database at path. onOpen runs after every open,
// including reopens after Suspend; startup uses it to run schema migrations.
func NewHandle(ctx context.Context, path string, onOpen func(context.Context, *sql.DB) error) (*Handle, error) {
	h := &Handle{path: path, onOpen: onOpen}
	if err := h.open(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Handle) open(ctx context.Context) error {
	db, err := Open(h.path)
	if err != nil {
		return err
	}
	if h.onOpen != nil {
		if err := h.onOpen(ctx, db); err != nil {
			db.Close()
			return err
		}
	}
	h.db = db
	return nil
}

// Path returns the location of the database file.
func (h *Handle) Path() string {
	return h.path
}

// DB returns the open connection.
func (h *Handle) DB() (*sql.DB, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.db == nil {
		return nil, ErrSuspended
	}
	return h.db, nil
}

// Suspend closes the connection, runs fn and reopens the database. The
// reopen happens even when fn fails so the process keeps a usable handle;
// fn's error takes precedence over a reopen error. The reopen ignores
// cancellation of ctx.
func (h *Handle) Suspend(ctx context.Context, fn func() error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	ctx = context.WithoutCancel(ctx)

	if h.db != nil {
		if err := h.db.Close(); err != nil {
			return fmt.Errorf("close db: %w", err)
		}
		h.db = nil
	}

	fnErr := fn()
	openErr := h.open(ctx)

	if fnErr != nil {
		return fnErr
	}
	if openErr != nil {
		return fmt.Errorf("reopen db: %w", openErr)
	}
	return nil
}

// Close closes the connection.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.db == nil {
		return nil
	}
	err := h.db.Close()
	h.db = nil
	return err
}
