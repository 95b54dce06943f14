// Package scheduler drives periodic auto-backups through a platform timer.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrSchedulerUnavailable means the platform trigger could not be
// registered or removed.
var ErrSchedulerUnavailable = errors.New("scheduler unavailable")

// Result is what a trigger handler reports back to the platform.
type Result int

const (
	ResultNoData Result = iota
	ResultNewData
	ResultFailed
)

func (r Result) String() string {
	switch r {
	case ResultNoData:
		return "no_data"
	case ResultNewData:
		return "new_data"
	case ResultFailed:
		return "failed"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Handler runs synchronously on every trigger.
type Handler func(ctx context.Context) Result

// Token identifies a registration.
type Token int

// Platform invokes a handler roughly every interval. It gives no timing
// guarantee beyond that.
type Platform interface {
	Register(interval time.Duration, h Handler) (Token, error)
	Unregister(tok Token) error
}

// CronPlatform is a Platform backed by an in-process cron runner.
type CronPlatform struct {
	mu      sync.Mutex
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	logger  *slog.Logger
}

// NewCronPlatform creates a stopped platform. Handlers receive a context
// that is cancelled by Stop.
func NewCronPlatform(logger *slog.Logger) *CronPlatform {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &CronPlatform{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With("component", "scheduler"),
	}
}

// Start begins firing registered triggers.
func (p *CronPlatform) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.cron.Start()
	p.started = true
	p.logger.Info("scheduler started")
}

// Stop halts the runner and waits for running handlers to return.
func (p *CronPlatform) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	p.cancel()
	<-p.cron.Stop().Done()
	p.logger.Info("scheduler stopped")
}

func (p *CronPlatform) Register(interval time.Duration, h Handler) (Token, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("invalid interval %s", interval)
	}
	if h == nil {
		return 0, errors.New("nil handler")
	}
	id := p.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		h(p.ctx)
	}))
	p.logger.Info("trigger registered", "interval", interval, "entry", id)
	return Token(id), nil
}

func (p *CronPlatform) Unregister(tok Token) error {
	p.cron.Remove(cron.EntryID(tok))
	p.logger.Info("trigger unregistered", "entry", int(tok))
	return nil
}

// Entries returns how many triggers are registered.
func (p *CronPlatform) Entries() int {
	return len(p.cron.Entries())
}
