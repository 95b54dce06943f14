// Package migrate brings an existing CRM database up to the current schema
// with ordered, additive, self-checking steps.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/crm/internal/database"
	"github.com/dukerupert/crm/internal/metrics"
)

// ErrMigrationFailed is matched by every error Run returns for a failing
// step. Startup treats it as fatal.
var ErrMigrationFailed = errors.New("migration failed")

// StepError names the step that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("migration %q: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() []error {
	return []error{ErrMigrationFailed, e.Err}
}

// State of a Runner.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Runner applies steps strictly in declared order.
type Runner struct {
	mu      sync.Mutex
	steps   []Step
	state   State
	err     error
	applied int
	logger  *slog.Logger
}

func NewRunner(steps []Step, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		steps:  steps,
		state:  StatePending,
		logger: logger.With("component", "migrate"),
	}
}

func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Applied returns how many DDL statements the last Run executed.
func (r *Runner) Applied() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applied
}

// Run executes every step against s. A completed runner may run again,
// which only re-checks the schema. Failed is terminal: later calls return
// the original error without touching the store.
func (r *Runner) Run(ctx context.Context, s database.Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateFailed {
		return r.err
	}
	r.state = StateRunning
	r.applied = 0

	for _, step := range r.steps {
		if err := r.runStep(ctx, s, step); err != nil {
			metrics.MigrationSteps.WithLabelValues("failed").Inc()
			r.logger.Error("migration failed", "step", step.Name(), "error", err)
			r.state = StateFailed
			r.err = &StepError{Step: step.Name(), Err: err}
			return r.err
		}
	}

	r.state = StateCompleted
	r.logger.Info("migrations complete", "steps", len(r.steps), "applied", r.applied)
	return nil
}

func (r *Runner) runStep(ctx context.Context, s database.Store, step Step) error {
	present, err := step.present(ctx, s)
	if err != nil {
		return fmt.Errorf("introspect: %w", err)
	}
	if present {
		metrics.MigrationSteps.WithLabelValues("skipped").Inc()
		r.logger.Debug("migration already applied", "step", step.Name())
		return nil
	}

	if _, err := s.ExecContext(ctx, step.ddl()); err != nil {
		return err
	}
	r.applied++
	metrics.MigrationSteps.WithLabelValues("applied").Inc()
	r.logger.Info("migration applied", "step", step.Name())
	return nil
}

// RunMigrations brings s up to the current CRM schema. It must finish
// before anything else uses the store.
func RunMigrations(ctx context.Context, s database.Store) error {
	return NewRunner(Steps(), slog.Default()).Run(ctx, s)
}
