package backup

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/dukerupert/crm/internal/metrics"
)

// DefaultRetentionLimit is the number of backups kept when none is configured.
const DefaultRetentionLimit = 5

// Retention keeps at most Limit backups on disk.
type Retention struct {
	limit  int
	flags  *Flags
	logger *slog.Logger
}

// NewRetention creates a policy keeping limit backups. A limit below one
// falls back to DefaultRetentionLimit.
func NewRetention(limit int, flags *Flags, logger *slog.Logger) *Retention {
	if limit < 1 {
		limit = DefaultRetentionLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retention{limit: limit, flags: flags, logger: logger}
}

// Limit returns the number of backups kept.
func (r *Retention) Limit() int {
	return r.limit
}

// Apply deletes every record past the newest Limit entries and returns the
// ones actually removed. records must be sorted newest first. Deletion is
// best effort: a file that cannot be removed is logged and skipped. The
// persisted backup counter is clamped to Limit afterwards.
func (r *Retention) Apply(records []Record) []Record {
	var evicted []Record
	if len(records) > r.limit {
		for _, rec := range records[r.limit:] {
			err := os.Remove(rec.Path)
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				metrics.RetentionDeletes.WithLabelValues("failure").Inc()
				r.logger.Warn("retention delete failed", "file", rec.Filename, "error", err)
				continue
			}
			metrics.RetentionDeletes.WithLabelValues("success").Inc()
			r.logger.Info("retention removed backup", "file", rec.Filename, "created_at", rec.CreatedAt())
			evicted = append(evicted, rec)
		}
	}

	r.clampCount()
	return evicted
}

func (r *Retention) clampCount() {
	count, err := r.flags.Count()
	if err != nil {
		r.logger.Warn("read backup count", "error", err)
		return
	}
	if count <= r.limit {
		return
	}
	if err := r.flags.SetCount(r.limit); err != nil {
		r.logger.Warn("clamp backup count", "error", err)
	}
}
