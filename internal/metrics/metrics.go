// Package metrics provides Prometheus metrics for backup, restore, scheduler
// and schema migration activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BackupCount tracks backups attempted, by trigger and outcome.
	BackupCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_backup_total",
		Help: "The total number of database backups attempted",
	}, []string{"trigger", "status"})

	// BackupDuration measures how long the file copy of a backup takes.
	BackupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crm_backup_duration_seconds",
		Help:    "Time taken to create a database backup",
		Buckets: prometheus.DefBuckets,
	}, []string{"trigger"})

	// BackupSize records the size of the most recent backup file.
	BackupSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crm_backup_size_bytes",
		Help: "Size of the most recent backup file in bytes",
	})

	// LastBackupTimestamp records when the last successful backup was taken.
	LastBackupTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crm_backup_last_timestamp",
		Help: "Unix timestamp of the last successful backup",
	})

	// RetentionDeletes counts files removed by the retention pass.
	RetentionDeletes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_backup_retention_deletions_total",
		Help: "The total number of backups evicted by the retention policy",
	}, []string{"result"})

	// RestoreCount tracks restores attempted, by outcome.
	RestoreCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_restore_total",
		Help: "The total number of database restores attempted",
	}, []string{"status"})

	// MirrorUploads tracks off-site mirror uploads and removals.
	MirrorUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_backup_mirror_operations_total",
		Help: "The total number of off-site mirror operations",
	}, []string{"operation", "status"})

	// SchedulerTriggers counts periodic trigger invocations by result.
	SchedulerTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_scheduler_triggers_total",
		Help: "The total number of auto-backup trigger invocations",
	}, []string{"result"})

	// MigrationSteps counts schema migration steps by result.
	MigrationSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_migration_steps_total",
		Help: "The total number of schema migration steps evaluated",
	}, []string{"result"})
)

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
