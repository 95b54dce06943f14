package backup

// Status is the snapshot shown to the user.
type Status struct {
	AutoBackupEnabled  bool   `json:"auto_backup_enabled"`
	LastBackupAtMillis *int64 `json:"last_backup_at_millis"`
	NextBackupAtMillis *int64 `json:"next_backup_at_millis"`
	BackupCount        int    `json:"backup_count"`
}
