package backup

import (
	"fmt"
	"strconv"
)

// Keys of the persisted scalar flags.
const (
	KeyAutoBackupEnabled   = "auto_backup_enabled"
	KeyLastBackupTimestamp = "last_backup_timestamp"
	KeyBackupCount         = "backup_count"
)

// KV is the key-value capability the flags are stored in.
// *store.SettingsStore satisfies it.
type KV interface {
	Lookup(key string) (string, bool, error)
	Set(key, value string) error
}

// Flags gives typed access to the persisted backup flags. Values that do not
// parse are treated as unset.
type Flags struct {
	kv KV
}

// NewFlags wraps kv.
func NewFlags(kv KV) *Flags {
	return &Flags{kv: kv}
}

// AutoBackupEnabled reports whether scheduled backups are on. Unset means off.
func (f *Flags) AutoBackupEnabled() (bool, error) {
	v, ok, err := f.kv.Lookup(KeyAutoBackupEnabled)
	if err != nil || !ok {
		return false, err
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		return false, nil
	}
	return enabled, nil
}

// SetAutoBackupEnabled persists the auto-backup flag.
func (f *Flags) SetAutoBackupEnabled(enabled bool) error {
	return f.set(KeyAutoBackupEnabled, strconv.FormatBool(enabled))
}

// LastBackup returns the last backup time in epoch millis and whether one
// has been recorded.
func (f *Flags) LastBackup() (int64, bool, error) {
	v, ok, err := f.kv.Lookup(KeyLastBackupTimestamp)
	if err != nil || !ok {
		return 0, false, err
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return ms, true, nil
}

// SetLastBackup records the time of the latest backup in epoch millis.
func (f *Flags) SetLastBackup(millis int64) error {
	return f.set(KeyLastBackupTimestamp, strconv.FormatInt(millis, 10))
}

// Count returns the persisted backup counter. Unset or negative reads as 0.
func (f *Flags) Count() (int, error) {
	v, ok, err := f.kv.Lookup(KeyBackupCount)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, nil
	}
	return n, nil
}

// SetCount persists the backup counter, flooring it at 0.
func (f *Flags) SetCount(n int) error {
	if n < 0 {
		n = 0
	}
	return f.set(KeyBackupCount, strconv.Itoa(n))
}

func (f *Flags) set(key, value string) error {
	if err := f.kv.Set(key, value); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}
