package backup

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceMissing means the live database file was absent at backup time.
	ErrSourceMissing = errors.New("database file missing")
	// ErrBackupMissing means a restore target does not exist.
	ErrBackupMissing = errors.New("backup file missing")
	// ErrIO covers copy, delete and mkdir failures.
	ErrIO = errors.New("backup i/o error")
	// ErrCorruptBackup means a restore candidate failed the integrity check.
	ErrCorruptBackup = errors.New("backup failed integrity check")
	// ErrInvalidName means a name or path does not denote a file inside the
	// backup directory.
	ErrInvalidName = errors.New("not a backup file")
)

// OpError records a failed file operation. It matches both ErrIO and the
// underlying cause with errors.Is.
type OpError struct {
	Op   string
	Path string
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *OpError) Unwrap() []error {
	return []error{ErrIO, e.Err}
}

func ioError(op, path string, err error) error {
	return &OpError{Op: op, Path: path, Err: err}
}
