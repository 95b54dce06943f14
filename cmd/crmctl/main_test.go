package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/crm/internal/backup"
	"github.com/dukerupert/crm/internal/migrate"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "CRM_") {
			os.Unsetenv(key)
		}
	}
	os.Exit(m.Run())
}

func execute(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--data-dir", dataDir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestWhere(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, dir, "where", "--json")
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, filepath.Join(dir, "crm.db"), got["database"])
	assert.Equal(t, filepath.Join(dir, "backups"), got["backups"])
}

func TestMigrateIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, dir, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema step(s) applied")

	out, err = execute(t, dir, "migrate", "--json")
	require.NoError(t, err)
	var got struct {
		Applied int           `json:"applied"`
		State   migrate.State `json:"state"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 0, got.Applied)
	assert.Equal(t, migrate.StateCompleted, got.State)
}

func listRecords(t *testing.T, dir string) []backup.Record {
	t.Helper()
	out, err := execute(t, dir, "backup", "list", "--json")
	require.NoError(t, err)
	var records []backup.Record
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	return records
}

func TestBackupCreateListStatus(t *testing.T) {
	dir := t.TempDir()

	assert.Empty(t, listRecords(t, dir))

	out, err := execute(t, dir, "backup", "create")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "created crm_backup_"), out)

	records := listRecords(t, dir)
	require.Len(t, records, 1)
	assert.Positive(t, records[0].SizeBytes)

	out, err = execute(t, dir, "backup", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, records[0].Filename)

	out, err = execute(t, dir, "backup", "status", "--json")
	require.NoError(t, err)
	var st backup.Status
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 1, st.BackupCount)
	assert.False(t, st.AutoBackupEnabled)
	require.NotNil(t, st.LastBackupAtMillis)
	assert.Equal(t, records[0].CreatedAtMillis, *st.LastBackupAtMillis)
	assert.Nil(t, st.NextBackupAtMillis)
}

func TestBackupRestoreNeedsConfirmation(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, dir, "backup", "create")
	require.NoError(t, err)
	name := listRecords(t, dir)[0].Filename

	_, err = execute(t, dir, "backup", "restore", name)
	require.Error(t, err)
	assert.Len(t, listRecords(t, dir), 1)

	out, err := execute(t, dir, "backup", "restore", name, "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "restored "+name)
	assert.Contains(t, out, "safety backup: crm_backup_")
	assert.Len(t, listRecords(t, dir), 2)
}

func TestBackupRestoreRejectsBadName(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, dir, "backup", "restore", "../crm.db", "--yes")
	require.ErrorIs(t, err, backup.ErrInvalidName)

	_, err = execute(t, dir, "backup", "restore", "crm_backup_1.db", "--yes")
	require.ErrorIs(t, err, backup.ErrBackupMissing)
}

func TestBackupDelete(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, dir, "backup", "create")
	require.NoError(t, err)
	name := listRecords(t, dir)[0].Filename

	out, err := execute(t, dir, "backup", "delete", name)
	require.NoError(t, err)
	assert.Equal(t, "deleted "+name+"\n", out)
	assert.Empty(t, listRecords(t, dir))

	_, err = execute(t, dir, "backup", "rm", name)
	require.NoError(t, err)
}

func TestAuto(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, dir, "auto", "maybe")
	require.Error(t, err)

	out, err := execute(t, dir, "auto", "on")
	require.NoError(t, err)
	assert.Equal(t, "auto backup on\n", out)

	out, err = execute(t, dir, "backup", "status", "--json")
	require.NoError(t, err)
	var st backup.Status
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.True(t, st.AutoBackupEnabled)

	out, err = execute(t, dir, "backup", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "enabled")
	assert.Contains(t, out, "never")
}
