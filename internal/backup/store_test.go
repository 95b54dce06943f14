package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameFor(t *testing.T) {
	s := NewStore(t.TempDir(), "crm_backup", discardLogger())

	name := s.NameFor(1703500200000)
	assert.Equal(t, "crm_backup_1703500200000_2023-12-25T10-30-00-000Z.db", name)

	ms, ok := s.ParseCreatedAt(name)
	require.True(t, ok)
	assert.Equal(t, int64(1703500200000), ms)
}

func TestParseCreatedAtLegacy(t *testing.T) {
	s := NewStore(t.TempDir(), "crm_backup", discardLogger())

	ms, ok := s.ParseCreatedAt("crm_backup_2023-12-25T10-30-00-000Z.db")
	require.True(t, ok)
	want := time.Date(2023, 12, 25, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, want.UnixMilli(), ms)
	assert.Equal(t, "2023-12-25T10:30:00.000Z", time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z"))

	ms, ok = s.ParseCreatedAt("crm_backup_2023-12-25T10-30-00-123Z.db")
	require.True(t, ok)
	assert.Equal(t, want.UnixMilli()+123, ms)

	ms, ok = s.ParseCreatedAt("crm_backup_2023-12-25T10-30-07Z.db")
	require.True(t, ok)
	assert.Equal(t, want.Add(7*time.Second).UnixMilli(), ms)
}

func TestParseCreatedAtRejects(t *testing.T) {
	s := NewStore(t.TempDir(), "crm_backup", discardLogger())

	for _, name := range []string{
		"crm_backup.db",
		"other_1703500200000_2023-12-25T10-30-00-000Z.db",
		"crm_backup_2023-13-45T99-99-99-000Z.db",
		"crm_backup_notatime.db",
	} {
		_, ok := s.ParseCreatedAt(name)
		assert.False(t, ok, name)
	}
}

func TestListSortedNewestFirst(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, "crm_backup", discardLogger())

	for _, ms := range []int64{1700000000000, 1700000300000, 1700000100000} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, s.NameFor(ms)), []byte("x"), 0o600))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "crm_backup_2023-11-14T22-10-00-000Z.db"), []byte("legacy"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.db"), 0o755))

	records, err := s.List()
	require.NoError(t, err)
	require.Len(t, records, 4)

	for i := 1; i < len(records); i++ {
		assert.Greater(t, records[i-1].CreatedAtMillis, records[i].CreatedAtMillis)
	}
	assert.Equal(t, int64(1700000300000), records[0].CreatedAtMillis)
	assert.Equal(t, int64(6), records[3].SizeBytes)
	assert.Equal(t, filepath.Join(dir, records[0].Filename), records[0].Path)
}

func TestListFallsBackToModTime(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, "crm_backup", discardLogger())

	path := filepath.Join(dir, "imported.db")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	mod := time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, mod, mod))

	records, err := s.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, mod.UnixMilli(), records[0].CreatedAtMillis)
}

func TestListMissingDirectory(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "absent"), "crm_backup", discardLogger())

	records, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestEnsureDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	s := NewStore(dir, "crm_backup", discardLogger())

	require.NoError(t, s.EnsureDirectory())
	require.NoError(t, s.EnsureDirectory())
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestEnsureDirectoryBlockedByFile(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "backups")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	err := NewStore(blocker, "crm_backup", discardLogger()).EnsureDirectory()
	assert.ErrorIs(t, err, ErrIO)
}

func TestPathFor(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, "crm_backup", discardLogger())

	p, err := s.PathFor("crm_backup_1_x.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "crm_backup_1_x.db"), p)
	assert.True(t, s.Contains(p))

	for _, bad := range []string{"", "../crm.db", "sub/x.db", "x.txt", ".db", "/etc/passwd"} {
		_, err := s.PathFor(bad)
		assert.ErrorIs(t, err, ErrInvalidName, bad)
	}
	assert.False(t, s.Contains(filepath.Join(dir, "..", "crm.db")))
}
