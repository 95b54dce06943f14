package backup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedBackups(t *testing.T, s *Store, millis ...int64) []Record {
	t.Helper()
	require.NoError(t, s.EnsureDirectory())
	for _, ms := range millis {
		require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), s.NameFor(ms)), []byte("snapshot"), 0o600))
	}
	records, err := s.List()
	require.NoError(t, err)
	return records
}

func TestRetentionApply(t *testing.T) {
	kv := newMemKV()
	flags := NewFlags(kv)
	require.NoError(t, flags.SetCount(9))
	s := NewStore(t.TempDir(), "crm_backup", discardLogger())
	r := NewRetention(2, flags, discardLogger())

	records := seedBackups(t, s, 1000, 2000, 3000, 4000)
	evicted := r.Apply(records)
	require.Len(t, evicted, 2)
	assert.Equal(t, int64(2000), evicted[0].CreatedAtMillis)
	assert.Equal(t, int64(1000), evicted[1].CreatedAtMillis)

	left, err := s.List()
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, int64(4000), left[0].CreatedAtMillis)

	n, err := flags.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Second pass over an unchanged directory does nothing.
	assert.Empty(t, r.Apply(left))
	again, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, left, again)
}

func TestRetentionLeavesSmallerCounter(t *testing.T) {
	flags := NewFlags(newMemKV())
	require.NoError(t, flags.SetCount(1))
	s := NewStore(t.TempDir(), "crm_backup", discardLogger())

	NewRetention(3, flags, discardLogger()).Apply(seedBackups(t, s, 1000))

	n, err := flags.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRetentionContinuesPastFailures(t *testing.T) {
	s := NewStore(t.TempDir(), "crm_backup", discardLogger())
	records := seedBackups(t, s, 1000, 2000, 3000)

	// A non-empty directory cannot be removed with os.Remove.
	stuck := filepath.Join(s.Dir(), "stuck.db")
	require.NoError(t, os.MkdirAll(filepath.Join(stuck, "inner"), 0o755))
	records = append(records,
		Record{Filename: "stuck.db", Path: stuck, CreatedAtMillis: 900},
		Record{Filename: "gone.db", Path: filepath.Join(s.Dir(), "gone.db"), CreatedAtMillis: 800},
	)

	evicted := NewRetention(1, NewFlags(newMemKV()), discardLogger()).Apply(records)

	var names []string
	for _, rec := range evicted {
		names = append(names, rec.Filename)
	}
	assert.Equal(t, []string{records[1].Filename, records[2].Filename, "gone.db"}, names)

	left, err := s.List()
	require.NoError(t, err)
	assert.Len(t, left, 1)
	_, err = os.Stat(stuck)
	assert.NoError(t, err)
}

func TestNewRetentionDefaultsLimit(t *testing.T) {
	r := NewRetention(0, NewFlags(newMemKV()), nil)
	assert.Equal(t, DefaultRetentionLimit, r.Limit())
}
