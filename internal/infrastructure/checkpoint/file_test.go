package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	store := New(filepath.Join(t.TempDir(), "checkpoint"))
	day := time.Date(2026, time.August, 28, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(day))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.True(t, loaded.Equal(day))
}

func TestLoadMissingFileDefaultsToYesterday(t *testing.T) {
	t.Parallel()

	store := New(filepath.Join(t.TempDir(), "checkpoint"))

	loaded, err := store.Load()
	require.NoError(t, err)

	yesterday := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -1)
	assert.True(t, loaded.Equal(yesterday))
}

func TestLoadRejectsGarbage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "checkpoint")
	require.NoError(t, os.WriteFile(path, []byte("not a date\n"), 0o644))

	_, err := New(path).Load()
	assert.Error(t, err)
}

func TestSaveOverwritesPreviousValue(t *testing.T) {
	t.Parallel()

	store := New(filepath.Join(t.TempDir(), "checkpoint"))

	require.NoError(t, store.Save(time.Date(2026, time.August, 27, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, store.Save(time.Date(2026, time.August, 28, 0, 0, 0, 0, time.UTC)))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "2026-08-28", loaded.Format("2006-01-02"))
}
