package janitor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestSweepRemovesOnlyStaleFiles(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	touch(t, filepath.Join(dir, "old.mp4"), now.Add(-2*time.Hour))
	touch(t, filepath.Join(dir, "fresh.jpg"), now.Add(-10*time.Minute))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	j, err := New(dir, "@every 1h", 0)
	require.NoError(t, err)
	j.now = func() time.Time { return now }

	assert.Equal(t, 1, j.Sweep())
	_, err = os.Stat(filepath.Join(dir, "old.mp4"))
	assert.True(t, os.IsNotExist(err))
	assert.FileExists(t, filepath.Join(dir, "fresh.jpg"))
	assert.DirExists(t, filepath.Join(dir, "sub"))
}

func TestSweepMissingDir(t *testing.T) {
	j, err := New(filepath.Join(t.TempDir(), "absent"), "@every 1h", time.Minute)
	require.NoError(t, err)
	assert.Zero(t, j.Sweep())
}

func TestInvalidSchedule(t *testing.T) {
	_, err := New(t.TempDir(), "every now and then", 0)
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	j, err := New(t.TempDir(), "@every 1h", 0)
	require.NoError(t, err)
	j.Start()
	j.Stop()
}
