package utils

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSleepReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}

func TestOutputManager(t *testing.T) {
	base := filepath.Join(t.TempDir(), "exports")
	om := NewOutputManager(base)

	path, err := om.GetOutputFilePath("NolaCrimes2014.csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "NolaCrimes2014.csv"), path)
	assert.DirExists(t, base)

	abs := filepath.Join(t.TempDir(), "abs.csv")
	path, err = om.GetOutputFilePath(abs)
	require.NoError(t, err)
	assert.Equal(t, abs, path)

	require.NoError(t, os.WriteFile(abs, []byte("id\n"), 0644))
	size, err := om.GetFileSize(abs)
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)

	_, err = om.GetFileSize(base)
	assert.Error(t, err)

	_, err = om.GetFileSize(filepath.Join(base, "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
