package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRecordsPID(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")

	lock, err := Acquire(dir)
	require.NoError(t, err)
	defer lock.Release()

	assert.Equal(t, filepath.Join(dir, LockFileName), lock.Path())
	content, err := os.ReadFile(lock.Path())
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("pid=%d\n", os.Getpid()), string(content))
}

func TestAcquireConflict(t *testing.T) {
	dir := t.TempDir()
	first, err := Acquire(dir)
	require.NoError(t, err)
	defer first.Release()

	second, err := Acquire(dir)
	require.Error(t, err)
	assert.Nil(t, second)

	var held *HeldError
	require.True(t, errors.As(err, &held))
	assert.Equal(t, first.Path(), held.Path)
	assert.Contains(t, held.Owner, fmt.Sprintf("held by pid %d", os.Getpid()))
	assert.Contains(t, err.Error(), "-state-dir")

	// The failed attempt leaves the owner's pid in place.
	content, err := os.ReadFile(first.Path())
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("pid=%d\n", os.Getpid()), string(content))
}

func TestReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()
	lock, err := Acquire(dir)
	require.NoError(t, err)

	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())
	assert.NoFileExists(t, filepath.Join(dir, LockFileName))

	again, err := Acquire(dir)
	require.NoError(t, err)
	assert.NoError(t, again.Release())
}

func TestReleaseNil(t *testing.T) {
	var lock *Lock
	assert.NoError(t, lock.Release())
}

func TestParsePID(t *testing.T) {
	tests := map[string]int{
		"pid=1234\n":       1234,
		"pid=42":           42,
		"owner pid=7 here": 7,
		"pid=":             0,
		"pid=abc":          0,
		"":                 0,
	}
	for in, want := range tests {
		assert.Equal(t, want, parsePID(in), in)
	}
}

func TestOwnerOfStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), LockFileName)
	// Pids are capped well below this on Linux.
	require.NoError(t, os.WriteFile(path, []byte("pid=999999999\n"), 0644))
	assert.Equal(t, "pid 999999999 is not running", ownerOf(path))

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))
	assert.Empty(t, ownerOf(path))
}
