package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleStoreSharesOneHandlePerPath(t *testing.T) {
	dir := t.TempDir()
	store := NewHandleStore()
	defer store.Close()

	path := filepath.Join(dir, "sqpack", "ffxiv", "0a0000.win32.dat0")
	first, err := store.Acquire(path)
	require.NoError(t, err)

	second, err := store.Acquire(path)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, store.Len())

	// Writes through one reference are visible through the other.
	_, err = first.WriteAt([]byte("hello"), 0)
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = second.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
}

func TestHandleStoreCreatesParentDirectories(t *testing.T) {
	dir := t.TempDir()
	store := NewHandleStore()
	defer store.Close()

	path := filepath.Join(dir, "a", "b", "c", "file.dat")
	_, err := store.Acquire(path)
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestHandleStoreCloseReleasesEverything(t *testing.T) {
	dir := t.TempDir()
	store := NewHandleStore()

	f, err := store.Acquire(filepath.Join(dir, "one.dat"))
	require.NoError(t, err)
	_, err = store.Acquire(filepath.Join(dir, "two.dat"))
	require.NoError(t, err)

	require.NoError(t, store.Close())
	assert.Equal(t, 0, store.Len())

	// The handle is really closed.
	_, err = f.WriteAt([]byte("x"), 0)
	assert.ErrorIs(t, err, os.ErrClosed)

	// Close is safe to call again.
	assert.NoError(t, store.Close())
}

func TestHandleStoreEvict(t *testing.T) {
	dir := t.TempDir()
	store := NewHandleStore()
	defer store.Close()

	path := filepath.Join(dir, "file.dat")
	first, err := store.Acquire(path)
	require.NoError(t, err)

	require.NoError(t, store.Evict(path))
	assert.Equal(t, 0, store.Len())

	// Evicting an unmanaged path is a no-op.
	require.NoError(t, store.Evict(filepath.Join(dir, "absent.dat")))

	// A later acquire opens a fresh handle.
	second, err := store.Acquire(path)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestHandleStoreEvictPrefix(t *testing.T) {
	dir := t.TempDir()
	store := NewHandleStore()
	defer store.Close()

	_, err := store.Acquire(filepath.Join(dir, "ex1", "one.dat"))
	require.NoError(t, err)
	_, err = store.Acquire(filepath.Join(dir, "ex1", "two.dat"))
	require.NoError(t, err)
	keep, err := store.Acquire(filepath.Join(dir, "ex2", "three.dat"))
	require.NoError(t, err)

	require.NoError(t, store.EvictPrefix(filepath.Join(dir, "ex1")))
	assert.Equal(t, 1, store.Len())

	_, err = keep.WriteAt([]byte("x"), 0)
	assert.NoError(t, err)
}
