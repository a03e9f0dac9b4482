package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// HandleStore caches open read/write file handles for the duration of one
// install session. Exactly one handle exists per canonical path, so every
// chunk executor touching the same packed file observes the same handle
// state, and the store is the only permitted writer for the paths it
// manages.
type HandleStore struct {
	mu      sync.Mutex
	handles map[string]*os.File
}

// NewHandleStore creates an empty store.
func NewHandleStore() *HandleStore {
	return &HandleStore{handles: make(map[string]*os.File)}
}

// Acquire returns the shared handle for path, opening it on first
// reference. Parent directories are created so write targets can come into
// existence mid-patch. The caller must not close the returned handle; the
// store owns it until the session ends.
func (s *HandleStore) Acquire(path string) (*os.File, error) {
	canonical := filepath.Clean(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.handles[canonical]; ok {
		return f, nil
	}

	if err := os.MkdirAll(filepath.Dir(canonical), 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directory for %s: %w", canonical, err)
	}
	f, err := os.OpenFile(canonical, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", canonical, err)
	}

	s.handles[canonical] = f
	return f, nil
}

// Evict flushes and closes the handle for path if the store holds one.
// Executors that delete a managed file call this first so the unlink does
// not race an open descriptor's buffered writes.
func (s *HandleStore) Evict(path string) error {
	canonical := filepath.Clean(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.handles[canonical]
	if !ok {
		return nil
	}
	delete(s.handles, canonical)

	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to flush %s: %w", canonical, err)
	}
	return f.Close()
}

// EvictPrefix closes every cached handle whose path is under dir. Used
// when an executor removes a whole directory tree of managed files.
func (s *HandleStore) EvictPrefix(dir string) error {
	canonical := filepath.Clean(dir) + string(filepath.Separator)

	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for path, f := range s.handles {
		if !strings.HasPrefix(path, canonical) {
			continue
		}
		delete(s.handles, path)
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close %s: %w", path, err)
		}
	}
	return firstErr
}

// Close flushes and releases every handle. It runs on both the success and
// failure path of a session, so no descriptor or unflushed buffer survives
// past the install call. The first error is returned but every handle is
// still closed.
func (s *HandleStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for path, f := range s.handles {
		if err := f.Sync(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to flush %s: %w", path, err)
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close %s: %w", path, err)
		}
	}
	s.handles = make(map[string]*os.File)
	return firstErr
}

// Len returns the number of cached handles.
func (s *HandleStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}
