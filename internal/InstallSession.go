package internal

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// InstallSession is the shared state every chunk executor applies against:
// the installation root, the file handle store, the target platform and the
// disk write progress counter. One session spans the whole install phase of
// an update run, so packed-file handles stay warm across consecutive
// patches.
type InstallSession struct {
	ID        uuid.UUID
	Root      string
	TargetDir string
	Platform  string
	Store     *HandleStore

	DiskWriteDelegate DelegateDiskWriteBytes
}

// DefaultPlatform is the platform identifier used in packed data file
// names.
const DefaultPlatform = "win32"

// NewInstallSession creates a session rooted at the installation directory.
// Chunk-relative paths resolve against the game directory under the root.
func NewInstallSession(root string) *InstallSession {
	return &InstallSession{
		ID:        uuid.New(),
		Root:      root,
		TargetDir: filepath.Join(root, "game"),
		Platform:  DefaultPlatform,
		Store:     NewHandleStore(),
	}
}

// ResolvePath maps a chunk-relative path onto the game directory. Paths
// that would escape the installation are rejected.
func (s *InstallSession) ResolvePath(rel string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(rel, "/")))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("path escapes installation root: %q", rel)
	}
	return filepath.Join(s.TargetDir, cleaned), nil
}

// SqpackPath returns the on-disk path of a packed data file for the given
// expansion sub-directory and file name.
func (s *InstallSession) SqpackPath(expansion Repository, name string) string {
	return filepath.Join(s.TargetDir, "sqpack", expansion.String(), name)
}

func (s *InstallSession) reportDiskWrite(n int64) {
	if s.DiskWriteDelegate != nil {
		s.DiskWriteDelegate(n)
	}
}

// Close releases every cached file handle. Safe to call on both success and
// failure paths.
func (s *InstallSession) Close() error {
	return s.Store.Close()
}
