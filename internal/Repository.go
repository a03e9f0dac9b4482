package internal

import (
	"fmt"
	"path/filepath"
)

// Repository identifies a logical content partition of the game
// installation. Repository 0 is the base game, 1-5 are expansions, each
// independently versioned.
type Repository int

// MaxExpansion is the highest expansion slot the version-check dialect
// knows about.
const MaxExpansion = 5

// BaseGame is the repository id of the base game partition.
const BaseGame Repository = 0

// IsBase reports whether the repository is the base game.
func (r Repository) IsBase() bool { return r == BaseGame }

func (r Repository) String() string {
	if r.IsBase() {
		return "ffxiv"
	}
	return fmt.Sprintf("ex%d", int(r))
}

// VerFilePath returns the path of the repository's local version file under
// the installation root.
func (r Repository) VerFilePath(root string) string {
	if r.IsBase() {
		return filepath.Join(root, "game", "ffxivgame.ver")
	}
	return filepath.Join(root, "game", "sqpack", r.String(), r.String()+".ver")
}

// SqpackDir returns the directory holding the repository's packed data
// files under the installation root.
func (r Repository) SqpackDir(root string) string {
	return filepath.Join(root, "game", "sqpack", r.String())
}

// PatchSubDir returns the sub-directory, relative to the patch store root,
// where downloaded patch files for this repository are kept.
func (r Repository) PatchSubDir() string {
	if r.IsBase() {
		return "game"
	}
	return filepath.Join("game", r.String())
}
