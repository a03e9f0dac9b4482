package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GameVersion is a version string of the fixed lexicographic form
// YYYY.MM.DD.XXXX.YYYY. Because every field is zero-padded, ordinal string
// comparison is equivalent to chronological comparison; ParseGameVersion
// rejects anything that would break that invariant.
type GameVersion string

// EpochVersion is the version recorded for a repository that has just been
// created and never patched.
const EpochVersion GameVersion = "2012.01.01.0000.0000"

// FullInstallPrefix marks a full-install package version rather than an
// incremental patch. Such packages are only applied to a repository with no
// local version on disk.
const FullInstallPrefix = "H"

// ParseGameVersion validates a raw version string, tolerating the
// full-install prefix and surrounding whitespace.
func ParseGameVersion(raw string) (GameVersion, error) {
	s := strings.TrimSpace(raw)
	body := strings.TrimPrefix(s, FullInstallPrefix)

	if len(body) != 20 {
		return "", &VersionFormatError{Raw: raw}
	}
	for i, c := range body {
		switch i {
		case 4, 7, 10, 15:
			if c != '.' {
				return "", &VersionFormatError{Raw: raw}
			}
		default:
			if c < '0' || c > '9' {
				return "", &VersionFormatError{Raw: raw}
			}
		}
	}
	return GameVersion(s), nil
}

// IsFullInstall reports whether the version names a full-install package.
func (v GameVersion) IsFullInstall() bool {
	return strings.HasPrefix(string(v), FullInstallPrefix)
}

// Canonical strips the full-install prefix, yielding the bare
// YYYY.MM.DD.XXXX.YYYY form. Version files and the version-check URL only
// ever carry the canonical form; the prefix exists solely on manifest
// entries.
func (v GameVersion) Canonical() GameVersion {
	return GameVersion(strings.TrimPrefix(string(v), FullInstallPrefix))
}

// Compare orders two versions: -1 if v is older than other, 0 if equal,
// 1 if newer. The full-install prefix is ignored for ordering.
func (v GameVersion) Compare(other GameVersion) int {
	return strings.Compare(string(v.Canonical()), string(other.Canonical()))
}

// After reports whether v is strictly newer than other.
func (v GameVersion) After(other GameVersion) bool {
	return v.Compare(other) > 0
}

func (v GameVersion) String() string { return string(v) }

// VersionVector maps each locally present repository to its version. An
// absent expansion key means the expansion was never installed.
type VersionVector map[Repository]GameVersion

// ReadVersionVector collects the per-repository version files under the
// installation root. A missing or empty base-game version file leaves
// repository 0 absent, which the planner treats as a fresh install.
func ReadVersionVector(root string) (VersionVector, error) {
	vector := make(VersionVector)

	for repo := BaseGame; repo <= Repository(MaxExpansion); repo++ {
		raw, err := os.ReadFile(repo.VerFilePath(root))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read version file for %s: %w", repo, err)
		}
		if len(strings.TrimSpace(string(raw))) == 0 {
			continue
		}

		version, err := ParseGameVersion(string(raw))
		if err != nil {
			return nil, fmt.Errorf("version file for %s: %w", repo, err)
		}
		vector[repo] = version
	}

	return vector, nil
}

// WriteRepositoryVersion records a repository's version under the
// installation root, creating the directory on first install. The version
// is stored in canonical form: a full-install package advances the
// repository to the bare version it carries.
func WriteRepositoryVersion(root string, repo Repository, version GameVersion) error {
	path := repo.VerFilePath(root)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create version directory for %s: %w", repo, err)
	}
	if err := os.WriteFile(path, []byte(version.Canonical()), 0644); err != nil {
		return fmt.Errorf("failed to write version file for %s: %w", repo, err)
	}
	return nil
}
