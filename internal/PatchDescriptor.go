package internal

import (
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// PatchDescriptor describes one downloadable patch artifact, decoded from a
// single tab-separated manifest line. It is never mutated after creation.
type PatchDescriptor struct {
	Size          int64
	TotalSize     int64
	FileCount     int
	PartCount     int
	Version       GameVersion
	HashType      string
	HashBlockSize int64
	Hashes        []string
	URL           string
	Repository    Repository
}

// patchURLScheme is the scheme every genuine patch artifact URL starts
// with; manifest lines pointing anywhere else are noise.
const patchURLScheme = "http"

// manifestFieldCount is the minimum number of tab-separated fields a
// manifest line must carry to be a patch line.
const manifestFieldCount = 9

// ParsePatchLine decodes one manifest line into a descriptor. The server
// interleaves patch lines with framing noise, so any line that does not
// parse cleanly is rejected with an error the caller is expected to
// swallow.
func ParsePatchLine(line string) (*PatchDescriptor, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < manifestFieldCount {
		return nil, fmt.Errorf("expected at least %d fields, got %d", manifestFieldCount, len(fields))
	}

	size, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad size field: %w", err)
	}
	totalSize, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad total size field: %w", err)
	}
	fileCount, err := strconv.Atoi(fields[2])
	if err != nil {
		return nil, fmt.Errorf("bad file count field: %w", err)
	}
	partCount, err := strconv.Atoi(fields[3])
	if err != nil {
		return nil, fmt.Errorf("bad part count field: %w", err)
	}
	version, err := ParseGameVersion(fields[4])
	if err != nil {
		return nil, fmt.Errorf("bad version field: %w", err)
	}

	hashBlockSize := int64(0)
	if fields[6] != "" {
		hashBlockSize, err = strconv.ParseInt(fields[6], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad hash block size field: %w", err)
		}
	}

	var hashes []string
	if fields[7] != "" {
		hashes = strings.Split(fields[7], ",")
	}

	url := fields[len(fields)-1]
	if !strings.HasPrefix(url, patchURLScheme) {
		return nil, fmt.Errorf("not a patch URL: %q", url)
	}

	return &PatchDescriptor{
		Size:          size,
		TotalSize:     totalSize,
		FileCount:     fileCount,
		PartCount:     partCount,
		Version:       version,
		HashType:      fields[5],
		HashBlockSize: hashBlockSize,
		Hashes:        hashes,
		URL:           url,
		Repository:    repositoryFromURL(url),
	}, nil
}

// repositoryFromURL infers the target repository from a path segment of the
// artifact URL. No /ex{n}/ segment means the base game.
func repositoryFromURL(url string) Repository {
	for n := 1; n <= MaxExpansion; n++ {
		if strings.Contains(url, fmt.Sprintf("/ex%d/", n)) {
			return Repository(n)
		}
	}
	return BaseGame
}

// FileName returns the canonical local filename of the artifact.
func (d *PatchDescriptor) FileName() string {
	return path.Base(d.URL)
}

// LocalSubPath returns the storage sub-path, keyed by repository, where the
// downloaded artifact is kept under the patch store root.
func (d *PatchDescriptor) LocalSubPath() string {
	return filepath.Join(d.Repository.PatchSubDir(), d.FileName())
}

// HumanSize returns the declared artifact size in human-readable form.
func (d *PatchDescriptor) HumanSize() string {
	return humanize.Bytes(uint64(d.Size))
}

// HasBlockHashes reports whether the descriptor carries a usable hash block
// for post-download verification.
func (d *PatchDescriptor) HasBlockHashes() bool {
	return d.HashType == "sha1" && d.HashBlockSize > 0 && len(d.Hashes) > 0
}

func (d *PatchDescriptor) String() string {
	return fmt.Sprintf("%s (%s, %s)", d.Version, d.Repository, d.HumanSize())
}
