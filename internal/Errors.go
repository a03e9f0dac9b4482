package internal

import "fmt"

// NetworkError wraps a transport failure, timeout, or non-success HTTP
// status encountered while talking to the patch servers.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("network error for %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("network error for %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// SizeMismatchError reports a downloaded patch file whose on-disk size does
// not match the size declared by its descriptor. The file is deleted before
// this error is returned.
type SizeMismatchError struct {
	Path     string
	Expected int64
	Actual   int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("size mismatch for %s: expected %d bytes, got %d", e.Path, e.Expected, e.Actual)
}

// HashMismatchError reports a downloaded patch file that passed the size
// check but failed block hash verification against the manifest digests.
type HashMismatchError struct {
	Path       string
	BlockIndex int
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("hash mismatch for %s at block %d", e.Path, e.BlockIndex)
}

// ChunkDecodeError reports a malformed chunk header, a checksum failure, or
// a stream truncated mid-chunk. Decoding of the whole patch file is aborted.
type ChunkDecodeError struct {
	Tag    string
	Offset int64
	Err    error
}

func (e *ChunkDecodeError) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("chunk decode failed at offset 0x%x: %v", e.Offset, e.Err)
	}
	return fmt.Sprintf("chunk decode failed for %s at offset 0x%x: %v", e.Tag, e.Offset, e.Err)
}

func (e *ChunkDecodeError) Unwrap() error { return e.Err }

// ChunkApplyError reports a chunk whose filesystem effect failed. It always
// identifies the chunk type and the target path.
type ChunkApplyError struct {
	Tag  string
	Path string
	Err  error
}

func (e *ChunkApplyError) Error() string {
	return fmt.Sprintf("failed to apply %s chunk to %s: %v", e.Tag, e.Path, e.Err)
}

func (e *ChunkApplyError) Unwrap() error { return e.Err }

// VersionFormatError reports a version string that does not have the
// YYYY.MM.DD.XXXX.YYYY form and therefore cannot be ordered.
type VersionFormatError struct {
	Raw string
}

func (e *VersionFormatError) Error() string {
	return fmt.Sprintf("malformed version string: %q", e.Raw)
}
