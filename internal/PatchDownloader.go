package internal

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/time/rate"
)

// downloadBufferSize is the copy buffer for streaming a patch body to disk.
const downloadBufferSize = 64 << 10

// PatchDownloader fetches patch artifacts into a local patch store with
// retry, resume-across-runs and post-download verification.
type PatchDownloader struct {
	Client         *http.Client
	PatchDir       string
	RetryAttempts  int
	RetryDelayStep time.Duration

	// Limiter caps download bandwidth across attempts; nil means
	// unlimited.
	Limiter *rate.Limiter

	// DownloadDelegate receives network byte deltas, including negative
	// rollbacks when an attempt is restarted and whole-file credits when a
	// finished download is reused.
	DownloadDelegate DelegateDownloadBytes
}

// NewPatchDownloader creates a downloader storing artifacts under
// patchDir.
func NewPatchDownloader(client *http.Client, patchDir string) *PatchDownloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &PatchDownloader{
		Client:         client,
		PatchDir:       patchDir,
		RetryAttempts:  DefaultRetryAttempt,
		RetryDelayStep: DefaultRetryDelayStep,
	}
}

// Download fetches one patch artifact and returns its local path. A
// previously-downloaded file of the exact declared size is reused without
// touching the network. The downloaded bytes are verified against the
// descriptor's declared size and, when present, its block hash digests; a
// file failing either check is deleted before the error is returned.
func (d *PatchDownloader) Download(ctx context.Context, descriptor *PatchDescriptor) (string, error) {
	destPath := filepath.Join(d.PatchDir, descriptor.LocalSubPath())

	if info, err := os.Stat(destPath); err == nil && info.Size() == descriptor.Size {
		PushLogInfo(d, fmt.Sprintf("Patch %s already downloaded, skipping", descriptor.Version))
		d.reportDownload(descriptor.Size)
		return destPath, nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create patch directory: %w", err)
	}
	stagingPath := filepath.Join(filepath.Dir(destPath), stagingFileName(descriptor))

	_, err := WaitForRetry(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, d.downloadAttempt(ctx, descriptor, stagingPath)
	}, d.RetryAttempts, d.RetryDelayStep, nil)
	if err != nil {
		os.Remove(stagingPath)
		return "", err
	}

	info, err := os.Stat(stagingPath)
	if err != nil {
		return "", fmt.Errorf("failed to stat downloaded patch: %w", err)
	}
	if info.Size() != descriptor.Size {
		os.Remove(stagingPath)
		return "", &SizeMismatchError{Path: destPath, Expected: descriptor.Size, Actual: info.Size()}
	}

	if descriptor.HasBlockHashes() {
		if err := verifyBlockHashes(stagingPath, descriptor); err != nil {
			os.Remove(stagingPath)
			return "", err
		}
	}

	if err := os.Rename(stagingPath, destPath); err != nil {
		return "", fmt.Errorf("failed to move patch into place: %w", err)
	}

	PushLogInfo(d, fmt.Sprintf("Patch %s | (%s -> %s) has been completely downloaded!",
		descriptor.Version, descriptor.HumanSize(), descriptor.FileName()))
	return destPath, nil
}

// downloadAttempt streams the artifact body into the staging file. Progress
// reported during a failed attempt is rolled back with a negative delta so
// the running totals stay truthful across retries.
func (d *PatchDownloader) downloadAttempt(ctx context.Context, descriptor *PatchDescriptor, stagingPath string) (err error) {
	var written int64
	defer func() {
		if err != nil && written > 0 {
			d.reportDownload(-written)
		}
	}()

	f, err := os.OpenFile(stagingPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create staging file: %w", err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, descriptor.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		return &NetworkError{URL: descriptor.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &NetworkError{URL: descriptor.URL, StatusCode: resp.StatusCode}
	}

	buffer := make([]byte, downloadBufferSize)
	for {
		n, readErr := resp.Body.Read(buffer)
		if n > 0 {
			if d.Limiter != nil {
				if err := d.Limiter.WaitN(ctx, n); err != nil {
					return err
				}
			}
			if _, err := f.Write(buffer[:n]); err != nil {
				return fmt.Errorf("failed to write patch data: %w", err)
			}
			written += int64(n)
			d.reportDownload(int64(n))
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return &NetworkError{URL: descriptor.URL, Err: readErr}
		}
	}

	return f.Sync()
}

// verifyBlockHashes re-reads the downloaded file in descriptor-sized
// windows and compares each window's SHA-1 against the manifest digest.
func verifyBlockHashes(path string, descriptor *PatchDescriptor) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open patch for verification: %w", err)
	}
	defer f.Close()

	buffer := make([]byte, descriptor.HashBlockSize)
	for i, declared := range descriptor.Hashes {
		n, err := io.ReadFull(f, buffer)
		if err == io.EOF {
			// The manifest declares more blocks than the file holds, so the
			// remaining digests can never match anything.
			return &HashMismatchError{Path: path, BlockIndex: i}
		}
		if err != nil && err != io.ErrUnexpectedEOF {
			return fmt.Errorf("failed to read verification block %d: %w", i, err)
		}

		declaredSum, err := hex.DecodeString(declared)
		if err != nil {
			return fmt.Errorf("bad manifest digest for block %d: %w", i, err)
		}
		sum := sha1.Sum(buffer[:n])
		if !bytes.Equal(sum[:], declaredSum) {
			return &HashMismatchError{Path: path, BlockIndex: i}
		}
	}
	return nil
}

// stagingFileName derives a stable in-flight filename for the artifact, so
// an interrupted attempt never masquerades as a finished download.
func stagingFileName(descriptor *PatchDescriptor) string {
	concat := fmt.Sprintf("%s$%s$%s", descriptor.Repository, descriptor.Version, descriptor.URL)
	return fmt.Sprintf("%016x.tmp", xxhash.Sum64String(concat))
}

func (d *PatchDownloader) reportDownload(n int64) {
	if d.DownloadDelegate != nil {
		d.DownloadDelegate(n)
	}
}
