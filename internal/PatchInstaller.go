package internal

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
)

// PatchInstaller applies downloaded patch files against one installation
// root. It owns the install session, so pack-file handles opened by one
// patch stay valid for the next; Close must run when the install phase
// ends, on both success and failure paths.
type PatchInstaller struct {
	session *InstallSession
}

// NewPatchInstaller creates an installer with a fresh session for root.
func NewPatchInstaller(root string) *PatchInstaller {
	return &PatchInstaller{session: NewInstallSession(root)}
}

// Session exposes the install session for progress wiring.
func (p *PatchInstaller) Session() *InstallSession { return p.session }

// ApplyPatchFile decodes the patch file and applies every chunk in strict
// stream order. Chunks are never reordered, deduplicated or parallelized:
// later chunks may depend on directories or headers created by earlier
// ones. Cancellation is observed between chunks; a failed chunk aborts the
// patch without rollback.
func (p *PatchInstaller) ApplyPatchFile(ctx context.Context, patchPath string) error {
	f, err := os.Open(patchPath)
	if err != nil {
		return fmt.Errorf("failed to open patch file: %w", err)
	}
	defer f.Close()

	reader, err := NewChunkReader(f)
	if err != nil {
		return err
	}

	PushLogInfo(p, fmt.Sprintf("Applying patch %s (session %s)", patchPath, p.session.ID))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunk, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if err := chunk.Apply(p.session); err != nil {
			return err
		}
	}
}

// InstallPatch applies one downloaded artifact and then records the
// repository's new version. The version write happens only after every
// chunk applied, so a mid-run failure leaves the version record at the
// last successfully-applied patch.
func (p *PatchInstaller) InstallPatch(ctx context.Context, patchPath string, descriptor *PatchDescriptor) error {
	if err := p.ApplyPatchFile(ctx, patchPath); err != nil {
		return err
	}
	if err := WriteRepositoryVersion(p.session.Root, descriptor.Repository, descriptor.Version); err != nil {
		return err
	}
	PushLogInfo(p, fmt.Sprintf("Patch %s | (%s, %s) has been applied, %s is now at %s",
		descriptor.Version, descriptor.Repository, humanize.Bytes(uint64(descriptor.Size)),
		descriptor.Repository, descriptor.Version))
	return nil
}

// Close releases every file handle the session accumulated.
func (p *PatchInstaller) Close() error {
	return p.session.Close()
}
