package internal

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/flate"
)

// Loose-file operation kinds inside a SQPK:F chunk.
const (
	FileOpAdd       = 'A'
	FileOpDelete    = 'D'
	FileOpRemoveAll = 'R'
)

// rawStoredMarker in a block frame's compressed-size field means the block
// is stored uncompressed.
const rawStoredMarker = 32000

// fileBlockAlign is the boundary block frames are padded to.
const fileBlockAlign = 128

// FileBlock is one frame of an add-file payload, either raw or
// deflate-compressed.
type FileBlock struct {
	IsCompressed     bool
	DecompressedSize int64
	Data             []byte
}

// Inflate returns the frame's plain bytes.
func (b *FileBlock) Inflate() ([]byte, error) {
	if !b.IsCompressed {
		return b.Data, nil
	}

	fr := flate.NewReader(bytes.NewReader(b.Data))
	defer fr.Close()

	out := make([]byte, 0, b.DecompressedSize)
	buf := make([]byte, 32<<10)
	for {
		n, err := fr.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to inflate block: %w", err)
		}
	}
	if int64(len(out)) != b.DecompressedSize {
		return nil, fmt.Errorf("inflated block size %d does not match declared %d", len(out), b.DecompressedSize)
	}
	return out, nil
}

// SqpkAddFileChunk writes a loose file from a sequence of block frames.
// Offset zero truncates first, so re-applying the patch rewrites the file
// instead of appending to it.
type SqpkAddFileChunk struct {
	Path       string
	FileOffset int64
	FileSize   int64
	Expansion  Repository
	Blocks     []FileBlock
}

// SqpkDeleteFileChunk removes a loose file; an already-absent target is
// not an error.
type SqpkDeleteFileChunk struct {
	Path      string
	Expansion Repository
}

// SqpkRemoveAllChunk clears an expansion's packed data directory ahead of
// a full reinstall of that expansion.
type SqpkRemoveAllChunk struct {
	Expansion Repository
}

func decodeSqpkFileChunk(r *binaryReader) (PatchChunk, error) {
	op := r.U8()
	r.Skip(2)
	fileOffset := int64(r.U64BE())
	fileSize := int64(r.U64BE())
	pathLen := r.U32BE()
	expansion := Repository(r.U16BE())
	r.Skip(2)
	path := string(r.Bytes(int(pathLen)))
	if err := r.Err(); err != nil {
		return nil, err
	}

	switch op {
	case FileOpAdd:
		blocks, err := decodeFileBlocks(r)
		if err != nil {
			return nil, err
		}
		return &SqpkAddFileChunk{
			Path:       path,
			FileOffset: fileOffset,
			FileSize:   fileSize,
			Expansion:  expansion,
			Blocks:     blocks,
		}, nil
	case FileOpDelete:
		return &SqpkDeleteFileChunk{Path: path, Expansion: expansion}, nil
	case FileOpRemoveAll:
		return &SqpkRemoveAllChunk{Expansion: expansion}, nil
	default:
		return nil, fmt.Errorf("unknown file operation 0x%02x", op)
	}
}

// decodeFileBlocks reads block frames until the payload is exhausted. Each
// frame is a little-endian header, the frame data, then padding up to the
// 128-byte boundary; the final frame may arrive unpadded.
func decodeFileBlocks(r *binaryReader) ([]FileBlock, error) {
	var blocks []FileBlock
	for r.RemainingLen() > 0 {
		headerSize := r.U32LE()
		r.Skip(4)
		compressedSize := r.U32LE()
		decompressedSize := r.U32LE()
		if int(headerSize) > 16 {
			r.Skip(int(headerSize) - 16)
		}

		isCompressed := compressedSize != rawStoredMarker
		dataLen := int(decompressedSize)
		if isCompressed {
			dataLen = int(compressedSize)
		}
		data := r.Bytes(dataLen)
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("truncated file block: %w", err)
		}

		blocks = append(blocks, FileBlock{
			IsCompressed:     isCompressed,
			DecompressedSize: int64(decompressedSize),
			Data:             data,
		})

		if pad := alignPadding(int(headerSize)+dataLen, fileBlockAlign); pad > 0 {
			if pad > r.RemainingLen() {
				pad = r.RemainingLen()
			}
			r.Skip(pad)
		}
	}
	return blocks, nil
}

func alignPadding(n, align int) int {
	if rem := n % align; rem != 0 {
		return align - rem
	}
	return 0
}

func (c *SqpkAddFileChunk) ChunkType() string { return ChunkTypeSqpack }

func (c *SqpkAddFileChunk) Apply(session *InstallSession) error {
	path, err := session.ResolvePath(c.Path)
	if err != nil {
		return &ChunkApplyError{Tag: "SQPK:F:A", Path: c.Path, Err: err}
	}

	f, err := session.Store.Acquire(path)
	if err != nil {
		return &ChunkApplyError{Tag: "SQPK:F:A", Path: path, Err: err}
	}
	if c.FileOffset == 0 {
		if err := f.Truncate(0); err != nil {
			return &ChunkApplyError{Tag: "SQPK:F:A", Path: path, Err: err}
		}
	}

	offset := c.FileOffset
	for i := range c.Blocks {
		plain, err := c.Blocks[i].Inflate()
		if err != nil {
			return &ChunkApplyError{Tag: "SQPK:F:A", Path: path, Err: err}
		}
		if _, err := f.WriteAt(plain, offset); err != nil {
			return &ChunkApplyError{Tag: "SQPK:F:A", Path: path, Err: err}
		}
		offset += int64(len(plain))
		session.reportDiskWrite(int64(len(plain)))
	}
	return nil
}

func (c *SqpkDeleteFileChunk) ChunkType() string { return ChunkTypeSqpack }

func (c *SqpkDeleteFileChunk) Apply(session *InstallSession) error {
	path, err := session.ResolvePath(c.Path)
	if err != nil {
		return &ChunkApplyError{Tag: "SQPK:F:D", Path: c.Path, Err: err}
	}

	if err := session.Store.Evict(path); err != nil {
		return &ChunkApplyError{Tag: "SQPK:F:D", Path: path, Err: err}
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &ChunkApplyError{Tag: "SQPK:F:D", Path: path, Err: err}
	}
	return nil
}

func (c *SqpkRemoveAllChunk) ChunkType() string { return ChunkTypeSqpack }

func (c *SqpkRemoveAllChunk) Apply(session *InstallSession) error {
	dir := session.SqpackPath(c.Expansion, "")
	if err := session.Store.EvictPrefix(dir); err != nil {
		return &ChunkApplyError{Tag: "SQPK:F:R", Path: dir, Err: err}
	}
	if err := os.RemoveAll(dir); err != nil {
		return &ChunkApplyError{Tag: "SQPK:F:R", Path: dir, Err: err}
	}
	PushLogInfo(nil, fmt.Sprintf("Cleared packed data for %s", c.Expansion))
	return nil
}
