package internal

import (
	"fmt"
	"os"
)

// Packed-file operation opcodes inside a SQPK chunk.
const (
	SqpkOpAddData       = 'A'
	SqpkOpDeleteData    = 'D'
	SqpkOpExpandData    = 'E'
	SqpkOpFileOperation = 'F'
	SqpkOpHeader        = 'H'
	SqpkOpIndex         = 'I'
	SqpkOpTargetInfo    = 'T'
)

// sqpackBlockShift converts the wire's 128-byte block units to bytes.
const sqpackBlockShift = 7

// SqpackFileSpec identifies one packed data file inside the installation.
// The high byte of SubID selects the expansion sub-directory.
type SqpackFileSpec struct {
	MainID uint16
	SubID  uint16
	FileID uint32
}

func decodeSqpackFileSpec(r *binaryReader) SqpackFileSpec {
	return SqpackFileSpec{
		MainID: r.U16BE(),
		SubID:  r.U16BE(),
		FileID: r.U32BE(),
	}
}

// Expansion returns the repository whose sqpack directory holds the file.
func (s SqpackFileSpec) Expansion() Repository {
	return Repository(s.SubID >> 8)
}

// DatPath resolves the packed data file path for the session's platform.
func (s SqpackFileSpec) DatPath(session *InstallSession) string {
	name := fmt.Sprintf("%02x%04x.%s.dat%d", s.MainID, s.SubID, session.Platform, s.FileID)
	return session.SqpackPath(s.Expansion(), name)
}

// IndexPath resolves the index file path. File id 0 is the primary index,
// anything else the secondary.
func (s SqpackFileSpec) IndexPath(session *InstallSession) string {
	suffix := "index"
	if s.FileID > 0 {
		suffix = "index2"
	}
	name := fmt.Sprintf("%02x%04x.%s.%s", s.MainID, s.SubID, session.Platform, suffix)
	return session.SqpackPath(s.Expansion(), name)
}

// decodeSqpackChunk dispatches on the packed-file opcode that follows the
// command size field.
func decodeSqpackChunk(r *binaryReader) (PatchChunk, error) {
	r.U32BE() // command size, redundant with the chunk length
	op := r.U8()
	if err := r.Err(); err != nil {
		return nil, err
	}

	switch op {
	case SqpkOpAddData:
		return decodeSqpkAddDataChunk(r)
	case SqpkOpDeleteData:
		return decodeSqpkZeroDataChunk(r, false)
	case SqpkOpExpandData:
		return decodeSqpkZeroDataChunk(r, true)
	case SqpkOpFileOperation:
		return decodeSqpkFileChunk(r)
	case SqpkOpHeader:
		return decodeSqpkHeaderChunk(r)
	case SqpkOpIndex:
		return decodeSqpkIndexChunk(r)
	case SqpkOpTargetInfo:
		return decodeSqpkTargetInfoChunk(r)
	default:
		return nil, fmt.Errorf("unknown packed-file opcode 0x%02x", op)
	}
}

// SqpkAddDataChunk writes a block image into a packed data file at an
// absolute block offset, then clears the declared number of trailing
// blocks. Re-applying it produces identical bytes.
type SqpkAddDataChunk struct {
	File        SqpackFileSpec
	BlockOffset int64
	BlockData   []byte
	ClearSize   int64
}

func decodeSqpkAddDataChunk(r *binaryReader) (PatchChunk, error) {
	r.Skip(3)
	spec := decodeSqpackFileSpec(r)
	offset := int64(r.U32BE()) << sqpackBlockShift
	dataSize := int64(r.U32BE()) << sqpackBlockShift
	clearSize := int64(r.U32BE()) << sqpackBlockShift
	data := r.Bytes(int(dataSize))
	if err := r.Err(); err != nil {
		return nil, err
	}
	return &SqpkAddDataChunk{
		File:        spec,
		BlockOffset: offset,
		BlockData:   data,
		ClearSize:   clearSize,
	}, nil
}

func (c *SqpkAddDataChunk) ChunkType() string { return ChunkTypeSqpack }

func (c *SqpkAddDataChunk) Apply(session *InstallSession) error {
	path := c.File.DatPath(session)
	f, err := session.Store.Acquire(path)
	if err != nil {
		return &ChunkApplyError{Tag: "SQPK:A", Path: path, Err: err}
	}

	if _, err := f.WriteAt(c.BlockData, c.BlockOffset); err != nil {
		return &ChunkApplyError{Tag: "SQPK:A", Path: path, Err: err}
	}
	if err := zeroFillRange(f, c.BlockOffset+int64(len(c.BlockData)), c.ClearSize); err != nil {
		return &ChunkApplyError{Tag: "SQPK:A", Path: path, Err: err}
	}

	session.reportDiskWrite(int64(len(c.BlockData)) + c.ClearSize)
	return nil
}

// SqpkZeroDataChunk clears a block range of a packed data file, extending
// the file if the range lies past its current end. It backs both the
// delete-data and expand-data operations; the game treats a zeroed block
// header as free space.
type SqpkZeroDataChunk struct {
	File        SqpackFileSpec
	BlockOffset int64
	Size        int64
	Expand      bool
}

func decodeSqpkZeroDataChunk(r *binaryReader, expand bool) (PatchChunk, error) {
	r.Skip(3)
	spec := decodeSqpackFileSpec(r)
	offset := int64(r.U32BE()) << sqpackBlockShift
	size := int64(r.U32BE()) << sqpackBlockShift
	if err := r.Err(); err != nil {
		return nil, err
	}
	return &SqpkZeroDataChunk{
		File:        spec,
		BlockOffset: offset,
		Size:        size,
		Expand:      expand,
	}, nil
}

func (c *SqpkZeroDataChunk) ChunkType() string { return ChunkTypeSqpack }

func (c *SqpkZeroDataChunk) tag() string {
	if c.Expand {
		return "SQPK:E"
	}
	return "SQPK:D"
}

func (c *SqpkZeroDataChunk) Apply(session *InstallSession) error {
	path := c.File.DatPath(session)
	f, err := session.Store.Acquire(path)
	if err != nil {
		return &ChunkApplyError{Tag: c.tag(), Path: path, Err: err}
	}
	if err := zeroFillRange(f, c.BlockOffset, c.Size); err != nil {
		return &ChunkApplyError{Tag: c.tag(), Path: path, Err: err}
	}
	session.reportDiskWrite(c.Size)
	return nil
}

// Header target kinds for SqpkHeaderChunk.
const (
	SqpkHeaderFileDat     = 'D'
	SqpkHeaderFileIndex   = 'I'
	SqpkHeaderKindVersion = 'V'
)

// sqpkHeaderSize is the fixed size of a packed-file header image.
const sqpkHeaderSize = 1024

// SqpkHeaderChunk overwrites one of the fixed 1024-byte headers of a
// packed data or index file. The version header sits at offset 0, every
// other header kind at offset 1024.
type SqpkHeaderChunk struct {
	FileKind   byte
	HeaderKind byte
	File       SqpackFileSpec
	HeaderData []byte
}

func decodeSqpkHeaderChunk(r *binaryReader) (PatchChunk, error) {
	chunk := &SqpkHeaderChunk{
		FileKind:   r.U8(),
		HeaderKind: r.U8(),
	}
	r.Skip(1)
	chunk.File = decodeSqpackFileSpec(r)
	chunk.HeaderData = r.Bytes(sqpkHeaderSize)
	if err := r.Err(); err != nil {
		return nil, err
	}
	return chunk, nil
}

func (c *SqpkHeaderChunk) ChunkType() string { return ChunkTypeSqpack }

func (c *SqpkHeaderChunk) Apply(session *InstallSession) error {
	path := c.File.DatPath(session)
	if c.FileKind == SqpkHeaderFileIndex {
		path = c.File.IndexPath(session)
	}

	f, err := session.Store.Acquire(path)
	if err != nil {
		return &ChunkApplyError{Tag: "SQPK:H", Path: path, Err: err}
	}

	offset := int64(sqpkHeaderSize)
	if c.HeaderKind == SqpkHeaderKindVersion {
		offset = 0
	}
	if _, err := f.WriteAt(c.HeaderData, offset); err != nil {
		return &ChunkApplyError{Tag: "SQPK:H", Path: path, Err: err}
	}

	session.reportDiskWrite(int64(len(c.HeaderData)))
	return nil
}

// SqpkIndexChunk describes an index segment update. The index images are
// carried whole by header and add-data chunks in the same patch, so this
// record is informational and applies as a no-op, like the original client.
type SqpkIndexChunk struct {
	Command     byte
	File        SqpackFileSpec
	BlockOffset uint32
	BlockCount  uint32
}

func decodeSqpkIndexChunk(r *binaryReader) (PatchChunk, error) {
	chunk := &SqpkIndexChunk{Command: r.U8()}
	r.Skip(2)
	chunk.File = decodeSqpackFileSpec(r)
	chunk.BlockOffset = r.U32BE()
	chunk.BlockCount = r.U32BE()
	if err := r.Err(); err != nil {
		return nil, err
	}
	return chunk, nil
}

func (c *SqpkIndexChunk) ChunkType() string { return ChunkTypeSqpack }

func (c *SqpkIndexChunk) Apply(session *InstallSession) error {
	PushLogDebug(nil, fmt.Sprintf("Index %c for %s: offset=%d count=%d",
		c.Command, c.File.IndexPath(session), c.BlockOffset, c.BlockCount))
	return nil
}

// SqpkTargetInfoChunk marks the platform boundary of the command stream
// and carries the platform the following packed-file operations target.
type SqpkTargetInfoChunk struct {
	Platform uint16
	Region   uint16
	IsDebug  uint16
	Version  uint16
}

func decodeSqpkTargetInfoChunk(r *binaryReader) (PatchChunk, error) {
	r.Skip(3)
	chunk := &SqpkTargetInfoChunk{
		Platform: r.U16BE(),
		Region:   r.U16BE(),
		IsDebug:  r.U16BE(),
		Version:  r.U16BE(),
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return chunk, nil
}

func (c *SqpkTargetInfoChunk) ChunkType() string { return ChunkTypeSqpack }

// targetPlatformNames maps the wire platform field to the directory token
// used in packed file names.
var targetPlatformNames = map[uint16]string{
	0: "win32",
	1: "ps3",
	2: "ps4",
}

func (c *SqpkTargetInfoChunk) Apply(session *InstallSession) error {
	if name, ok := targetPlatformNames[c.Platform]; ok {
		session.Platform = name
	}
	PushLogDebug(nil, fmt.Sprintf("Target info: platform=%d region=%d debug=%d version=%d",
		c.Platform, c.Region, c.IsDebug, c.Version))
	return nil
}

// zeroBlock is the shared buffer for clearing block ranges.
var zeroBlock [32 << 10]byte

// zeroFillRange writes size zero bytes at offset, extending the file as
// needed.
func zeroFillRange(f *os.File, offset, size int64) error {
	for size > 0 {
		n := size
		if n > int64(len(zeroBlock)) {
			n = int64(len(zeroBlock))
		}
		written, err := f.WriteAt(zeroBlock[:n], offset)
		if err != nil {
			return err
		}
		offset += int64(written)
		size -= int64(written)
	}
	return nil
}
