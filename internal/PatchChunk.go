package internal

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Chunk type tags as they appear on the wire.
const (
	ChunkTypeFileHeader      = "FHDR"
	ChunkTypeApplyOption     = "APLY"
	ChunkTypeAddDirectory    = "ADIR"
	ChunkTypeDeleteDirectory = "DELD"
	ChunkTypeSqpack          = "SQPK"
	ChunkTypeEOF             = "EOF_"
)

// PatchChunk is one decoded operation record from a patch file. Records are
// immutable once decoded and applied strictly in stream order.
type PatchChunk interface {
	ChunkType() string
	Apply(session *InstallSession) error
}

// binaryReader decodes the fixed-layout fields of a chunk payload with a
// sticky error, so decoders can read a whole layout and check once.
type binaryReader struct {
	buf []byte
	pos int
	err error
}

func newBinaryReader(payload []byte) *binaryReader {
	return &binaryReader{buf: payload}
}

func (r *binaryReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.pos+n > len(r.buf) {
		r.err = io.ErrUnexpectedEOF
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *binaryReader) U8() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *binaryReader) U16BE() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *binaryReader) U32BE() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *binaryReader) U64BE() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// U32LE reads a little-endian field; the packed-file block headers use the
// pack files' native byte order rather than the chunk container's.
func (r *binaryReader) U32LE() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *binaryReader) Bytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func (r *binaryReader) Skip(n int) {
	r.take(n)
}

func (r *binaryReader) Remaining() []byte {
	if r.err != nil {
		return nil
	}
	out := make([]byte, len(r.buf)-r.pos)
	copy(out, r.buf[r.pos:])
	r.pos = len(r.buf)
	return out
}

func (r *binaryReader) RemainingLen() int {
	return len(r.buf) - r.pos
}

func (r *binaryReader) Err() error { return r.err }

// OpaqueChunk stands in for a chunk whose type tag this build does not
// know. It is skipped but still advances the stream cursor by its declared
// length, so newer patch formats do not crash older clients.
type OpaqueChunk struct {
	Tag    string
	Length uint32
}

func (c *OpaqueChunk) ChunkType() string { return c.Tag }

func (c *OpaqueChunk) Apply(session *InstallSession) error {
	PushLogDebug(nil, fmt.Sprintf("Skipping unknown chunk type %q (0x%x bytes)", c.Tag, c.Length))
	return nil
}

// EOFChunk marks the end of the chunk stream.
type EOFChunk struct{}

func (c *EOFChunk) ChunkType() string { return ChunkTypeEOF }

func (c *EOFChunk) Apply(session *InstallSession) error { return nil }

func decodeEOFChunk(r *binaryReader) (PatchChunk, error) {
	return &EOFChunk{}, nil
}

// FileHeaderChunk carries patch-level metadata: container version, patch
// kind and the entry counts the server declared for the file.
type FileHeaderChunk struct {
	Version      uint16
	PatchKind    string
	EntryFiles   uint32
	CommandCount uint32
}

func decodeFileHeaderChunk(r *binaryReader) (PatchChunk, error) {
	chunk := &FileHeaderChunk{
		Version:      r.U16BE(),
		PatchKind:    string(r.Bytes(4)),
		EntryFiles:   r.U32BE(),
		CommandCount: r.U32BE(),
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return chunk, nil
}

func (c *FileHeaderChunk) ChunkType() string { return ChunkTypeFileHeader }

func (c *FileHeaderChunk) Apply(session *InstallSession) error {
	PushLogInfo(nil, fmt.Sprintf("Patch header: kind=%s version=%d entries=%d commands=%d",
		c.PatchKind, c.Version, c.EntryFiles, c.CommandCount))
	return nil
}

// ApplyOptionChunk carries an installer option toggle. The known options
// only affect legacy clients, so the value is decoded and recorded but has
// no filesystem effect.
type ApplyOptionChunk struct {
	Option uint32
	Value  uint32
}

func decodeApplyOptionChunk(r *binaryReader) (PatchChunk, error) {
	chunk := &ApplyOptionChunk{
		Option: r.U32BE(),
	}
	r.Skip(4)
	chunk.Value = r.U32BE()
	if err := r.Err(); err != nil {
		return nil, err
	}
	return chunk, nil
}

func (c *ApplyOptionChunk) ChunkType() string { return ChunkTypeApplyOption }

func (c *ApplyOptionChunk) Apply(session *InstallSession) error {
	PushLogDebug(nil, fmt.Sprintf("Apply option %d = %d", c.Option, c.Value))
	return nil
}
