package internal

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"io"
)

// PatchMagic is the fixed signature at the start of every patch file.
var PatchMagic = []byte{0x91, 'Z', 'I', 'P', 'A', 'T', 'C', 'H', 0x0D, 0x0A, 0x1A, 0x0A}

// chunkDecoder decodes the payload of one chunk into a typed record.
type chunkDecoder func(r *binaryReader) (PatchChunk, error)

// chunkDecoders is the closed dispatch table from type tag to decoder.
// Tags absent from the table decode to OpaqueChunk.
var chunkDecoders = map[string]chunkDecoder{
	ChunkTypeFileHeader:      decodeFileHeaderChunk,
	ChunkTypeApplyOption:     decodeApplyOptionChunk,
	ChunkTypeAddDirectory:    decodeAddDirectoryChunk,
	ChunkTypeDeleteDirectory: decodeDeleteDirectoryChunk,
	ChunkTypeSqpack:          decodeSqpackChunk,
	ChunkTypeEOF:             decodeEOFChunk,
}

// ChunkReader produces a lazy, forward-only, non-restartable sequence of
// chunk records from a patch file byte stream. Each chunk on the wire is a
// big-endian payload length, a 4-character type tag, the payload, and a
// CRC-32 trailer over tag and payload. The reader always advances exactly
// to the declared chunk boundary regardless of how many payload bytes the
// decoder consumed.
type ChunkReader struct {
	r      io.Reader
	offset int64
	done   bool
}

// NewChunkReader verifies the patch file signature and positions the reader
// at the first chunk.
func NewChunkReader(r io.Reader) (*ChunkReader, error) {
	magic := make([]byte, len(PatchMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, &ChunkDecodeError{Offset: 0, Err: fmt.Errorf("failed to read signature: %w", err)}
	}
	if !bytes.Equal(magic, PatchMagic) {
		return nil, &ChunkDecodeError{Offset: 0, Err: fmt.Errorf("bad patch file signature")}
	}
	return &ChunkReader{r: r, offset: int64(len(PatchMagic))}, nil
}

// Next decodes the next chunk record. It returns io.EOF after the stream
// end marker has been delivered or the input ends cleanly on a chunk
// boundary. Any other malformation aborts the stream with ChunkDecodeError:
// a truncated patch file cannot be partially trusted.
func (cr *ChunkReader) Next() (PatchChunk, error) {
	if cr.done {
		return nil, io.EOF
	}

	chunkOffset := cr.offset

	var header [8]byte
	n, err := io.ReadFull(cr.r, header[:])
	if err == io.EOF && n == 0 {
		cr.done = true
		return nil, io.EOF
	}
	if err != nil {
		cr.done = true
		return nil, &ChunkDecodeError{Offset: chunkOffset, Err: fmt.Errorf("failed to read chunk header: %w", err)}
	}

	length := uint32(header[0])<<24 | uint32(header[1])<<16 | uint32(header[2])<<8 | uint32(header[3])
	tag := string(header[4:8])

	payload := make([]byte, length)
	if _, err := io.ReadFull(cr.r, payload); err != nil {
		cr.done = true
		return nil, &ChunkDecodeError{Tag: tag, Offset: chunkOffset, Err: fmt.Errorf("truncated payload: %w", err)}
	}

	var trailer [4]byte
	if _, err := io.ReadFull(cr.r, trailer[:]); err != nil {
		cr.done = true
		return nil, &ChunkDecodeError{Tag: tag, Offset: chunkOffset, Err: fmt.Errorf("truncated checksum: %w", err)}
	}
	declared := uint32(trailer[0])<<24 | uint32(trailer[1])<<16 | uint32(trailer[2])<<8 | uint32(trailer[3])

	crc := crc32.NewIEEE()
	crc.Write(header[4:8])
	crc.Write(payload)
	if sum := crc.Sum32(); sum != declared {
		cr.done = true
		return nil, &ChunkDecodeError{Tag: tag, Offset: chunkOffset,
			Err: fmt.Errorf("checksum mismatch: declared 0x%08x, computed 0x%08x", declared, sum)}
	}

	cr.offset += 8 + int64(length) + 4

	decoder, known := chunkDecoders[tag]
	if !known {
		return &OpaqueChunk{Tag: tag, Length: length}, nil
	}

	// The payload slice is isolated from the stream, so a decoder that
	// reads fewer bytes than declared cannot leave trailing bytes for the
	// next chunk to misinterpret.
	chunk, err := decoder(newBinaryReader(payload))
	if err != nil {
		cr.done = true
		return nil, &ChunkDecodeError{Tag: tag, Offset: chunkOffset, Err: err}
	}

	if chunk.ChunkType() == ChunkTypeEOF {
		cr.done = true
	}
	return chunk, nil
}

// Offset returns the stream position of the next chunk header.
func (cr *ChunkReader) Offset() int64 { return cr.offset }
