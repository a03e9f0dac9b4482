package internal

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkReaderRoundTrip(t *testing.T) {
	patch := newTestPatchBuilder().
		AddChunk(ChunkTypeFileHeader, fileHeaderPayload("DIFF", 3, 7)).
		AddChunk(ChunkTypeAddDirectory, dirPayload("sqpack/ffxiv")).
		AddEOF().
		Bytes()

	reader, err := NewChunkReader(bytes.NewReader(patch))
	require.NoError(t, err)

	chunk, err := reader.Next()
	require.NoError(t, err)
	header, ok := chunk.(*FileHeaderChunk)
	require.True(t, ok)
	assert.Equal(t, "DIFF", header.PatchKind)
	assert.Equal(t, uint32(3), header.EntryFiles)
	assert.Equal(t, uint32(7), header.CommandCount)

	chunk, err = reader.Next()
	require.NoError(t, err)
	addDir, ok := chunk.(*AddDirectoryChunk)
	require.True(t, ok)
	assert.Equal(t, "sqpack/ffxiv", addDir.DirName)

	chunk, err = reader.Next()
	require.NoError(t, err)
	assert.IsType(t, &EOFChunk{}, chunk)

	_, err = reader.Next()
	assert.Equal(t, io.EOF, err)
}

// A decoder that consumes fewer bytes than the declared chunk length must
// not leave trailing bytes for the next chunk to misinterpret.
func TestChunkReaderAdvancesPastUnconsumedPayload(t *testing.T) {
	padded := append(dirPayload("a/b"), 0xDE, 0xAD, 0xBE, 0xEF)
	patch := newTestPatchBuilder().
		AddChunk(ChunkTypeAddDirectory, padded).
		AddChunk(ChunkTypeDeleteDirectory, dirPayload("c/d")).
		AddEOF().
		Bytes()

	reader, err := NewChunkReader(bytes.NewReader(patch))
	require.NoError(t, err)

	chunk, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, "a/b", chunk.(*AddDirectoryChunk).DirName)

	chunk, err = reader.Next()
	require.NoError(t, err)
	assert.Equal(t, "c/d", chunk.(*DeleteDirectoryChunk).DirName)
}

func TestChunkReaderSkipsUnknownTags(t *testing.T) {
	patch := newTestPatchBuilder().
		AddChunk("XXXX", []byte{1, 2, 3, 4, 5}).
		AddChunk(ChunkTypeAddDirectory, dirPayload("after")).
		AddEOF().
		Bytes()

	reader, err := NewChunkReader(bytes.NewReader(patch))
	require.NoError(t, err)

	chunk, err := reader.Next()
	require.NoError(t, err)
	opaque, ok := chunk.(*OpaqueChunk)
	require.True(t, ok)
	assert.Equal(t, "XXXX", opaque.Tag)
	assert.Equal(t, uint32(5), opaque.Length)
	assert.NoError(t, opaque.Apply(nil))

	chunk, err = reader.Next()
	require.NoError(t, err)
	assert.Equal(t, "after", chunk.(*AddDirectoryChunk).DirName)
}

func TestChunkReaderRejectsBadSignature(t *testing.T) {
	_, err := NewChunkReader(bytes.NewReader([]byte("definitely not a patch")))
	var decodeErr *ChunkDecodeError
	require.ErrorAs(t, err, &decodeErr)
}

func TestChunkReaderRejectsTruncatedPayload(t *testing.T) {
	patch := newTestPatchBuilder().
		AddChunk(ChunkTypeAddDirectory, dirPayload("a")).
		Bytes()
	// Cut into the middle of the payload.
	truncated := patch[:len(PatchMagic)+8+2]

	reader, err := NewChunkReader(bytes.NewReader(truncated))
	require.NoError(t, err)

	_, err = reader.Next()
	var decodeErr *ChunkDecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, ChunkTypeAddDirectory, decodeErr.Tag)

	// The stream is dead after a decode failure.
	_, err = reader.Next()
	assert.Equal(t, io.EOF, err)
}

func TestChunkReaderRejectsChecksumMismatch(t *testing.T) {
	patch := newTestPatchBuilder().
		AddChunk(ChunkTypeAddDirectory, dirPayload("a")).
		Bytes()
	corrupted := append([]byte(nil), patch...)
	corrupted[len(corrupted)-1] ^= 0xFF

	reader, err := NewChunkReader(bytes.NewReader(corrupted))
	require.NoError(t, err)

	_, err = reader.Next()
	var decodeErr *ChunkDecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Contains(t, decodeErr.Error(), "checksum")
}

func TestChunkReaderRejectsTruncatedLengthField(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(PatchMagic)
	buf.Write([]byte{0x00, 0x00}) // half a length field

	reader, err := NewChunkReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	_, err = reader.Next()
	var decodeErr *ChunkDecodeError
	require.ErrorAs(t, err, &decodeErr)
}

func TestChunkReaderCleanEndWithoutEOFMarker(t *testing.T) {
	// A stream ending exactly on a chunk boundary yields io.EOF rather
	// than a decode error.
	patch := newTestPatchBuilder().
		AddChunk(ChunkTypeAddDirectory, dirPayload("a")).
		Bytes()

	reader, err := NewChunkReader(bytes.NewReader(patch))
	require.NoError(t, err)

	_, err = reader.Next()
	require.NoError(t, err)
	_, err = reader.Next()
	assert.Equal(t, io.EOF, err)
}

func TestChunkReaderOffsetTracksBoundaries(t *testing.T) {
	payload := dirPayload("abc")
	patch := newTestPatchBuilder().
		AddChunk(ChunkTypeAddDirectory, payload).
		AddEOF().
		Bytes()

	reader, err := NewChunkReader(bytes.NewReader(patch))
	require.NoError(t, err)
	assert.Equal(t, int64(len(PatchMagic)), reader.Offset())

	_, err = reader.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(len(PatchMagic)+8+len(payload)+4), reader.Offset())
}

func TestPatchBuilderChecksumMatchesReader(t *testing.T) {
	// Guards the test builder itself: the trailer is CRC-32 over tag and
	// payload exactly as the reader computes it.
	payload := dirPayload("x")
	patch := newTestPatchBuilder().AddChunk(ChunkTypeAddDirectory, payload).Bytes()

	body := patch[len(PatchMagic):]
	declared := binary.BigEndian.Uint32(body[8+len(payload):])

	crc := crc32.NewIEEE()
	crc.Write(body[4:8])
	crc.Write(body[8 : 8+len(payload)])
	assert.Equal(t, crc.Sum32(), declared)
}
