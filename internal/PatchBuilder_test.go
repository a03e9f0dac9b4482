package internal

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/klauspost/compress/flate"
)

// testPatchBuilder assembles synthetic patch files for codec and executor
// tests.
type testPatchBuilder struct {
	buf bytes.Buffer
}

func newTestPatchBuilder() *testPatchBuilder {
	b := &testPatchBuilder{}
	b.buf.Write(PatchMagic)
	return b
}

func (b *testPatchBuilder) AddChunk(tag string, payload []byte) *testPatchBuilder {
	var header [8]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(len(payload)))
	copy(header[4:8], tag)
	b.buf.Write(header[:])
	b.buf.Write(payload)

	crc := crc32.NewIEEE()
	crc.Write(header[4:8])
	crc.Write(payload)
	var trailer [4]byte
	binary.BigEndian.PutUint32(trailer[:], crc.Sum32())
	b.buf.Write(trailer[:])
	return b
}

func (b *testPatchBuilder) AddEOF() *testPatchBuilder {
	return b.AddChunk(ChunkTypeEOF, nil)
}

func (b *testPatchBuilder) Bytes() []byte {
	return b.buf.Bytes()
}

// Payload builders.

func dirPayload(name string) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(len(name)))
	buf.WriteString(name)
	return buf.Bytes()
}

func fileHeaderPayload(kind string, entries, commands uint32) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint16(3))
	buf.WriteString(kind)
	binary.Write(&buf, binary.BigEndian, entries)
	binary.Write(&buf, binary.BigEndian, commands)
	return buf.Bytes()
}

func writeFileSpec(buf *bytes.Buffer, spec SqpackFileSpec) {
	binary.Write(buf, binary.BigEndian, spec.MainID)
	binary.Write(buf, binary.BigEndian, spec.SubID)
	binary.Write(buf, binary.BigEndian, spec.FileID)
}

func sqpkAddDataPayload(spec SqpackFileSpec, blockOffset int64, data []byte, clearSize int64) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(0))
	buf.WriteByte(SqpkOpAddData)
	buf.Write([]byte{0, 0, 0})
	writeFileSpec(&buf, spec)
	binary.Write(&buf, binary.BigEndian, uint32(blockOffset>>sqpackBlockShift))
	binary.Write(&buf, binary.BigEndian, uint32(int64(len(data))>>sqpackBlockShift))
	binary.Write(&buf, binary.BigEndian, uint32(clearSize>>sqpackBlockShift))
	buf.Write(data)
	return buf.Bytes()
}

func sqpkZeroDataPayload(op byte, spec SqpackFileSpec, blockOffset, size int64) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(0))
	buf.WriteByte(op)
	buf.Write([]byte{0, 0, 0})
	writeFileSpec(&buf, spec)
	binary.Write(&buf, binary.BigEndian, uint32(blockOffset>>sqpackBlockShift))
	binary.Write(&buf, binary.BigEndian, uint32(size>>sqpackBlockShift))
	return buf.Bytes()
}

func sqpkHeaderPayload(fileKind, headerKind byte, spec SqpackFileSpec, header []byte) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(0))
	buf.WriteByte(SqpkOpHeader)
	buf.WriteByte(fileKind)
	buf.WriteByte(headerKind)
	buf.WriteByte(0)
	writeFileSpec(&buf, spec)
	buf.Write(header)
	return buf.Bytes()
}

func sqpkFileOpHeader(op byte, fileOffset, fileSize int64, expansion Repository, path string) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(0))
	buf.WriteByte(SqpkOpFileOperation)
	buf.WriteByte(op)
	buf.Write([]byte{0, 0})
	binary.Write(&buf, binary.BigEndian, uint64(fileOffset))
	binary.Write(&buf, binary.BigEndian, uint64(fileSize))
	binary.Write(&buf, binary.BigEndian, uint32(len(path)))
	binary.Write(&buf, binary.BigEndian, uint16(expansion))
	buf.Write([]byte{0, 0})
	buf.WriteString(path)
	return buf.Bytes()
}

// rawFileBlock frames plain data as an uncompressed block.
func rawFileBlock(data []byte) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	binary.Write(&buf, binary.LittleEndian, uint32(rawStoredMarker))
	binary.Write(&buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)
	if pad := alignPadding(buf.Len(), fileBlockAlign); pad > 0 {
		buf.Write(make([]byte, pad))
	}
	return buf.Bytes()
}

// deflateFileBlock frames plain data as a deflate-compressed block.
func deflateFileBlock(data []byte) []byte {
	var compressed bytes.Buffer
	w, _ := flate.NewWriter(&compressed, flate.DefaultCompression)
	w.Write(data)
	w.Close()

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	binary.Write(&buf, binary.LittleEndian, uint32(compressed.Len()))
	binary.Write(&buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(compressed.Bytes())
	if pad := alignPadding(buf.Len(), fileBlockAlign); pad > 0 {
		buf.Write(make([]byte, pad))
	}
	return buf.Bytes()
}

func sqpkAddFilePayload(fileOffset, fileSize int64, expansion Repository, path string, blocks ...[]byte) []byte {
	payload := sqpkFileOpHeader(FileOpAdd, fileOffset, fileSize, expansion, path)
	for _, block := range blocks {
		payload = append(payload, block...)
	}
	return payload
}
