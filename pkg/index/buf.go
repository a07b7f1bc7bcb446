package index

import (
	"bytes"
	"math"
)

// bufWriter/bufReader are tiny little-endian scratch buffers used to build
// and parse segment payloads in dump.go. Grounded on the teacher's
// avoidance of encoding/gob for on-disk formats (pkg/diskann's own manual
// byte-packing, now superseded, see DESIGN.md) in favor of explicit,
// versionable fixed-width fields.
type bufWriter struct {
	buf bytes.Buffer
}

func newBufWriter() *bufWriter { return &bufWriter{} }

func (w *bufWriter) Bytes() []byte { return w.buf.Bytes() }

func (w *bufWriter) writeBytes(b []byte) { w.buf.Write(b) }

func (w *bufWriter) writeU8(v uint8) { w.buf.WriteByte(v) }

func (w *bufWriter) writeU16(v uint16) {
	w.buf.WriteByte(byte(v))
	w.buf.WriteByte(byte(v >> 8))
}

func (w *bufWriter) writeU32(v uint32) {
	var b [4]byte
	byteOrder.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *bufWriter) writeU64(v uint64) {
	var b [8]byte
	byteOrder.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *bufWriter) writeI64(v int64) { w.writeU64(uint64(v)) }

func (w *bufWriter) writeF32(v float32) { w.writeU32(math.Float32bits(v)) }

type bufReader struct {
	buf []byte
	pos int
}

func newBufReader(b []byte) *bufReader { return &bufReader{buf: b} }

func (r *bufReader) remaining() int { return len(r.buf) - r.pos }

func (r *bufReader) readBytes(n int) []byte {
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *bufReader) readU8() uint8 {
	v := r.buf[r.pos]
	r.pos++
	return v
}

func (r *bufReader) readU16() uint16 {
	v := uint16(r.buf[r.pos]) | uint16(r.buf[r.pos+1])<<8
	r.pos += 2
	return v
}

func (r *bufReader) readU32() uint32 {
	v := byteOrder.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v
}

func (r *bufReader) readU64() uint64 {
	v := byteOrder.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v
}

func (r *bufReader) readI64() int64 { return int64(r.readU64()) }

func (r *bufReader) readF32() float32 { return math.Float32frombits(r.readU32()) }
