// Package stream decodes primitive values from a bounded, seekable byte source.
package stream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/jchantrell/unitypack/internal/errs"
)

// MaxStringLength bounds zero-terminated strings when the caller passes no limit.
const MaxStringLength = 1 << 16

// Reader reads from a fixed window [base, base+size) of an io.ReaderAt.
// Offsets reported by Pos and accepted by Seek are relative to base.
type Reader struct {
	src   io.ReaderAt
	base  int64
	size  int64
	pos   int64
	order binary.ByteOrder
	buf   [8]byte
}

// New returns a reader over the first size bytes of src.
func New(src io.ReaderAt, size int64, order binary.ByteOrder) *Reader {
	return &Reader{src: src, size: size, order: order}
}

// FromBytes returns a reader over b.
func FromBytes(b []byte, order binary.ByteOrder) *Reader {
	return New(bytes.NewReader(b), int64(len(b)), order)
}

func (r *Reader) Pos() int64              { return r.pos }
func (r *Reader) Size() int64             { return r.size }
func (r *Reader) Remaining() int64        { return r.size - r.pos }
func (r *Reader) Order() binary.ByteOrder { return r.order }

// SetOrder changes the default byte order for subsequent reads.
func (r *Reader) SetOrder(order binary.ByteOrder) {
	r.order = order
}

// Seek moves the cursor to an absolute offset within the window.
func (r *Reader) Seek(pos int64) error {
	if pos < 0 || pos > r.size {
		return errs.E(errs.Truncated, "seek to %d outside %d-byte region", pos, r.size)
	}
	r.pos = pos
	return nil
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int64) error {
	return r.Seek(r.pos + n)
}

// Align advances the cursor to the next multiple of n.
func (r *Reader) Align(n int64) error {
	if n <= 1 {
		return nil
	}
	if rem := r.pos % n; rem != 0 {
		return r.Seek(r.pos + n - rem)
	}
	return nil
}

// Section returns an independent reader over n bytes starting at off,
// sharing the byte order of r.
func (r *Reader) Section(off, n int64) (*Reader, error) {
	if off < 0 || n < 0 || off+n > r.size {
		return nil, errs.E(errs.Truncated, "section [%d, %d) outside %d-byte region", off, off+n, r.size)
	}
	return &Reader{src: r.src, base: r.base + off, size: n, order: r.order}, nil
}

func (r *Reader) fill(p []byte) error {
	n := int64(len(p))
	if n > r.size-r.pos {
		return errs.E(errs.Truncated, "read of %d bytes at offset %d exceeds %d-byte region", n, r.pos, r.size)
	}
	got, err := r.src.ReadAt(p, r.base+r.pos)
	if int64(got) < n {
		if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return errs.E(errs.Truncated, "read of %d bytes at offset %d: got %d", n, r.pos, got)
		}
		return errs.E(errs.Io, "read at offset %d: %w", r.base+r.pos, err)
	}
	r.pos += n
	return nil
}

func (r *Reader) scratch(n int) ([]byte, error) {
	b := r.buf[:n]
	if err := r.fill(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Bytes reads n raw bytes into a new slice.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, errs.E(errs.CorruptStream, "negative byte count %d", n)
	}
	if int64(n) > r.Remaining() {
		return nil, errs.E(errs.Truncated, "read of %d bytes at offset %d exceeds %d-byte region", n, r.pos, r.size)
	}
	b := make([]byte, n)
	if err := r.fill(b); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *Reader) U8() (uint8, error) {
	b, err := r.scratch(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) I8() (int8, error) {
	v, err := r.U8()
	return int8(v), err
}

func (r *Reader) Bool() (bool, error) {
	v, err := r.U8()
	return v != 0, err
}

func (r *Reader) U16() (uint16, error) { return r.U16Order(r.order) }
func (r *Reader) I16() (int16, error)  { return r.I16Order(r.order) }
func (r *Reader) U32() (uint32, error) { return r.U32Order(r.order) }
func (r *Reader) I32() (int32, error)  { return r.I32Order(r.order) }
func (r *Reader) U64() (uint64, error) { return r.U64Order(r.order) }
func (r *Reader) I64() (int64, error)  { return r.I64Order(r.order) }

func (r *Reader) F32() (float32, error) {
	v, err := r.U32()
	return math.Float32frombits(v), err
}

func (r *Reader) F64() (float64, error) {
	v, err := r.U64()
	return math.Float64frombits(v), err
}

func (r *Reader) U16Order(order binary.ByteOrder) (uint16, error) {
	b, err := r.scratch(2)
	if err != nil {
		return 0, err
	}
	return order.Uint16(b), nil
}

func (r *Reader) I16Order(order binary.ByteOrder) (int16, error) {
	v, err := r.U16Order(order)
	return int16(v), err
}

func (r *Reader) U32Order(order binary.ByteOrder) (uint32, error) {
	b, err := r.scratch(4)
	if err != nil {
		return 0, err
	}
	return order.Uint32(b), nil
}

func (r *Reader) I32Order(order binary.ByteOrder) (int32, error) {
	v, err := r.U32Order(order)
	return int32(v), err
}

func (r *Reader) U64Order(order binary.ByteOrder) (uint64, error) {
	b, err := r.scratch(8)
	if err != nil {
		return 0, err
	}
	return order.Uint64(b), nil
}

func (r *Reader) I64Order(order binary.ByteOrder) (int64, error) {
	v, err := r.U64Order(order)
	return int64(v), err
}

// CString reads a zero-terminated string of at most limit bytes, excluding
// the terminator. A limit of zero means MaxStringLength.
func (r *Reader) CString(limit int) (string, error) {
	if limit <= 0 {
		limit = MaxStringLength
	}
	start := r.pos
	var out []byte
	chunk := make([]byte, 64)
	for {
		left := r.Remaining()
		if left == 0 {
			r.pos = start
			return "", errs.E(errs.Truncated, "unterminated string at offset %d", start)
		}
		c := chunk
		if int64(len(c)) > left {
			c = c[:left]
		}
		pos := r.pos
		if err := r.fill(c); err != nil {
			r.pos = start
			return "", err
		}
		if i := bytes.IndexByte(c, 0); i >= 0 {
			out = append(out, c[:i]...)
			r.pos = pos + int64(i) + 1
			if len(out) > limit {
				r.pos = start
				return "", errs.E(errs.CorruptStream, "string at offset %d longer than %d bytes", start, limit)
			}
			return string(out), nil
		}
		out = append(out, c...)
		if len(out) > limit {
			r.pos = start
			return "", errs.E(errs.CorruptStream, "string at offset %d longer than %d bytes", start, limit)
		}
	}
}

// PrefixedString reads a string preceded by its 32-bit byte length.
func (r *Reader) PrefixedString() (string, error) {
	n, err := r.I32()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", errs.E(errs.CorruptStream, "negative string length %d at offset %d", n, r.pos-4)
	}
	b, err := r.Bytes(int(n))
	if err != nil {
		return "", fmt.Errorf("string of %d bytes: %w", n, err)
	}
	return string(b), nil
}

// AlignedString reads a length-prefixed string and aligns to 4 bytes.
func (r *Reader) AlignedString() (string, error) {
	s, err := r.PrefixedString()
	if err != nil {
		return "", err
	}
	return s, r.Align(4)
}
