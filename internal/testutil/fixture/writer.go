// Package fixture builds synthetic bundles and serialized files for tests.
package fixture

import (
	"bytes"
	"encoding/binary"
)

// writer appends values in a fixed byte order. base is the absolute file
// offset of the first byte, used for alignment.
type writer struct {
	bytes.Buffer
	order binary.ByteOrder
	base  int
}

func newWriter(order binary.ByteOrder, base int) *writer {
	return &writer{order: order, base: base}
}

func (w *writer) u8(v uint8) { w.WriteByte(v) }

func (w *writer) boolean(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *writer) u16(v uint16) {
	var b [2]byte
	w.order.PutUint16(b[:], v)
	w.Write(b[:])
}

func (w *writer) i16(v int16) { w.u16(uint16(v)) }

func (w *writer) u32(v uint32) {
	var b [4]byte
	w.order.PutUint32(b[:], v)
	w.Write(b[:])
}

func (w *writer) i32(v int32) { w.u32(uint32(v)) }

func (w *writer) u64(v uint64) {
	var b [8]byte
	w.order.PutUint64(b[:], v)
	w.Write(b[:])
}

func (w *writer) i64(v int64) { w.u64(uint64(v)) }

func (w *writer) cstring(s string) {
	w.WriteString(s)
	w.WriteByte(0)
}

func (w *writer) alignedString(s string) {
	w.i32(int32(len(s)))
	w.WriteString(s)
	w.align(4)
}

func (w *writer) align(n int) {
	for (w.base+w.Len())%n != 0 {
		w.WriteByte(0)
	}
}
