package stream

import (
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/unitypack/internal/errs"
)

func TestReaderPrimitives(t *testing.T) {
	data := []byte{
		0x01,                   // u8
		0xFF,                   // i8
		0x12, 0x34,             // u16 BE
		0x78, 0x56, 0x34, 0x12, // u32 LE
		0xFF, 0xFF, 0xFF, 0xFE, // i32 BE
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x2A, // i64 BE
		0x3F, 0x80, 0x00, 0x00, // f32 1.0 BE
	}
	r := FromBytes(data, binary.BigEndian)

	u8, err := r.U8()
	require.NoError(t, err)
	assert.Equal(t, uint8(1), u8)

	i8, err := r.I8()
	require.NoError(t, err)
	assert.Equal(t, int8(-1), i8)

	u16, err := r.U16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), u16)

	u32, err := r.U32Order(binary.LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x12345678), u32)

	i32, err := r.I32()
	require.NoError(t, err)
	assert.Equal(t, int32(-2), i32)

	i64, err := r.I64()
	require.NoError(t, err)
	assert.Equal(t, int64(42), i64)

	f32, err := r.F32()
	require.NoError(t, err)
	assert.Equal(t, float32(1.0), f32)

	assert.Equal(t, int64(0), r.Remaining())
}

func TestReaderSetOrder(t *testing.T) {
	r := FromBytes([]byte{0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01}, binary.BigEndian)
	r.SetOrder(binary.LittleEndian)

	v, err := r.U32()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v)

	w, err := r.U32Order(binary.BigEndian)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), w)
}

func TestReaderTruncated(t *testing.T) {
	r := FromBytes([]byte{0x00, 0x01, 0x02}, binary.BigEndian)

	_, err := r.U32()
	require.Error(t, err)
	assert.Equal(t, errs.Truncated, errs.KindOf(err))
	assert.Equal(t, int64(0), r.Pos(), "failed read must not move the cursor")

	_, err = r.Bytes(4)
	assert.Equal(t, errs.Truncated, errs.KindOf(err))

	require.NoError(t, r.Skip(3))
	_, err = r.U8()
	assert.Equal(t, errs.Truncated, errs.KindOf(err))
	assert.Equal(t, errs.Truncated, errs.KindOf(r.Seek(4)))
}

func TestReaderCString(t *testing.T) {
	r := FromBytes([]byte("UnityFS\x005.x.x\x00tail"), binary.BigEndian)

	sig, err := r.CString(0)
	require.NoError(t, err)
	assert.Equal(t, "UnityFS", sig)

	ver, err := r.CString(0)
	require.NoError(t, err)
	assert.Equal(t, "5.x.x", ver)
	assert.Equal(t, int64(14), r.Pos())

	_, err = r.CString(0)
	assert.Equal(t, errs.Truncated, errs.KindOf(err))
	assert.Equal(t, int64(14), r.Pos())
}

func TestReaderCStringLimit(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	r := FromBytes(append(long, 0), binary.BigEndian)

	_, err := r.CString(100)
	assert.Equal(t, errs.CorruptStream, errs.KindOf(err))

	s, err := r.CString(0)
	require.NoError(t, err)
	assert.Len(t, s, 200)
}

func TestReaderAlignedString(t *testing.T) {
	data := []byte{0, 0, 0, 3, 'a', 'b', 'c', 0, 0, 0, 0, 7}
	r := FromBytes(data, binary.BigEndian)

	s, err := r.AlignedString()
	require.NoError(t, err)
	assert.Equal(t, "abc", s)
	assert.Equal(t, int64(8), r.Pos())

	v, err := r.U32()
	require.NoError(t, err)
	assert.Equal(t, uint32(7), v)
}

func TestReaderSection(t *testing.T) {
	r := FromBytes([]byte{9, 9, 1, 2, 3, 4, 9}, binary.BigEndian)

	sec, err := r.Section(2, 4)
	require.NoError(t, err)
	v, err := sec.U32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x01020304), v)

	_, err = sec.U8()
	assert.Equal(t, errs.Truncated, errs.KindOf(err))

	_, err = r.Section(5, 4)
	assert.Equal(t, errs.Truncated, errs.KindOf(err))
}

type failingReaderAt struct{}

func (failingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return 0, errors.New("device unplugged")
}

type shortReaderAt struct{}

func (shortReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return 0, io.EOF
}

func TestReaderSourceErrors(t *testing.T) {
	_, err := New(failingReaderAt{}, 16, binary.BigEndian).U32()
	assert.Equal(t, errs.Io, errs.KindOf(err))

	_, err = New(shortReaderAt{}, 16, binary.BigEndian).U32()
	assert.Equal(t, errs.Truncated, errs.KindOf(err))
}
