package fixture

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz/lzma"

	"github.com/jchantrell/unitypack/internal/compress"
)

// Entry is one directory entry of a bundle.
type Entry struct {
	Name  string
	Data  []byte
	Flags uint32
}

// FS describes a UnityFS bundle.
type FS struct {
	Version         uint32
	PlayerVersion   string
	EngineVersion   string
	Compression     compress.Method
	InfoCompression compress.Method
	// BlockSize splits the payload into blocks; zero means one block.
	BlockSize int
	InfoAtEnd bool
	Padding   bool
	Entries   []Entry
}

// Built is an encoded bundle plus the offsets tests need to cut it.
type Built struct {
	Data       []byte
	HeaderSize int
	InfoOffset int
	InfoSize   int
}

// Build encodes the bundle.
func (f *FS) Build() Built {
	if f.Version == 0 {
		f.Version = 6
	}
	if f.PlayerVersion == "" {
		f.PlayerVersion = "5.x.x"
	}
	if f.EngineVersion == "" {
		f.EngineVersion = "2019.4.40f1"
	}

	var payload []byte
	type node struct {
		off, size int64
		flags     uint32
		name      string
	}
	var nodes []node
	for _, e := range f.Entries {
		nodes = append(nodes, node{off: int64(len(payload)), size: int64(len(e.Data)), flags: e.Flags, name: e.Name})
		payload = append(payload, e.Data...)
	}

	type block struct {
		usize, csize uint32
		flags        uint16
		data         []byte
	}
	var blocks []block
	chunk := f.BlockSize
	if chunk <= 0 {
		chunk = len(payload)
	}
	for off := 0; off < len(payload); off += chunk {
		end := off + chunk
		if end > len(payload) {
			end = len(payload)
		}
		raw := payload[off:end]
		data, method := Compress(f.Compression, raw)
		blocks = append(blocks, block{usize: uint32(len(raw)), csize: uint32(len(data)), flags: uint16(method), data: data})
	}

	info := newWriter(binary.BigEndian, 0)
	info.Write(make([]byte, 16))
	info.i32(int32(len(blocks)))
	for _, b := range blocks {
		info.u32(b.usize)
		info.u32(b.csize)
		info.u16(b.flags)
	}
	info.i32(int32(len(nodes)))
	for _, n := range nodes {
		info.i64(n.off)
		info.i64(n.size)
		info.u32(n.flags)
		info.cstring(n.name)
	}
	rawInfo := info.Bytes()
	packedInfo, infoMethod := Compress(f.InfoCompression, rawInfo)

	flags := uint32(infoMethod) | 0x40
	if f.InfoAtEnd {
		flags |= 0x80
	}
	if f.Padding {
		flags |= 0x200
	}

	var blockData []byte
	for _, b := range blocks {
		blockData = append(blockData, b.data...)
	}

	out := newWriter(binary.BigEndian, 0)
	out.cstring("UnityFS")
	out.u32(f.Version)
	out.cstring(f.PlayerVersion)
	out.cstring(f.EngineVersion)
	sizeAt := out.Len()
	out.i64(0)
	out.u32(uint32(len(packedInfo)))
	out.u32(uint32(len(rawInfo)))
	out.u32(flags)
	if f.Version >= 7 {
		out.align(16)
	}
	headerSize := out.Len()

	var infoOffset int
	if !f.InfoAtEnd {
		infoOffset = out.Len()
		out.Write(packedInfo)
	}
	if f.Padding {
		out.align(16)
	}
	out.Write(blockData)
	if f.InfoAtEnd {
		infoOffset = out.Len()
		out.Write(packedInfo)
	}

	b := out.Bytes()
	binary.BigEndian.PutUint64(b[sizeAt:], uint64(len(b)))
	return Built{Data: b, HeaderSize: headerSize, InfoOffset: infoOffset, InfoSize: len(packedInfo)}
}

// Legacy describes a UnityRaw or UnityWeb bundle.
type Legacy struct {
	Signature     string
	Version       uint32
	PlayerVersion string
	EngineVersion string
	Entries       []Entry
}

// Build encodes the bundle. UnityWeb bodies are LZMA compressed.
func (l *Legacy) Build() []byte {
	if l.Signature == "" {
		l.Signature = "UnityWeb"
	}
	if l.Version == 0 {
		l.Version = 3
	}
	if l.PlayerVersion == "" {
		l.PlayerVersion = "3.x.x"
	}
	if l.EngineVersion == "" {
		l.EngineVersion = "4.7.2f1"
	}

	dirSize := 4
	for _, e := range l.Entries {
		dirSize += len(e.Name) + 1 + 8
	}
	body := newWriter(binary.BigEndian, 0)
	body.i32(int32(len(l.Entries)))
	off := dirSize
	for _, e := range l.Entries {
		body.cstring(e.Name)
		body.u32(uint32(off))
		body.u32(uint32(len(e.Data)))
		off += len(e.Data)
	}
	for _, e := range l.Entries {
		body.Write(e.Data)
	}
	raw := body.Bytes()

	packed := raw
	if l.Signature == "UnityWeb" {
		packed = lzmaAlone(raw)
	}

	hdr := newWriter(binary.BigEndian, 0)
	hdr.cstring(l.Signature)
	hdr.u32(l.Version)
	hdr.cstring(l.PlayerVersion)
	hdr.cstring(l.EngineVersion)
	fixed := 4 + 4 + 4 + 4 + 8
	if l.Version >= 2 {
		fixed += 4
	}
	if l.Version >= 3 {
		fixed += 4
	}
	headerSize := hdr.Len() + fixed
	if pad := headerSize % 4; pad != 0 {
		headerSize += 4 - pad
	}
	total := headerSize + len(packed)

	hdr.u32(uint32(total))
	hdr.u32(uint32(headerSize))
	hdr.u32(1)
	hdr.i32(1)
	hdr.u32(uint32(len(packed)))
	hdr.u32(uint32(len(raw)))
	if l.Version >= 2 {
		hdr.u32(uint32(total))
	}
	if l.Version >= 3 {
		hdr.u32(uint32(dirSize))
	}
	for hdr.Len() < headerSize {
		hdr.u8(0)
	}
	hdr.Write(packed)
	return hdr.Bytes()
}

// Compress packs data with m. LZ4 falls back to Stored when the block does
// not shrink, as Unity does.
func Compress(m compress.Method, data []byte) ([]byte, compress.Method) {
	switch m {
	case compress.Stored:
		return append([]byte{}, data...), compress.Stored
	case compress.LZ4, compress.LZ4HC:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		var n int
		var err error
		if m == compress.LZ4HC {
			n, err = lz4.CompressBlockHC(data, dst, lz4.Level9, nil, nil)
		} else {
			n, err = lz4.CompressBlock(data, dst, nil)
		}
		if err != nil || n == 0 || n >= len(data) {
			return append([]byte{}, data...), compress.Stored
		}
		return dst[:n], m
	case compress.LZMA:
		alone := lzmaAlone(data)
		// properties, then the stream without the 8-byte size
		return append(append([]byte{}, alone[:5]...), alone[13:]...), compress.LZMA
	default:
		panic(fmt.Sprintf("fixture: cannot compress with %s", m))
	}
}

func lzmaAlone(data []byte) []byte {
	var buf bytes.Buffer
	w, err := lzma.WriterConfig{SizeInHeader: true, Size: int64(len(data))}.NewWriter(&buf)
	if err != nil {
		panic(err)
	}
	if _, err := w.Write(data); err != nil {
		panic(err)
	}
	if err := w.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
