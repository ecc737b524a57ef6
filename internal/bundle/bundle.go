// Package bundle parses Unity asset bundle containers (UnityFS, UnityRaw and
// UnityWeb) and exposes their directory entries.
package bundle

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/jchantrell/unitypack/internal/compress"
	"github.com/jchantrell/unitypack/internal/errs"
	"github.com/jchantrell/unitypack/internal/stream"
)

// Bundle signatures.
const (
	SignatureFS  = "UnityFS"
	SignatureRaw = "UnityRaw"
	SignatureWeb = "UnityWeb"
)

// Supported container format versions.
const (
	MinFSVersion     = 6
	MaxFSVersion     = 8
	MinLegacyVersion = 1
	MaxLegacyVersion = 3
)

// UnityFS header flags.
const (
	FlagDirectoryInfo   = 0x40
	FlagBlocksInfoAtEnd = 0x80
	FlagBlockPadding    = 0x200
)

const (
	maxBlocks  = 1 << 20
	maxEntries = 1 << 20
	maxLevels  = 1 << 10
)

var signatures = []string{SignatureFS, SignatureRaw, SignatureWeb}

// Level is a UnityRaw/UnityWeb download level.
type Level struct {
	CompressedSize   uint32
	UncompressedSize uint32
}

// Header is the container preamble. UnityFS and legacy containers fill
// different fields.
type Header struct {
	Signature     string
	Version       uint32
	PlayerVersion string
	EngineVersion string

	// UnityFS
	TotalSize            int64
	CompressedInfoSize   uint32
	UncompressedInfoSize uint32
	Flags                uint32

	// UnityRaw / UnityWeb
	MinimumStreamedBytes uint32
	HeaderSize           uint32
	LevelsToDownload     uint32
	Levels               []Level
	CompleteFileSize     uint32
	FileInfoHeaderSize   uint32
}

// Block is one storage block of a UnityFS payload.
type Block struct {
	UncompressedSize uint32
	CompressedSize   uint32
	Flags            uint16

	offset int64 // file offset of the compressed bytes
	start  int64 // payload offset of the uncompressed bytes
}

// Compression returns the block's compression method.
func (b Block) Compression() compress.Method {
	return compress.MethodFromFlags(uint32(b.Flags))
}

// Entry is one directory entry. Offset is relative to the payload.
type Entry struct {
	Name   string
	Offset int64
	Size   int64
	Flags  uint32
}

// Options configures Open.
type Options struct {
	Registry *compress.Registry
}

// Bundle is a parsed container.
type Bundle struct {
	Header  Header
	Hash    [16]byte
	Blocks  []Block
	Entries []Entry

	payload     io.ReaderAt
	payloadSize int64
}

// Open parses the container in the first size bytes of r. Block payloads
// are decompressed lazily.
func Open(r io.ReaderAt, size int64, opts *Options) (*Bundle, error) {
	registry := compress.Default
	if opts != nil && opts.Registry != nil {
		registry = opts.Registry
	}

	rs := stream.New(r, size, binary.BigEndian)

	sig, err := readSignature(rs)
	if err != nil {
		return nil, err
	}

	b := &Bundle{Header: Header{Signature: sig}}
	switch sig {
	case SignatureFS:
		err = b.openFS(r, rs, size, registry)
	default:
		err = b.openLegacy(rs, registry)
	}
	if err != nil {
		return nil, err
	}

	slog.Debug("Opened bundle",
		"signature", sig,
		"version", b.Header.Version,
		"engine", b.Header.EngineVersion,
		"blocks", len(b.Blocks),
		"entries", len(b.Entries),
		"payload_bytes", b.payloadSize)

	return b, nil
}

// readSignature reads the zero-terminated signature. A source that ends
// inside a known signature is truncated; anything else is unsupported.
func readSignature(rs *stream.Reader) (string, error) {
	n := int64(16)
	if n > rs.Size() {
		n = rs.Size()
	}
	head, err := rs.Bytes(int(n))
	if err != nil {
		return "", fmt.Errorf("reading signature: %w", err)
	}

	for _, sig := range signatures {
		want := sig + "\x00"
		if bytes.HasPrefix(head, []byte(want)) {
			return sig, rs.Seek(int64(len(want)))
		}
		if len(head) < len(want) && bytes.HasPrefix([]byte(want), head) {
			return "", errs.E(errs.Truncated, "file ends inside %s signature", sig)
		}
	}

	if i := bytes.IndexByte(head, 0); i >= 0 {
		head = head[:i]
	}
	return "", errs.E(errs.UnsupportedFormat, "unknown bundle signature %q", head)
}

func (b *Bundle) openFS(r io.ReaderAt, rs *stream.Reader, size int64, registry *compress.Registry) error {
	h := &b.Header
	var err error

	if h.Version, err = rs.U32(); err != nil {
		return fmt.Errorf("reading format version: %w", err)
	}
	if h.Version < MinFSVersion || h.Version > MaxFSVersion {
		return errs.E(errs.UnsupportedFormat, "UnityFS format %d outside supported range %d-%d", h.Version, MinFSVersion, MaxFSVersion)
	}
	if h.PlayerVersion, err = rs.CString(0); err != nil {
		return fmt.Errorf("reading player version: %w", err)
	}
	if h.EngineVersion, err = rs.CString(0); err != nil {
		return fmt.Errorf("reading engine version: %w", err)
	}
	if h.TotalSize, err = rs.I64(); err != nil {
		return fmt.Errorf("reading total size: %w", err)
	}
	if h.CompressedInfoSize, err = rs.U32(); err != nil {
		return fmt.Errorf("reading blocks info size: %w", err)
	}
	if h.UncompressedInfoSize, err = rs.U32(); err != nil {
		return fmt.Errorf("reading blocks info size: %w", err)
	}
	if h.Flags, err = rs.U32(); err != nil {
		return fmt.Errorf("reading flags: %w", err)
	}

	if h.TotalSize > size {
		return errs.E(errs.Truncated, "bundle declares %d bytes, file has %d", h.TotalSize, size)
	}
	if h.TotalSize < rs.Pos() {
		return errs.E(errs.CorruptStream, "bundle declares %d bytes, header alone is %d", h.TotalSize, rs.Pos())
	}

	if h.Version >= 7 {
		if err := rs.Align(16); err != nil {
			return fmt.Errorf("aligning header: %w", err)
		}
	}

	dataStart := rs.Pos()
	infoOffset := dataStart
	if h.Flags&FlagBlocksInfoAtEnd != 0 {
		infoOffset = h.TotalSize - int64(h.CompressedInfoSize)
	} else {
		dataStart += int64(h.CompressedInfoSize)
	}

	if err := rs.Seek(infoOffset); err != nil {
		return fmt.Errorf("locating blocks info: %w", err)
	}
	packed, err := rs.Bytes(int(h.CompressedInfoSize))
	if err != nil {
		return fmt.Errorf("reading blocks info: %w", err)
	}
	info, err := registry.Decompress(compress.MethodFromFlags(h.Flags), packed, int(h.UncompressedInfoSize))
	if err != nil {
		return fmt.Errorf("decompressing blocks info: %w", err)
	}

	if h.Flags&FlagBlockPadding != 0 {
		if rem := dataStart % 16; rem != 0 {
			dataStart += 16 - rem
		}
	}

	if err := b.readBlocksInfo(stream.FromBytes(info, binary.BigEndian), dataStart, h.TotalSize); err != nil {
		return fmt.Errorf("parsing blocks info: %w", err)
	}

	storage := newBlockStorage(r, b.Blocks, registry)
	b.payload = storage
	b.payloadSize = storage.Size()

	return b.checkEntries()
}

func (b *Bundle) readBlocksInfo(r *stream.Reader, dataStart, limit int64) error {
	hash, err := r.Bytes(16)
	if err != nil {
		return fmt.Errorf("reading hash: %w", err)
	}
	copy(b.Hash[:], hash)

	count, err := r.I32()
	if err != nil {
		return fmt.Errorf("reading block count: %w", err)
	}
	if count < 0 || count > maxBlocks {
		return errs.E(errs.CorruptStream, "invalid block count %d", count)
	}

	b.Blocks = make([]Block, count)
	offset, start := dataStart, int64(0)
	for i := range b.Blocks {
		blk := &b.Blocks[i]
		if blk.UncompressedSize, err = r.U32(); err != nil {
			return err
		}
		if blk.CompressedSize, err = r.U32(); err != nil {
			return err
		}
		if blk.Flags, err = r.U16(); err != nil {
			return err
		}
		if err := compress.CheckSize(blk.Compression(), int(blk.CompressedSize), int(blk.UncompressedSize)); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
		blk.offset = offset
		blk.start = start
		offset += int64(blk.CompressedSize)
		start += int64(blk.UncompressedSize)
	}
	if offset > limit {
		return errs.E(errs.Truncated, "blocks end at %d, bundle is %d bytes", offset, limit)
	}

	nodes, err := r.I32()
	if err != nil {
		return fmt.Errorf("reading entry count: %w", err)
	}
	if nodes < 0 || nodes > maxEntries {
		return errs.E(errs.CorruptStream, "invalid entry count %d", nodes)
	}

	b.Entries = make([]Entry, nodes)
	for i := range b.Entries {
		e := &b.Entries[i]
		if e.Offset, err = r.I64(); err != nil {
			return err
		}
		if e.Size, err = r.I64(); err != nil {
			return err
		}
		if e.Flags, err = r.U32(); err != nil {
			return err
		}
		if e.Name, err = r.CString(0); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bundle) openLegacy(rs *stream.Reader, registry *compress.Registry) error {
	h := &b.Header
	var err error

	if h.Version, err = rs.U32(); err != nil {
		return fmt.Errorf("reading format version: %w", err)
	}
	if h.Version < MinLegacyVersion || h.Version > MaxLegacyVersion {
		return errs.E(errs.UnsupportedFormat, "%s format %d outside supported range %d-%d", h.Signature, h.Version, MinLegacyVersion, MaxLegacyVersion)
	}
	if h.PlayerVersion, err = rs.CString(0); err != nil {
		return fmt.Errorf("reading player version: %w", err)
	}
	if h.EngineVersion, err = rs.CString(0); err != nil {
		return fmt.Errorf("reading engine version: %w", err)
	}

	fields := []*uint32{&h.MinimumStreamedBytes, &h.HeaderSize, &h.LevelsToDownload}
	for _, f := range fields {
		if *f, err = rs.U32(); err != nil {
			return fmt.Errorf("reading header: %w", err)
		}
	}
	levels, err := rs.I32()
	if err != nil {
		return fmt.Errorf("reading level count: %w", err)
	}
	if levels <= 0 || levels > maxLevels {
		return errs.E(errs.CorruptStream, "invalid level count %d", levels)
	}
	h.Levels = make([]Level, levels)
	for i := range h.Levels {
		if h.Levels[i].CompressedSize, err = rs.U32(); err != nil {
			return fmt.Errorf("reading level %d: %w", i, err)
		}
		if h.Levels[i].UncompressedSize, err = rs.U32(); err != nil {
			return fmt.Errorf("reading level %d: %w", i, err)
		}
	}
	if h.Version >= 2 {
		if h.CompleteFileSize, err = rs.U32(); err != nil {
			return fmt.Errorf("reading file size: %w", err)
		}
	}
	if h.Version >= 3 {
		if h.FileInfoHeaderSize, err = rs.U32(); err != nil {
			return fmt.Errorf("reading file info size: %w", err)
		}
	}

	if err := rs.Seek(int64(h.HeaderSize)); err != nil {
		return fmt.Errorf("seeking to body: %w", err)
	}
	last := h.Levels[len(h.Levels)-1]
	body, err := rs.Bytes(int(last.CompressedSize))
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}

	payload := body
	if h.Signature == SignatureWeb {
		if payload, err = registry.Decompress(compress.LZMAAlone, body, int(last.UncompressedSize)); err != nil {
			return fmt.Errorf("decompressing body: %w", err)
		}
	}

	b.payload = bytes.NewReader(payload)
	b.payloadSize = int64(len(payload))

	dir := stream.FromBytes(payload, binary.BigEndian)
	count, err := dir.I32()
	if err != nil {
		return fmt.Errorf("reading directory: %w", err)
	}
	if count < 0 || count > maxEntries {
		return errs.E(errs.CorruptStream, "invalid entry count %d", count)
	}
	b.Entries = make([]Entry, count)
	for i := range b.Entries {
		e := &b.Entries[i]
		if e.Name, err = dir.CString(0); err != nil {
			return fmt.Errorf("reading directory entry %d: %w", i, err)
		}
		off, err := dir.U32()
		if err != nil {
			return fmt.Errorf("reading directory entry %d: %w", i, err)
		}
		size, err := dir.U32()
		if err != nil {
			return fmt.Errorf("reading directory entry %d: %w", i, err)
		}
		e.Offset = int64(off)
		e.Size = int64(size)
	}

	return b.checkEntries()
}

func (b *Bundle) checkEntries() error {
	for _, e := range b.Entries {
		if e.Offset < 0 || e.Size < 0 {
			return errs.E(errs.CorruptStream, "entry %q has negative extent", e.Name)
		}
		if e.Offset > b.payloadSize || e.Size > b.payloadSize-e.Offset {
			return errs.E(errs.Truncated, "entry %q of %d bytes at %d runs past %d-byte payload", e.Name, e.Size, e.Offset, b.payloadSize)
		}
	}
	return nil
}

// Compression returns the method of the first storage block, or of the
// blocks info when there are no blocks. Legacy containers report LZMA
// for UnityWeb and Stored for UnityRaw.
func (b *Bundle) Compression() compress.Method {
	switch b.Header.Signature {
	case SignatureWeb:
		return compress.LZMA
	case SignatureRaw:
		return compress.Stored
	}
	if len(b.Blocks) > 0 {
		return b.Blocks[0].Compression()
	}
	return compress.MethodFromFlags(b.Header.Flags)
}

// Size returns the uncompressed payload size.
func (b *Bundle) Size() int64 {
	return b.payloadSize
}

// ReadAt reads from the uncompressed payload.
func (b *Bundle) ReadAt(p []byte, off int64) (int, error) {
	return b.payload.ReadAt(p, off)
}

// ReadEntry returns the contents of entry i in a new buffer.
func (b *Bundle) ReadEntry(i int) ([]byte, error) {
	if i < 0 || i >= len(b.Entries) {
		return nil, errs.E(errs.OutOfRange, "entry %d of %d", i, len(b.Entries))
	}
	e := b.Entries[i]
	data := make([]byte, e.Size)
	if e.Size == 0 {
		return data, nil
	}
	if _, err := b.payload.ReadAt(data, e.Offset); err != nil {
		return nil, fmt.Errorf("reading entry %q: %w", e.Name, errs.Wrap(errs.Io, err))
	}
	return data, nil
}
