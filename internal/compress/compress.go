// Package compress decompresses bundle blocks.
package compress

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/oriath-net/gooz"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz/lzma"

	"github.com/jchantrell/unitypack/internal/errs"
)

// Method is a block compression method as stored in the low six bits of
// bundle and block flags.
type Method uint8

const (
	Stored Method = iota
	LZMA
	LZ4
	LZ4HC
	LZHAM
)

// LZMAAlone is the "lzma alone" container with a 13-byte header, used for
// whole UnityWeb bodies. It never appears in block flags.
const LZMAAlone Method = 0xFF

// MethodMask selects the compression method from a flags word.
const MethodMask = 0x3F

// MethodFromFlags extracts the compression method from a flags word.
func MethodFromFlags(flags uint32) Method {
	return Method(flags & MethodMask)
}

func (m Method) String() string {
	switch m {
	case Stored:
		return "Stored"
	case LZMA:
		return "LZMA"
	case LZ4:
		return "LZ4"
	case LZ4HC:
		return "LZ4HC"
	case LZHAM:
		return "LZHAM"
	case LZMAAlone:
		return "LZMAAlone"
	default:
		return fmt.Sprintf("Method(%d)", uint8(m))
	}
}

// Decompressor inflates src into exactly size bytes.
type Decompressor func(src []byte, size int) ([]byte, error)

// Registry maps methods to decompressors.
type Registry struct {
	mu     sync.RWMutex
	codecs map[Method]Decompressor
}

// NewRegistry returns a registry with the built-in codecs installed.
func NewRegistry() *Registry {
	r := &Registry{codecs: make(map[Method]Decompressor)}
	r.codecs[Stored] = decompressStored
	r.codecs[LZMA] = decompressLZMA
	r.codecs[LZ4] = decompressLZ4
	r.codecs[LZ4HC] = decompressLZ4
	r.codecs[LZMAAlone] = decompressLZMAAlone
	return r
}

// Default is the registry used when no other is configured.
var Default = NewRegistry()

// Register installs or replaces the decompressor for m.
func (r *Registry) Register(m Method, d Decompressor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[m] = d
}

// EnableOodle registers the Oodle decompressor under method id m. Some
// engine forks store Oodle blocks under a private id.
func (r *Registry) EnableOodle(m Method) error {
	if m <= LZHAM || m == LZMAAlone || m > MethodMask {
		return fmt.Errorf("method id %d is reserved", m)
	}
	slog.Debug("Registering Oodle decompressor", "method", uint8(m))
	r.Register(m, decompressOodle)
	return nil
}

// Supports reports whether a decompressor is registered for m.
func (r *Registry) Supports(m Method) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.codecs[m]
	return ok
}

// MaxSize caps a single decompressed buffer.
const MaxSize = 1 << 30

// maxLZ4Ratio bounds LZ4 output per input byte: every extension byte of a
// literal or match length adds at most 255.
const maxLZ4Ratio = 255

// CheckSize rejects an uncompressed size that srcLen bytes of method m
// cannot produce. It runs before any output is allocated.
func CheckSize(m Method, srcLen, size int) error {
	switch {
	case size < 0:
		return errs.E(errs.CorruptStream, "negative uncompressed size %d", size)
	case size > MaxSize:
		return errs.E(errs.CorruptStream, "uncompressed size %d exceeds %d-byte limit", size, MaxSize)
	}
	switch m {
	case Stored:
		if size > srcLen {
			return errs.E(errs.Truncated, "stored block has %d bytes, expected %d", srcLen, size)
		}
	case LZ4, LZ4HC:
		if int64(size) > int64(srcLen)*maxLZ4Ratio+16 {
			return errs.E(errs.CorruptStream, "%s: %d bytes cannot inflate to %d", m, srcLen, size)
		}
	}
	return nil
}

// Decompress inflates src with method m. The result is exactly size bytes.
func (r *Registry) Decompress(m Method, src []byte, size int) ([]byte, error) {
	if err := CheckSize(m, len(src), size); err != nil {
		return nil, err
	}

	r.mu.RLock()
	d, ok := r.codecs[m]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.E(errs.UnsupportedFormat, "unsupported compression method %s", m)
	}

	out, err := d(src, size)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m, err)
	}
	if len(out) != size {
		return nil, errs.E(errs.CorruptStream, "%s: decompressed %d bytes, expected %d", m, len(out), size)
	}
	return out, nil
}

func decompressStored(src []byte, size int) ([]byte, error) {
	if len(src) < size {
		return nil, errs.E(errs.Truncated, "stored block has %d bytes, expected %d", len(src), size)
	}
	if len(src) > size {
		return nil, errs.E(errs.CorruptStream, "stored block has %d bytes, expected %d", len(src), size)
	}
	out := make([]byte, size)
	copy(out, src)
	return out, nil
}

func decompressLZ4(src []byte, size int) ([]byte, error) {
	if size == 0 && len(src) == 0 {
		return []byte{}, nil
	}
	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, errs.E(errs.CorruptStream, "decompression failed: %w", err)
	}
	return dst[:n], nil
}

// lzmaPropsSize is the length of the properties prefix on raw LZMA blocks.
const lzmaPropsSize = 5

func decompressLZMA(src []byte, size int) ([]byte, error) {
	if len(src) < lzmaPropsSize {
		return nil, errs.E(errs.Truncated, "lzma block of %d bytes has no properties", len(src))
	}

	// rebuild the 13-byte header the decoder expects
	hdr := make([]byte, lzmaPropsSize+8)
	copy(hdr, src[:lzmaPropsSize])
	binary.LittleEndian.PutUint64(hdr[lzmaPropsSize:], uint64(size))

	return readLZMA(io.MultiReader(bytes.NewReader(hdr), bytes.NewReader(src[lzmaPropsSize:])), size)
}

func decompressLZMAAlone(src []byte, size int) ([]byte, error) {
	return readLZMA(bytes.NewReader(src), size)
}

func readLZMA(r io.Reader, size int) ([]byte, error) {
	zr, err := lzma.NewReader(r)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, errs.E(errs.Truncated, "reading lzma header: %w", err)
		}
		return nil, errs.E(errs.CorruptStream, "reading lzma header: %w", err)
	}

	// grow with the stream rather than trusting size up front
	out := bytes.NewBuffer(make([]byte, 0, min(size, lzmaInitialBuffer)))
	if _, err := io.CopyN(out, zr, int64(size)); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, errs.E(errs.Truncated, "lzma stream ended early: %w", err)
		}
		return nil, errs.E(errs.CorruptStream, "decompression failed: %w", err)
	}
	return out.Bytes(), nil
}

const lzmaInitialBuffer = 1 << 20

func decompressOodle(src []byte, size int) ([]byte, error) {
	dst := make([]byte, size)
	n, err := gooz.Decompress(src, dst)
	if err != nil {
		return nil, errs.E(errs.CorruptStream, "decompression failed: %w", err)
	}
	return dst[:n], nil
}
