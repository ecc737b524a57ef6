package bundle

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/jchantrell/unitypack/internal/compress"
	"github.com/jchantrell/unitypack/internal/errs"
)

// blockStorage exposes the concatenation of a bundle's storage blocks as
// one uncompressed stream, decompressing blocks on demand.
type blockStorage struct {
	data     io.ReaderAt
	size     int64
	blocks   []Block
	registry *compress.Registry

	mu      sync.Mutex
	lastBlk int
	lastBuf []byte
}

func newBlockStorage(data io.ReaderAt, blocks []Block, registry *compress.Registry) *blockStorage {
	s := &blockStorage{
		data:     data,
		blocks:   blocks,
		registry: registry,
		lastBlk:  -1,
	}
	for _, b := range blocks {
		s.size += int64(b.UncompressedSize)
	}
	return s
}

func (s *blockStorage) Size() int64 {
	return s.size
}

// block returns the uncompressed contents of block i.
func (s *blockStorage) block(i int) ([]byte, error) {
	if i == s.lastBlk {
		return s.lastBuf, nil
	}

	blk := &s.blocks[i]
	raw := make([]byte, blk.CompressedSize)
	if n, err := s.data.ReadAt(raw, blk.offset); n != len(raw) {
		if err == nil || err == io.EOF {
			return nil, errs.E(errs.Truncated, "block %d: read %d of %d bytes", i, n, len(raw))
		}
		return nil, errs.E(errs.Io, "block %d: %w", i, err)
	}

	out, err := s.registry.Decompress(blk.Compression(), raw, int(blk.UncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", i, err)
	}

	s.lastBlk = i
	s.lastBuf = out
	return out, nil
}

func (s *blockStorage) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > s.size {
		return 0, errs.E(errs.Truncated, "read [%d, %d) outside %d-byte payload", off, off+int64(len(p)), s.size)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// first block whose end is past off
	idx := sort.Search(len(s.blocks), func(i int) bool {
		return s.blocks[i].start+int64(s.blocks[i].UncompressedSize) > off
	})

	n := 0
	for n < len(p) {
		if idx >= len(s.blocks) {
			return n, errs.E(errs.Truncated, "payload ended at %d", off)
		}
		buf, err := s.block(idx)
		if err != nil {
			return n, err
		}
		copied := copy(p[n:], buf[off-s.blocks[idx].start:])
		n += copied
		off += int64(copied)
		idx++
	}

	return n, nil
}
