// Package typetree decodes the field schemas that serialized files carry
// for each object type, and decodes object payloads with them.
package typetree

import (
	"bytes"
	"fmt"

	"github.com/jchantrell/unitypack/internal/errs"
	"github.com/jchantrell/unitypack/internal/stream"
)

// MetaFlag bits.
const (
	FlagAlignBytes uint32 = 0x4000
)

// commonStringBit marks blob string offsets that index the shared table.
const commonStringBit = 0x80000000

// maxDepth bounds nesting for legacy trees and decoded values.
const maxDepth = 64

// maxNodes bounds the node count of a single blob tree.
const maxNodes = 1 << 20

// Node is one field of a type tree.
type Node struct {
	Type        string
	Name        string
	Size        int32
	Index       int32
	IsArray     bool
	Version     int32
	MetaFlag    uint32
	Level       uint8
	TypeFlags   uint8
	RefTypeHash uint64
	Children    []*Node
}

// Aligned reports whether the reader aligns to 4 bytes after this field.
func (n *Node) Aligned() bool {
	return n.MetaFlag&FlagAlignBytes != 0
}

// Walk visits n and its descendants depth first, stopping when fn returns false.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Count returns the number of nodes in the tree rooted at n.
func (n *Node) Count() int {
	total := 0
	n.Walk(func(*Node) bool {
		total++
		return true
	})
	return total
}

// UsesBlob reports whether serialized files of the given format store type
// trees as a node table plus string buffer.
func UsesBlob(format uint32) bool {
	return format >= 12 || format == 10
}

// Read decodes one type tree in the layout used by format.
func Read(r *stream.Reader, format uint32) (*Node, error) {
	if UsesBlob(format) {
		return ReadBlob(r, format)
	}
	return ReadLegacy(r)
}

// ReadLegacy decodes a recursively encoded tree.
func ReadLegacy(r *stream.Reader) (*Node, error) {
	return readLegacyNode(r, 0)
}

func readLegacyNode(r *stream.Reader, depth int) (*Node, error) {
	if depth > maxDepth {
		return nil, errs.E(errs.CorruptStream, "type tree nested deeper than %d", maxDepth)
	}

	var n Node
	var err error
	if n.Type, err = r.CString(0); err != nil {
		return nil, fmt.Errorf("reading node type: %w", err)
	}
	if n.Name, err = r.CString(0); err != nil {
		return nil, fmt.Errorf("reading node name: %w", err)
	}

	var fields [6]int32
	for i := range fields {
		if fields[i], err = r.I32(); err != nil {
			return nil, fmt.Errorf("reading node %q: %w", n.Name, err)
		}
	}
	n.Size = fields[0]
	n.Index = fields[1]
	n.IsArray = fields[2] != 0
	n.TypeFlags = uint8(fields[2])
	n.Version = fields[3]
	n.MetaFlag = uint32(fields[4])
	n.Level = uint8(depth)

	childCount := fields[5]
	if childCount < 0 {
		return nil, errs.E(errs.CorruptStream, "node %q has negative child count %d", n.Name, childCount)
	}
	if int64(childCount) > r.Remaining() {
		return nil, errs.E(errs.Truncated, "node %q declares %d children past end of data", n.Name, childCount)
	}

	n.Children = make([]*Node, 0, childCount)
	for i := int32(0); i < childCount; i++ {
		child, err := readLegacyNode(r, depth+1)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}

	return &n, nil
}

type blobRecord struct {
	version   uint16
	level     uint8
	typeFlags uint8
	typeOff   uint32
	nameOff   uint32
	size      int32
	index     int32
	metaFlag  uint32
	refHash   uint64
}

// BlobRecordSize returns the byte length of one node record for format.
func BlobRecordSize(format uint32) int64 {
	if format >= 19 {
		return 32
	}
	return 24
}

// ReadBlob decodes a flat node table followed by its string buffer. The
// tree shape is rebuilt from each node's depth.
func ReadBlob(r *stream.Reader, format uint32) (*Node, error) {
	nodeCount, err := r.I32()
	if err != nil {
		return nil, fmt.Errorf("reading node count: %w", err)
	}
	strSize, err := r.I32()
	if err != nil {
		return nil, fmt.Errorf("reading string buffer size: %w", err)
	}
	if nodeCount <= 0 || nodeCount > maxNodes {
		return nil, errs.E(errs.CorruptStream, "invalid type tree node count %d", nodeCount)
	}
	if strSize < 0 {
		return nil, errs.E(errs.CorruptStream, "negative string buffer size %d", strSize)
	}
	if need := int64(nodeCount)*BlobRecordSize(format) + int64(strSize); need > r.Remaining() {
		return nil, errs.E(errs.Truncated, "type tree needs %d bytes, %d remain", need, r.Remaining())
	}

	records := make([]blobRecord, nodeCount)
	for i := range records {
		rec := &records[i]
		if rec.version, err = r.U16(); err != nil {
			return nil, err
		}
		if rec.level, err = r.U8(); err != nil {
			return nil, err
		}
		if rec.typeFlags, err = r.U8(); err != nil {
			return nil, err
		}
		if rec.typeOff, err = r.U32(); err != nil {
			return nil, err
		}
		if rec.nameOff, err = r.U32(); err != nil {
			return nil, err
		}
		if rec.size, err = r.I32(); err != nil {
			return nil, err
		}
		if rec.index, err = r.I32(); err != nil {
			return nil, err
		}
		if rec.metaFlag, err = r.U32(); err != nil {
			return nil, err
		}
		if format >= 19 {
			if rec.refHash, err = r.U64(); err != nil {
				return nil, err
			}
		}
	}

	buf, err := r.Bytes(int(strSize))
	if err != nil {
		return nil, fmt.Errorf("reading string buffer: %w", err)
	}

	var root *Node
	var stack []*Node
	for i, rec := range records {
		n := &Node{
			Version:     int32(rec.version),
			Level:       rec.level,
			TypeFlags:   rec.typeFlags,
			IsArray:     rec.typeFlags&1 != 0,
			Size:        rec.size,
			Index:       rec.index,
			MetaFlag:    rec.metaFlag,
			RefTypeHash: rec.refHash,
		}
		if n.Type, err = blobString(buf, rec.typeOff); err != nil {
			return nil, fmt.Errorf("node %d type: %w", i, err)
		}
		if n.Name, err = blobString(buf, rec.nameOff); err != nil {
			return nil, fmt.Errorf("node %d name: %w", i, err)
		}

		depth := int(rec.level)
		switch {
		case i == 0:
			if depth != 0 {
				return nil, errs.E(errs.CorruptStream, "root node has depth %d", depth)
			}
			root = n
			stack = append(stack, n)
			continue
		case depth == 0:
			return nil, errs.E(errs.CorruptStream, "node %d is a second root", i)
		case depth > len(stack):
			return nil, errs.E(errs.CorruptStream, "node %d jumps to depth %d from %d", i, depth, len(stack)-1)
		}

		stack = stack[:depth]
		parent := stack[depth-1]
		parent.Children = append(parent.Children, n)
		stack = append(stack, n)
	}

	return root, nil
}

func blobString(buf []byte, off uint32) (string, error) {
	if off&commonStringBit != 0 {
		if s, ok := CommonString(off &^ commonStringBit); ok {
			return s, nil
		}
		return fmt.Sprintf("<common:%d>", off&^commonStringBit), nil
	}
	if int64(off) >= int64(len(buf)) {
		return "", errs.E(errs.CorruptStream, "string offset %d outside %d-byte buffer", off, len(buf))
	}
	s := buf[off:]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return string(s), nil
}
