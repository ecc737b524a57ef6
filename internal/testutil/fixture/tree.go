package fixture

import (
	"encoding/binary"
	"math"

	"github.com/jchantrell/unitypack/internal/typetree"
)

// Field describes one type tree node to be written.
type Field struct {
	Type     string
	Name     string
	Size     int32
	Flags    uint32
	Array    bool
	Version  int32
	Children []Field
}

const alignFlag = typetree.FlagAlignBytes

func stringField(name string) Field {
	return Field{Type: "string", Name: name, Size: -1, Flags: alignFlag, Version: 1, Children: []Field{
		{Type: "Array", Name: "Array", Size: -1, Array: true, Flags: alignFlag, Version: 1, Children: []Field{
			{Type: "int", Name: "size", Size: 4, Version: 1},
			{Type: "char", Name: "data", Size: 1, Version: 1},
		}},
	}}
}

// GameObjectTree is a trimmed GameObject layout: a name, a layer and an
// active flag.
func GameObjectTree() Field {
	return Field{Type: "GameObject", Name: "Base", Size: -1, Version: 5, Children: []Field{
		stringField("m_Name"),
		{Type: "unsigned int", Name: "m_Layer", Size: 4, Version: 1},
		{Type: "bool", Name: "m_IsActive", Size: 1, Flags: alignFlag, Version: 1},
	}}
}

// TransformTree is a trimmed Transform layout with a local position and a
// list of child path ids.
func TransformTree() Field {
	vec := Field{Type: "Vector3f", Name: "m_LocalPosition", Size: 12, Version: 1, Children: []Field{
		{Type: "float", Name: "x", Size: 4, Version: 1},
		{Type: "float", Name: "y", Size: 4, Version: 1},
		{Type: "float", Name: "z", Size: 4, Version: 1},
	}}
	children := Field{Type: "vector", Name: "m_Children", Size: -1, Version: 1, Children: []Field{
		{Type: "Array", Name: "Array", Size: -1, Array: true, Version: 1, Children: []Field{
			{Type: "int", Name: "size", Size: 4, Version: 1},
			{Type: "SInt64", Name: "data", Size: 8, Version: 1},
		}},
	}}
	return Field{Type: "Transform", Name: "Base", Size: -1, Version: 1, Children: []Field{vec, children}}
}

// TextAssetTree is the TextAsset layout.
func TextAssetTree() Field {
	return Field{Type: "TextAsset", Name: "Base", Size: -1, Version: 1, Children: []Field{
		stringField("m_Name"),
		stringField("m_Script"),
	}}
}

// GameObjectPayload encodes a GameObject matching GameObjectTree.
func GameObjectPayload(order binary.ByteOrder, name string, layer uint32, active bool) []byte {
	w := newWriter(order, 0)
	w.alignedString(name)
	w.u32(layer)
	w.boolean(active)
	w.align(4)
	return w.Bytes()
}

// TransformPayload encodes a Transform matching TransformTree.
func TransformPayload(order binary.ByteOrder, x, y, z float32, children ...int64) []byte {
	w := newWriter(order, 0)
	for _, f := range []float32{x, y, z} {
		w.u32(math.Float32bits(f))
	}
	w.i32(int32(len(children)))
	for _, c := range children {
		w.i64(c)
	}
	return w.Bytes()
}

// TextAssetPayload encodes a TextAsset matching TextAssetTree.
func TextAssetPayload(order binary.ByteOrder, name, script string) []byte {
	w := newWriter(order, 0)
	w.alignedString(name)
	w.alignedString(script)
	return w.Bytes()
}

// LegacyTree encodes f in the recursive layout.
func LegacyTree(order binary.ByteOrder, f Field) []byte {
	w := newWriter(order, 0)
	index := int32(0)
	writeLegacy(w, f, &index)
	return w.Bytes()
}

func writeLegacy(w *writer, f Field, index *int32) {
	w.cstring(f.Type)
	w.cstring(f.Name)
	w.i32(f.Size)
	w.i32(*index)
	*index++
	if f.Array {
		w.i32(1)
	} else {
		w.i32(0)
	}
	w.i32(f.Version)
	w.i32(int32(f.Flags))
	w.i32(int32(len(f.Children)))
	for _, c := range f.Children {
		writeLegacy(w, c, index)
	}
}

// BlobNode is a flattened record for BlobTree.
type BlobNode struct {
	Level uint8
	Field Field
}

// Flatten lists f and its descendants depth first with their levels.
func Flatten(f Field) []BlobNode {
	var out []BlobNode
	var walk func(Field, uint8)
	walk = func(f Field, level uint8) {
		out = append(out, BlobNode{Level: level, Field: f})
		for _, c := range f.Children {
			walk(c, level+1)
		}
	}
	walk(f, 0)
	return out
}

// BlobTree encodes f as a node table plus string buffer.
func BlobTree(order binary.ByteOrder, format uint32, f Field) []byte {
	return BlobNodes(order, format, Flatten(f))
}

// BlobNodes encodes already flattened nodes, allowing malformed depths.
func BlobNodes(order binary.ByteOrder, format uint32, nodes []BlobNode) []byte {
	var strs []byte
	local := make(map[string]uint32)
	offset := func(s string) uint32 {
		if off, ok := typetree.CommonStringOffset(s); ok {
			return off | 0x80000000
		}
		if off, ok := local[s]; ok {
			return off
		}
		off := uint32(len(strs))
		local[s] = off
		strs = append(strs, s...)
		strs = append(strs, 0)
		return off
	}

	recs := newWriter(order, 0)
	for i, n := range nodes {
		recs.u16(uint16(n.Field.Version))
		recs.u8(n.Level)
		if n.Field.Array {
			recs.u8(1)
		} else {
			recs.u8(0)
		}
		recs.u32(offset(n.Field.Type))
		recs.u32(offset(n.Field.Name))
		recs.i32(n.Field.Size)
		recs.i32(int32(i))
		recs.u32(n.Field.Flags)
		if format >= 19 {
			recs.u64(0)
		}
	}

	w := newWriter(order, 0)
	w.i32(int32(len(nodes)))
	w.i32(int32(len(strs)))
	w.Write(recs.Bytes())
	w.Write(strs)
	return w.Bytes()
}
