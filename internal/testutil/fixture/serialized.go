package fixture

import (
	"encoding/binary"
	"fmt"
)

// TypeEntry is one type table row.
type TypeEntry struct {
	ClassID     int32
	Tree        Field
	ScriptIndex int16
	// reference types only
	ClassName, Namespace, Assembly string
}

// Object is one object to be stored.
type Object struct {
	PathID    int64
	TypeIndex int
	Data      []byte
	// Destroyed is only written for formats before 11.
	Destroyed bool
}

// ScriptRef is a script reference row.
type ScriptRef struct {
	FileIndex int32
	PathID    int64
}

// External is an external file row.
type External struct {
	GUID [16]byte
	Type int32
	Path string
}

// SerializedFile describes a serialized file to encode.
type SerializedFile struct {
	Format       uint32
	BigEndian    bool
	UnityVersion string
	Platform     int32
	NoTypeTrees  bool
	Types        []TypeEntry
	Objects      []Object
	Scripts      []ScriptRef
	Externals    []External
	RefTypes     []TypeEntry
	UserInfo     string
}

func (s *SerializedFile) order() binary.ByteOrder {
	if s.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (s *SerializedFile) headerSize() int {
	switch {
	case s.Format >= 22:
		return 48
	case s.Format >= 9:
		return 20
	default:
		return 16
	}
}

// Build encodes the file. Formats before 9 place the metadata after the
// object data; later ones place it after the header.
func (s *SerializedFile) Build() []byte {
	if s.UnityVersion == "" {
		s.UnityVersion = "2019.4.40f1"
	}

	// object data, each object aligned to 8
	data := newWriter(s.order(), 0)
	starts := make([]int, len(s.Objects))
	for i, o := range s.Objects {
		data.align(8)
		starts[i] = data.Len()
		data.Write(o.Data)
	}

	hdrSize := s.headerSize()

	if s.Format < 9 {
		dataOffset := hdrSize
		meta := newWriter(s.order(), dataOffset+data.Len()+1)
		s.writeMetadata(meta, starts)

		metaSize := meta.Len() + 1
		fileSize := dataOffset + data.Len() + metaSize

		out := newWriter(binary.BigEndian, 0)
		out.u32(uint32(metaSize))
		out.u32(uint32(fileSize))
		out.u32(s.Format)
		out.u32(uint32(dataOffset))
		out.Write(data.Bytes())
		if s.BigEndian {
			out.u8(1)
		} else {
			out.u8(0)
		}
		out.Write(meta.Bytes())
		return out.Bytes()
	}

	meta := newWriter(s.order(), hdrSize)
	s.writeMetadata(meta, starts)

	dataOffset := hdrSize + meta.Len()
	if pad := dataOffset % 16; pad != 0 {
		dataOffset += 16 - pad
	}
	fileSize := dataOffset + data.Len()

	out := newWriter(binary.BigEndian, 0)
	if s.Format >= 22 {
		out.u32(0)
		out.u32(0)
		out.u32(s.Format)
		out.u32(0)
	} else {
		out.u32(uint32(meta.Len()))
		out.u32(uint32(fileSize))
		out.u32(s.Format)
		out.u32(uint32(dataOffset))
	}
	if s.BigEndian {
		out.u8(1)
	} else {
		out.u8(0)
	}
	out.Write([]byte{0, 0, 0})
	if s.Format >= 22 {
		out.u32(uint32(meta.Len()))
		out.i64(int64(fileSize))
		out.i64(int64(dataOffset))
		out.i64(0)
	}
	out.Write(meta.Bytes())
	for out.Len() < dataOffset {
		out.u8(0)
	}
	out.Write(data.Bytes())
	return out.Bytes()
}

func (s *SerializedFile) writeMetadata(w *writer, starts []int) {
	f := s.Format
	if f >= 7 {
		w.cstring(s.UnityVersion)
	}
	if f >= 8 {
		w.i32(s.Platform)
	}
	if f >= 13 {
		w.boolean(!s.NoTypeTrees)
	}

	w.i32(int32(len(s.Types)))
	for _, t := range s.Types {
		s.writeType(w, t, false)
	}

	if f >= 7 && f < 14 {
		w.i32(0)
	}

	w.i32(int32(len(s.Objects)))
	for i, o := range s.Objects {
		if f < 14 {
			w.i32(int32(o.PathID))
		} else {
			w.align(4)
			w.i64(o.PathID)
		}
		if f >= 22 {
			w.i64(int64(starts[i]))
		} else {
			w.u32(uint32(starts[i]))
		}
		w.u32(uint32(len(o.Data)))

		classID := int32(-1)
		if o.TypeIndex >= 0 && o.TypeIndex < len(s.Types) {
			classID = s.Types[o.TypeIndex].ClassID
		}
		if f >= 16 {
			w.i32(int32(o.TypeIndex))
		} else {
			w.i32(classID)
			w.u16(uint16(classID))
		}
		if f < 11 {
			var destroyed uint16
			if o.Destroyed {
				destroyed = 1
			}
			w.u16(destroyed)
		}
		if f >= 11 && f < 17 {
			w.i16(-1)
		}
		if f == 15 || f == 16 {
			w.u8(0)
		}
	}

	if f >= 11 {
		w.i32(int32(len(s.Scripts)))
		for _, sc := range s.Scripts {
			w.i32(sc.FileIndex)
			if f < 14 {
				w.i32(int32(sc.PathID))
			} else {
				w.align(4)
				w.i64(sc.PathID)
			}
		}
	}

	w.i32(int32(len(s.Externals)))
	for _, e := range s.Externals {
		if f >= 6 {
			w.cstring("")
		}
		w.Write(e.GUID[:])
		w.i32(e.Type)
		w.cstring(e.Path)
	}

	if f >= 20 {
		w.i32(int32(len(s.RefTypes)))
		for _, t := range s.RefTypes {
			s.writeType(w, t, true)
		}
	}

	w.cstring(s.UserInfo)
}

func (s *SerializedFile) writeType(w *writer, t TypeEntry, isRef bool) {
	f := s.Format
	w.i32(t.ClassID)
	if f >= 16 {
		w.boolean(false)
	}
	if f >= 17 {
		w.i16(t.ScriptIndex)
	}
	if f >= 13 {
		if (isRef && t.ScriptIndex >= 0) || (f < 16 && t.ClassID < 0) || (f >= 16 && t.ClassID == 114) {
			w.Write(make([]byte, 16))
		}
		w.Write(make([]byte, 16))
	}
	if s.NoTypeTrees {
		return
	}
	if f >= 12 || f == 10 {
		w.Write(BlobTree(s.order(), f, t.Tree))
	} else {
		w.Write(LegacyTree(s.order(), t.Tree))
	}
	if f >= 21 {
		if isRef {
			w.cstring(t.ClassName)
			w.cstring(t.Namespace)
			w.cstring(t.Assembly)
		} else {
			w.i32(0)
		}
	}
}

// GameObjects returns a file holding n GameObjects named go_<i> with path
// ids 1..n.
func GameObjects(format uint32, n int) *SerializedFile {
	s := &SerializedFile{
		Format:    format,
		BigEndian: format < 9,
		Platform:  19,
		Types:     []TypeEntry{{ClassID: 1, Tree: GameObjectTree(), ScriptIndex: -1}},
	}
	for i := 0; i < n; i++ {
		s.Objects = append(s.Objects, Object{
			PathID:    int64(i + 1),
			TypeIndex: 0,
			Data:      GameObjectPayload(s.order(), fmt.Sprintf("go_%d", i), uint32(i%32), i%2 == 0),
		})
	}
	return s
}

// Mixed returns a file with GameObjects, Transforms and one TextAsset,
// interleaved so that filtering has to skip entries.
func Mixed(format uint32) *SerializedFile {
	s := &SerializedFile{
		Format:    format,
		BigEndian: format < 9,
		Platform:  13,
		Types: []TypeEntry{
			{ClassID: 1, Tree: GameObjectTree(), ScriptIndex: -1},
			{ClassID: 4, Tree: TransformTree(), ScriptIndex: -1},
			{ClassID: 49, Tree: TextAssetTree(), ScriptIndex: -1},
		},
	}
	o := s.order()
	s.Objects = []Object{
		{PathID: 10, TypeIndex: 0, Data: GameObjectPayload(o, "Root", 0, true)},
		{PathID: 11, TypeIndex: 1, Data: TransformPayload(o, 1, 2, 3, 13)},
		{PathID: 12, TypeIndex: 0, Data: GameObjectPayload(o, "Child", 5, false)},
		{PathID: 13, TypeIndex: 1, Data: TransformPayload(o, 0, 0, 0)},
		{PathID: 14, TypeIndex: 2, Data: TextAssetPayload(o, "readme", "hello bundle")},
	}
	return s
}
