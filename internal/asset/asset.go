// Package asset parses Unity serialized files: the type table, the object
// table and the reference sections that follow it.
package asset

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jchantrell/unitypack/internal/errs"
	"github.com/jchantrell/unitypack/internal/stream"
	"github.com/jchantrell/unitypack/internal/typetree"
)

// Asset is one parsed serialized file. It is immutable after Parse.
type Asset struct {
	Name            string
	Header          Header
	UnityVersion    string
	Platform        int32
	TypeTreeEnabled bool
	Types           []Type
	RefTypes        []Type
	Scripts         []ScriptRef
	Externals       []External
	UserInfo        string
	Resource        bool

	// Objects is sorted by PathID.
	Objects []ObjectInfo

	data []byte
}

// IsResource reports whether a directory entry holds raw resource data
// rather than a serialized file.
func IsResource(name string) bool {
	return strings.HasSuffix(name, ".resS") || strings.HasSuffix(name, ".resource")
}

// NewResource wraps a resource entry. It has no types and no objects.
func NewResource(name string, data []byte) *Asset {
	return &Asset{Name: name, Resource: true, data: data}
}

// Parse decodes the serialized file in data. The asset keeps data and
// serves object payloads from it.
func Parse(name string, data []byte) (*Asset, error) {
	a := &Asset{Name: name, data: data}
	r := stream.FromBytes(data, binary.BigEndian)

	if err := a.readHeader(r); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	r.SetOrder(a.Header.ByteOrder())

	if err := a.readMetadata(r); err != nil {
		return nil, err
	}

	slog.Debug("Parsed serialized file",
		"name", name,
		"format", a.Header.Format,
		"unity_version", a.UnityVersion,
		"types", len(a.Types),
		"objects", len(a.Objects))

	return a, nil
}

func (a *Asset) readHeader(r *stream.Reader) error {
	h := &a.Header

	var err error
	if h.MetadataSize, err = r.U32(); err != nil {
		return err
	}
	fileSize, err := r.U32()
	if err != nil {
		return err
	}
	if h.Format, err = r.U32(); err != nil {
		return err
	}
	dataOffset, err := r.U32()
	if err != nil {
		return err
	}
	h.FileSize = int64(fileSize)
	h.DataOffset = int64(dataOffset)

	if h.Format < MinFormat || h.Format > MaxFormat {
		return errs.E(errs.UnsupportedFormat, "serialized file format %d outside supported range %d-%d", h.Format, MinFormat, MaxFormat)
	}

	var endian uint8
	if h.Format >= 9 {
		if endian, err = r.U8(); err != nil {
			return err
		}
		if err := r.Skip(3); err != nil {
			return err
		}
	} else {
		if err := r.Seek(h.FileSize - int64(h.MetadataSize)); err != nil {
			return fmt.Errorf("locating metadata: %w", err)
		}
		if endian, err = r.U8(); err != nil {
			return err
		}
	}
	h.BigEndian = endian != 0

	if h.Format >= 22 {
		if h.MetadataSize, err = r.U32(); err != nil {
			return err
		}
		if h.FileSize, err = r.I64(); err != nil {
			return err
		}
		if h.DataOffset, err = r.I64(); err != nil {
			return err
		}
		if err := r.Skip(8); err != nil {
			return err
		}
	}

	if h.FileSize > int64(len(a.data)) {
		return errs.E(errs.Truncated, "file declares %d bytes, have %d", h.FileSize, len(a.data))
	}
	if h.DataOffset < 0 || h.DataOffset > h.FileSize {
		return errs.E(errs.CorruptStream, "data offset %d outside %d-byte file", h.DataOffset, h.FileSize)
	}
	return nil
}

func (a *Asset) readMetadata(r *stream.Reader) error {
	format := a.Header.Format
	var err error

	if format >= 7 {
		if a.UnityVersion, err = r.CString(0); err != nil {
			return fmt.Errorf("reading unity version: %w", err)
		}
	}
	if format >= 8 {
		if a.Platform, err = r.I32(); err != nil {
			return fmt.Errorf("reading platform: %w", err)
		}
	}

	a.TypeTreeEnabled = true
	if format >= 13 {
		if a.TypeTreeEnabled, err = r.Bool(); err != nil {
			return fmt.Errorf("reading type tree flag: %w", err)
		}
	}

	if a.Types, err = a.readTypes(r, false); err != nil {
		return fmt.Errorf("reading types: %w", err)
	}

	bigID := false
	if format >= 7 && format < 14 {
		v, err := r.I32()
		if err != nil {
			return fmt.Errorf("reading big id flag: %w", err)
		}
		bigID = v != 0
	}

	if err := a.readObjects(r, bigID); err != nil {
		return fmt.Errorf("reading objects: %w", err)
	}

	if format >= 11 {
		if err := a.readScripts(r); err != nil {
			return fmt.Errorf("reading script references: %w", err)
		}
	}

	if err := a.readExternals(r); err != nil {
		return fmt.Errorf("reading externals: %w", err)
	}

	if format >= 20 {
		if a.RefTypes, err = a.readTypes(r, true); err != nil {
			return fmt.Errorf("reading reference types: %w", err)
		}
	}

	if format >= 5 {
		if a.UserInfo, err = r.CString(0); err != nil {
			return fmt.Errorf("reading user information: %w", err)
		}
	}

	return nil
}

func readCount(r *stream.Reader, what string) (int, error) {
	n, err := r.I32()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errs.E(errs.CorruptStream, "negative %s count %d", what, n)
	}
	if int64(n) > r.Remaining() {
		return 0, errs.E(errs.Truncated, "%d %s exceed remaining %d bytes", n, what, r.Remaining())
	}
	return int(n), nil
}

func (a *Asset) readTypes(r *stream.Reader, isRef bool) ([]Type, error) {
	count, err := readCount(r, "type")
	if err != nil {
		return nil, err
	}
	types := make([]Type, count)
	for i := range types {
		if err := a.readType(r, &types[i], isRef); err != nil {
			return nil, fmt.Errorf("type %d: %w", i, err)
		}
	}
	return types, nil
}

func (a *Asset) readType(r *stream.Reader, t *Type, isRef bool) error {
	format := a.Header.Format
	var err error

	if t.ClassID, err = r.I32(); err != nil {
		return err
	}
	if format >= 16 {
		if t.IsStripped, err = r.Bool(); err != nil {
			return err
		}
	}
	t.ScriptTypeIndex = -1
	if format >= 17 {
		if t.ScriptTypeIndex, err = r.I16(); err != nil {
			return err
		}
	}

	if format >= 13 {
		hasScriptID := (isRef && t.ScriptTypeIndex >= 0) ||
			(format < 16 && t.ClassID < 0) ||
			(format >= 16 && t.ClassID == ClassMonoBehaviour)
		if hasScriptID {
			b, err := r.Bytes(16)
			if err != nil {
				return err
			}
			copy(t.ScriptID[:], b)
		}
		b, err := r.Bytes(16)
		if err != nil {
			return err
		}
		copy(t.OldTypeHash[:], b)
	}

	if !a.TypeTreeEnabled {
		return nil
	}

	if t.Tree, err = typetree.Read(r, format); err != nil {
		return fmt.Errorf("class %d type tree: %w", t.ClassID, err)
	}

	if format >= 21 {
		if isRef {
			if t.ClassName, err = r.CString(0); err != nil {
				return err
			}
			if t.Namespace, err = r.CString(0); err != nil {
				return err
			}
			if t.AssemblyName, err = r.CString(0); err != nil {
				return err
			}
		} else {
			n, err := readCount(r, "dependency")
			if err != nil {
				return err
			}
			t.Dependencies = make([]int32, n)
			for i := range t.Dependencies {
				if t.Dependencies[i], err = r.I32(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (a *Asset) readObjects(r *stream.Reader, bigID bool) error {
	count, err := readCount(r, "object")
	if err != nil {
		return err
	}

	objects := make([]ObjectInfo, count)
	for i := range objects {
		o := &objects[i]
		if err := a.readObject(r, o, bigID); err != nil {
			return fmt.Errorf("object %d: %w", i, err)
		}
		if err := a.resolveType(o); err != nil {
			return fmt.Errorf("object %d (path id %d): %w", i, o.PathID, err)
		}
		if _, err := a.payload(*o); err != nil {
			return fmt.Errorf("object %d: %w", i, err)
		}
	}

	sort.SliceStable(objects, func(i, j int) bool {
		return objects[i].PathID < objects[j].PathID
	})
	for i := 1; i < len(objects); i++ {
		if objects[i].PathID == objects[i-1].PathID {
			return errs.E(errs.CorruptStream, "duplicate path id %d", objects[i].PathID)
		}
	}

	a.Objects = objects
	return nil
}

func (a *Asset) readObject(r *stream.Reader, o *ObjectInfo, bigID bool) error {
	format := a.Header.Format
	var err error

	switch {
	case bigID:
		o.PathID, err = r.I64()
	case format < 14:
		var id int32
		id, err = r.I32()
		o.PathID = int64(id)
	default:
		if err = r.Align(4); err == nil {
			o.PathID, err = r.I64()
		}
	}
	if err != nil {
		return err
	}

	if format >= 22 {
		if o.Offset, err = r.I64(); err != nil {
			return err
		}
	} else {
		start, err := r.U32()
		if err != nil {
			return err
		}
		o.Offset = int64(start)
	}
	o.Offset += a.Header.DataOffset

	if o.Size, err = r.U32(); err != nil {
		return err
	}
	if o.TypeID, err = r.I32(); err != nil {
		return err
	}

	o.ClassID = -1
	if format < 16 {
		classID, err := r.U16()
		if err != nil {
			return err
		}
		o.ClassID = int32(classID)
	}
	if format < 11 {
		destroyed, err := r.U16()
		if err != nil {
			return err
		}
		o.IsDestroyed = destroyed != 0
	}
	o.ScriptTypeIndex = -1
	if format >= 11 && format < 17 {
		if o.ScriptTypeIndex, err = r.I16(); err != nil {
			return err
		}
	}
	if format == 15 || format == 16 {
		if o.Stripped, err = r.Bool(); err != nil {
			return err
		}
	}
	return nil
}

// resolveType maps an object's type id onto the type table. Newer formats
// store an index; older ones store the class id itself.
func (a *Asset) resolveType(o *ObjectInfo) error {
	if a.Header.Format >= 16 {
		if o.TypeID < 0 || int(o.TypeID) >= len(a.Types) {
			return errs.E(errs.CorruptStream, "type index %d outside %d-entry type table", o.TypeID, len(a.Types))
		}
		o.TypeIndex = int(o.TypeID)
		o.ClassID = a.Types[o.TypeIndex].ClassID
		return nil
	}

	for i := range a.Types {
		if a.Types[i].ClassID == o.TypeID {
			o.TypeIndex = i
			return nil
		}
	}
	return errs.E(errs.CorruptStream, "type id %d not in type table", o.TypeID)
}

func (a *Asset) readScripts(r *stream.Reader) error {
	count, err := readCount(r, "script")
	if err != nil {
		return err
	}
	a.Scripts = make([]ScriptRef, count)
	for i := range a.Scripts {
		s := &a.Scripts[i]
		if s.FileIndex, err = r.I32(); err != nil {
			return err
		}
		if a.Header.Format < 14 {
			id, err := r.I32()
			if err != nil {
				return err
			}
			s.PathID = int64(id)
		} else {
			if err := r.Align(4); err != nil {
				return err
			}
			if s.PathID, err = r.I64(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *Asset) readExternals(r *stream.Reader) error {
	format := a.Header.Format
	count, err := readCount(r, "external")
	if err != nil {
		return err
	}
	a.Externals = make([]External, count)
	for i := range a.Externals {
		e := &a.Externals[i]
		if format >= 6 {
			if _, err := r.CString(0); err != nil {
				return err
			}
		}
		if format >= 5 {
			b, err := r.Bytes(16)
			if err != nil {
				return err
			}
			copy(e.GUID[:], b)
			if e.Type, err = r.I32(); err != nil {
				return err
			}
		}
		if e.Path, err = r.CString(0); err != nil {
			return err
		}
	}
	return nil
}
