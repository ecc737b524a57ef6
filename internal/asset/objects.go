package asset

import (
	"fmt"
	"sort"

	"github.com/jchantrell/unitypack/internal/errs"
	"github.com/jchantrell/unitypack/internal/stream"
	"github.com/jchantrell/unitypack/internal/typetree"
)

// Size returns the length of the underlying serialized file.
func (a *Asset) Size() int {
	return len(a.data)
}

// Data returns the raw bytes of the asset. Callers must not modify them.
func (a *Asset) Data() []byte {
	return a.data
}

// Object finds an object by path id.
func (a *Asset) Object(pathID int64) (ObjectInfo, bool) {
	i := sort.Search(len(a.Objects), func(i int) bool {
		return a.Objects[i].PathID >= pathID
	})
	if i < len(a.Objects) && a.Objects[i].PathID == pathID {
		return a.Objects[i], true
	}
	return ObjectInfo{}, false
}

// TypeOf returns the type table entry for o.
func (a *Asset) TypeOf(o ObjectInfo) (*Type, error) {
	if o.TypeIndex < 0 || o.TypeIndex >= len(a.Types) {
		return nil, errs.E(errs.CorruptStream, "type index %d outside %d-entry type table", o.TypeIndex, len(a.Types))
	}
	return &a.Types[o.TypeIndex], nil
}

// TypeName returns the root type name for o.
func (a *Asset) TypeName(o ObjectInfo) (string, error) {
	t, err := a.TypeOf(o)
	if err != nil {
		return "", err
	}
	return t.Name(), nil
}

// ObjectsWithType returns the objects whose type name equals name, in
// table order.
func (a *Asset) ObjectsWithType(name string) []ObjectInfo {
	var out []ObjectInfo
	for _, o := range a.Objects {
		if o.TypeIndex >= 0 && o.TypeIndex < len(a.Types) && a.Types[o.TypeIndex].Name() == name {
			out = append(out, o)
		}
	}
	return out
}

// CountByType tallies objects per type name.
func (a *Asset) CountByType() map[string]int {
	counts := make(map[string]int)
	for _, o := range a.Objects {
		if name, err := a.TypeName(o); err == nil {
			counts[name]++
		}
	}
	return counts
}

// ObjectData returns a copy of the payload of o.
func (a *Asset) ObjectData(o ObjectInfo) ([]byte, error) {
	data, err := a.payload(o)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// payload returns the bytes of o within the file. The extent is checked
// without forming offset+size.
func (a *Asset) payload(o ObjectInfo) ([]byte, error) {
	n := int64(len(a.data))
	if o.Offset < 0 || o.Offset > n || int64(o.Size) > n-o.Offset {
		return nil, errs.E(errs.Truncated, "object %d of %d bytes at %d runs past end of %d-byte file", o.PathID, o.Size, o.Offset, n)
	}
	return a.data[o.Offset : o.Offset+int64(o.Size)], nil
}

// DecodeObject decodes the payload of o with its type tree.
func (a *Asset) DecodeObject(o ObjectInfo) (any, error) {
	t, err := a.TypeOf(o)
	if err != nil {
		return nil, err
	}
	if t.Tree == nil {
		return nil, errs.E(errs.UnsupportedFormat, "class %d has no type tree", t.ClassID)
	}
	data, err := a.payload(o)
	if err != nil {
		return nil, err
	}

	r := stream.FromBytes(data, a.Header.ByteOrder())
	v, err := typetree.Decode(r, t.Tree)
	if err != nil {
		return nil, fmt.Errorf("decoding object %d (%s): %w", o.PathID, t.Name(), err)
	}
	return v, nil
}
