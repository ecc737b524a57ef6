package unitypack

import (
	"io/fs"

	"github.com/jchantrell/unitypack/internal/asset"
	"github.com/jchantrell/unitypack/internal/errs"
)

// Bundle is a handle to a loaded bundle. The zero value is a null handle.
type Bundle struct {
	lib *Library
	id  uint64
}

// Asset is a borrowed handle to one directory entry of a bundle.
type Asset struct {
	bundle Bundle
	index  int
}

// Bundle returns the bundle that owns a.
func (a Asset) Bundle() Bundle {
	return a.bundle
}

// Index returns the directory position of a.
func (a Asset) Index() int {
	return a.index
}

// ObjectInfo identifies one object without pointing back into its asset.
// Offset is relative to the start of the serialized file.
type ObjectInfo struct {
	PathID  int64
	ClassID int32
	TypeID  int32
	Offset  int64
	Size    uint32
}

func objectInfo(o asset.ObjectInfo) ObjectInfo {
	return ObjectInfo{
		PathID:  o.PathID,
		ClassID: o.ClassID,
		TypeID:  o.TypeID,
		Offset:  o.Offset,
		Size:    o.Size,
	}
}

// NumAssets returns the number of directory entries in b.
func (l *Library) NumAssets(b Bundle) (int, error) {
	lb, err := l.lookup(b)
	if err != nil {
		return 0, err
	}
	return len(lb.assets), nil
}

// GetAsset returns the asset at directory position i.
func (l *Library) GetAsset(b Bundle, i int) (Asset, error) {
	lb, err := l.lookup(b)
	if err != nil {
		return Asset{}, err
	}
	if i < 0 || i >= len(lb.assets) {
		return Asset{}, errs.E(errs.OutOfRange, "asset %d of %d", i, len(lb.assets))
	}
	return Asset{bundle: b, index: i}, nil
}

// AssetName returns the directory name of a. Release it with FreeString.
func (l *Library) AssetName(a Asset) (*OwnedString, error) {
	_, as, err := l.lookupAsset(a, a.bundle)
	if err != nil {
		return nil, err
	}
	return l.transferString(as.Name), nil
}

// NumObjects returns the number of objects in a. Resource entries have none.
func (l *Library) NumObjects(a Asset, b Bundle) (int, error) {
	_, as, err := l.lookupAsset(a, b)
	if err != nil {
		return 0, err
	}
	return len(as.Objects), nil
}

// ObjectsWithType returns the objects of a whose root type name is
// exactly typeName, in object table order. Release the array with
// FreeObjectArray.
func (l *Library) ObjectsWithType(a Asset, b Bundle, typeName string) (*ObjectArray, error) {
	_, as, err := l.lookupAsset(a, b)
	if err != nil {
		return nil, err
	}
	return l.transferObjects(as.ObjectsWithType(typeName)), nil
}

// Objects returns every object of a, ordered by path id.
func (l *Library) Objects(a Asset, b Bundle) (*ObjectArray, error) {
	_, as, err := l.lookupAsset(a, b)
	if err != nil {
		return nil, err
	}
	return l.transferObjects(as.Objects), nil
}

// resolveObject finds the table entry that o was copied from.
func (l *Library) resolveObject(o ObjectInfo, a Asset, b Bundle) (*asset.Asset, asset.ObjectInfo, error) {
	_, as, err := l.lookupAsset(a, b)
	if err != nil {
		return nil, asset.ObjectInfo{}, err
	}
	info, ok := as.Object(o.PathID)
	if !ok || info.TypeID != o.TypeID || info.Offset != o.Offset {
		return nil, asset.ObjectInfo{}, misuse("object %d is not in asset %q", o.PathID, as.Name)
	}
	return as, info, nil
}

// ObjectType returns the root type name of o. Release it with FreeString.
func (l *Library) ObjectType(o ObjectInfo, a Asset, b Bundle) (*OwnedString, error) {
	as, info, err := l.resolveObject(o, a, b)
	if err != nil {
		return nil, err
	}
	name, err := as.TypeName(info)
	if err != nil {
		return nil, err
	}
	return l.transferString(name), nil
}

// ObjectData returns a copy of the serialized bytes of o.
func (l *Library) ObjectData(o ObjectInfo, a Asset, b Bundle) ([]byte, error) {
	as, info, err := l.resolveObject(o, a, b)
	if err != nil {
		return nil, err
	}
	return as.ObjectData(info)
}

// DecodeObject decodes o with its type tree. Structs become
// map[string]any, arrays []any (byte arrays []byte).
func (l *Library) DecodeObject(o ObjectInfo, a Asset, b Bundle) (any, error) {
	as, info, err := l.resolveObject(o, a, b)
	if err != nil {
		return nil, err
	}
	return as.DecodeObject(info)
}

// BundleInfo describes a loaded bundle's container.
type BundleInfo struct {
	Name          string
	Signature     string
	Version       uint32
	PlayerVersion string
	EngineVersion string
	Compression   string
	Size          int64
	Entries       int
}

// BundleInfo returns container details. The strings are borrowed and need
// no freeing.
func (l *Library) BundleInfo(b Bundle) (BundleInfo, error) {
	lb, err := l.lookup(b)
	if err != nil {
		return BundleInfo{}, err
	}
	h := lb.container.Header
	return BundleInfo{
		Name:          lb.name,
		Signature:     h.Signature,
		Version:       h.Version,
		PlayerVersion: h.PlayerVersion,
		EngineVersion: h.EngineVersion,
		Compression:   lb.container.Compression().String(),
		Size:          lb.container.Size(),
		Entries:       len(lb.container.Entries),
	}, nil
}

// AssetInfo describes one serialized file.
type AssetInfo struct {
	Name         string
	Resource     bool
	Format       uint32
	UnityVersion string
	Platform     string
	BigEndian    bool
	TypeTrees    bool
	Types        int
	Objects      int
	Externals    []string
	Size         int
}

// AssetInfo returns serialized file details.
func (l *Library) AssetInfo(a Asset) (AssetInfo, error) {
	_, as, err := l.lookupAsset(a, a.bundle)
	if err != nil {
		return AssetInfo{}, err
	}
	info := AssetInfo{
		Name:     as.Name,
		Resource: as.Resource,
		Size:     as.Size(),
	}
	if as.Resource {
		return info, nil
	}
	info.Format = as.Header.Format
	info.UnityVersion = as.UnityVersion
	info.Platform = asset.PlatformName(as.Platform)
	info.BigEndian = as.Header.BigEndian
	info.TypeTrees = as.TypeTreeEnabled
	info.Types = len(as.Types)
	info.Objects = len(as.Objects)
	for _, e := range as.Externals {
		info.Externals = append(info.Externals, e.Path)
	}
	return info, nil
}

// FS returns a read-only filesystem over b's directory entries.
func (l *Library) FS(b Bundle) (fs.FS, error) {
	lb, err := l.lookup(b)
	if err != nil {
		return nil, err
	}
	return lb.container.FS(), nil
}
