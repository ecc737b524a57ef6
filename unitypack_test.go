package unitypack_test

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/unitypack"
	"github.com/jchantrell/unitypack/internal/compress"
	"github.com/jchantrell/unitypack/internal/testutil/fixture"
	"github.com/jchantrell/unitypack/internal/typetree"
)

func newLibrary(t *testing.T) *unitypack.Library {
	t.Helper()
	lib, err := unitypack.New()
	require.NoError(t, err)
	return lib
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func gameObjectBundle(method compress.Method) []byte {
	fsb := fixture.FS{
		Compression:     method,
		InfoCompression: method,
		Entries:         []fixture.Entry{{Name: "CAB-abc", Data: fixture.GameObjects(17, 42).Build(), Flags: 4}},
	}
	return fsb.Build().Data
}

func mixedBundle() []byte {
	fsb := fixture.FS{
		Version:     7,
		Compression: compress.LZ4,
		BlockSize:   512,
		Entries: []fixture.Entry{
			{Name: "CAB-mixed", Data: fixture.Mixed(22).Build(), Flags: 4},
			{Name: "CAB-mixed.resS", Data: bytes.Repeat([]byte{7}, 300)},
			{Name: "CAB-old", Data: fixture.Mixed(15).Build(), Flags: 4},
		},
	}
	return fsb.Build().Data
}

// snapshot is everything the driver observes about a bundle.
type snapshot struct {
	Names   []string
	Counts  []int
	Types   [][]string
	Filters [][]int64
}

func observe(t *testing.T, lib *unitypack.Library, b unitypack.Bundle) snapshot {
	t.Helper()
	s, err := collect(lib, b)
	require.NoError(t, err)
	return s
}

func collect(lib *unitypack.Library, b unitypack.Bundle) (snapshot, error) {
	var s snapshot

	n, err := lib.NumAssets(b)
	if err != nil {
		return s, err
	}
	for i := 0; i < n; i++ {
		a, err := lib.GetAsset(b, i)
		if err != nil {
			return s, err
		}

		name, err := lib.AssetName(a)
		if err != nil {
			return s, err
		}
		s.Names = append(s.Names, name.String())
		lib.FreeString(name)

		count, err := lib.NumObjects(a, b)
		if err != nil {
			return s, err
		}
		s.Counts = append(s.Counts, count)

		all, err := lib.Objects(a, b)
		if err != nil {
			return s, err
		}
		var types []string
		for _, o := range all.Items() {
			typ, err := lib.ObjectType(o, a, b)
			if err != nil {
				return s, err
			}
			types = append(types, typ.String())
			lib.FreeString(typ)
		}
		lib.FreeObjectArray(all)
		s.Types = append(s.Types, types)

		gos, err := lib.ObjectsWithType(a, b, "GameObject")
		if err != nil {
			return s, err
		}
		var ids []int64
		for _, o := range gos.Items() {
			ids = append(ids, o.PathID)
		}
		lib.FreeObjectArray(gos)
		s.Filters = append(s.Filters, ids)
	}
	return s, nil
}

func TestLoadUnityFS(t *testing.T) {
	lib := newLibrary(t)
	b, err := lib.Load(writeFile(t, "lz4.unity3d", gameObjectBundle(compress.LZ4)))
	require.NoError(t, err)

	n, err := lib.NumAssets(b)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	a, err := lib.GetAsset(b, 0)
	require.NoError(t, err)
	assert.Equal(t, b, a.Bundle())

	name, err := lib.AssetName(a)
	require.NoError(t, err)
	assert.Equal(t, "CAB-abc", name.String())
	lib.FreeString(name)

	count, err := lib.NumObjects(a, b)
	require.NoError(t, err)
	assert.Equal(t, 42, count)

	gos, err := lib.ObjectsWithType(a, b, "GameObject")
	require.NoError(t, err)
	assert.Equal(t, 42, gos.Len())
	lib.FreeObjectArray(gos)

	require.NoError(t, lib.Destroy(b))
	assert.Equal(t, unitypack.Stats{}, lib.Stats())
}

func TestStoredMatchesCompressed(t *testing.T) {
	lib := newLibrary(t)

	compressed, err := lib.Load(writeFile(t, "lz4.unity3d", gameObjectBundle(compress.LZ4)))
	require.NoError(t, err)
	stored, err := lib.Load(writeFile(t, "stored.unity3d", gameObjectBundle(compress.Stored)))
	require.NoError(t, err)
	lzma, err := lib.Load(writeFile(t, "lzma.unity3d", gameObjectBundle(compress.LZMA)))
	require.NoError(t, err)

	want := observe(t, lib, compressed)
	assert.Equal(t, want, observe(t, lib, stored))
	assert.Equal(t, want, observe(t, lib, lzma))

	info, err := lib.BundleInfo(stored)
	require.NoError(t, err)
	assert.Equal(t, "Stored", info.Compression)
	info, err = lib.BundleInfo(compressed)
	require.NoError(t, err)
	assert.Equal(t, "LZ4", info.Compression)
}

func TestLoadUnityWebLegacyTypeTrees(t *testing.T) {
	require.False(t, typetree.UsesBlob(9), "format 9 stores recursive type trees")

	web := fixture.Legacy{Signature: "UnityWeb", Version: 3, Entries: []fixture.Entry{
		{Name: "CAB-legacy", Data: fixture.GameObjects(9, 5).Build()},
	}}
	lib := newLibrary(t)
	b, err := lib.Load(writeFile(t, "legacy.unity3d", web.Build()))
	require.NoError(t, err)

	a, err := lib.GetAsset(b, 0)
	require.NoError(t, err)

	info, err := lib.AssetInfo(a)
	require.NoError(t, err)
	assert.Equal(t, uint32(9), info.Format)
	assert.True(t, info.BigEndian)
	assert.True(t, info.TypeTrees)

	objs, err := lib.Objects(a, b)
	require.NoError(t, err)
	require.Equal(t, 5, objs.Len())

	typ, err := lib.ObjectType(objs.At(2), a, b)
	require.NoError(t, err)
	assert.Equal(t, "GameObject", typ.String())
	lib.FreeString(typ)

	v, err := lib.DecodeObject(objs.At(2), a, b)
	require.NoError(t, err)
	assert.Equal(t, "go_2", v.(map[string]any)["m_Name"])
	lib.FreeObjectArray(objs)
}

func TestGetAssetOutOfRange(t *testing.T) {
	lib := newLibrary(t)
	b, err := lib.Load(writeFile(t, "b.unity3d", mixedBundle()))
	require.NoError(t, err)

	n, err := lib.NumAssets(b)
	require.NoError(t, err)

	_, err = lib.GetAsset(b, n)
	assert.ErrorIs(t, err, unitypack.ErrOutOfRange)
	_, err = lib.GetAsset(b, -1)
	assert.ErrorIs(t, err, unitypack.ErrOutOfRange)
}

func TestLoadTruncatedBlocksInfo(t *testing.T) {
	built := (&fixture.FS{
		Compression:     compress.LZ4,
		InfoCompression: compress.LZ4,
		Entries:         []fixture.Entry{{Name: "CAB-abc", Data: fixture.GameObjects(17, 42).Build()}},
	}).Build()
	data := built.Data[:built.HeaderSize+built.InfoSize/2]

	lib := newLibrary(t)
	_, err := lib.LoadReader(bytes.NewReader(data), int64(len(data)), "cut")
	assert.ErrorIs(t, err, unitypack.ErrTruncated)
	assert.Equal(t, 0, lib.Stats().Bundles)
}

func TestDestroyTwice(t *testing.T) {
	lib := newLibrary(t)
	b, err := lib.Load(writeFile(t, "b.unity3d", mixedBundle()))
	require.NoError(t, err)
	assert.Equal(t, 1, lib.Stats().Bundles)
	assert.Greater(t, lib.Stats().Bytes, int64(0))

	require.NoError(t, lib.Destroy(b))
	err = lib.Destroy(b)
	assert.ErrorIs(t, err, unitypack.ErrBadHandle)

	assert.Equal(t, unitypack.Stats{}, lib.Stats())
}

func TestNumAssetsCountsEveryEntry(t *testing.T) {
	lib := newLibrary(t)
	b, err := lib.Load(writeFile(t, "b.unity3d", mixedBundle()))
	require.NoError(t, err)

	s := observe(t, lib, b)
	assert.Equal(t, []string{"CAB-mixed", "CAB-mixed.resS", "CAB-old"}, s.Names)
	assert.Equal(t, []int{5, 0, 5}, s.Counts)
	assert.Equal(t, []string{"GameObject", "Transform", "GameObject", "Transform", "TextAsset"}, s.Types[0])
	assert.Empty(t, s.Types[1])
	assert.Equal(t, []int64{10, 12}, s.Filters[0])
	assert.Empty(t, s.Filters[1])
	assert.Equal(t, []int64{10, 12}, s.Filters[2])

	res, err := lib.GetAsset(b, 1)
	require.NoError(t, err)
	info, err := lib.AssetInfo(res)
	require.NoError(t, err)
	assert.True(t, info.Resource)
	assert.Equal(t, 300, info.Size)
}

func TestObjectsWithTypeMatchesObjectType(t *testing.T) {
	lib := newLibrary(t)
	b, err := lib.Load(writeFile(t, "b.unity3d", mixedBundle()))
	require.NoError(t, err)
	a, err := lib.GetAsset(b, 0)
	require.NoError(t, err)

	all, err := lib.Objects(a, b)
	require.NoError(t, err)
	defer lib.FreeObjectArray(all)

	for _, typeName := range []string{"GameObject", "Transform", "TextAsset", "Nothing"} {
		var want []unitypack.ObjectInfo
		for _, o := range all.Items() {
			typ, err := lib.ObjectType(o, a, b)
			require.NoError(t, err)
			if typ.String() == typeName {
				want = append(want, o)
			}
			lib.FreeString(typ)
		}

		got, err := lib.ObjectsWithType(a, b, typeName)
		require.NoError(t, err)
		if want == nil {
			assert.Equal(t, 0, got.Len(), typeName)
		} else {
			assert.Equal(t, want, got.Items(), typeName)
		}
		lib.FreeObjectArray(got)
	}
}

func TestLoadTwiceIsIdentical(t *testing.T) {
	lib := newLibrary(t)
	path := writeFile(t, "b.unity3d", mixedBundle())

	first, err := lib.Load(path)
	require.NoError(t, err)
	second, err := lib.Load(path)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	assert.Equal(t, observe(t, lib, first), observe(t, lib, second))
}

func TestUseAfterDestroy(t *testing.T) {
	lib := newLibrary(t)
	b, err := lib.Load(writeFile(t, "b.unity3d", mixedBundle()))
	require.NoError(t, err)
	a, err := lib.GetAsset(b, 0)
	require.NoError(t, err)
	objs, err := lib.Objects(a, b)
	require.NoError(t, err)
	o := objs.At(0)

	require.NoError(t, lib.Destroy(b))

	checks := map[string]error{}
	_, checks["NumAssets"] = lib.NumAssets(b)
	_, checks["GetAsset"] = lib.GetAsset(b, 0)
	_, checks["AssetName"] = lib.AssetName(a)
	_, checks["NumObjects"] = lib.NumObjects(a, b)
	_, checks["ObjectsWithType"] = lib.ObjectsWithType(a, b, "GameObject")
	_, checks["ObjectType"] = lib.ObjectType(o, a, b)
	_, checks["ObjectData"] = lib.ObjectData(o, a, b)
	_, checks["BundleInfo"] = lib.BundleInfo(b)
	_, checks["AssetInfo"] = lib.AssetInfo(a)
	_, checks["FS"] = lib.FS(b)
	checks["Destroy"] = lib.Destroy(b)

	for op, err := range checks {
		assert.ErrorIs(t, err, unitypack.ErrBadHandle, op)
	}

	// the array outlives the bundle and is still freed normally
	assert.Equal(t, int64(1), lib.Stats().Arrays)
	lib.FreeObjectArray(objs)
	assert.Equal(t, unitypack.Stats{}, lib.Stats())
}

func TestBadHandles(t *testing.T) {
	lib := newLibrary(t)
	other := newLibrary(t)
	path := writeFile(t, "b.unity3d", mixedBundle())

	b1, err := lib.Load(path)
	require.NoError(t, err)
	b2, err := lib.Load(path)
	require.NoError(t, err)
	foreign, err := other.Load(path)
	require.NoError(t, err)

	a1, err := lib.GetAsset(b1, 0)
	require.NoError(t, err)
	objs, err := lib.Objects(a1, b1)
	require.NoError(t, err)

	_, err = lib.NumAssets(unitypack.Bundle{})
	assert.ErrorIs(t, err, unitypack.ErrBadHandle, "null bundle")

	_, err = lib.AssetName(unitypack.Asset{})
	assert.ErrorIs(t, err, unitypack.ErrBadHandle, "null asset")

	_, err = lib.NumAssets(foreign)
	assert.ErrorIs(t, err, unitypack.ErrBadHandle, "foreign bundle")

	_, err = lib.NumObjects(a1, b2)
	assert.ErrorIs(t, err, unitypack.ErrBadHandle, "asset paired with the wrong bundle")

	stray := objs.At(0)
	stray.PathID = 999
	_, err = lib.ObjectType(stray, a1, b1)
	assert.ErrorIs(t, err, unitypack.ErrBadHandle, "object not in asset")

	old, err := lib.GetAsset(b1, 2)
	require.NoError(t, err)
	_, err = lib.ObjectType(objs.At(0), old, b1)
	assert.ErrorIs(t, err, unitypack.ErrBadHandle, "object from a different asset")

	// misuse leaves the bundles usable
	n, err := lib.NumObjects(a1, b1)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	lib.FreeObjectArray(objs)
}

func TestFreeMisuse(t *testing.T) {
	lib := newLibrary(t)
	other := newLibrary(t)
	b, err := lib.Load(writeFile(t, "b.unity3d", mixedBundle()))
	require.NoError(t, err)
	a, err := lib.GetAsset(b, 0)
	require.NoError(t, err)

	name, err := lib.AssetName(a)
	require.NoError(t, err)
	assert.Equal(t, int64(1), lib.Stats().Strings)

	other.FreeString(name)
	assert.Equal(t, int64(1), lib.Stats().Strings, "freeing through another library does nothing")

	lib.FreeString(name)
	lib.FreeString(name)
	lib.FreeString(nil)
	assert.Equal(t, int64(0), lib.Stats().Strings)
	assert.Equal(t, "", name.String())

	arr, err := lib.ObjectsWithType(a, b, "Transform")
	require.NoError(t, err)
	lib.FreeObjectArray(arr)
	lib.FreeObjectArray(arr)
	assert.Equal(t, int64(0), lib.Stats().Arrays)
	assert.Equal(t, 0, arr.Len())
	assert.Nil(t, arr.Items())
}

func TestLoadEveryPrefixFails(t *testing.T) {
	data := gameObjectBundle(compress.LZ4)
	lib := newLibrary(t)

	for n := 0; n < len(data); n++ {
		_, err := lib.LoadReader(bytes.NewReader(data[:n]), int64(n), "prefix")
		require.Error(t, err, "prefix %d", n)
		kind := unitypack.KindOf(err)
		assert.True(t, kind == unitypack.ErrTruncated || kind == unitypack.ErrCorruptStream, "prefix %d: %v", n, err)
	}
	assert.Equal(t, 0, lib.Stats().Bundles)
}

func TestLoadFlippedSignature(t *testing.T) {
	for name, data := range map[string][]byte{
		"unityfs":  gameObjectBundle(compress.LZ4),
		"unityweb": (&fixture.Legacy{}).Build(),
	} {
		data[0] ^= 0x01
		_, err := newLibrary(t).Load(writeFile(t, "flipped", data))
		assert.ErrorIs(t, err, unitypack.ErrUnsupportedFormat, name)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := newLibrary(t).Load(filepath.Join(t.TempDir(), "missing.unity3d"))
	assert.ErrorIs(t, err, unitypack.ErrIo)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestLoadCorruptAssetFailsWholeLoad(t *testing.T) {
	sf := fixture.GameObjects(17, 2)
	sf.Objects[1].PathID = sf.Objects[0].PathID

	fsb := fixture.FS{Entries: []fixture.Entry{
		{Name: "CAB-good", Data: fixture.GameObjects(17, 3).Build()},
		{Name: "CAB-dup", Data: sf.Build()},
	}}
	data := fsb.Build().Data
	lib := newLibrary(t)
	_, err := lib.LoadReader(bytes.NewReader(data), int64(len(data)), "dup")
	assert.ErrorIs(t, err, unitypack.ErrCorruptStream)
	assert.Equal(t, unitypack.Stats{}, lib.Stats())
}

func TestObjectDataAndFS(t *testing.T) {
	lib := newLibrary(t)
	b, err := lib.Load(writeFile(t, "b.unity3d", mixedBundle()))
	require.NoError(t, err)
	a, err := lib.GetAsset(b, 0)
	require.NoError(t, err)

	texts, err := lib.ObjectsWithType(a, b, "TextAsset")
	require.NoError(t, err)
	require.Equal(t, 1, texts.Len())
	o := texts.At(0)
	lib.FreeObjectArray(texts)

	data, err := lib.ObjectData(o, a, b)
	require.NoError(t, err)
	assert.Len(t, data, int(o.Size))

	v, err := lib.DecodeObject(o, a, b)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"m_Name": "readme", "m_Script": "hello bundle"}, v)

	fsys, err := lib.FS(b)
	require.NoError(t, err)
	res, err := fs.ReadFile(fsys, "CAB-mixed.resS")
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{7}, 300), res)

	info, err := lib.BundleInfo(b)
	require.NoError(t, err)
	assert.Equal(t, "b.unity3d", info.Name)
	assert.Equal(t, "UnityFS", info.Signature)
	assert.Equal(t, uint32(7), info.Version)
	assert.Equal(t, 3, info.Entries)

	ainfo, err := lib.AssetInfo(a)
	require.NoError(t, err)
	assert.Equal(t, uint32(22), ainfo.Format)
	assert.Equal(t, "Android", ainfo.Platform)
	assert.Equal(t, 5, ainfo.Objects)
}

func TestConcurrentReads(t *testing.T) {
	lib := newLibrary(t)
	b, err := lib.Load(writeFile(t, "b.unity3d", mixedBundle()))
	require.NoError(t, err)
	want := observe(t, lib, b)

	var wg sync.WaitGroup
	results := make([]snapshot, 8)
	errs := make([]error, len(results))
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = collect(lib, b)
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, want, got)
	}
}

func TestWithOodle(t *testing.T) {
	_, err := unitypack.New(unitypack.WithOodle(2))
	assert.Error(t, err, "LZ4 id is reserved")

	lib, err := unitypack.New(unitypack.WithOodle(9))
	require.NoError(t, err)
	assert.NotNil(t, lib)
}

func TestDefaultLibrary(t *testing.T) {
	b, err := unitypack.Load(writeFile(t, "b.unity3d", mixedBundle()))
	require.NoError(t, err)

	n, err := unitypack.NumAssets(b)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	a, err := unitypack.GetAsset(b, 2)
	require.NoError(t, err)
	name, err := unitypack.AssetName(a)
	require.NoError(t, err)
	assert.Equal(t, "CAB-old", name.String())
	unitypack.FreeString(name)

	count, err := unitypack.NumObjects(a, b)
	require.NoError(t, err)
	arr, err := unitypack.ObjectsWithType(a, b, "Transform")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	require.Equal(t, 2, arr.Len())

	typ, err := unitypack.ObjectType(arr.At(1), a, b)
	require.NoError(t, err)
	assert.Equal(t, "Transform", typ.String())
	unitypack.FreeString(typ)
	unitypack.FreeObjectArray(arr)

	require.NoError(t, unitypack.Destroy(b))
	assert.ErrorIs(t, unitypack.Destroy(b), unitypack.ErrBadHandle)
}
