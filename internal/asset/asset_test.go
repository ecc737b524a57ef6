package asset_test

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/unitypack/internal/asset"
	"github.com/jchantrell/unitypack/internal/errs"
	"github.com/jchantrell/unitypack/internal/testutil/fixture"
)

var allFormats = []uint32{5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22}

func pathIDs(objs []asset.ObjectInfo) []int64 {
	ids := []int64{}
	for _, o := range objs {
		ids = append(ids, o.PathID)
	}
	return ids
}

func TestParseFormats(t *testing.T) {
	for _, format := range allFormats {
		a, err := asset.Parse("CAB-test", fixture.GameObjects(format, 3).Build())
		require.NoError(t, err, "format %d", format)

		assert.Equal(t, format, a.Header.Format)
		assert.Equal(t, format < 9, a.Header.BigEndian, "format %d", format)
		assert.Equal(t, "CAB-test", a.Name)
		require.Len(t, a.Types, 1, "format %d", format)
		assert.Equal(t, "GameObject", a.Types[0].Name())
		require.Len(t, a.Objects, 3, "format %d", format)
		assert.Equal(t, []int64{1, 2, 3}, pathIDs(a.Objects))
		assert.Equal(t, int32(1), a.Objects[0].ClassID, "format %d", format)

		if format >= 7 {
			assert.Equal(t, "2019.4.40f1", a.UnityVersion)
		} else {
			assert.Empty(t, a.UnityVersion)
		}
		if format >= 8 {
			assert.Equal(t, "StandaloneWindows64", asset.PlatformName(a.Platform))
		}

		v, err := a.DecodeObject(a.Objects[1])
		require.NoError(t, err, "format %d", format)
		assert.Equal(t, map[string]any{"m_Name": "go_1", "m_Layer": uint32(1), "m_IsActive": false}, v, "format %d", format)
	}
}

func TestObjectsWithType(t *testing.T) {
	for _, format := range []uint32{8, 9, 15, 17, 22} {
		a, err := asset.Parse("mixed", fixture.Mixed(format).Build())
		require.NoError(t, err, "format %d", format)

		assert.Equal(t, []int64{10, 12}, pathIDs(a.ObjectsWithType("GameObject")))
		assert.Equal(t, []int64{11, 13}, pathIDs(a.ObjectsWithType("Transform")))
		assert.Equal(t, []int64{14}, pathIDs(a.ObjectsWithType("TextAsset")))
		assert.Empty(t, a.ObjectsWithType("MonoBehaviour"))
		assert.Empty(t, a.ObjectsWithType("gameobject"), "names are case sensitive")

		assert.Equal(t, map[string]int{"GameObject": 2, "Transform": 2, "TextAsset": 1}, a.CountByType())

		name, err := a.TypeName(a.Objects[4])
		require.NoError(t, err)
		assert.Equal(t, "TextAsset", name)
	}
}

func TestObjectLookupAndData(t *testing.T) {
	sf := fixture.Mixed(17)
	a, err := asset.Parse("mixed", sf.Build())
	require.NoError(t, err)

	o, ok := a.Object(13)
	require.True(t, ok)
	assert.Equal(t, int32(4), o.ClassID)

	data, err := a.ObjectData(o)
	require.NoError(t, err)
	assert.Equal(t, sf.Objects[3].Data, data)

	data[0] ^= 0xFF
	again, err := a.ObjectData(o)
	require.NoError(t, err)
	assert.Equal(t, sf.Objects[3].Data, again, "callers get a copy")

	_, ok = a.Object(99)
	assert.False(t, ok)

	text, ok := a.Object(14)
	require.True(t, ok)
	v, err := a.DecodeObject(text)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"m_Name": "readme", "m_Script": "hello bundle"}, v)

	o.Size = uint32(a.Size())
	_, err = a.ObjectData(o)
	assert.Equal(t, errs.Truncated, errs.KindOf(err))
}

func TestObjectExtentOverflow(t *testing.T) {
	sf := fixture.GameObjects(22, 1)
	data := sf.Build()

	// path id 1 at offset 0 followed by its size
	record := make([]byte, 20)
	binary.LittleEndian.PutUint64(record, 1)
	binary.LittleEndian.PutUint32(record[16:], uint32(len(sf.Objects[0].Data)))
	at := bytes.Index(data, record)
	require.GreaterOrEqual(t, at, 0)

	for _, offset := range []uint64{math.MaxInt64 - 1<<20, math.MaxInt64, 1 << 63} {
		patched := bytes.Clone(data)
		binary.LittleEndian.PutUint64(patched[at+8:], offset)

		_, err := asset.Parse("overflow", patched)
		require.Error(t, err, "offset %d", offset)
		assert.Equal(t, errs.Truncated, errs.KindOf(err), "offset %d", offset)
	}

	a, err := asset.Parse("ok", data)
	require.NoError(t, err)
	o := a.Objects[0]
	o.Offset = math.MaxInt64 - 2

	_, err = a.ObjectData(o)
	assert.Equal(t, errs.Truncated, errs.KindOf(err))
	_, err = a.DecodeObject(o)
	assert.Equal(t, errs.Truncated, errs.KindOf(err))
}

func TestDestroyedFlag(t *testing.T) {
	for _, format := range []uint32{5, 9, 10, 11, 12} {
		sf := fixture.GameObjects(format, 2)
		sf.Objects[1].Destroyed = true

		a, err := asset.Parse("destroyed", sf.Build())
		require.NoError(t, err, "format %d", format)
		assert.False(t, a.Objects[0].IsDestroyed, "format %d", format)
		assert.Equal(t, format < 11, a.Objects[1].IsDestroyed, "format %d", format)
	}
}

func TestObjectsSortedByPathID(t *testing.T) {
	sf := fixture.GameObjects(17, 0)
	for _, id := range []int64{30, -5, 12} {
		sf.Objects = append(sf.Objects, fixture.Object{PathID: id, Data: fixture.GameObjectPayload(binary.LittleEndian, "x", 0, true)})
	}
	a, err := asset.Parse("sorted", sf.Build())
	require.NoError(t, err)
	assert.Equal(t, []int64{-5, 12, 30}, pathIDs(a.Objects))
}

func TestDuplicatePathID(t *testing.T) {
	sf := fixture.GameObjects(17, 2)
	sf.Objects[1].PathID = sf.Objects[0].PathID

	_, err := asset.Parse("dup", sf.Build())
	require.Error(t, err)
	assert.Equal(t, errs.CorruptStream, errs.KindOf(err))
}

func TestDanglingTypeID(t *testing.T) {
	for _, format := range []uint32{9, 15, 17, 22} {
		sf := fixture.GameObjects(format, 2)
		sf.Objects[1].TypeIndex = 5

		_, err := asset.Parse("dangling", sf.Build())
		require.Error(t, err, "format %d", format)
		assert.Equal(t, errs.CorruptStream, errs.KindOf(err), "format %d", format)
	}
}

func TestParseUnsupportedFormat(t *testing.T) {
	for _, format := range []uint32{4, 23, 1000} {
		data := fixture.GameObjects(17, 1).Build()
		binary.BigEndian.PutUint32(data[8:], format)

		_, err := asset.Parse("bad", data)
		assert.Equal(t, errs.UnsupportedFormat, errs.KindOf(err), "format %d", format)
	}
}

func TestParseEveryPrefixFails(t *testing.T) {
	for _, format := range []uint32{8, 17, 22} {
		data := fixture.GameObjects(format, 2).Build()
		for n := 0; n < len(data); n++ {
			_, err := asset.Parse("prefix", data[:n])
			require.Error(t, err, "format %d prefix %d", format, n)
			assert.Contains(t, []errs.Kind{errs.Truncated, errs.CorruptStream}, errs.KindOf(err), "format %d prefix %d: %v", format, n, err)
		}
	}
}

func TestWithoutTypeTrees(t *testing.T) {
	sf := fixture.GameObjects(17, 2)
	sf.NoTypeTrees = true

	a, err := asset.Parse("stripped", sf.Build())
	require.NoError(t, err)
	assert.False(t, a.TypeTreeEnabled)
	assert.Nil(t, a.Types[0].Tree)
	assert.Equal(t, "GameObject", a.Types[0].Name(), "falls back to the class table")
	assert.Len(t, a.ObjectsWithType("GameObject"), 2)

	_, err = a.DecodeObject(a.Objects[0])
	assert.Equal(t, errs.UnsupportedFormat, errs.KindOf(err))
}

func TestTailSections(t *testing.T) {
	guid := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}

	for _, format := range []uint32{21, 22} {
		sf := fixture.GameObjects(format, 1)
		sf.Scripts = []fixture.ScriptRef{{FileIndex: 1, PathID: 11500000}}
		sf.Externals = []fixture.External{{GUID: guid, Type: 3, Path: "library/unity default resources"}}
		sf.RefTypes = []fixture.TypeEntry{{
			ClassID:     asset.ClassMonoBehaviour,
			ScriptIndex: 0,
			Tree:        fixture.GameObjectTree(),
			ClassName:   "Inventory",
			Namespace:   "Game.Items",
			Assembly:    "Assembly-CSharp.dll",
		}}
		sf.UserInfo = "built by tests"

		a, err := asset.Parse("tails", sf.Build())
		require.NoError(t, err, "format %d", format)

		assert.Equal(t, []asset.ScriptRef{{FileIndex: 1, PathID: 11500000}}, a.Scripts)
		require.Len(t, a.Externals, 1)
		assert.Equal(t, guid, a.Externals[0].GUID)
		assert.Equal(t, "library/unity default resources", a.Externals[0].Path)
		require.Len(t, a.RefTypes, 1)
		assert.Equal(t, "Inventory", a.RefTypes[0].ClassName)
		assert.Equal(t, "Game.Items", a.RefTypes[0].Namespace)
		assert.Equal(t, "Assembly-CSharp.dll", a.RefTypes[0].AssemblyName)
		assert.Equal(t, "built by tests", a.UserInfo)
	}
}

func TestLegacyTailSections(t *testing.T) {
	sf := fixture.GameObjects(11, 1)
	sf.Scripts = []fixture.ScriptRef{{FileIndex: 0, PathID: 42}}
	sf.Externals = []fixture.External{{Path: "sharedassets0.assets"}}

	a, err := asset.Parse("tails", sf.Build())
	require.NoError(t, err)
	assert.Equal(t, int64(42), a.Scripts[0].PathID)
	assert.Equal(t, "sharedassets0.assets", a.Externals[0].Path)
}

func TestResources(t *testing.T) {
	assert.True(t, asset.IsResource("CAB-1234.resS"))
	assert.True(t, asset.IsResource("CAB-1234.resource"))
	assert.False(t, asset.IsResource("CAB-1234"))
	assert.False(t, asset.IsResource("CAB-1234.resS.bak"))

	a := asset.NewResource("CAB-1234.resS", []byte{1, 2, 3})
	assert.True(t, a.Resource)
	assert.Empty(t, a.Objects)
	assert.Empty(t, a.ObjectsWithType("GameObject"))
	assert.Equal(t, 3, a.Size())
}

func TestPlatformName(t *testing.T) {
	assert.Equal(t, "Android", asset.PlatformName(13))
	assert.Equal(t, "Unknown(99)", asset.PlatformName(99))
}
