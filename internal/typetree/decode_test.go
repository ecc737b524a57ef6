package typetree_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/unitypack/internal/errs"
	"github.com/jchantrell/unitypack/internal/stream"
	"github.com/jchantrell/unitypack/internal/testutil/fixture"
	"github.com/jchantrell/unitypack/internal/typetree"
)

func tree(t *testing.T, f fixture.Field) *typetree.Node {
	t.Helper()
	n, err := typetree.ReadBlob(stream.FromBytes(fixture.BlobTree(le, 17, f), le), 17)
	require.NoError(t, err)
	return n
}

func TestDecodeGameObject(t *testing.T) {
	root := tree(t, fixture.GameObjectTree())
	payload := fixture.GameObjectPayload(le, "Player", 8, true)

	r := stream.FromBytes(payload, le)
	v, err := typetree.Decode(r, root)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"m_Name":     "Player",
		"m_Layer":    uint32(8),
		"m_IsActive": true,
	}, v)
	assert.Equal(t, int64(0), r.Remaining())
}

func TestDecodeTransform(t *testing.T) {
	root := tree(t, fixture.TransformTree())
	payload := fixture.TransformPayload(le, 1.5, -2, 0, 7, 9)

	v, err := typetree.Decode(stream.FromBytes(payload, le), root)
	require.NoError(t, err)

	fields := v.(map[string]any)
	assert.Equal(t, map[string]any{"x": float32(1.5), "y": float32(-2), "z": float32(0)}, fields["m_LocalPosition"])
	assert.Equal(t, []any{int64(7), int64(9)}, fields["m_Children"])
}

func TestDecodeBigEndian(t *testing.T) {
	be := binary.BigEndian
	root, err := typetree.ReadLegacy(stream.FromBytes(fixture.LegacyTree(be, fixture.TextAssetTree()), be))
	require.NoError(t, err)

	v, err := typetree.Decode(stream.FromBytes(fixture.TextAssetPayload(be, "notes", "abc"), be), root)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"m_Name": "notes", "m_Script": "abc"}, v)
}

func TestDecodeByteArray(t *testing.T) {
	root := &typetree.Node{Type: "Blob", Name: "Base", Children: []*typetree.Node{
		{Type: "vector", Name: "m_Data", Children: []*typetree.Node{
			{Type: "Array", Name: "Array", IsArray: true, MetaFlag: typetree.FlagAlignBytes, Children: []*typetree.Node{
				{Type: "int", Name: "size", Size: 4},
				{Type: "UInt8", Name: "data", Size: 1},
			}},
		}},
		{Type: "int", Name: "m_After", Size: 4},
	}}
	payload := []byte{3, 0, 0, 0, 0xAA, 0xBB, 0xCC, 0, 42, 0, 0, 0}

	v, err := typetree.Decode(stream.FromBytes(payload, le), root)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"m_Data": []byte{0xAA, 0xBB, 0xCC}, "m_After": int32(42)}, v)
}

func TestDecodeErrors(t *testing.T) {
	transform := tree(t, fixture.TransformTree())

	t.Run("truncated payload", func(t *testing.T) {
		payload := fixture.TransformPayload(le, 1, 2, 3, 4)
		_, err := typetree.Decode(stream.FromBytes(payload[:len(payload)-2], le), transform)
		assert.Equal(t, errs.Truncated, errs.KindOf(err))
	})

	t.Run("array longer than data", func(t *testing.T) {
		payload := fixture.TransformPayload(le, 1, 2, 3)
		le.PutUint32(payload[12:], 1000)
		_, err := typetree.Decode(stream.FromBytes(payload, le), transform)
		assert.Equal(t, errs.Truncated, errs.KindOf(err))
	})

	t.Run("negative array length", func(t *testing.T) {
		payload := fixture.TransformPayload(le, 1, 2, 3)
		le.PutUint32(payload[12:], 0xFFFFFFFF)
		_, err := typetree.Decode(stream.FromBytes(payload, le), transform)
		assert.Equal(t, errs.CorruptStream, errs.KindOf(err))
	})
}
