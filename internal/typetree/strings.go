package typetree

import (
	"bytes"
	"sync"
)

// Strings shared by every serialized file. Blob type trees refer to them by
// their byte offset in the NUL-joined table, so the order here is fixed.
var commonStringList = []string{
	"AABB",
	"AnimationClip",
	"AnimationCurve",
	"AnimationState",
	"Array",
	"Base",
	"BitField",
	"bitset",
	"bool",
	"char",
	"ColorRGBA",
	"Component",
	"data",
	"deque",
	"double",
	"dynamic_array",
	"FastPropertyName",
	"first",
	"float",
	"Font",
	"GameObject",
	"Generic Mono",
	"GradientNEW",
	"GUID",
	"GUIStyle",
	"int",
	"list",
	"long long",
	"map",
	"Matrix4x4f",
	"MdFour",
	"MonoBehaviour",
	"MonoScript",
	"m_ByteSize",
	"m_Curve",
	"m_EditorClassIdentifier",
	"m_EditorHideFlags",
	"m_Enabled",
	"m_ExtensionPtr",
	"m_GameObject",
	"m_Index",
	"m_IsArray",
	"m_IsStatic",
	"m_MetaFlag",
	"m_Name",
	"m_ObjectHideFlags",
	"m_PrefabInternal",
	"m_PrefabParentObject",
	"m_Script",
	"m_StaticEditorFlags",
	"m_Type",
	"m_Version",
	"Object",
	"pair",
	"PPtr<Component>",
	"PPtr<GameObject>",
	"PPtr<Material>",
	"PPtr<MonoBehaviour>",
	"PPtr<MonoScript>",
	"PPtr<Object>",
	"PPtr<Prefab>",
	"PPtr<Sprite>",
	"PPtr<TextAsset>",
	"PPtr<Texture>",
	"PPtr<Texture2D>",
	"PPtr<Transform>",
	"Prefab",
	"Quaternionf",
	"Rectf",
	"RectInt",
	"RectOffset",
	"second",
	"set",
	"short",
	"size",
	"SInt16",
	"SInt32",
	"SInt64",
	"SInt8",
	"staticvector",
	"string",
	"TextAsset",
	"TextMesh",
	"Texture",
	"Texture2D",
	"Transform",
	"TypelessData",
	"UInt16",
	"UInt32",
	"UInt64",
	"UInt8",
	"unsigned int",
	"unsigned long long",
	"unsigned short",
	"vector",
	"Vector2f",
	"Vector3f",
	"Vector4f",
	"m_ScriptingClassIdentifier",
	"Gradient",
	"Type*",
	"int2_storage",
	"int3_storage",
	"BoundsInt",
	"m_CorrespondingSourceObject",
	"m_PrefabInstance",
	"m_PrefabAsset",
	"FileSize",
	"Hash128",
	"RenderingLayerMask",
}

type commonTable struct {
	blob     []byte
	byOffset map[uint32]string
	offsetOf map[string]uint32
}

var (
	commonOnce sync.Once
	common     *commonTable
)

func commonStrings() *commonTable {
	commonOnce.Do(func() {
		t := &commonTable{
			byOffset: make(map[uint32]string, len(commonStringList)),
			offsetOf: make(map[string]uint32, len(commonStringList)),
		}
		var buf bytes.Buffer
		for _, s := range commonStringList {
			off := uint32(buf.Len())
			t.byOffset[off] = s
			t.offsetOf[s] = off
			buf.WriteString(s)
			buf.WriteByte(0)
		}
		t.blob = buf.Bytes()
		common = t
	})
	return common
}

// CommonString returns the shared string starting at off.
func CommonString(off uint32) (string, bool) {
	s, ok := commonStrings().byOffset[off]
	return s, ok
}

// CommonStringOffset returns the offset of s in the shared table.
func CommonStringOffset(s string) (uint32, bool) {
	off, ok := commonStrings().offsetOf[s]
	return off, ok
}

// CommonStringsBlob returns the NUL-joined shared table. Callers must not
// modify it.
func CommonStringsBlob() []byte {
	return commonStrings().blob
}
