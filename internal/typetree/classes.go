package typetree

import "fmt"

// Built-in class IDs. The names are what Unity writes as the root type of
// each class's type tree.
var classNames = map[int32]string{
	0:   "Object",
	1:   "GameObject",
	2:   "Component",
	3:   "LevelGameManager",
	4:   "Transform",
	5:   "TimeManager",
	6:   "GlobalGameManager",
	8:   "Behaviour",
	9:   "GameManager",
	11:  "AudioManager",
	13:  "InputManager",
	18:  "EditorExtension",
	19:  "Physics2DSettings",
	20:  "Camera",
	21:  "Material",
	23:  "MeshRenderer",
	25:  "Renderer",
	27:  "Texture",
	28:  "Texture2D",
	29:  "OcclusionCullingSettings",
	30:  "GraphicsSettings",
	33:  "MeshFilter",
	41:  "OcclusionPortal",
	43:  "Mesh",
	45:  "Skybox",
	47:  "QualitySettings",
	48:  "Shader",
	49:  "TextAsset",
	50:  "Rigidbody2D",
	53:  "Collider2D",
	54:  "Rigidbody",
	55:  "PhysicsManager",
	56:  "Collider",
	57:  "Joint",
	58:  "CircleCollider2D",
	59:  "HingeJoint",
	60:  "PolygonCollider2D",
	61:  "BoxCollider2D",
	62:  "PhysicsMaterial2D",
	64:  "MeshCollider",
	65:  "BoxCollider",
	68:  "EdgeCollider2D",
	72:  "ComputeShader",
	74:  "AnimationClip",
	75:  "ConstantForce",
	78:  "TagManager",
	81:  "AudioListener",
	82:  "AudioSource",
	83:  "AudioClip",
	84:  "RenderTexture",
	86:  "CustomRenderTexture",
	89:  "Cubemap",
	90:  "Avatar",
	91:  "AnimatorController",
	93:  "RuntimeAnimatorController",
	94:  "ScriptMapper",
	95:  "Animator",
	96:  "TrailRenderer",
	98:  "DelayedCallManager",
	102: "TextMesh",
	104: "RenderSettings",
	108: "Light",
	110: "BaseAnimationTrack",
	111: "Animation",
	114: "MonoBehaviour",
	115: "MonoScript",
	116: "MonoManager",
	117: "Texture3D",
	119: "Projector",
	120: "LineRenderer",
	121: "Flare",
	122: "Halo",
	123: "LensFlare",
	124: "FlareLayer",
	126: "NavMeshProjectSettings",
	128: "Font",
	129: "PlayerSettings",
	130: "NamedObject",
	134: "PhysicMaterial",
	135: "SphereCollider",
	136: "CapsuleCollider",
	137: "SkinnedMeshRenderer",
	138: "FixedJoint",
	141: "BuildSettings",
	142: "AssetBundle",
	143: "CharacterController",
	144: "CharacterJoint",
	145: "SpringJoint",
	146: "WheelCollider",
	147: "ResourceManager",
	150: "PreloadData",
	153: "ConfigurableJoint",
	154: "TerrainCollider",
	156: "TerrainData",
	157: "LightmapSettings",
	158: "WebCamTexture",
	159: "EditorSettings",
	162: "EditorUserSettings",
	164: "AudioReverbFilter",
	165: "AudioHighPassFilter",
	166: "AudioChorusFilter",
	167: "AudioReverbZone",
	168: "AudioEchoFilter",
	169: "AudioLowPassFilter",
	170: "AudioDistortionFilter",
	171: "SparseTexture",
	180: "AudioBehaviour",
	181: "AudioFilter",
	182: "WindZone",
	183: "Cloth",
	187: "Texture2DArray",
	188: "CubemapArray",
	191: "OffMeshLink",
	192: "OcclusionArea",
	193: "Tree",
	195: "NavMeshAgent",
	196: "NavMeshSettings",
	198: "ParticleSystem",
	199: "ParticleSystemRenderer",
	200: "ShaderVariantCollection",
	205: "LODGroup",
	206: "BlendTree",
	207: "Motion",
	208: "NavMeshObstacle",
	210: "SortingGroup",
	212: "SpriteRenderer",
	213: "Sprite",
	214: "CachedSpriteAtlas",
	215: "ReflectionProbe",
	218: "Terrain",
	220: "LightProbeGroup",
	221: "AnimatorOverrideController",
	222: "CanvasRenderer",
	223: "Canvas",
	224: "RectTransform",
	225: "CanvasGroup",
	226: "BillboardAsset",
	227: "BillboardRenderer",
	228: "SpeedTreeWindAsset",
	229: "AnchoredJoint2D",
	230: "Joint2D",
	231: "SpringJoint2D",
	232: "DistanceJoint2D",
	233: "HingeJoint2D",
	234: "SliderJoint2D",
	235: "WheelJoint2D",
	238: "NavMeshData",
	240: "AudioMixer",
	241: "AudioMixerController",
	243: "AudioMixerGroupController",
	244: "AudioMixerEffectController",
	245: "AudioMixerSnapshotController",
	246: "PhysicsUpdateBehaviour2D",
	247: "ConstantForce2D",
	248: "Effector2D",
	249: "AreaEffector2D",
	250: "PointEffector2D",
	251: "PlatformEffector2D",
	252: "SurfaceEffector2D",
	258: "LightProbes",
	271: "SampleClip",
	272: "AudioMixerSnapshot",
	273: "AudioMixerGroup",
	290: "AssetBundleManifest",
	300: "RuntimeInitializeOnLoadManager",
	310: "UnityConnectSettings",
	319: "AvatarMask",
	328: "VideoPlayer",
	329: "VideoClip",
	363: "OcclusionCullingData",

	687078895: "SpriteAtlas",
}

// ClassName returns the Unity class name for a class ID.
func ClassName(classID int32) (string, bool) {
	name, ok := classNames[classID]
	return name, ok
}

// ClassNameOrID returns the class name, or a placeholder naming the ID
// when the class is unknown.
func ClassNameOrID(classID int32) string {
	if name, ok := classNames[classID]; ok {
		return name
	}
	return fmt.Sprintf("<class %d>", classID)
}
