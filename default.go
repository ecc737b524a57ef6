package unitypack

import "sync"

var (
	defaultOnce sync.Once
	defaultLib  *Library
)

// Default returns the process-wide library behind the package-level
// functions.
func Default() *Library {
	defaultOnce.Do(func() {
		// New only fails on a bad option
		defaultLib, _ = New()
	})
	return defaultLib
}

// Load parses the bundle at path into the default library.
func Load(path string) (Bundle, error) { return Default().Load(path) }

// Destroy releases a bundle of the default library.
func Destroy(b Bundle) error { return Default().Destroy(b) }

// NumAssets counts the directory entries of b.
func NumAssets(b Bundle) (int, error) { return Default().NumAssets(b) }

// GetAsset returns asset i of b.
func GetAsset(b Bundle, i int) (Asset, error) { return Default().GetAsset(b, i) }

// AssetName returns the name of a.
func AssetName(a Asset) (*OwnedString, error) { return Default().AssetName(a) }

// NumObjects counts the objects of a.
func NumObjects(a Asset, b Bundle) (int, error) { return Default().NumObjects(a, b) }

// ObjectsWithType filters the objects of a by root type name.
func ObjectsWithType(a Asset, b Bundle, typeName string) (*ObjectArray, error) {
	return Default().ObjectsWithType(a, b, typeName)
}

// ObjectType returns the root type name of o.
func ObjectType(o ObjectInfo, a Asset, b Bundle) (*OwnedString, error) {
	return Default().ObjectType(o, a, b)
}

// FreeString releases a string from the default library.
func FreeString(s *OwnedString) { Default().FreeString(s) }

// FreeObjectArray releases an array from the default library.
func FreeObjectArray(arr *ObjectArray) { Default().FreeObjectArray(arr) }
