package main

import (
	"fmt"
	"io"

	"github.com/jchantrell/unitypack"
)

// runList prints the asset count, then each asset's name and object count
// followed by the type of every object whose root type is typeName.
func runList(out io.Writer, lib *unitypack.Library, path, typeName string) error {
	b, err := lib.Load(path)
	if err != nil {
		return err
	}
	defer lib.Destroy(b)

	n, err := lib.NumAssets(b)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d assets\n", n)

	for i := 0; i < n; i++ {
		a, err := lib.GetAsset(b, i)
		if err != nil {
			return err
		}

		name, err := lib.AssetName(a)
		if err != nil {
			return err
		}
		count, err := lib.NumObjects(a, b)
		if err != nil {
			lib.FreeString(name)
			return err
		}
		fmt.Fprintf(out, "%s: %d objects\n", name, count)
		lib.FreeString(name)

		if err := listTypes(out, lib, a, b, typeName); err != nil {
			return err
		}
	}

	return nil
}

func listTypes(out io.Writer, lib *unitypack.Library, a unitypack.Asset, b unitypack.Bundle, typeName string) error {
	objs, err := lib.ObjectsWithType(a, b, typeName)
	if err != nil {
		return err
	}
	defer lib.FreeObjectArray(objs)

	for _, o := range objs.Items() {
		t, err := lib.ObjectType(o, a, b)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  %d %s\n", o.PathID, t)
		lib.FreeString(t)
	}
	return nil
}
