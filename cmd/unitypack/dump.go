package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/jchantrell/unitypack"
	"github.com/spf13/cobra"
)

var (
	dumpAll    bool
	dumpPretty bool
)

var dumpCmd = &cobra.Command{
	Use:   "dump <bundle>",
	Short: "Decode objects with their type trees and print them as JSON",
	Long: `Dump decodes every object whose root type matches the type filter
(GameObject unless --type or --all is given) and prints one JSON document per
object. Assets serialized without type trees cannot be decoded.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := newLibrary(cfg)
		if err != nil {
			return err
		}

		typeName := cfg.TypeFilter
		if dumpAll {
			typeName = ""
		}
		return runDump(cmd.OutOrStdout(), lib, args[0], typeName, dumpPretty)
	},
}

// dumpedObject is one line of dump output
type dumpedObject struct {
	Asset  string `json:"asset"`
	PathID int64  `json:"path_id"`
	Class  int32  `json:"class_id"`
	Type   string `json:"type"`
	Value  any    `json:"value"`
}

// runDump writes the decoded objects of path to out. An empty typeName
// selects every object.
func runDump(out io.Writer, lib *unitypack.Library, path, typeName string, pretty bool) error {
	b, err := lib.Load(path)
	if err != nil {
		return err
	}
	defer lib.Destroy(b)

	enc := json.NewEncoder(out)
	if pretty {
		enc.SetIndent("", "  ")
	}

	n, err := lib.NumAssets(b)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		a, err := lib.GetAsset(b, i)
		if err != nil {
			return err
		}
		if err := dumpAsset(enc, lib, a, b, typeName); err != nil {
			return err
		}
	}
	return nil
}

func dumpAsset(enc *json.Encoder, lib *unitypack.Library, a unitypack.Asset, b unitypack.Bundle, typeName string) error {
	info, err := lib.AssetInfo(a)
	if err != nil {
		return err
	}
	if info.Resource {
		return nil
	}

	var objs *unitypack.ObjectArray
	if typeName == "" {
		objs, err = lib.Objects(a, b)
	} else {
		objs, err = lib.ObjectsWithType(a, b, typeName)
	}
	if err != nil {
		return err
	}
	defer lib.FreeObjectArray(objs)

	for _, o := range objs.Items() {
		t, err := lib.ObjectType(o, a, b)
		if err != nil {
			return err
		}
		name := t.String()
		lib.FreeString(t)

		v, err := lib.DecodeObject(o, a, b)
		if err != nil {
			return fmt.Errorf("%s: %w", info.Name, err)
		}

		if err := enc.Encode(dumpedObject{
			Asset:  info.Name,
			PathID: o.PathID,
			Class:  o.ClassID,
			Type:   name,
			Value:  jsonValue(v),
		}); err != nil {
			return fmt.Errorf("encoding object %d: %w", o.PathID, err)
		}
	}
	return nil
}

// jsonValue replaces floats JSON cannot carry (NaN, ±Inf) with strings
func jsonValue(v any) any {
	switch x := v.(type) {
	case float32:
		return jsonFloat(float64(x), v)
	case float64:
		return jsonFloat(x, v)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = jsonValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = jsonValue(e)
		}
		return out
	}
	return v
}

func jsonFloat(f float64, v any) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Sprint(f)
	}
	return v
}

func init() {
	rootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().BoolVar(&dumpAll, "all", false, "dump every object regardless of type")
	dumpCmd.Flags().BoolVar(&dumpPretty, "pretty", false, "indent JSON output")
}
