package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/jchantrell/unitypack"
	"github.com/jchantrell/unitypack/internal/export"
	"github.com/jchantrell/unitypack/internal/utils"
	"github.com/spf13/cobra"
)

var (
	outputDir      string
	extractObjects bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <bundle> [entry]...",
	Short: "Write bundle directory entries to disk",
	Long: `Extract copies directory entries (serialized files and resources) out of a
bundle. With no entry names every entry is written.

With --objects, the payload of every object is also written to
<entry>.objects/<path id>.<type>.bin.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := newLibrary(cfg)
		if err != nil {
			return err
		}

		showProgress := !(noProgress || cfg.LogFormat == "json" || cfg.LogLevel == "debug")
		return runExtract(cmd.OutOrStdout(), lib, args[0], args[1:], outputDir, extractObjects, showProgress)
	},
}

func runExtract(out io.Writer, lib *unitypack.Library, path string, entries []string, dir string, objects, showProgress bool) error {
	b, err := lib.Load(path)
	if err != nil {
		return err
	}
	defer lib.Destroy(b)

	source, err := lib.FS(b)
	if err != nil {
		return err
	}
	exporter := export.NewExporter(source, dir)

	n, err := lib.NumAssets(b)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		if entries, err = exporter.Entries(); err != nil {
			return err
		}
	}

	progress := utils.NewProgress(len(entries), showProgress)
	written, err := exporter.ExportFiles(entries, func(current, _ int, name string) {
		progress.Update(current, name)
	})
	progress.Finish()
	if err != nil {
		return err
	}

	var objectCount int
	if objects {
		if objectCount, err = exportObjects(lib, b, n, exporter); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "Entries written: %d\n", len(written))
	if objects {
		fmt.Fprintf(out, "Objects written: %s\n", utils.Number(int64(objectCount)))
	}
	fmt.Fprintf(out, "Output: %s\n", dir)
	return nil
}

func exportObjects(lib *unitypack.Library, b unitypack.Bundle, n int, exporter *export.Exporter) (int, error) {
	var count int
	for i := 0; i < n; i++ {
		a, err := lib.GetAsset(b, i)
		if err != nil {
			return count, err
		}
		info, err := lib.AssetInfo(a)
		if err != nil {
			return count, err
		}
		if info.Resource {
			continue
		}

		objs, err := lib.Objects(a, b)
		if err != nil {
			return count, err
		}
		for _, o := range objs.Items() {
			if err := exportObject(lib, o, a, b, info.Name, exporter); err != nil {
				lib.FreeObjectArray(objs)
				return count, err
			}
			count++
		}
		lib.FreeObjectArray(objs)

		slog.Debug("Exported objects", "asset", info.Name, "count", info.Objects)
	}
	return count, nil
}

func exportObject(lib *unitypack.Library, o unitypack.ObjectInfo, a unitypack.Asset, b unitypack.Bundle, assetName string, exporter *export.Exporter) error {
	data, err := lib.ObjectData(o, a, b)
	if err != nil {
		return err
	}
	t, err := lib.ObjectType(o, a, b)
	if err != nil {
		return err
	}
	defer lib.FreeString(t)

	_, err = exporter.ExportObject(export.Object{
		Asset:    assetName,
		PathID:   o.PathID,
		TypeName: t.String(),
		Data:     data,
	})
	return err
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().StringVarP(&outputDir, "output", "o", "extracted", "output directory")
	extractCmd.Flags().BoolVar(&extractObjects, "objects", false, "also write each object payload")
}
