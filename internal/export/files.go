package export

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jchantrell/unitypack/internal/utils"
)

// Exporter writes bundle contents to disk
type Exporter struct {
	source    fs.FS
	outputDir string
}

// NewExporter creates an exporter reading directory entries from source
func NewExporter(source fs.FS, outputDir string) *Exporter {
	return &Exporter{
		source:    source,
		outputDir: outputDir,
	}
}

// ProgressCallback is called to report export progress
type ProgressCallback func(current int, total int, description string)

// Object is one serialized object payload
type Object struct {
	Asset    string
	PathID   int64
	TypeName string
	Data     []byte
}

// ExportFiles copies the named directory entries into the output
// directory. With no names every entry is written.
func (e *Exporter) ExportFiles(names []string, progressCallback ProgressCallback) ([]string, error) {
	if len(names) == 0 {
		var err error
		if names, err = e.Entries(); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(e.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	written := make([]string, 0, len(names))
	for i, name := range names {
		data, err := fs.ReadFile(e.source, name)
		if err != nil {
			return written, fmt.Errorf("loading entry %s: %w", name, err)
		}

		outputPath := filepath.Join(e.outputDir, utils.SafeName(name))
		if err := os.WriteFile(outputPath, data, 0644); err != nil {
			return written, fmt.Errorf("writing file %s: %w", outputPath, err)
		}
		written = append(written, outputPath)

		slog.Debug("Copied entry", "name", name, "output", outputPath, "size", len(data))

		if progressCallback != nil {
			progressCallback(i+1, len(names), name)
		}
	}

	return written, nil
}

// Entries lists every file in the source. Entry names containing slashes
// appear as nested files, and are returned with their full path.
func (e *Exporter) Entries() ([]string, error) {
	var names []string
	err := fs.WalkDir(e.source, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	return names, nil
}

// ExportObject writes obj to <asset>.objects/<path id>.<type>.bin
func (e *Exporter) ExportObject(obj Object) (string, error) {
	dir := filepath.Join(e.outputDir, utils.SafeName(obj.Asset)+".objects")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating object directory: %w", err)
	}

	outputPath := filepath.Join(dir, ObjectFileName(obj.PathID, obj.TypeName))
	if err := os.WriteFile(outputPath, obj.Data, 0644); err != nil {
		return "", fmt.Errorf("writing object %d: %w", obj.PathID, err)
	}

	return outputPath, nil
}

// ObjectFileName names an object payload file, e.g. "-3.text_asset.bin"
func ObjectFileName(pathID int64, typeName string) string {
	kind := utils.ToSnakeCase(typeName)
	if kind == "" {
		kind = "unknown"
	}
	return strconv.FormatInt(pathID, 10) + "." + utils.SafeName(kind) + ".bin"
}
