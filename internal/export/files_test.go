package export

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSource() fstest.MapFS {
	return fstest.MapFS{
		"CAB-abc":      {Data: []byte("serialized")},
		"CAB-abc.resS": {Data: []byte("resource bytes")},
		"odd:name":     {Data: []byte("x")},
	}
}

func TestExportFilesAll(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")

	var progress []string
	written, err := NewExporter(testSource(), out).ExportFiles(nil, func(current, total int, name string) {
		assert.Equal(t, 3, total)
		progress = append(progress, name)
	})
	require.NoError(t, err)
	assert.Len(t, written, 3)
	assert.Equal(t, []string{"CAB-abc", "CAB-abc.resS", "odd:name"}, progress)

	data, err := os.ReadFile(filepath.Join(out, "CAB-abc.resS"))
	require.NoError(t, err)
	assert.Equal(t, "resource bytes", string(data))

	_, err = os.Stat(filepath.Join(out, "odd_name"))
	assert.NoError(t, err)
}

func TestExportFilesNested(t *testing.T) {
	out := t.TempDir()
	source := fstest.MapFS{
		"archive:/CAB-abc/CAB-abc":      {Data: []byte("serialized")},
		"archive:/CAB-abc/CAB-abc.resS": {Data: []byte("resource bytes")},
		"top":                           {Data: []byte("t")},
	}
	exporter := NewExporter(source, out)

	names, err := exporter.Entries()
	require.NoError(t, err)
	assert.Equal(t, []string{"archive:/CAB-abc/CAB-abc", "archive:/CAB-abc/CAB-abc.resS", "top"}, names)

	var totals []int
	written, err := exporter.ExportFiles(nil, func(_, total int, _ string) {
		totals = append(totals, total)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(out, "archive__CAB-abc_CAB-abc"),
		filepath.Join(out, "archive__CAB-abc_CAB-abc.resS"),
		filepath.Join(out, "top"),
	}, written)
	assert.Equal(t, []int{3, 3, 3}, totals)

	data, err := os.ReadFile(filepath.Join(out, "archive__CAB-abc_CAB-abc.resS"))
	require.NoError(t, err)
	assert.Equal(t, "resource bytes", string(data))
}

func TestExportFilesSelected(t *testing.T) {
	out := t.TempDir()

	written, err := NewExporter(testSource(), out).ExportFiles([]string{"CAB-abc"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(out, "CAB-abc")}, written)

	_, err = NewExporter(testSource(), out).ExportFiles([]string{"missing"}, nil)
	assert.Error(t, err)
}

func TestExportObject(t *testing.T) {
	out := t.TempDir()

	path, err := NewExporter(testSource(), out).ExportObject(Object{
		Asset:    "CAB-abc",
		PathID:   14,
		TypeName: "TextAsset",
		Data:     []byte("hello"),
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "CAB-abc.objects", "14.text_asset.bin"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestObjectFileName(t *testing.T) {
	assert.Equal(t, "1.game_object.bin", ObjectFileName(1, "GameObject"))
	assert.Equal(t, "-3.unknown.bin", ObjectFileName(-3, ""))
	assert.Equal(t, "7.mono_behaviour.bin", ObjectFileName(7, "MonoBehaviour"))
}
