package bundle

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"
)

// entryFS implements a read-only filesystem over a bundle's directory.
// Entry names containing slashes appear as nested directories.
type entryFS struct {
	bundle *Bundle
	files  []fsFile // sorted by path
}

type fsFile struct {
	path  string
	entry int
}

// FS returns a filesystem view of the bundle's directory entries. Entries
// whose names are not valid fs paths are left out.
func (b *Bundle) FS() fs.FS {
	efs := &entryFS{bundle: b}
	for i, e := range b.Entries {
		if !fs.ValidPath(e.Name) || e.Name == "." {
			slog.Debug("Skipping entry with unusable name", "name", e.Name)
			continue
		}
		efs.files = append(efs.files, fsFile{path: e.Name, entry: i})
	}
	sort.Slice(efs.files, func(i, j int) bool {
		return efs.files[i].path < efs.files[j].path
	})
	return efs
}

func (efs *entryFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	files := efs.files

	if name == "." {
		return &entryDir{fs: efs, prefix: "", offset: 0}, nil
	}

	idx := sort.Search(len(files), func(i int) bool {
		return files[i].path >= name
	})
	if idx < len(files) && files[idx].path == name {
		return &entryFile{fs: efs, info: &files[idx]}, nil
	}

	dirName := name + "/"
	idx += sort.Search(len(files)-idx, func(i int) bool {
		return files[idx+i].path >= dirName
	})
	if idx < len(files) && strings.HasPrefix(files[idx].path, dirName) {
		return &entryDir{fs: efs, prefix: dirName, offset: idx}, nil
	}

	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// entryFile implements fs.File for one directory entry.
type entryFile struct {
	fs     *entryFS
	info   *fsFile
	reader *io.SectionReader
}

func (f *entryFile) entry() Entry {
	return f.fs.bundle.Entries[f.info.entry]
}

func (f *entryFile) Read(p []byte) (int, error) {
	if f.reader == nil {
		e := f.entry()
		f.reader = io.NewSectionReader(f.fs.bundle, e.Offset, e.Size)
	}
	return f.reader.Read(p)
}

func (f *entryFile) Close() error {
	return nil
}

func (f *entryFile) Stat() (fs.FileInfo, error) {
	return &entryFileInfo{f}, nil
}

type entryFileInfo struct {
	*entryFile
}

func (fi entryFileInfo) Name() string       { return path.Base(fi.info.path) }
func (fi entryFileInfo) Size() int64        { return fi.entry().Size }
func (fi entryFileInfo) Mode() fs.FileMode  { return 0o444 }
func (fi entryFileInfo) ModTime() time.Time { return time.Unix(0, 0) }
func (fi entryFileInfo) IsDir() bool        { return false }
func (fi entryFileInfo) Sys() any           { return fi.entry() }

// entryDir implements fs.ReadDirFile for a name prefix.
type entryDir struct {
	fs     *entryFS
	prefix string
	offset int
}

func (d *entryDir) Read(p []byte) (int, error) {
	return 0, fmt.Errorf("is a directory")
}

func (d *entryDir) Close() error {
	return nil
}

func (d *entryDir) Stat() (fs.FileInfo, error) {
	return &entryDirInfo{d}, nil
}

func (d *entryDir) ReadDir(n int) ([]fs.DirEntry, error) {
	files := d.fs.files
	prefixLen := len(d.prefix)

	dirents := []fs.DirEntry{}

	for d.offset < len(files) {
		fi := &files[d.offset]
		if !strings.HasPrefix(fi.path, d.prefix) {
			break
		}

		if slash := strings.Index(fi.path[prefixLen:], "/"); slash != -1 {
			dir := fi.path[:prefixLen+slash]
			dirents = append(dirents, &entryDirEnt{fs: d.fs, path: dir})
			d.offset += sort.Search(len(files)-d.offset, func(i int) bool {
				return files[d.offset+i].path >= dir+"/\xff"
			})
		} else {
			dirents = append(dirents, &entryDirEnt{
				fs:   d.fs,
				path: fi.path,
				file: &entryFile{fs: d.fs, info: fi},
			})
			d.offset++
		}

		if n > 0 && len(dirents) >= n {
			return dirents, nil
		}
	}

	if n > 0 && len(dirents) == 0 {
		return dirents, io.EOF
	}
	return dirents, nil
}

type entryDirInfo struct {
	*entryDir
}

func (di entryDirInfo) Name() string       { return path.Base(di.prefix) }
func (di entryDirInfo) Size() int64        { return 0 }
func (di entryDirInfo) Mode() fs.FileMode  { return 0o555 | fs.ModeDir }
func (di entryDirInfo) ModTime() time.Time { return time.Unix(0, 0) }
func (di entryDirInfo) IsDir() bool        { return true }
func (di entryDirInfo) Sys() any           { return nil }

// entryDirEnt implements fs.DirEntry.
type entryDirEnt struct {
	fs   *entryFS
	path string
	file *entryFile
}

func (de *entryDirEnt) Name() string {
	return path.Base(de.path)
}

func (de *entryDirEnt) IsDir() bool {
	return de.file == nil
}

func (de *entryDirEnt) Type() fs.FileMode {
	if de.IsDir() {
		return fs.ModeDir
	}
	return 0
}

func (de *entryDirEnt) Info() (fs.FileInfo, error) {
	if de.IsDir() {
		return &entryDirInfo{&entryDir{fs: de.fs, prefix: de.path, offset: -1}}, nil
	}
	return &entryFileInfo{de.file}, nil
}
