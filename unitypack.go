// Package unitypack reads Unity asset bundles (UnityFS, UnityRaw and
// UnityWeb) and the serialized files inside them.
//
// A Library owns every bundle it loads. Bundle, Asset and ObjectInfo values
// are handles into that library: they stay valid until the bundle is
// destroyed, after which every operation on them fails with ErrBadHandle.
package unitypack

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/jchantrell/unitypack/internal/asset"
	"github.com/jchantrell/unitypack/internal/bundle"
	"github.com/jchantrell/unitypack/internal/compress"
	"github.com/jchantrell/unitypack/internal/errs"
)

// Kind classifies errors returned by this package.
type Kind = errs.Kind

// Error kinds. Match them with errors.Is or KindOf.
const (
	ErrIo                = errs.Io
	ErrUnsupportedFormat = errs.UnsupportedFormat
	ErrTruncated         = errs.Truncated
	ErrCorruptStream     = errs.CorruptStream
	ErrBadHandle         = errs.BadHandle
	ErrOutOfRange        = errs.OutOfRange
)

// KindOf returns the kind carried by err.
func KindOf(err error) Kind {
	return errs.KindOf(err)
}

// Library is a registry of loaded bundles. It is safe for concurrent use;
// Destroy must not race with other operations on the same bundle.
type Library struct {
	mu       sync.RWMutex
	nextID   uint64
	bundles  map[uint64]*loadedBundle
	registry *compress.Registry

	strings atomic.Int64
	arrays  atomic.Int64
}

type loadedBundle struct {
	name      string
	container *bundle.Bundle
	assets    []*asset.Asset
	bytes     int64
}

// Option configures a Library.
type Option func(*Library) error

// WithOodle registers the Oodle decompressor under a block compression id.
// Ids 0-4 are taken by Unity's own methods.
func WithOodle(method uint8) Option {
	return func(l *Library) error {
		return l.registry.EnableOodle(compress.Method(method))
	}
}

// New creates an empty library.
func New(opts ...Option) (*Library, error) {
	l := &Library{
		bundles:  make(map[uint64]*loadedBundle),
		registry: compress.NewRegistry(),
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, fmt.Errorf("configuring library: %w", err)
		}
	}
	return l, nil
}

// Load parses the bundle at path. The whole directory is parsed before Load
// returns; a failure anywhere fails the load.
func (l *Library) Load(path string) (Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Bundle{}, errs.Wrap(errs.Io, fmt.Errorf("reading bundle: %w", err))
	}
	b, err := l.load(filepath.Base(path), bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Bundle{}, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// LoadReader parses a bundle held in the first size bytes of r. Directory
// entries are read through r for as long as the bundle stays loaded.
func (l *Library) LoadReader(r io.ReaderAt, size int64, name string) (Bundle, error) {
	return l.load(name, r, size)
}

func (l *Library) load(name string, r io.ReaderAt, size int64) (Bundle, error) {
	c, err := bundle.Open(r, size, &bundle.Options{Registry: l.registry})
	if err != nil {
		return Bundle{}, err
	}

	lb := &loadedBundle{
		name:      name,
		container: c,
		assets:    make([]*asset.Asset, 0, len(c.Entries)),
		bytes:     size,
	}
	for i, e := range c.Entries {
		data, err := c.ReadEntry(i)
		if err != nil {
			return Bundle{}, err
		}

		var a *asset.Asset
		if asset.IsResource(e.Name) {
			a = asset.NewResource(e.Name, data)
		} else if a, err = asset.Parse(e.Name, data); err != nil {
			return Bundle{}, fmt.Errorf("asset %q: %w", e.Name, err)
		}
		lb.assets = append(lb.assets, a)
		lb.bytes += int64(len(data))
	}

	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.bundles[id] = lb
	l.mu.Unlock()

	slog.Debug("Bundle loaded",
		"name", name,
		"signature", c.Header.Signature,
		"assets", len(lb.assets),
		"bytes", lb.bytes)

	return Bundle{lib: l, id: id}, nil
}

// Destroy releases a bundle and invalidates every handle derived from it.
func (l *Library) Destroy(b Bundle) error {
	if err := l.checkOwner(b); err != nil {
		return err
	}

	l.mu.Lock()
	lb, ok := l.bundles[b.id]
	delete(l.bundles, b.id)
	l.mu.Unlock()

	if !ok {
		return misuse("bundle %d already destroyed", b.id)
	}
	slog.Debug("Bundle destroyed", "name", lb.name, "bytes", lb.bytes)
	return nil
}

// Stats counts what a library is currently holding.
type Stats struct {
	Bundles int
	Bytes   int64
	// Strings and Arrays count transferred values not yet freed.
	Strings int64
	Arrays  int64
}

// Stats reports live bundles and outstanding transferred values.
func (l *Library) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Stats{
		Bundles: len(l.bundles),
		Strings: l.strings.Load(),
		Arrays:  l.arrays.Load(),
	}
	for _, lb := range l.bundles {
		s.Bytes += lb.bytes
	}
	return s
}

func (l *Library) checkOwner(b Bundle) error {
	if b.lib == nil {
		return misuse("null bundle handle")
	}
	if b.lib != l {
		return misuse("bundle handle belongs to another library")
	}
	return nil
}

func (l *Library) lookup(b Bundle) (*loadedBundle, error) {
	if err := l.checkOwner(b); err != nil {
		return nil, err
	}
	l.mu.RLock()
	lb, ok := l.bundles[b.id]
	l.mu.RUnlock()
	if !ok {
		return nil, misuse("bundle %d is not loaded", b.id)
	}
	return lb, nil
}

func (l *Library) lookupAsset(a Asset, b Bundle) (*loadedBundle, *asset.Asset, error) {
	if a.bundle != b {
		return nil, nil, misuse("asset handle does not belong to the given bundle")
	}
	lb, err := l.lookup(b)
	if err != nil {
		return nil, nil, err
	}
	if a.index < 0 || a.index >= len(lb.assets) {
		return nil, nil, misuse("asset index %d outside bundle", a.index)
	}
	return lb, lb.assets[a.index], nil
}

// misuse reports a stale or foreign handle.
func misuse(format string, args ...any) error {
	return errs.E(errs.BadHandle, format, args...)
}
