package unitypack

import (
	"log/slog"
	"sync/atomic"

	"github.com/jchantrell/unitypack/internal/asset"
)

// OwnedString is a string whose ownership passed to the caller. Each one
// must be released exactly once with FreeString.
type OwnedString struct {
	lib   *Library
	value string
	freed atomic.Bool
}

// String returns the value, or "" once freed.
func (s *OwnedString) String() string {
	if s == nil || s.freed.Load() {
		return ""
	}
	return s.value
}

func (l *Library) transferString(v string) *OwnedString {
	l.strings.Add(1)
	return &OwnedString{lib: l, value: v}
}

// FreeString releases s. Freeing nil is a no-op. Freeing twice, or freeing
// a string another library issued, changes nothing and panics in debug
// builds.
func (l *Library) FreeString(s *OwnedString) {
	if s == nil {
		return
	}
	if s.lib != l {
		badRelease("string was not issued by this library")
		return
	}
	if s.freed.Swap(true) {
		badRelease("string freed twice")
		return
	}
	l.strings.Add(-1)
}

// ObjectArray is a transferred list of objects. Freeing it releases only
// the list; the objects stay owned by their bundle.
type ObjectArray struct {
	lib   *Library
	items []ObjectInfo
	freed atomic.Bool
}

// Len returns the number of objects, or 0 once freed.
func (a *ObjectArray) Len() int {
	if a == nil || a.freed.Load() {
		return 0
	}
	return len(a.items)
}

// At returns object i.
func (a *ObjectArray) At(i int) ObjectInfo {
	return a.Items()[i]
}

// Items returns the objects, or nil once freed.
func (a *ObjectArray) Items() []ObjectInfo {
	if a == nil || a.freed.Load() {
		return nil
	}
	return a.items
}

func (l *Library) transferObjects(objs []asset.ObjectInfo) *ObjectArray {
	items := make([]ObjectInfo, len(objs))
	for i, o := range objs {
		items[i] = objectInfo(o)
	}
	l.arrays.Add(1)
	return &ObjectArray{lib: l, items: items}
}

// FreeObjectArray releases arr. It follows the same rules as FreeString.
func (l *Library) FreeObjectArray(arr *ObjectArray) {
	if arr == nil {
		return
	}
	if arr.lib != l {
		badRelease("object array was not issued by this library")
		return
	}
	if arr.freed.Swap(true) {
		badRelease("object array freed twice")
		return
	}
	l.arrays.Add(-1)
}

// badRelease reports a free with the wrong provenance. The release is
// ignored, and debug builds panic.
func badRelease(reason string) {
	err := misuse("%s", reason)
	if debugChecks {
		panic(err)
	}
	slog.Debug("Ignoring release", "error", err)
}
