package asset

import (
	"encoding/binary"
	"fmt"

	"github.com/jchantrell/unitypack/internal/typetree"
)

// Supported serialized file formats.
const (
	MinFormat = 5
	MaxFormat = 22
)

// ClassMonoBehaviour carries a script hash in its type entry.
const ClassMonoBehaviour = 114

// Header is the fixed preamble of a serialized file.
type Header struct {
	MetadataSize uint32
	FileSize     int64
	Format       uint32
	DataOffset   int64
	BigEndian    bool
}

// ByteOrder returns the order used for metadata and object payloads.
func (h Header) ByteOrder() binary.ByteOrder {
	if h.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Type is one entry in the type table.
type Type struct {
	ClassID         int32
	IsStripped      bool
	ScriptTypeIndex int16
	ScriptID        [16]byte
	OldTypeHash     [16]byte
	Tree            *typetree.Node

	// set on reference types
	ClassName    string
	Namespace    string
	AssemblyName string

	Dependencies []int32
}

// Name returns the root type name of the type tree, or the built-in class
// name when the file was written without type trees.
func (t *Type) Name() string {
	if t.Tree != nil && t.Tree.Type != "" {
		return t.Tree.Type
	}
	return typetree.ClassNameOrID(t.ClassID)
}

// ObjectInfo locates one serialized object.
type ObjectInfo struct {
	PathID int64
	// Offset is relative to the start of the serialized file.
	Offset          int64
	Size            uint32
	TypeID          int32
	TypeIndex       int
	ClassID         int32
	IsDestroyed     bool
	ScriptTypeIndex int16
	Stripped        bool
}

// ScriptRef points at a MonoScript used by this file.
type ScriptRef struct {
	FileIndex int32
	PathID    int64
}

// External references another serialized file.
type External struct {
	GUID [16]byte
	Type int32
	Path string
}

func (e External) String() string {
	return fmt.Sprintf("%s (%x)", e.Path, e.GUID)
}
