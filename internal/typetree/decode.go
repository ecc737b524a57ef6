package typetree

import (
	"fmt"

	"github.com/jchantrell/unitypack/internal/errs"
	"github.com/jchantrell/unitypack/internal/stream"
)

// maxElements bounds a single decoded array.
const maxElements = 1 << 26

// Decode reads one value laid out by n. Structs decode to map[string]any,
// arrays to []any (byte arrays to []byte), strings to string and
// primitives to their Go counterparts.
func Decode(r *stream.Reader, n *Node) (any, error) {
	return decodeValue(r, n, 0)
}

func decodeValue(r *stream.Reader, n *Node, depth int) (any, error) {
	if depth > maxDepth {
		return nil, errs.E(errs.CorruptStream, "value nested deeper than %d", maxDepth)
	}

	align := n.Aligned()
	var v any
	var err error

	switch n.Type {
	case "bool":
		v, err = r.Bool()
	case "SInt8":
		v, err = r.I8()
	case "UInt8", "char":
		v, err = r.U8()
	case "SInt16", "short":
		v, err = r.I16()
	case "UInt16", "unsigned short":
		v, err = r.U16()
	case "SInt32", "int":
		v, err = r.I32()
	case "UInt32", "unsigned int", "Type*":
		v, err = r.U32()
	case "SInt64", "long long":
		v, err = r.I64()
	case "UInt64", "unsigned long long", "FileSize":
		v, err = r.U64()
	case "float":
		v, err = r.F32()
	case "double":
		v, err = r.F64()
	case "string":
		v, err = r.PrefixedString()
		if len(n.Children) > 0 && n.Children[0].Aligned() {
			align = true
		}
	case "TypelessData":
		v, err = decodeTypeless(r)
	default:
		switch {
		case n.IsArray:
			v, err = decodeArray(r, n, depth)
		case len(n.Children) == 1 && n.Children[0].IsArray:
			v, err = decodeArray(r, n.Children[0], depth)
			if n.Children[0].Aligned() {
				align = true
			}
		default:
			fields := make(map[string]any, len(n.Children))
			for _, c := range n.Children {
				fv, ferr := decodeValue(r, c, depth+1)
				if ferr != nil {
					return nil, fmt.Errorf("%s: %w", c.Name, ferr)
				}
				fields[c.Name] = fv
			}
			v = fields
		}
	}
	if err != nil {
		return nil, err
	}

	if align {
		if err := r.Align(4); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func decodeTypeless(r *stream.Reader) ([]byte, error) {
	size, err := r.I32()
	if err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, errs.E(errs.CorruptStream, "negative data size %d", size)
	}
	return r.Bytes(int(size))
}

// decodeArray reads an Array node: a size field followed by that many
// elements of the second child's layout.
func decodeArray(r *stream.Reader, arr *Node, depth int) (any, error) {
	if len(arr.Children) < 2 {
		return nil, errs.E(errs.CorruptStream, "array %q has %d children", arr.Name, len(arr.Children))
	}
	count, err := r.I32()
	if err != nil {
		return nil, err
	}
	if count < 0 || count > maxElements {
		return nil, errs.E(errs.CorruptStream, "array %q has invalid length %d", arr.Name, count)
	}

	elem := arr.Children[1]
	switch elem.Type {
	case "UInt8", "SInt8", "char":
		return r.Bytes(int(count))
	}
	if elem.Size > 0 && int64(count)*int64(elem.Size) > r.Remaining() {
		return nil, errs.E(errs.Truncated, "array %q of %d elements exceeds remaining %d bytes", arr.Name, count, r.Remaining())
	}

	items := make([]any, 0, count)
	for i := int32(0); i < count; i++ {
		item, err := decodeValue(r, elem, depth+1)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", arr.Name, i, err)
		}
		items = append(items, item)
	}
	return items, nil
}
