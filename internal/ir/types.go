// Package ir defines the kernel intermediate representation: a typed SSA
// graph of basic blocks built through a Builder and frozen at Finish.
//
// A Graph is built exactly once, validated when finished, and read-only
// forever after. The interpreter (internal/interp) executes finished graphs;
// the autodiff transform (internal/autodiff) rewrites them.
package ir

import (
	"fmt"
	"strings"
)

// TypeKind discriminates the Type variant.
type TypeKind int

// Supported type kinds.
const (
	KindInvalid TypeKind = iota
	KindVoid
	KindScalar
	KindVector
	KindMatrix
	KindArray
	KindStruct
	KindPointer
	KindResource
)

// String returns a human-readable name for the type kind.
func (k TypeKind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindScalar:
		return "scalar"
	case KindVector:
		return "vector"
	case KindMatrix:
		return "matrix"
	case KindArray:
		return "array"
	case KindStruct:
		return "struct"
	case KindPointer:
		return "pointer"
	case KindResource:
		return "resource"
	default:
		return "invalid"
	}
}

// ScalarKind identifies a primitive scalar type.
type ScalarKind int

// Supported scalar kinds.
const (
	Bool ScalarKind = iota
	Int32
	Int64
	Uint32
	Uint64
	Float16
	Float32
	Float64
)

// Size returns the byte size of the scalar kind.
func (k ScalarKind) Size() int {
	switch k {
	case Bool:
		return 1
	case Float16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	default:
		panic(fmt.Sprintf("unknown scalar kind %d", k))
	}
}

// IsFloat reports whether the scalar kind is a floating-point type.
func (k ScalarKind) IsFloat() bool {
	return k == Float16 || k == Float32 || k == Float64
}

// IsInteger reports whether the scalar kind is an integer type.
func (k ScalarKind) IsInteger() bool {
	switch k {
	case Int32, Int64, Uint32, Uint64:
		return true
	}
	return false
}

// IsUnsigned reports whether the scalar kind is an unsigned integer type.
func (k ScalarKind) IsUnsigned() bool {
	return k == Uint32 || k == Uint64
}

// String returns a human-readable name for the scalar kind.
func (k ScalarKind) String() string {
	switch k {
	case Bool:
		return "bool"
	case Int32:
		return "i32"
	case Int64:
		return "i64"
	case Uint32:
		return "u32"
	case Uint64:
		return "u64"
	case Float16:
		return "f16"
	case Float32:
		return "f32"
	case Float64:
		return "f64"
	default:
		return "unknown"
	}
}

// ResourceKind identifies an externally bound resource.
type ResourceKind int

// Supported resource kinds.
const (
	ResBuffer ResourceKind = iota
	ResTexture2D
	ResTexture3D
	ResBindless
	ResAccel
)

// String returns a human-readable name for the resource kind.
func (k ResourceKind) String() string {
	switch k {
	case ResBuffer:
		return "buffer"
	case ResTexture2D:
		return "texture2d"
	case ResTexture3D:
		return "texture3d"
	case ResBindless:
		return "bindless"
	case ResAccel:
		return "accel"
	default:
		return "unknown"
	}
}

// StructField describes one field of a struct type. Offsets are part of the
// schema supplied by the caller (no runtime reflection), so host layouts can
// be mirrored exactly.
type StructField struct {
	Name   string
	Type   Type
	Offset int
}

// Type is a purely descriptive tagged variant over the kernel type system.
// It carries no behavior beyond layout queries and equality.
type Type struct {
	Kind     TypeKind
	Scalar   ScalarKind // valid when Kind == KindScalar
	Elem     *Type      // element type for Vector/Matrix/Array/Pointer/Resource
	Count    int        // lanes for Vector, dimension for Matrix, length for Array
	Name     string     // struct name, valid when Kind == KindStruct
	Fields   []StructField
	Size     int          // struct size in bytes (from schema)
	Resource ResourceKind // valid when Kind == KindResource
}

// Void is the type of nodes executed for effect only.
var Void = Type{Kind: KindVoid}

// ScalarType returns the type for a primitive scalar kind.
func ScalarType(k ScalarKind) Type {
	return Type{Kind: KindScalar, Scalar: k}
}

// VectorType returns an n-lane vector of the given scalar element kind.
// Lanes must be 2, 3 or 4.
func VectorType(elem ScalarKind, n int) Type {
	if n < 2 || n > 4 {
		panic(fmt.Sprintf("vector lane count must be 2..4, got %d", n))
	}
	e := ScalarType(elem)
	return Type{Kind: KindVector, Elem: &e, Count: n}
}

// MatrixType returns a square dim x dim column-major matrix type.
// Dim must be 2, 3 or 4.
func MatrixType(elem ScalarKind, dim int) Type {
	if dim < 2 || dim > 4 {
		panic(fmt.Sprintf("matrix dimension must be 2..4, got %d", dim))
	}
	e := ScalarType(elem)
	return Type{Kind: KindMatrix, Elem: &e, Count: dim}
}

// ArrayType returns a fixed-length array type.
func ArrayType(elem Type, n int) Type {
	if n <= 0 {
		panic(fmt.Sprintf("array length must be positive, got %d", n))
	}
	return Type{Kind: KindArray, Elem: &elem, Count: n}
}

// StructType returns a struct type from an explicit schema: ordered fields
// with caller-supplied offsets and total size.
func StructType(name string, size int, fields ...StructField) Type {
	return Type{Kind: KindStruct, Name: name, Size: size, Fields: fields}
}

// LayoutStruct builds a struct type computing natural offsets and size from
// the field order, for callers that do not need to mirror a host layout.
func LayoutStruct(name string, fields ...StructField) Type {
	offset := 0
	for i := range fields {
		sz, align := fields[i].Type.ByteSize(), fields[i].Type.Align()
		offset = alignUp(offset, align)
		fields[i].Offset = offset
		offset += sz
	}
	return StructType(name, offset, fields...)
}

// PointerType returns a pointer to the inner type.
func PointerType(inner Type) Type {
	return Type{Kind: KindPointer, Elem: &inner}
}

// BufferType returns a buffer resource type with the given element type.
// The buffer's extent is only known at dispatch time.
func BufferType(elem Type) Type {
	return Type{Kind: KindResource, Resource: ResBuffer, Elem: &elem}
}

// BindlessType returns a bindless-array resource type. Slots are resolved by
// runtime tag and index, with element types checked at access time.
func BindlessType() Type {
	return Type{Kind: KindResource, Resource: ResBindless}
}

// IsVoid reports whether the type is void.
func (t Type) IsVoid() bool { return t.Kind == KindVoid }

// IsScalar reports whether the type is a primitive scalar.
func (t Type) IsScalar() bool { return t.Kind == KindScalar }

// IsNumeric reports whether the type is a scalar, vector or matrix of a
// numeric (non-bool) element.
func (t Type) IsNumeric() bool {
	switch t.Kind {
	case KindScalar:
		return t.Scalar != Bool
	case KindVector, KindMatrix:
		return t.Elem.Scalar != Bool
	}
	return false
}

// IsFloat reports whether the type is a scalar, vector or matrix of floats.
func (t Type) IsFloat() bool {
	switch t.Kind {
	case KindScalar:
		return t.Scalar.IsFloat()
	case KindVector, KindMatrix:
		return t.Elem.Scalar.IsFloat()
	}
	return false
}

// IsResource reports whether the type is an externally bound resource.
func (t Type) IsResource() bool { return t.Kind == KindResource }

// ElemType returns the element type for vectors, matrices, arrays, pointers
// and buffer resources. It panics for kinds without an element.
func (t Type) ElemType() Type {
	if t.Elem == nil {
		panic(fmt.Sprintf("type %s has no element type", t))
	}
	return *t.Elem
}

// Lanes returns the number of scalar lanes: 1 for scalars, Count for vectors,
// Count*Count for matrices, and element lanes times length for arrays.
func (t Type) Lanes() int {
	switch t.Kind {
	case KindScalar:
		return 1
	case KindVector:
		return t.Count
	case KindMatrix:
		return t.Count * t.Count
	case KindArray:
		return t.Count * t.Elem.Lanes()
	default:
		return 0
	}
}

// ByteSize returns the byte size of a value of this type. Resources and
// pointers have handle size (8 bytes).
func (t Type) ByteSize() int {
	switch t.Kind {
	case KindVoid:
		return 0
	case KindScalar:
		return t.Scalar.Size()
	case KindVector:
		n := t.Count
		if n == 3 {
			n = 4 // 3-lane vectors are padded to 4 lanes
		}
		return n * t.Elem.Scalar.Size()
	case KindMatrix:
		cols := t.Count
		colType := VectorType(t.Elem.Scalar, t.Count)
		return cols * colType.ByteSize()
	case KindArray:
		return t.Count * t.Elem.ByteSize()
	case KindStruct:
		return t.Size
	case KindPointer, KindResource:
		return 8
	default:
		return 0
	}
}

// Align returns the natural alignment of the type in bytes.
func (t Type) Align() int {
	switch t.Kind {
	case KindScalar:
		return t.Scalar.Size()
	case KindVector, KindMatrix:
		n := t.Count
		if n == 3 {
			n = 4
		}
		return n * t.Elem.Scalar.Size()
	case KindArray:
		return t.Elem.Align()
	case KindStruct:
		align := 1
		for _, f := range t.Fields {
			if a := f.Type.Align(); a > align {
				align = a
			}
		}
		return align
	case KindPointer, KindResource:
		return 8
	default:
		return 1
	}
}

// Equal reports whether two types are structurally identical. Struct types
// compare by name, field list and offsets.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case KindVoid:
		return true
	case KindScalar:
		return t.Scalar == o.Scalar
	case KindVector, KindMatrix:
		return t.Count == o.Count && t.Elem.Equal(*o.Elem)
	case KindArray:
		return t.Count == o.Count && t.Elem.Equal(*o.Elem)
	case KindPointer:
		return t.Elem.Equal(*o.Elem)
	case KindStruct:
		if t.Name != o.Name || t.Size != o.Size || len(t.Fields) != len(o.Fields) {
			return false
		}
		for i := range t.Fields {
			if t.Fields[i].Name != o.Fields[i].Name ||
				t.Fields[i].Offset != o.Fields[i].Offset ||
				!t.Fields[i].Type.Equal(o.Fields[i].Type) {
				return false
			}
		}
		return true
	case KindResource:
		if t.Resource != o.Resource {
			return false
		}
		if t.Elem == nil || o.Elem == nil {
			return t.Elem == o.Elem
		}
		return t.Elem.Equal(*o.Elem)
	default:
		return false
	}
}

// String returns a compact textual form, e.g. "f32", "vec3<f32>",
// "mat3<f32>", "buffer<f32>".
func (t Type) String() string {
	switch t.Kind {
	case KindVoid:
		return "void"
	case KindScalar:
		return t.Scalar.String()
	case KindVector:
		return fmt.Sprintf("vec%d<%s>", t.Count, t.Elem)
	case KindMatrix:
		return fmt.Sprintf("mat%d<%s>", t.Count, t.Elem)
	case KindArray:
		return fmt.Sprintf("array<%s, %d>", t.Elem, t.Count)
	case KindStruct:
		names := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			names[i] = fmt.Sprintf("%s: %s", f.Name, f.Type)
		}
		return fmt.Sprintf("struct %s{%s}", t.Name, strings.Join(names, ", "))
	case KindPointer:
		return fmt.Sprintf("ptr<%s>", t.Elem)
	case KindResource:
		if t.Elem != nil {
			return fmt.Sprintf("%s<%s>", t.Resource, t.Elem)
		}
		return t.Resource.String()
	default:
		return "invalid"
	}
}

func alignUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}
