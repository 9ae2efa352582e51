// Package value implements the runtime values the interpreter and the
// autodiff reverse pass operate on: scalars of every kernel scalar kind,
// vectors, square matrices (column-major), arrays and structs.
//
// Operations panic on kind mismatches: the builder's type checking guarantees
// well-typed graphs, so a mismatch here is an internal invariant violation,
// not a user error.
package value

import (
	"fmt"
	"math"

	"github.com/x448/float16"

	"github.com/lumen-compute/lumen/internal/ir"
)

// Value is one runtime value. Scalars store their payload inline; aggregates
// hold their elements (vectors lane by lane, matrices column-major).
type Value struct {
	typ   ir.Type
	f     float64
	i     int64 // signed payload; unsigned kinds store their bits here
	b     bool
	elems []Value
}

// Type returns the value's kernel type.
func (v Value) Type() ir.Type { return v.typ }

// IsZero reports whether v is the zero Value (no type), used for unset
// register slots.
func (v Value) IsZero() bool { return v.typ.Kind == ir.KindInvalid }

// Bool creates a bool scalar.
func Bool(b bool) Value {
	return Value{typ: ir.ScalarType(ir.Bool), b: b}
}

// Int creates an integer scalar of the given kind, truncating to the kind's
// width.
func Int(kind ir.ScalarKind, v int64) Value {
	switch kind {
	case ir.Int32:
		v = int64(int32(v))
	case ir.Uint32:
		v = int64(uint32(v))
	case ir.Int64, ir.Uint64:
	default:
		panic(fmt.Sprintf("value.Int: non-integer kind %s", kind))
	}
	return Value{typ: ir.ScalarType(kind), i: v}
}

// Float creates a float scalar of the given kind, rounding the payload to
// the kind's precision (f16 through IEEE binary16, f32 through float32).
func Float(kind ir.ScalarKind, v float64) Value {
	switch kind {
	case ir.Float16:
		v = float64(float16.Fromfloat32(float32(v)).Float32())
	case ir.Float32:
		v = float64(float32(v))
	case ir.Float64:
	default:
		panic(fmt.Sprintf("value.Float: non-float kind %s", kind))
	}
	return Value{typ: ir.ScalarType(kind), f: v}
}

// Scalar creates a scalar of any kind from a float payload, used where the
// element kind is only known dynamically.
func Scalar(kind ir.ScalarKind, v float64) Value {
	if kind == ir.Bool {
		return Bool(v != 0)
	}
	if kind.IsFloat() {
		return Float(kind, v)
	}
	return Int(kind, int64(v))
}

// Vector creates a vector from scalar lanes.
func Vector(kind ir.ScalarKind, lanes ...Value) Value {
	return Value{typ: ir.VectorType(kind, len(lanes)), elems: lanes}
}

// Matrix creates a dim x dim matrix from column-major scalar lanes.
func Matrix(kind ir.ScalarKind, dim int, colMajor []Value) Value {
	if len(colMajor) != dim*dim {
		panic(fmt.Sprintf("value.Matrix: %d lanes for mat%d", len(colMajor), dim))
	}
	return Value{typ: ir.MatrixType(kind, dim), elems: colMajor}
}

// Aggregate creates an array or struct value from its elements.
func Aggregate(t ir.Type, elems []Value) Value {
	return Value{typ: t, elems: elems}
}

// Zero returns the zero value of the given type.
func Zero(t ir.Type) Value {
	switch t.Kind {
	case ir.KindScalar:
		switch {
		case t.Scalar == ir.Bool:
			return Bool(false)
		case t.Scalar.IsFloat():
			return Float(t.Scalar, 0)
		default:
			return Int(t.Scalar, 0)
		}
	case ir.KindVector:
		lanes := make([]Value, t.Count)
		for i := range lanes {
			lanes[i] = Zero(t.ElemType())
		}
		return Value{typ: t, elems: lanes}
	case ir.KindMatrix:
		lanes := make([]Value, t.Count*t.Count)
		for i := range lanes {
			lanes[i] = Zero(t.ElemType())
		}
		return Value{typ: t, elems: lanes}
	case ir.KindArray:
		elems := make([]Value, t.Count)
		for i := range elems {
			elems[i] = Zero(t.ElemType())
		}
		return Value{typ: t, elems: elems}
	case ir.KindStruct:
		elems := make([]Value, len(t.Fields))
		for i, f := range t.Fields {
			elems[i] = Zero(f.Type)
		}
		return Value{typ: t, elems: elems}
	default:
		panic(fmt.Sprintf("value.Zero: no zero for %s", t))
	}
}

// One returns the multiplicative identity for a float scalar type, used to
// seed the output adjoint of a backward pass.
func One(t ir.Type) Value {
	if !t.IsScalar() || !t.Scalar.IsFloat() {
		panic(fmt.Sprintf("value.One: not a float scalar: %s", t))
	}
	return Float(t.Scalar, 1)
}

// FromConst converts an OpConst payload to a Value of the node's type.
func FromConst(t ir.Type, payload any) Value {
	switch t.Kind {
	case ir.KindScalar:
		switch v := payload.(type) {
		case bool:
			return Bool(v)
		case int64:
			return Int(t.Scalar, v)
		case uint64:
			return Int(t.Scalar, int64(v))
		case float64:
			return Float(t.Scalar, v)
		}
	case ir.KindVector, ir.KindMatrix:
		lanes, ok := payload.([]float64)
		if ok && len(lanes) == t.Lanes() {
			elems := make([]Value, len(lanes))
			for i, f := range lanes {
				elems[i] = Scalar(t.Elem.Scalar, f)
			}
			return Value{typ: t, elems: elems}
		}
	}
	panic(fmt.Sprintf("value.FromConst: payload %T does not fit %s", payload, t))
}

// AsFloat returns the scalar's numeric payload as float64.
func (v Value) AsFloat() float64 {
	switch {
	case v.typ.Scalar.IsFloat():
		return v.f
	case v.typ.Scalar == ir.Bool:
		if v.b {
			return 1
		}
		return 0
	case v.typ.Scalar.IsUnsigned():
		return float64(uint64(v.i))
	default:
		return float64(v.i)
	}
}

// AsInt returns the scalar's integer payload.
func (v Value) AsInt() int64 {
	if v.typ.Scalar.IsFloat() {
		return int64(v.f)
	}
	if v.typ.Scalar == ir.Bool {
		if v.b {
			return 1
		}
		return 0
	}
	return v.i
}

// AsBool returns the bool payload.
func (v Value) AsBool() bool { return v.b }

// Lane returns element i of an aggregate.
func (v Value) Lane(i int) Value { return v.elems[i] }

// Lanes returns the aggregate's element slice. It must not be mutated.
func (v Value) Lanes() []Value { return v.elems }

// NumLanes returns the number of elements of an aggregate, 0 for scalars.
func (v Value) NumLanes() int { return len(v.elems) }

// WithLane returns a copy of the aggregate with element i replaced.
func (v Value) WithLane(i int, elem Value) Value {
	elems := make([]Value, len(v.elems))
	copy(elems, v.elems)
	elems[i] = elem
	return Value{typ: v.typ, elems: elems}
}

// Column returns column c of a matrix as a vector value.
func (v Value) Column(c int) Value {
	dim := v.typ.Count
	lanes := make([]Value, dim)
	copy(lanes, v.elems[c*dim:(c+1)*dim])
	return Value{typ: ir.VectorType(v.typ.Elem.Scalar, dim), elems: lanes}
}

// Equal reports semantic equality (same type and payload).
func (v Value) Equal(o Value) bool {
	if !v.typ.Equal(o.typ) {
		return false
	}
	switch v.typ.Kind {
	case ir.KindScalar:
		switch {
		case v.typ.Scalar == ir.Bool:
			return v.b == o.b
		case v.typ.Scalar.IsFloat():
			return v.f == o.f
		default:
			return v.i == o.i
		}
	default:
		for i := range v.elems {
			if !v.elems[i].Equal(o.elems[i]) {
				return false
			}
		}
		return true
	}
}

// String renders the value for diagnostics.
func (v Value) String() string {
	switch v.typ.Kind {
	case ir.KindInvalid:
		return "<unset>"
	case ir.KindScalar:
		switch {
		case v.typ.Scalar == ir.Bool:
			return fmt.Sprintf("%v", v.b)
		case v.typ.Scalar.IsFloat():
			return fmt.Sprintf("%g", v.f)
		case v.typ.Scalar.IsUnsigned():
			return fmt.Sprintf("%d", uint64(v.i))
		default:
			return fmt.Sprintf("%d", v.i)
		}
	default:
		return fmt.Sprintf("%s%v", v.typ, v.elems)
	}
}

// IsNaN reports whether any float lane of the value is NaN.
func (v Value) IsNaN() bool {
	if v.typ.IsScalar() {
		return v.typ.Scalar.IsFloat() && math.IsNaN(v.f)
	}
	for _, e := range v.elems {
		if e.IsNaN() {
			return true
		}
	}
	return false
}
