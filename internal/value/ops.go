package value

import (
	"fmt"
	"math"

	"github.com/lumen-compute/lumen/internal/ir"
)

// Elementwise arithmetic. For aggregates the operation applies lane by lane;
// both operands must share a type.

func elementwise(name string, a, b Value, scalar func(x, y Value) Value) Value {
	if !a.typ.Equal(b.typ) {
		panic(fmt.Sprintf("value.%s: type mismatch %s vs %s", name, a.typ, b.typ))
	}
	if a.typ.IsScalar() {
		return scalar(a, b)
	}
	lanes := make([]Value, len(a.elems))
	for i := range lanes {
		lanes[i] = elementwise(name, a.elems[i], b.elems[i], scalar)
	}
	return Value{typ: a.typ, elems: lanes}
}

func mapLanes(a Value, scalar func(Value) Value) Value {
	if a.typ.IsScalar() {
		return scalar(a)
	}
	lanes := make([]Value, len(a.elems))
	for i := range lanes {
		lanes[i] = mapLanes(a.elems[i], scalar)
	}
	return Value{typ: a.typ, elems: lanes}
}

func scalarBinary(op func(x, y float64) float64, iop func(x, y int64) int64) func(a, b Value) Value {
	return func(a, b Value) Value {
		k := a.typ.Scalar
		if k.IsFloat() {
			return Float(k, op(a.f, b.f))
		}
		return Int(k, iop(a.i, b.i))
	}
}

// Add returns a + b.
func Add(a, b Value) Value {
	return elementwise("Add", a, b, scalarBinary(
		func(x, y float64) float64 { return x + y },
		func(x, y int64) int64 { return x + y }))
}

// Sub returns a - b.
func Sub(a, b Value) Value {
	return elementwise("Sub", a, b, scalarBinary(
		func(x, y float64) float64 { return x - y },
		func(x, y int64) int64 { return x - y }))
}

// Mul returns the elementwise product a * b.
func Mul(a, b Value) Value {
	return elementwise("Mul", a, b, scalarBinary(
		func(x, y float64) float64 { return x * y },
		func(x, y int64) int64 { return x * y }))
}

// Div returns a / b. Integer division by zero panics; the interpreter turns
// the panic into a per-item trap.
func Div(a, b Value) Value {
	return elementwise("Div", a, b, scalarBinary(
		func(x, y float64) float64 { return x / y },
		func(x, y int64) int64 {
			if y == 0 {
				panic("integer division by zero")
			}
			return x / y
		}))
}

// Min returns the elementwise minimum.
func Min(a, b Value) Value {
	return elementwise("Min", a, b, scalarBinary(math.Min,
		func(x, y int64) int64 {
			if x < y {
				return x
			}
			return y
		}))
}

// Max returns the elementwise maximum.
func Max(a, b Value) Value {
	return elementwise("Max", a, b, scalarBinary(math.Max,
		func(x, y int64) int64 {
			if x > y {
				return x
			}
			return y
		}))
}

// Pow returns a^b elementwise.
func Pow(a, b Value) Value {
	return elementwise("Pow", a, b, scalarBinary(math.Pow, func(x, y int64) int64 {
		panic("value.Pow: integer operands")
	}))
}

// Neg returns -a.
func Neg(a Value) Value {
	return mapLanes(a, func(s Value) Value {
		if s.typ.Scalar.IsFloat() {
			return Float(s.typ.Scalar, -s.f)
		}
		return Int(s.typ.Scalar, -s.i)
	})
}

// Abs returns |a|.
func Abs(a Value) Value {
	return mapLanes(a, func(s Value) Value {
		if s.typ.Scalar.IsFloat() {
			return Float(s.typ.Scalar, math.Abs(s.f))
		}
		if s.i < 0 {
			return Int(s.typ.Scalar, -s.i)
		}
		return s
	})
}

func mapFloat(name string, a Value, f func(float64) float64) Value {
	return mapLanes(a, func(s Value) Value {
		if !s.typ.Scalar.IsFloat() {
			panic(fmt.Sprintf("value.%s: non-float operand %s", name, s.typ))
		}
		return Float(s.typ.Scalar, f(s.f))
	})
}

// Sqrt returns sqrt(a) elementwise.
func Sqrt(a Value) Value { return mapFloat("Sqrt", a, math.Sqrt) }

// Exp returns e^a elementwise.
func Exp(a Value) Value { return mapFloat("Exp", a, math.Exp) }

// Log returns ln(a) elementwise.
func Log(a Value) Value { return mapFloat("Log", a, math.Log) }

// Sin returns sin(a) elementwise.
func Sin(a Value) Value { return mapFloat("Sin", a, math.Sin) }

// Cos returns cos(a) elementwise.
func Cos(a Value) Value { return mapFloat("Cos", a, math.Cos) }

// Scale returns s * a for a scalar s and any numeric a, used heavily by the
// reverse pass.
func Scale(s Value, a Value) Value {
	return mapLanes(a, func(x Value) Value {
		return Float(x.typ.Scalar, s.AsFloat()*x.f)
	})
}

// Dot returns the dot product of two equal-length float vectors.
func Dot(a, b Value) Value {
	if a.typ.Kind != ir.KindVector || !a.typ.Equal(b.typ) {
		panic(fmt.Sprintf("value.Dot: bad operands %s, %s", a.typ, b.typ))
	}
	sum := 0.0
	for i := range a.elems {
		sum += a.elems[i].f * b.elems[i].f
	}
	return Float(a.typ.Elem.Scalar, sum)
}

// MatVec returns m * v for a square column-major matrix and a vector.
func MatVec(m, v Value) Value {
	dim := m.typ.Count
	if m.typ.Kind != ir.KindMatrix || v.typ.Kind != ir.KindVector || v.typ.Count != dim {
		panic(fmt.Sprintf("value.MatVec: bad operands %s, %s", m.typ, v.typ))
	}
	kind := m.typ.Elem.Scalar
	lanes := make([]Value, dim)
	for r := 0; r < dim; r++ {
		sum := 0.0
		for c := 0; c < dim; c++ {
			sum += m.elems[c*dim+r].f * v.elems[c].f
		}
		lanes[r] = Float(kind, sum)
	}
	return Value{typ: ir.VectorType(kind, dim), elems: lanes}
}

// VecMat returns v^T * m as a vector, the reverse-pass counterpart of
// MatVec.
func VecMat(v, m Value) Value {
	dim := m.typ.Count
	kind := m.typ.Elem.Scalar
	lanes := make([]Value, dim)
	for c := 0; c < dim; c++ {
		sum := 0.0
		for r := 0; r < dim; r++ {
			sum += v.elems[r].f * m.elems[c*dim+r].f
		}
		lanes[c] = Float(kind, sum)
	}
	return Value{typ: ir.VectorType(kind, dim), elems: lanes}
}

// MatMul returns the matrix product a * b of two equal square matrices.
func MatMul(a, b Value) Value {
	if a.typ.Kind != ir.KindMatrix || !a.typ.Equal(b.typ) {
		panic(fmt.Sprintf("value.MatMul: bad operands %s, %s", a.typ, b.typ))
	}
	dim := a.typ.Count
	kind := a.typ.Elem.Scalar
	lanes := make([]Value, dim*dim)
	for c := 0; c < dim; c++ {
		for r := 0; r < dim; r++ {
			sum := 0.0
			for k := 0; k < dim; k++ {
				sum += a.elems[k*dim+r].f * b.elems[c*dim+k].f
			}
			lanes[c*dim+r] = Float(kind, sum)
		}
	}
	return Value{typ: a.typ, elems: lanes}
}

// Transpose returns the matrix transpose.
func Transpose(m Value) Value {
	if m.typ.Kind != ir.KindMatrix {
		panic(fmt.Sprintf("value.Transpose: not a matrix: %s", m.typ))
	}
	dim := m.typ.Count
	lanes := make([]Value, dim*dim)
	for c := 0; c < dim; c++ {
		for r := 0; r < dim; r++ {
			lanes[r*dim+c] = m.elems[c*dim+r]
		}
	}
	return Value{typ: m.typ, elems: lanes}
}

// Outer returns the outer product a ⊗ b of two equal-length vectors as a
// column-major matrix: out[c*dim+r] = a[r] * b[c].
func Outer(a, b Value) Value {
	if a.typ.Kind != ir.KindVector || !a.typ.Equal(b.typ) {
		panic(fmt.Sprintf("value.Outer: bad operands %s, %s", a.typ, b.typ))
	}
	dim := a.typ.Count
	kind := a.typ.Elem.Scalar
	lanes := make([]Value, dim*dim)
	for c := 0; c < dim; c++ {
		for r := 0; r < dim; r++ {
			lanes[c*dim+r] = Float(kind, a.elems[r].f*b.elems[c].f)
		}
	}
	return Matrix(kind, dim, lanes)
}

// Compare applies a comparison opcode to two scalars, returning a bool.
func Compare(op ir.OpCode, a, b Value) Value {
	var lt, eq bool
	switch {
	case a.typ.Scalar == ir.Bool:
		lt, eq = false, a.b == b.b
	case a.typ.Scalar.IsFloat():
		lt, eq = a.f < b.f, a.f == b.f
	case a.typ.Scalar.IsUnsigned():
		lt, eq = uint64(a.i) < uint64(b.i), a.i == b.i
	default:
		lt, eq = a.i < b.i, a.i == b.i
	}
	switch op {
	case ir.OpEq:
		return Bool(eq)
	case ir.OpNe:
		return Bool(!eq)
	case ir.OpLt:
		return Bool(lt)
	case ir.OpLe:
		return Bool(lt || eq)
	case ir.OpGt:
		return Bool(!lt && !eq)
	case ir.OpGe:
		return Bool(!lt)
	default:
		panic(fmt.Sprintf("value.Compare: not a comparison: %s", op))
	}
}

// Cast converts a numeric scalar to another numeric scalar kind.
func Cast(to ir.ScalarKind, a Value) Value {
	if to.IsFloat() {
		return Float(to, a.AsFloat())
	}
	if a.typ.Scalar.IsFloat() {
		return Int(to, int64(a.f))
	}
	return Int(to, a.i)
}
