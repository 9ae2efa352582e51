package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-compute/lumen/internal/ir"
)

func f32(v float64) Value { return Float(ir.Float32, v) }

func vec3(x, y, z float64) Value {
	return Vector(ir.Float32, f32(x), f32(y), f32(z))
}

func mat2(colMajor ...float64) Value {
	lanes := make([]Value, len(colMajor))
	for i, v := range colMajor {
		lanes[i] = f32(v)
	}
	return Matrix(ir.Float32, 2, lanes)
}

func TestArithmetic_Scalars(t *testing.T) {
	assert.Equal(t, 5.0, Add(f32(2), f32(3)).AsFloat())
	assert.Equal(t, -1.0, Sub(f32(2), f32(3)).AsFloat())
	assert.Equal(t, 6.0, Mul(f32(2), f32(3)).AsFloat())
	assert.Equal(t, 2.5, Div(f32(5), f32(2)).AsFloat())
	assert.Equal(t, 2.0, Min(f32(2), f32(3)).AsFloat())
	assert.Equal(t, 3.0, Max(f32(2), f32(3)).AsFloat())
	assert.Equal(t, 8.0, Pow(f32(2), f32(3)).AsFloat())
	assert.Equal(t, -2.0, Neg(f32(2)).AsFloat())
	assert.Equal(t, 2.0, Abs(f32(-2)).AsFloat())

	i32 := func(v int64) Value { return Int(ir.Int32, v) }
	assert.Equal(t, int64(7), Add(i32(3), i32(4)).AsInt())
	assert.Equal(t, int64(-2), Div(i32(-7), i32(3)).AsInt())
	assert.Equal(t, int64(3), Abs(i32(-3)).AsInt())
}

// Float division by zero follows IEEE semantics; integer division by zero
// panics so the interpreter can trap the offending item.
func TestDiv_ByZero(t *testing.T) {
	assert.True(t, math.IsInf(Div(f32(1), f32(0)).AsFloat(), 1))
	assert.Panics(t, func() { Div(Int(ir.Int32, 1), Int(ir.Int32, 0)) })
}

func TestArithmetic_Lanewise(t *testing.T) {
	got := Add(vec3(1, 2, 3), vec3(10, 20, 30))
	assert.True(t, got.Equal(vec3(11, 22, 33)))

	got = Mul(mat2(1, 2, 3, 4), mat2(2, 2, 2, 2))
	assert.True(t, got.Equal(mat2(2, 4, 6, 8)))
}

func TestTranscendentals(t *testing.T) {
	assert.InDelta(t, 2.0, Sqrt(f32(4)).AsFloat(), 1e-6)
	assert.InDelta(t, math.E, Exp(f32(1)).AsFloat(), 1e-6)
	assert.InDelta(t, 1.0, Log(Float(ir.Float64, math.E)).AsFloat(), 1e-12)
	assert.InDelta(t, 0.0, Sin(f32(0)).AsFloat(), 1e-6)
	assert.InDelta(t, 1.0, Cos(f32(0)).AsFloat(), 1e-6)
	assert.Panics(t, func() { Sqrt(Int(ir.Int32, 4)) })
}

func TestDot(t *testing.T) {
	got := Dot(vec3(1, 2, 3), vec3(4, 5, 6))
	assert.InDelta(t, 32.0, got.AsFloat(), 1e-6)
	assert.Panics(t, func() { Dot(f32(1), f32(2)) })
}

// Matrix lanes are column-major: mat2(a, b, c, d) is the matrix
//
//	| a c |
//	| b d |
func TestMatVec_ColumnMajor(t *testing.T) {
	m := mat2(1, 2, 3, 4)
	v := Vector(ir.Float32, f32(1), f32(1))

	mv := MatVec(m, v)
	assert.InDelta(t, 4.0, mv.Lane(0).AsFloat(), 1e-6) // 1+3
	assert.InDelta(t, 6.0, mv.Lane(1).AsFloat(), 1e-6) // 2+4

	vm := VecMat(v, m)
	assert.InDelta(t, 3.0, vm.Lane(0).AsFloat(), 1e-6) // 1+2
	assert.InDelta(t, 7.0, vm.Lane(1).AsFloat(), 1e-6) // 3+4
}

func TestMatMul(t *testing.T) {
	a := mat2(1, 2, 3, 4)
	id := mat2(1, 0, 0, 1)
	assert.True(t, MatMul(a, id).Equal(a))
	assert.True(t, MatMul(id, a).Equal(a))

	// | 1 3 | * | 5 7 |   | 5+18 7+24 |   | 23 31 |
	// | 2 4 |   | 6 8 | = | 10+24 14+32 | = | 34 46 |
	got := MatMul(a, mat2(5, 6, 7, 8))
	assert.True(t, got.Equal(mat2(23, 34, 31, 46)))
}

func TestTransposeAndOuter(t *testing.T) {
	m := mat2(1, 2, 3, 4)
	tr := Transpose(m)
	assert.True(t, tr.Equal(mat2(1, 3, 2, 4)))
	assert.True(t, Transpose(tr).Equal(m))

	a := Vector(ir.Float32, f32(1), f32(2))
	b := Vector(ir.Float32, f32(3), f32(4))
	// out[c*dim+r] = a[r] * b[c]
	got := Outer(a, b)
	assert.True(t, got.Equal(mat2(3, 6, 4, 8)))
}

func TestScale(t *testing.T) {
	got := Scale(f32(2), vec3(1, 2, 3))
	assert.True(t, got.Equal(vec3(2, 4, 6)))
}

func TestCompare(t *testing.T) {
	tests := []struct {
		op   ir.OpCode
		a, b Value
		want bool
	}{
		{ir.OpEq, f32(1), f32(1), true},
		{ir.OpNe, f32(1), f32(2), true},
		{ir.OpLt, f32(1), f32(2), true},
		{ir.OpLe, f32(2), f32(2), true},
		{ir.OpGt, f32(1), f32(2), false},
		{ir.OpGe, f32(2), f32(2), true},
		{ir.OpLt, Int(ir.Int32, -1), Int(ir.Int32, 1), true},
		// Unsigned comparison: 0xffffffff is large, not -1.
		{ir.OpLt, Int(ir.Uint32, -1), Int(ir.Uint32, 1), false},
		{ir.OpEq, Bool(true), Bool(true), true},
	}
	for _, tt := range tests {
		got := Compare(tt.op, tt.a, tt.b)
		require.Equal(t, tt.want, got.AsBool(), "%s %s %s", tt.a, tt.op, tt.b)
	}
}

func TestCast(t *testing.T) {
	assert.Equal(t, int64(3), Cast(ir.Int32, f32(3.7)).AsInt())
	assert.Equal(t, 3.0, Cast(ir.Float64, Int(ir.Int32, 3)).AsFloat())
	assert.InDelta(t, 1.0/3.0, Cast(ir.Float32, Float(ir.Float64, 1.0/3.0)).AsFloat(), 1e-7)
}

func TestMismatchedOperandsPanic(t *testing.T) {
	assert.Panics(t, func() { Add(f32(1), Int(ir.Int32, 1)) })
	assert.Panics(t, func() { Add(vec3(1, 2, 3), f32(1)) })
}
