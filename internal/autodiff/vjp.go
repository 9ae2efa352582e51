package autodiff

import (
	"github.com/lumen-compute/lumen/internal/ir"
	"github.com/lumen-compute/lumen/internal/value"
)

// vjpRule computes the vector-Jacobian products of one recorded step: given
// the adjoint of the step's result it returns one contribution per operand
// (zero Value for operands that receive no gradient). Operand values come
// from the tape, so rules see exactly what the forward pass saw.
type vjpRule func(n *ir.Node, st Step, adj value.Value, t *Tape) []value.Value

// gradLeaf lists opcodes the reverse pass stops at without a rule: constants,
// kernel inputs, and memory reads. Gradients do not flow through memory; a
// loaded value is a fresh leaf and must be marked itself to request its
// gradient. CustomCall is deliberately absent so an opaque host call on the
// differentiated path reports ErrMissingVJP instead of a silent zero.
var gradLeaf = map[ir.OpCode]bool{
	ir.OpConst:         true,
	ir.OpArg:           true,
	ir.OpCapture:       true,
	ir.OpDispatchID:    true,
	ir.OpBufferLen:     true,
	ir.OpLoad:          true,
	ir.OpBindlessLoad:  true,
	ir.OpAtomicAdd:     true,
	ir.OpAtomicCAS:     true,
	ir.OpStore:         true,
	ir.OpBindlessStore: true,
	ir.OpBarrier:       true,
	ir.OpEq:            true,
	ir.OpNe:            true,
	ir.OpLt:            true,
	ir.OpLe:            true,
	ir.OpGt:            true,
	ir.OpGe:            true,
	ir.OpNot:           true,
	ir.OpAnd:           true,
	ir.OpOr:            true,
	ir.OpRequiresGrad:  true,
	ir.OpBackward:      true,
	ir.OpGradient:      true,
	ir.OpJump:          true,
	ir.OpCondBranch:    true,
	ir.OpSwitch:        true,
	ir.OpReturn:        true,
}

var vjpRules = map[ir.OpCode]vjpRule{
	ir.OpAdd: func(n *ir.Node, st Step, adj value.Value, t *Tape) []value.Value {
		return []value.Value{adj, adj}
	},
	ir.OpSub: func(n *ir.Node, st Step, adj value.Value, t *Tape) []value.Value {
		return []value.Value{adj, value.Neg(adj)}
	},
	ir.OpMul: func(n *ir.Node, st Step, adj value.Value, t *Tape) []value.Value {
		x, y := t.OperandValue(st, 0), t.OperandValue(st, 1)
		return []value.Value{value.Mul(adj, y), value.Mul(adj, x)}
	},
	ir.OpDiv: func(n *ir.Node, st Step, adj value.Value, t *Tape) []value.Value {
		x, y := t.OperandValue(st, 0), t.OperandValue(st, 1)
		gx := value.Div(adj, y)
		gy := value.Neg(value.Div(value.Mul(adj, x), value.Mul(y, y)))
		return []value.Value{gx, gy}
	},
	ir.OpMin: func(n *ir.Node, st Step, adj value.Value, t *Tape) []value.Value {
		return chooseVJP(st, adj, t, func(x, y float64) bool { return x <= y })
	},
	ir.OpMax: func(n *ir.Node, st Step, adj value.Value, t *Tape) []value.Value {
		return chooseVJP(st, adj, t, func(x, y float64) bool { return x >= y })
	},
	ir.OpPow: func(n *ir.Node, st Step, adj value.Value, t *Tape) []value.Value {
		x, y := t.OperandValue(st, 0), t.OperandValue(st, 1)
		one := fill(y.Type(), 1)
		gx := value.Mul(adj, value.Mul(y, value.Pow(x, value.Sub(y, one))))
		gy := value.Mul(adj, value.Mul(st.Value, value.Log(x)))
		return []value.Value{gx, gy}
	},
	ir.OpNeg: func(n *ir.Node, st Step, adj value.Value, t *Tape) []value.Value {
		return []value.Value{value.Neg(adj)}
	},
	ir.OpAbs: func(n *ir.Node, st Step, adj value.Value, t *Tape) []value.Value {
		x := t.OperandValue(st, 0)
		return []value.Value{value.Mul(adj, lanewise(x, signOf))}
	},
	ir.OpSqrt: func(n *ir.Node, st Step, adj value.Value, t *Tape) []value.Value {
		// d sqrt(x) = adj / (2 * sqrt(x)); the forward result is reused.
		two := value.Float(scalarKind(st.Value.Type()), 2)
		return []value.Value{value.Div(adj, value.Scale(two, st.Value))}
	},
	ir.OpExp: func(n *ir.Node, st Step, adj value.Value, t *Tape) []value.Value {
		return []value.Value{value.Mul(adj, st.Value)}
	},
	ir.OpLog: func(n *ir.Node, st Step, adj value.Value, t *Tape) []value.Value {
		return []value.Value{value.Div(adj, t.OperandValue(st, 0))}
	},
	ir.OpSin: func(n *ir.Node, st Step, adj value.Value, t *Tape) []value.Value {
		return []value.Value{value.Mul(adj, value.Cos(t.OperandValue(st, 0)))}
	},
	ir.OpCos: func(n *ir.Node, st Step, adj value.Value, t *Tape) []value.Value {
		return []value.Value{value.Neg(value.Mul(adj, value.Sin(t.OperandValue(st, 0))))}
	},

	ir.OpDot: func(n *ir.Node, st Step, adj value.Value, t *Tape) []value.Value {
		x, y := t.OperandValue(st, 0), t.OperandValue(st, 1)
		return []value.Value{value.Scale(adj, y), value.Scale(adj, x)}
	},
	ir.OpMatVec: func(n *ir.Node, st Step, adj value.Value, t *Tape) []value.Value {
		m, v := t.OperandValue(st, 0), t.OperandValue(st, 1)
		return []value.Value{value.Outer(adj, v), value.VecMat(adj, m)}
	},
	ir.OpMatMul: func(n *ir.Node, st Step, adj value.Value, t *Tape) []value.Value {
		a, b := t.OperandValue(st, 0), t.OperandValue(st, 1)
		ga := value.MatMul(adj, value.Transpose(b))
		gb := value.MatMul(value.Transpose(a), adj)
		return []value.Value{ga, gb}
	},
	ir.OpTranspose: func(n *ir.Node, st Step, adj value.Value, t *Tape) []value.Value {
		return []value.Value{value.Transpose(adj)}
	},
	ir.OpOuter: func(n *ir.Node, st Step, adj value.Value, t *Tape) []value.Value {
		a, b := t.OperandValue(st, 0), t.OperandValue(st, 1)
		return []value.Value{value.MatVec(adj, b), value.VecMat(a, adj)}
	},

	ir.OpMakeVector: func(n *ir.Node, st Step, adj value.Value, t *Tape) []value.Value {
		out := make([]value.Value, len(n.Operands()))
		for i := range out {
			out[i] = adj.Lane(i)
		}
		return out
	},
	ir.OpMakeMatrix: func(n *ir.Node, st Step, adj value.Value, t *Tape) []value.Value {
		out := make([]value.Value, len(n.Operands()))
		for c := range out {
			out[c] = adj.Column(c)
		}
		return out
	},
	ir.OpExtract: func(n *ir.Node, st Step, adj value.Value, t *Tape) []value.Value {
		agg := t.OperandValue(st, 0)
		if agg.IsZero() {
			return nil
		}
		return []value.Value{oneHot(agg.Type(), int(n.AuxInt()), adj)}
	},
	ir.OpInsert: func(n *ir.Node, st Step, adj value.Value, t *Tape) []value.Value {
		i := int(n.AuxInt())
		elem := elemOf(adj, i)
		gagg := withElem(adj, i, value.Zero(elem.Type()))
		return []value.Value{gagg, elem}
	},

	ir.OpSelect: func(n *ir.Node, st Step, adj value.Value, t *Tape) []value.Value {
		out := make([]value.Value, 3)
		if t.OperandValue(st, 0).AsBool() {
			out[1] = adj
		} else {
			out[2] = adj
		}
		return out
	},
	ir.OpCast: func(n *ir.Node, st Step, adj value.Value, t *Tape) []value.Value {
		x := t.OperandValue(st, 0)
		// Only float-to-float casts carry gradient; integer boundaries cut it.
		if x.IsZero() || !x.Type().IsFloat() || !n.Type().IsFloat() {
			return nil
		}
		return []value.Value{value.Cast(scalarKind(x.Type()), adj)}
	},
	ir.OpPhi: func(n *ir.Node, st Step, adj value.Value, t *Tape) []value.Value {
		out := make([]value.Value, len(n.Operands()))
		if st.Incoming >= 0 && st.Incoming < len(out) {
			out[st.Incoming] = adj
		}
		return out
	},
}

// chooseVJP routes the adjoint of a lanewise min/max to the operand that won
// each lane. Ties go to the first operand.
func chooseVJP(st Step, adj value.Value, t *Tape, first func(x, y float64) bool) []value.Value {
	x, y := t.OperandValue(st, 0), t.OperandValue(st, 1)
	maskX := binLanewise(x, y, func(a, b float64) float64 {
		if first(a, b) {
			return 1
		}
		return 0
	})
	maskY := binLanewise(x, y, func(a, b float64) float64 {
		if first(a, b) {
			return 0
		}
		return 1
	})
	return []value.Value{value.Mul(adj, maskX), value.Mul(adj, maskY)}
}

func signOf(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

// scalarKind returns the element scalar kind of a scalar, vector, or matrix
// type.
func scalarKind(t ir.Type) ir.ScalarKind {
	if t.Kind == ir.KindScalar {
		return t.Scalar
	}
	return t.Elem.Scalar
}

// fill builds a value of type t with every lane set to c.
func fill(t ir.Type, c float64) value.Value {
	switch t.Kind {
	case ir.KindScalar:
		return value.Float(t.Scalar, c)
	case ir.KindVector:
		lanes := make([]value.Value, t.Count)
		for i := range lanes {
			lanes[i] = value.Float(t.Elem.Scalar, c)
		}
		return value.Vector(t.Elem.Scalar, lanes...)
	case ir.KindMatrix:
		lanes := make([]value.Value, t.Count*t.Count)
		for i := range lanes {
			lanes[i] = value.Float(t.Elem.Scalar, c)
		}
		return value.Matrix(t.Elem.Scalar, t.Count, lanes)
	}
	panic("autodiff: fill of non-numeric type " + t.String())
}

// lanewise applies f over every lane of a float scalar, vector, or matrix.
func lanewise(a value.Value, f func(float64) float64) value.Value {
	t := a.Type()
	if t.Kind == ir.KindScalar {
		return value.Float(t.Scalar, f(a.AsFloat()))
	}
	lanes := make([]value.Value, a.NumLanes())
	for i := range lanes {
		lanes[i] = value.Float(t.Elem.Scalar, f(a.Lane(i).AsFloat()))
	}
	if t.Kind == ir.KindMatrix {
		return value.Matrix(t.Elem.Scalar, t.Count, lanes)
	}
	return value.Vector(t.Elem.Scalar, lanes...)
}

func binLanewise(a, b value.Value, f func(x, y float64) float64) value.Value {
	t := a.Type()
	if t.Kind == ir.KindScalar {
		return value.Float(t.Scalar, f(a.AsFloat(), b.AsFloat()))
	}
	lanes := make([]value.Value, a.NumLanes())
	for i := range lanes {
		lanes[i] = value.Float(t.Elem.Scalar, f(a.Lane(i).AsFloat(), b.Lane(i).AsFloat()))
	}
	if t.Kind == ir.KindMatrix {
		return value.Matrix(t.Elem.Scalar, t.Count, lanes)
	}
	return value.Vector(t.Elem.Scalar, lanes...)
}

// elemOf reads aggregate element i: a vector lane, matrix column, array
// element, or struct field.
func elemOf(v value.Value, i int) value.Value {
	if v.Type().Kind == ir.KindMatrix {
		return v.Column(i)
	}
	return v.Lane(i)
}

// withElem returns v with element i replaced.
func withElem(v value.Value, i int, e value.Value) value.Value {
	if v.Type().Kind == ir.KindMatrix {
		dim := v.Type().Count
		out := v
		for r := 0; r < dim; r++ {
			out = out.WithLane(i*dim+r, e.Lane(r))
		}
		return out
	}
	return v.WithLane(i, e)
}

// oneHot builds a zero aggregate of type t with element i set to e.
func oneHot(t ir.Type, i int, e value.Value) value.Value {
	return withElem(value.Zero(t), i, e)
}
