package autodiff_test

import (
	"slices"
	"testing"

	"github.com/lumen-compute/lumen/internal/autodiff"
	"github.com/lumen-compute/lumen/internal/ir"
	"github.com/lumen-compute/lumen/internal/value"
)

// runForward is a minimal single-item evaluator for the tests in this
// package: it walks the block graph, computes register values, and records
// every executed node on the activation's tape, exactly the contract the
// dispatch machine honors. Memory ops are out of scope here; the end-to-end
// path through buffers is covered by the interpreter tests.
func runForward(t *testing.T, g *ir.Graph, act *autodiff.Activation, args []value.Value) value.Value {
	t.Helper()

	regs := make([]value.Value, g.NumNodes())
	cur := g.Entry()
	prev := ir.InvalidBlockID
	const maxSteps = 100000

	for steps := 0; ; steps++ {
		if steps > maxSteps {
			t.Fatalf("forward evaluation did not terminate")
		}
		blk := g.BlockByID(cur)
		for _, id := range blk.Nodes() {
			n := g.NodeByID(id)
			if n.Op().IsTerminator() {
				switch n.Op() {
				case ir.OpReturn:
					act.Tape().Record(n, value.Value{}, -1)
					if ops := n.Operands(); len(ops) > 0 {
						return regs[ops[0]]
					}
					return value.Value{}
				case ir.OpJump:
					act.Tape().Record(n, value.Value{}, 0)
					prev, cur = cur, n.Targets()[0]
				case ir.OpCondBranch:
					taken := 1
					if regs[n.Operands()[0]].AsBool() {
						taken = 0
					}
					act.Tape().Record(n, value.Value{}, taken)
					prev, cur = cur, n.Targets()[taken]
				case ir.OpSwitch:
					tag := regs[n.Operands()[0]].AsInt()
					taken := len(n.Cases()) // default target is last
					for i, c := range n.Cases() {
						if c == tag {
							taken = i
							break
						}
					}
					act.Tape().Record(n, value.Value{}, taken)
					prev, cur = cur, n.Targets()[taken]
				}
				break
			}

			incoming := -1
			var v value.Value
			if n.Op() == ir.OpPhi {
				incoming = slices.Index(n.Incoming(), prev)
				if incoming < 0 {
					t.Fatalf("phi v%d has no edge from b%d", n.ID(), prev)
				}
				v = regs[n.Operands()[incoming]]
			} else {
				v = evalNode(t, g, act, n, regs, args)
			}
			regs[id] = v
			act.Tape().Record(n, v, incoming)
		}
	}
}

func evalNode(t *testing.T, g *ir.Graph, act *autodiff.Activation, n *ir.Node, regs []value.Value, args []value.Value) value.Value {
	t.Helper()
	op := func(i int) value.Value { return regs[n.Operands()[i]] }

	switch n.Op() {
	case ir.OpConst:
		return value.FromConst(n.Type(), n.ConstValue())
	case ir.OpArg:
		return args[n.AuxInt()]
	case ir.OpDispatchID:
		return value.Int(ir.Uint32, 0)
	case ir.OpAdd:
		return value.Add(op(0), op(1))
	case ir.OpSub:
		return value.Sub(op(0), op(1))
	case ir.OpMul:
		return value.Mul(op(0), op(1))
	case ir.OpDiv:
		return value.Div(op(0), op(1))
	case ir.OpMin:
		return value.Min(op(0), op(1))
	case ir.OpMax:
		return value.Max(op(0), op(1))
	case ir.OpPow:
		return value.Pow(op(0), op(1))
	case ir.OpNeg:
		return value.Neg(op(0))
	case ir.OpAbs:
		return value.Abs(op(0))
	case ir.OpSqrt:
		return value.Sqrt(op(0))
	case ir.OpExp:
		return value.Exp(op(0))
	case ir.OpLog:
		return value.Log(op(0))
	case ir.OpSin:
		return value.Sin(op(0))
	case ir.OpCos:
		return value.Cos(op(0))
	case ir.OpDot:
		return value.Dot(op(0), op(1))
	case ir.OpMatVec:
		return value.MatVec(op(0), op(1))
	case ir.OpMatMul:
		return value.MatMul(op(0), op(1))
	case ir.OpTranspose:
		return value.Transpose(op(0))
	case ir.OpOuter:
		return value.Outer(op(0), op(1))
	case ir.OpMakeVector:
		lanes := make([]value.Value, len(n.Operands()))
		for i := range lanes {
			lanes[i] = op(i)
		}
		return value.Vector(n.Type().Elem.Scalar, lanes...)
	case ir.OpMakeMatrix:
		dim := n.Type().Count
		lanes := make([]value.Value, 0, dim*dim)
		for c := 0; c < dim; c++ {
			lanes = append(lanes, op(c).Lanes()...)
		}
		return value.Matrix(n.Type().Elem.Scalar, dim, lanes)
	case ir.OpExtract:
		agg := op(0)
		if agg.Type().Kind == ir.KindMatrix {
			return agg.Column(int(n.AuxInt()))
		}
		return agg.Lane(int(n.AuxInt()))
	case ir.OpInsert:
		agg := op(0)
		return agg.WithLane(int(n.AuxInt()), op(1))
	case ir.OpEq, ir.OpNe, ir.OpLt, ir.OpLe, ir.OpGt, ir.OpGe:
		return value.Compare(n.Op(), op(0), op(1))
	case ir.OpNot:
		return value.Bool(!op(0).AsBool())
	case ir.OpAnd:
		return value.Bool(op(0).AsBool() && op(1).AsBool())
	case ir.OpOr:
		return value.Bool(op(0).AsBool() || op(1).AsBool())
	case ir.OpSelect:
		if op(0).AsBool() {
			return op(1)
		}
		return op(2)
	case ir.OpCast:
		to := n.Type().Scalar
		return value.Cast(to, op(0))
	case ir.OpCustomCall:
		// Opaque host call; the tests only care that the reverse pass
		// refuses to differentiate through it.
		return value.Zero(n.Type())
	case ir.OpRequiresGrad:
		act.RequiresGrad(n.Operands()[0])
		return value.Value{}
	case ir.OpBackward:
		if err := act.RunBackward(g, n.Operands()[0]); err != nil {
			t.Fatalf("backward: %v", err)
		}
		return value.Value{}
	case ir.OpGradient:
		v, err := act.Gradient(n.Operands()[0], n.Type())
		if err != nil {
			t.Fatalf("gradient: %v", err)
		}
		return v
	default:
		t.Fatalf("evaluator does not handle %s", n.Op())
		return value.Value{}
	}
}
