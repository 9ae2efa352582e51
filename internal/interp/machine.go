package interp

import (
	"fmt"
	"slices"

	"github.com/lumen-compute/lumen/internal/autodiff"
	"github.com/lumen-compute/lumen/internal/ir"
	"github.com/lumen-compute/lumen/internal/value"
)

// HostFunc implements an OpCustomCall opcode on the host at dispatch time.
type HostFunc func(args []value.Value) (value.Value, error)

// machine evaluates one work item: a private register file indexed by node
// id, the item's coordinate, and an optional autodiff activation. Nothing
// here is shared between items except the externally owned resources.
type machine struct {
	g     *ir.Graph
	regs  []value.Value
	args  []value.Value
	caps  []Resource
	coord [3]int
	act   *autodiff.Activation
	haz   *hazardJournal
	hosts map[string]HostFunc

	cur *ir.Node // instruction being evaluated, for trap context
}

// trapPanic and fatalPanic unwind one item's evaluation. A trap kills only
// the item; a fatal error (an autodiff misuse, a broken binding) kills the
// whole dispatch.
type (
	trapPanic  struct{ t *Trap }
	fatalPanic struct{ err error }
)

func (m *machine) trapf(kind TrapKind, offset int64, format string, args ...any) *Trap {
	t := &Trap{
		Kind:    kind,
		Coord:   m.coord,
		Offset:  offset,
		Message: fmt.Sprintf(format, args...),
	}
	if m.cur != nil {
		t.Loc = m.cur.Loc()
		t.AuthorStack = m.cur.Trace()
	}
	return t
}

func (m *machine) trap(kind TrapKind, offset int64, format string, args ...any) {
	panic(trapPanic{m.trapf(kind, offset, format, args...)})
}

func (m *machine) fatal(err error) {
	panic(fatalPanic{err})
}

// run executes the item to completion. It returns the item's trap, if any,
// and a dispatch-fatal error, if any; at most one is non-nil.
func (m *machine) run() (trap *Trap, fatal error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		switch p := r.(type) {
		case trapPanic:
			trap = p.t
		case fatalPanic:
			fatal = p.err
		default:
			trap = m.trapf(TrapInternal, 0, "%v", p)
		}
	}()

	cur := m.g.Entry()
	prev := ir.InvalidBlockID
	for {
		blk := m.g.BlockByID(cur)
		advanced := false
		for _, id := range blk.Nodes() {
			n := m.g.NodeByID(id)
			m.cur = n
			if n.Op().IsTerminator() {
				taken, done := m.terminate(n)
				if done {
					return nil, nil
				}
				prev, cur = cur, n.Targets()[taken]
				advanced = true
				break
			}

			incoming := -1
			var v value.Value
			if n.Op() == ir.OpPhi {
				incoming = slices.Index(n.Incoming(), prev)
				if incoming < 0 {
					m.fatal(fmt.Errorf("interp: phi v%d has no edge from b%d", n.ID(), prev))
				}
				v = m.regs[n.Operands()[incoming]]
			} else {
				v = m.eval(n)
			}
			m.regs[id] = v
			if m.act != nil {
				m.act.Tape().Record(n, v, incoming)
			}
		}
		if !advanced {
			m.fatal(fmt.Errorf("interp: block b%d fell through without a terminator", blk.ID()))
		}
	}
}

// terminate evaluates a terminator, records the decision on the tape, and
// returns the taken target index, or done=true for Return.
func (m *machine) terminate(n *ir.Node) (taken int, done bool) {
	switch n.Op() {
	case ir.OpReturn:
		if m.act != nil {
			m.act.Tape().Record(n, value.Value{}, -1)
		}
		return 0, true
	case ir.OpJump:
		taken = 0
	case ir.OpCondBranch:
		taken = 1
		if m.regs[n.Operands()[0]].AsBool() {
			taken = 0
		}
	case ir.OpSwitch:
		tag := m.regs[n.Operands()[0]].AsInt()
		taken = -1
		for i, c := range n.Cases() {
			if c == tag {
				taken = i
				break
			}
		}
		if taken < 0 {
			if len(n.Targets()) > len(n.Cases()) {
				taken = len(n.Targets()) - 1 // default arm
			} else {
				// Exhaustive switch emitted by a closed dispatch
				// registry; a foreign tag means corrupt input.
				m.trap(TrapInvalidTag, tag, "tag %d matches no registered type", tag)
			}
		}
	default:
		m.fatal(fmt.Errorf("interp: unexpected terminator %s", n.Op()))
	}
	if m.act != nil {
		m.act.Tape().Record(n, value.Value{}, taken)
	}
	return taken, false
}

// buffer resolves a resource operand to its bound Buffer. Resources only
// originate from captures, so anything else is a broken graph.
func (m *machine) buffer(id ir.NodeID) *Buffer {
	r := m.capture(id)
	buf, ok := r.(*Buffer)
	if !ok {
		m.fatal(fmt.Errorf("interp: capture bound to %T where a buffer is required", r))
	}
	return buf
}

func (m *machine) bindless(id ir.NodeID) *BindlessTable {
	r := m.capture(id)
	tbl, ok := r.(*BindlessTable)
	if !ok {
		m.fatal(fmt.Errorf("interp: capture bound to %T where a bindless table is required", r))
	}
	return tbl
}

func (m *machine) capture(id ir.NodeID) Resource {
	n := m.g.NodeByID(id)
	if n.Op() != ir.OpCapture {
		m.fatal(fmt.Errorf("interp: resource operand v%d is not a capture", id))
	}
	return m.caps[n.AuxInt()]
}

// checkBounds traps unless 0 <= idx < n.
func (m *machine) checkBounds(idx int64, n int, what string) {
	if idx < 0 || idx >= int64(n) {
		m.trap(TrapOutOfBounds, idx, "%s index %d outside extent %d", what, idx, n)
	}
}

func (m *machine) eval(n *ir.Node) value.Value {
	op := func(i int) value.Value { return m.regs[n.Operands()[i]] }

	switch n.Op() {
	case ir.OpConst:
		return value.FromConst(n.Type(), n.ConstValue())
	case ir.OpArg:
		return m.args[n.AuxInt()]
	case ir.OpCapture:
		// Resource handle; flows by node id, never by value.
		return value.Value{}
	case ir.OpDispatchID:
		return value.Int(ir.Uint32, int64(m.coord[n.AuxInt()]))

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
		i := int(n.AuxInt())
		if agg.Type().Kind == ir.KindMatrix {
			dim := agg.Type().Count
			e := op(1)
			for r := 0; r < dim; r++ {
				agg = agg.WithLane(i*dim+r, e.Lane(r))
			}
			return agg
		}
		return agg.WithLane(i, op(1))

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
		return value.Cast(n.Type().Scalar, op(0))

	case ir.OpLoad:
		buf := m.buffer(n.Operands()[0])
		idx := op(1).AsInt()
		m.checkBounds(idx, buf.Len(), "buffer")
		return buf.At(int(idx))
	case ir.OpStore:
		buf := m.buffer(n.Operands()[0])
		idx := op(1).AsInt()
		m.checkBounds(idx, buf.Len(), "buffer")
		m.haz.noteWrite(buf, idx, m.coord, n.Loc())
		buf.Set(int(idx), op(2))
		return value.Value{}
	case ir.OpBufferLen:
		buf := m.buffer(n.Operands()[0])
		return value.Int(n.Type().Scalar, int64(buf.Len()))

	case ir.OpBindlessLoad, ir.OpBindlessStore:
		tbl := m.bindless(n.Operands()[0])
		slot := op(1).AsInt()
		m.checkBounds(slot, tbl.NumSlots(), "bindless slot")
		buf := tbl.Slot(int(slot))
		if buf == nil {
			m.trap(TrapOutOfBounds, slot, "bindless slot %d is empty", slot)
		}
		want := n.Type()
		if n.Op() == ir.OpBindlessStore {
			want = m.g.NodeByID(n.Operands()[3]).Type()
		}
		if !buf.Elem().Equal(want) {
			m.trap(TrapTypeMismatch, slot,
				"bindless slot %d holds %s, access expects %s", slot, buf.Elem(), want)
		}
		idx := op(2).AsInt()
		m.checkBounds(idx, buf.Len(), "bindless element")
		if n.Op() == ir.OpBindlessStore {
			m.haz.noteWrite(buf, idx, m.coord, n.Loc())
			buf.Set(int(idx), op(3))
			return value.Value{}
		}
		return buf.At(int(idx))

	case ir.OpAtomicAdd:
		buf := m.buffer(n.Operands()[0])
		idx := op(1).AsInt()
		m.checkBounds(idx, buf.Len(), "buffer")
		return buf.AtomicAdd(int(idx), op(2))
	case ir.OpAtomicCAS:
		buf := m.buffer(n.Operands()[0])
		idx := op(1).AsInt()
		m.checkBounds(idx, buf.Len(), "buffer")
		return buf.AtomicCAS(int(idx), op(2), op(3))
	case ir.OpBarrier:
		// Work items are fully independent here; cross-item ordering is
		// already provided by the atomics' buffer lock.
		return value.Value{}

	case ir.OpCustomCall:
		fn, ok := m.hosts[n.Sym()]
		if !ok {
			m.trap(TrapHostCall, 0, "host function %q is not bound", n.Sym())
		}
		args := make([]value.Value, len(n.Operands()))
		for i := range args {
			args[i] = op(i)
		}
		v, err := fn(args)
		if err != nil {
			m.trap(TrapHostCall, 0, "host function %q: %v", n.Sym(), err)
		}
		return v

	case ir.OpRequiresGrad:
		if m.act != nil {
			m.act.RequiresGrad(n.Operands()[0])
		}
		return value.Value{}
	case ir.OpBackward:
		if m.act == nil {
			m.fatal(fmt.Errorf("interp: backward without an autodiff activation"))
		}
		if err := m.act.RunBackward(m.g, n.Operands()[0]); err != nil {
			m.fatal(err)
		}
		return value.Value{}
	case ir.OpGradient:
		if m.act == nil {
			m.fatal(fmt.Errorf("interp: gradient without an autodiff activation"))
		}
		v, err := m.act.Gradient(n.Operands()[0], n.Type())
		if err != nil {
			m.fatal(err)
		}
		return v

	default:
		m.fatal(fmt.Errorf("interp: opcode %s is not executable", n.Op()))
		return value.Value{}
	}
}
