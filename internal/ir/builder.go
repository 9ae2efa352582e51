package ir

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

// Builder constructs a Graph one node at a time. It follows a deferred error
// model: the first construction error is stored (with the stack trace of the
// op that caused it) and every later operation becomes a no-op returning
// InvalidNodeID, so kernel-building code does not need to check each call.
// The error surfaces from Finish or Err.
//
// A Builder is single-threaded: one author builds one graph at a time.
type Builder struct {
	g      *Graph
	err    error
	cur    BlockID
	traced bool

	loops []loopFrame
	ifs   []ifFrame
}

type loopFrame struct {
	header BlockID
	exit   BlockID
	phis   []NodeID
}

type ifFrame struct {
	thenBlock BlockID
	elseBlock BlockID
	merge     BlockID
	thenExit  BlockID // block that ends the then arm; set by Else/EndIf
	hasElse   bool
}

// NewBuilder starts a new kernel graph with the given name.
func NewBuilder(name string) *Builder {
	b := &Builder{
		g:   &Graph{name: name, ret: Void},
		cur: InvalidBlockID,
	}
	b.g.entry = b.newBlock(InvalidBlockID)
	b.cur = b.g.entry
	return b
}

// SetTraced controls whether every appended node captures a host call-stack
// snapshot of its authoring site. Memory-access nodes always capture one so
// runtime traps stay diagnosable; tracing extends this to all nodes.
func (b *Builder) SetTraced(traced bool) { b.traced = traced }

// Err returns the first construction error, or nil.
func (b *Builder) Err() error { return b.err }

// SetErr latches an externally detected construction error, poisoning the
// builder the same way an internal failure would. Later errors are ignored.
func (b *Builder) SetErr(err error) { b.setErr(err) }

// setErr records the first construction error; later calls are ignored.
func (b *Builder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *Builder) fail(kind BuildErrorKind, format string, args ...any) NodeID {
	b.setErr(buildErrf(kind, format, args...))
	return InvalidNodeID
}

// newBlock creates a block with the given structural immediate dominator.
func (b *Builder) newBlock(idom BlockID) BlockID {
	id := BlockID(len(b.g.blocks))
	b.g.blocks = append(b.g.blocks, &Block{id: id, term: InvalidNodeID, idom: idom})
	return id
}

func (b *Builder) startBlock(id BlockID) { b.cur = id }

func (b *Builder) curBlock() *Block { return b.g.blocks[b.cur] }

// visible reports whether the definition block can be used from the current
// block, following the structural dominator chain maintained during
// construction. Finish re-validates with the real dominator tree.
func (b *Builder) visible(def BlockID) bool {
	for at := b.cur; ; {
		if at == def {
			return true
		}
		if at == b.g.entry || at == InvalidBlockID {
			return false
		}
		at = b.g.blocks[at].idom
	}
}

// SetArg declares a typed kernel argument and returns the node reading it.
func (b *Builder) SetArg(name string, t Type) NodeID {
	if b.err != nil {
		return InvalidNodeID
	}
	idx := int64(len(b.g.args))
	b.g.args = append(b.g.args, Param{Name: name, Type: t})
	return b.append(&Node{op: OpArg, typ: t, auxInt: idx})
}

// SetCapture declares a typed capture (externally bound resource) and returns
// the node reading it.
func (b *Builder) SetCapture(name string, t Type) NodeID {
	if b.err != nil {
		return InvalidNodeID
	}
	if !t.IsResource() {
		return b.fail(ErrTypeMismatch, "capture %q must be a resource type, got %s", name, t)
	}
	idx := int64(len(b.g.captures))
	b.g.captures = append(b.g.captures, Param{Name: name, Type: t})
	return b.append(&Node{op: OpCapture, typ: t, auxInt: idx})
}

// append registers the node in the graph and current block, capturing the
// authoring location.
func (b *Builder) append(n *Node) NodeID {
	if b.err != nil {
		return InvalidNodeID
	}
	if b.curBlock().Terminated() {
		return b.fail(ErrBadControl, "appending %s after block b%d was terminated", n.op, b.cur)
	}
	n.id = NodeID(len(b.g.nodes))
	n.block = b.cur
	n.loc = callerLoc()
	if b.traced || isMemoryOp(n.op) {
		n.trace = errors.New("authored at")
	}
	b.g.nodes = append(b.g.nodes, n)
	blk := b.curBlock()
	blk.nodes = append(blk.nodes, n.id)
	if n.op.IsTerminator() {
		blk.term = n.id
		blk.succs = append(blk.succs, n.targets...)
		for _, t := range n.targets {
			tb := b.g.blocks[t]
			tb.preds = append(tb.preds, b.cur)
		}
	}
	return n.id
}

func isMemoryOp(op OpCode) bool {
	switch op {
	case OpLoad, OpStore, OpBindlessLoad, OpBindlessStore, OpAtomicAdd, OpAtomicCAS:
		return true
	}
	return false
}

// operand resolves an operand id, checking existence and visibility from the
// insertion point.
func (b *Builder) operand(id NodeID) (*Node, bool) {
	if b.err != nil {
		return nil, false
	}
	if id < 0 || int(id) >= len(b.g.nodes) {
		b.fail(ErrMalformedSSA, "operand v%d does not exist", id)
		return nil, false
	}
	n := b.g.nodes[id]
	if n.block != b.cur && !b.visible(n.block) {
		b.fail(ErrMalformedSSA, "operand v%d (b%d) does not dominate the insertion point (b%d)",
			id, n.block, b.cur)
		return nil, false
	}
	return n, true
}

// Append adds a node with an explicit opcode and result type, validating
// operand visibility and the opcode signature. Most callers use the typed
// helper methods instead.
func (b *Builder) Append(op OpCode, typ Type, operands ...NodeID) NodeID {
	if b.err != nil {
		return InvalidNodeID
	}
	if want := op.arity(); want >= 0 && len(operands) != want {
		return b.fail(ErrTypeMismatch, "%s takes %d operands, got %d", op, want, len(operands))
	}
	types := make([]Type, len(operands))
	for i, id := range operands {
		n, ok := b.operand(id)
		if !ok {
			return InvalidNodeID
		}
		types[i] = n.typ
	}
	if err := checkSignature(op, typ, types); err != nil {
		b.setErr(err)
		return InvalidNodeID
	}
	return b.append(&Node{op: op, typ: typ, operands: operands})
}

// ---- Constants ----

// Const appends a typed constant. The value must be a bool, int64, uint64 or
// float64 matching the scalar type, or a []float64 of lane values for vector
// and matrix types (matrix lanes column-major).
func (b *Builder) Const(t Type, value any) NodeID {
	if b.err != nil {
		return InvalidNodeID
	}
	switch t.Kind {
	case KindScalar:
		switch value.(type) {
		case bool:
			if t.Scalar != Bool {
				return b.fail(ErrTypeMismatch, "bool constant for %s", t)
			}
		case int64:
			if !t.Scalar.IsInteger() {
				return b.fail(ErrTypeMismatch, "integer constant for %s", t)
			}
		case uint64:
			if !t.Scalar.IsUnsigned() {
				return b.fail(ErrTypeMismatch, "unsigned constant for %s", t)
			}
		case float64:
			if !t.Scalar.IsFloat() {
				return b.fail(ErrTypeMismatch, "float constant for %s", t)
			}
		default:
			return b.fail(ErrTypeMismatch, "unsupported constant %T for %s", value, t)
		}
	case KindVector, KindMatrix:
		lanes, ok := value.([]float64)
		if !ok || len(lanes) != t.Lanes() {
			return b.fail(ErrTypeMismatch, "constant for %s needs %d float lanes", t, t.Lanes())
		}
	default:
		return b.fail(ErrTypeMismatch, "cannot build a constant of type %s", t)
	}
	return b.append(&Node{op: OpConst, typ: t, constValue: value})
}

// ConstFloat appends a float scalar constant.
func (b *Builder) ConstFloat(kind ScalarKind, v float64) NodeID {
	return b.Const(ScalarType(kind), v)
}

// ConstInt appends an integer scalar constant.
func (b *Builder) ConstInt(kind ScalarKind, v int64) NodeID {
	if kind.IsUnsigned() {
		return b.Const(ScalarType(kind), uint64(v))
	}
	return b.Const(ScalarType(kind), v)
}

// ConstBool appends a bool constant.
func (b *Builder) ConstBool(v bool) NodeID {
	return b.Const(ScalarType(Bool), v)
}

// ConstVector appends a float vector constant from its lanes.
func (b *Builder) ConstVector(kind ScalarKind, lanes ...float64) NodeID {
	return b.Const(VectorType(kind, len(lanes)), lanes)
}

// ConstMatrix appends a square matrix constant from column-major lanes.
func (b *Builder) ConstMatrix(kind ScalarKind, dim int, colMajor []float64) NodeID {
	return b.Const(MatrixType(kind, dim), colMajor)
}

// ---- Typed op helpers ----

// DispatchID returns the work-item coordinate along the given axis (0..2) as
// a u32.
func (b *Builder) DispatchID(axis int) NodeID {
	if b.err != nil {
		return InvalidNodeID
	}
	if axis < 0 || axis > 2 {
		return b.fail(ErrTypeMismatch, "dispatch id axis must be 0..2, got %d", axis)
	}
	return b.append(&Node{op: OpDispatchID, typ: ScalarType(Uint32), auxInt: int64(axis)})
}

func (b *Builder) binary(op OpCode, x, y NodeID) NodeID {
	xn, ok := b.operand(x)
	if !ok {
		return InvalidNodeID
	}
	return b.Append(op, xn.typ, x, y)
}

func (b *Builder) unary(op OpCode, x NodeID) NodeID {
	xn, ok := b.operand(x)
	if !ok {
		return InvalidNodeID
	}
	return b.Append(op, xn.typ, x)
}

// Add appends x + y (elementwise for vectors and matrices).
func (b *Builder) Add(x, y NodeID) NodeID { return b.binary(OpAdd, x, y) }

// Sub appends x - y.
func (b *Builder) Sub(x, y NodeID) NodeID { return b.binary(OpSub, x, y) }

// Mul appends x * y (elementwise).
func (b *Builder) Mul(x, y NodeID) NodeID { return b.binary(OpMul, x, y) }

// Div appends x / y.
func (b *Builder) Div(x, y NodeID) NodeID { return b.binary(OpDiv, x, y) }

// Min appends min(x, y).
func (b *Builder) Min(x, y NodeID) NodeID { return b.binary(OpMin, x, y) }

// Max appends max(x, y).
func (b *Builder) Max(x, y NodeID) NodeID { return b.binary(OpMax, x, y) }

// Pow appends x^y.
func (b *Builder) Pow(x, y NodeID) NodeID { return b.binary(OpPow, x, y) }

// Neg appends -x.
func (b *Builder) Neg(x NodeID) NodeID { return b.unary(OpNeg, x) }

// Abs appends |x|.
func (b *Builder) Abs(x NodeID) NodeID { return b.unary(OpAbs, x) }

// Sqrt appends sqrt(x).
func (b *Builder) Sqrt(x NodeID) NodeID { return b.unary(OpSqrt, x) }

// Exp appends e^x.
func (b *Builder) Exp(x NodeID) NodeID { return b.unary(OpExp, x) }

// Log appends ln(x).
func (b *Builder) Log(x NodeID) NodeID { return b.unary(OpLog, x) }

// Sin appends sin(x).
func (b *Builder) Sin(x NodeID) NodeID { return b.unary(OpSin, x) }

// Cos appends cos(x).
func (b *Builder) Cos(x NodeID) NodeID { return b.unary(OpCos, x) }

// Dot appends the dot product of two equal-length float vectors.
func (b *Builder) Dot(x, y NodeID) NodeID {
	xn, ok := b.operand(x)
	if !ok {
		return InvalidNodeID
	}
	if xn.typ.Kind != KindVector {
		return b.fail(ErrTypeMismatch, "dot requires vectors, got %s", xn.typ)
	}
	return b.Append(OpDot, xn.typ.ElemType(), x, y)
}

// MatVec appends the matrix-vector product m * v.
func (b *Builder) MatVec(m, v NodeID) NodeID {
	mn, ok := b.operand(m)
	if !ok {
		return InvalidNodeID
	}
	if mn.typ.Kind != KindMatrix {
		return b.fail(ErrTypeMismatch, "matvec requires a matrix, got %s", mn.typ)
	}
	return b.Append(OpMatVec, VectorType(mn.typ.Elem.Scalar, mn.typ.Count), m, v)
}

// MatMul appends the matrix-matrix product x * y.
func (b *Builder) MatMul(x, y NodeID) NodeID { return b.binary(OpMatMul, x, y) }

// Transpose appends the matrix transpose.
func (b *Builder) Transpose(m NodeID) NodeID { return b.unary(OpTranspose, m) }

// Outer appends the outer product of two equal-length vectors, yielding a
// square matrix.
func (b *Builder) Outer(x, y NodeID) NodeID {
	xn, ok := b.operand(x)
	if !ok {
		return InvalidNodeID
	}
	if xn.typ.Kind != KindVector {
		return b.fail(ErrTypeMismatch, "outer requires vectors, got %s", xn.typ)
	}
	return b.Append(OpOuter, MatrixType(xn.typ.Elem.Scalar, xn.typ.Count), x, y)
}

// MakeVector builds a vector from 2..4 scalar lanes of the same kind.
func (b *Builder) MakeVector(lanes ...NodeID) NodeID {
	if b.err != nil {
		return InvalidNodeID
	}
	if len(lanes) < 2 || len(lanes) > 4 {
		return b.fail(ErrTypeMismatch, "make_vector takes 2..4 lanes, got %d", len(lanes))
	}
	first, ok := b.operand(lanes[0])
	if !ok {
		return InvalidNodeID
	}
	if !first.typ.IsScalar() {
		return b.fail(ErrTypeMismatch, "make_vector lanes must be scalars, got %s", first.typ)
	}
	return b.Append(OpMakeVector, VectorType(first.typ.Scalar, len(lanes)), lanes...)
}

// MakeMatrix builds a square matrix from its column vectors.
func (b *Builder) MakeMatrix(cols ...NodeID) NodeID {
	if b.err != nil {
		return InvalidNodeID
	}
	if len(cols) < 2 || len(cols) > 4 {
		return b.fail(ErrTypeMismatch, "make_matrix takes 2..4 columns, got %d", len(cols))
	}
	first, ok := b.operand(cols[0])
	if !ok {
		return InvalidNodeID
	}
	if first.typ.Kind != KindVector || first.typ.Count != len(cols) {
		return b.fail(ErrTypeMismatch, "make_matrix of %d columns needs vec%d columns, got %s",
			len(cols), len(cols), first.typ)
	}
	return b.Append(OpMakeMatrix, MatrixType(first.typ.Elem.Scalar, len(cols)), cols...)
}

// Extract reads lane i of a vector, column i of a matrix, element i of an
// array, or field i of a struct.
func (b *Builder) Extract(agg NodeID, i int) NodeID {
	an, ok := b.operand(agg)
	if !ok {
		return InvalidNodeID
	}
	var t Type
	switch an.typ.Kind {
	case KindVector:
		if i < 0 || i >= an.typ.Count {
			return b.fail(ErrTypeMismatch, "lane %d out of range for %s", i, an.typ)
		}
		t = an.typ.ElemType()
	case KindMatrix:
		if i < 0 || i >= an.typ.Count {
			return b.fail(ErrTypeMismatch, "column %d out of range for %s", i, an.typ)
		}
		t = VectorType(an.typ.Elem.Scalar, an.typ.Count)
	case KindArray:
		if i < 0 || i >= an.typ.Count {
			return b.fail(ErrTypeMismatch, "index %d out of range for %s", i, an.typ)
		}
		t = an.typ.ElemType()
	case KindStruct:
		if i < 0 || i >= len(an.typ.Fields) {
			return b.fail(ErrTypeMismatch, "field %d out of range for %s", i, an.typ)
		}
		t = an.typ.Fields[i].Type
	default:
		return b.fail(ErrTypeMismatch, "extract from non-aggregate %s", an.typ)
	}
	return b.append(&Node{op: OpExtract, typ: t, operands: []NodeID{agg}, auxInt: int64(i)})
}

// Insert returns a copy of the aggregate with element i replaced by value.
func (b *Builder) Insert(agg NodeID, i int, value NodeID) NodeID {
	an, ok := b.operand(agg)
	if !ok {
		return InvalidNodeID
	}
	if _, ok := b.operand(value); !ok {
		return InvalidNodeID
	}
	return b.append(&Node{op: OpInsert, typ: an.typ, operands: []NodeID{agg, value}, auxInt: int64(i)})
}

func (b *Builder) compare(op OpCode, x, y NodeID) NodeID {
	if _, ok := b.operand(x); !ok {
		return InvalidNodeID
	}
	return b.Append(op, ScalarType(Bool), x, y)
}

// Eq appends x == y.
func (b *Builder) Eq(x, y NodeID) NodeID { return b.compare(OpEq, x, y) }

// Ne appends x != y.
func (b *Builder) Ne(x, y NodeID) NodeID { return b.compare(OpNe, x, y) }

// Lt appends x < y.
func (b *Builder) Lt(x, y NodeID) NodeID { return b.compare(OpLt, x, y) }

// Le appends x <= y.
func (b *Builder) Le(x, y NodeID) NodeID { return b.compare(OpLe, x, y) }

// Gt appends x > y.
func (b *Builder) Gt(x, y NodeID) NodeID { return b.compare(OpGt, x, y) }

// Ge appends x >= y.
func (b *Builder) Ge(x, y NodeID) NodeID { return b.compare(OpGe, x, y) }

// Not appends logical negation.
func (b *Builder) Not(x NodeID) NodeID { return b.Append(OpNot, ScalarType(Bool), x) }

// And appends logical conjunction. Both arms are evaluated (no short
// circuit inside a kernel).
func (b *Builder) And(x, y NodeID) NodeID { return b.Append(OpAnd, ScalarType(Bool), x, y) }

// Or appends logical disjunction.
func (b *Builder) Or(x, y NodeID) NodeID { return b.Append(OpOr, ScalarType(Bool), x, y) }

// Select appends cond ? ifTrue : ifFalse.
func (b *Builder) Select(cond, ifTrue, ifFalse NodeID) NodeID {
	tn, ok := b.operand(ifTrue)
	if !ok {
		return InvalidNodeID
	}
	return b.Append(OpSelect, tn.typ, cond, ifTrue, ifFalse)
}

// Cast appends a scalar numeric conversion to the given type.
func (b *Builder) Cast(to Type, x NodeID) NodeID { return b.Append(OpCast, to, x) }

// Load appends a bounds-checked buffer read.
func (b *Builder) Load(buffer, index NodeID) NodeID {
	bn, ok := b.operand(buffer)
	if !ok {
		return InvalidNodeID
	}
	if bn.typ.Kind != KindResource || bn.typ.Resource != ResBuffer {
		return b.fail(ErrTypeMismatch, "load from non-buffer %s", bn.typ)
	}
	return b.Append(OpLoad, bn.typ.ElemType(), buffer, index)
}

// Store appends a bounds-checked buffer write.
func (b *Builder) Store(buffer, index, value NodeID) NodeID {
	return b.Append(OpStore, Void, buffer, index, value)
}

// BufferLen appends the buffer's dynamic extent as a u32.
func (b *Builder) BufferLen(buffer NodeID) NodeID {
	return b.Append(OpBufferLen, ScalarType(Uint32), buffer)
}

// BindlessLoad appends a bindless read: slot selects the resource, index the
// element. The declared element type is checked against the slot's actual
// type at execution time.
func (b *Builder) BindlessLoad(array, slot, index NodeID, elem Type) NodeID {
	return b.Append(OpBindlessLoad, elem, array, slot, index)
}

// BindlessStore appends a bindless write with the same runtime checks as
// BindlessLoad.
func (b *Builder) BindlessStore(array, slot, index, value NodeID) NodeID {
	return b.Append(OpBindlessStore, Void, array, slot, index, value)
}

// AtomicAdd appends an atomic fetch-add on a buffer element, returning the
// old value. Atomics are the sanctioned cross-item communication primitive.
func (b *Builder) AtomicAdd(buffer, index, delta NodeID) NodeID {
	bn, ok := b.operand(buffer)
	if !ok {
		return InvalidNodeID
	}
	if bn.typ.Kind != KindResource || bn.typ.Resource != ResBuffer {
		return b.fail(ErrTypeMismatch, "atomic_add on non-buffer %s", bn.typ)
	}
	return b.Append(OpAtomicAdd, bn.typ.ElemType(), buffer, index, delta)
}

// AtomicCAS appends an atomic compare-and-swap on an integer buffer element,
// returning the old value.
func (b *Builder) AtomicCAS(buffer, index, expected, desired NodeID) NodeID {
	bn, ok := b.operand(buffer)
	if !ok {
		return InvalidNodeID
	}
	if bn.typ.Kind != KindResource || bn.typ.Resource != ResBuffer {
		return b.fail(ErrTypeMismatch, "atomic_cas on non-buffer %s", bn.typ)
	}
	return b.Append(OpAtomicCAS, bn.typ.ElemType(), buffer, index, expected, desired)
}

// Barrier appends a work-group barrier.
func (b *Builder) Barrier() NodeID { return b.Append(OpBarrier, Void) }

// CustomCall appends a call to a host function registered with the executor
// under the given name.
func (b *Builder) CustomCall(name string, result Type, args ...NodeID) NodeID {
	if b.err != nil {
		return InvalidNodeID
	}
	for _, a := range args {
		if _, ok := b.operand(a); !ok {
			return InvalidNodeID
		}
	}
	return b.append(&Node{op: OpCustomCall, typ: result, operands: args, sym: name})
}

// RequiresGrad marks a float value as a gradient request. The mark must be
// placed before the value's first differentiable use; an unmarked value's
// gradient contribution is exactly zero.
func (b *Builder) RequiresGrad(x NodeID) NodeID {
	return b.Append(OpRequiresGrad, Void, x)
}

// Backward runs the reverse pass from a scalar float output. At most one
// Backward is permitted per autodiff activation.
func (b *Builder) Backward(output NodeID) NodeID {
	return b.Append(OpBackward, Void, output)
}

// Gradient reads the accumulated adjoint of a value after Backward.
func (b *Builder) Gradient(x NodeID) NodeID {
	xn, ok := b.operand(x)
	if !ok {
		return InvalidNodeID
	}
	return b.Append(OpGradient, xn.typ, x)
}

// Return terminates the current block returning an optional value.
func (b *Builder) Return(value ...NodeID) {
	if b.err != nil {
		return
	}
	if len(value) > 1 {
		b.fail(ErrBadControl, "return takes at most one value, got %d", len(value))
		return
	}
	if len(value) == 1 {
		vn, ok := b.operand(value[0])
		if !ok {
			return
		}
		if b.g.ret.IsVoid() {
			b.g.ret = vn.typ
		} else if !b.g.ret.Equal(vn.typ) {
			b.fail(ErrTypeMismatch, "return type %s conflicts with earlier return %s", vn.typ, b.g.ret)
			return
		}
	}
	b.append(&Node{op: OpReturn, typ: Void, operands: value})
}

// ---- Structured control flow ----

// If begins a conditional: a then block and an else block, both converging on
// a shared merge block. Values produced per arm become Phi nodes in the merge
// block through EndIf.
func (b *Builder) If(cond NodeID) {
	if b.err != nil {
		return
	}
	cn, ok := b.operand(cond)
	if !ok {
		return
	}
	if !(cn.typ.IsScalar() && cn.typ.Scalar == Bool) {
		b.fail(ErrTypeMismatch, "if condition must be bool, got %s", cn.typ)
		return
	}
	condBlock := b.cur
	thenB := b.newBlock(condBlock)
	elseB := b.newBlock(condBlock)
	merge := b.newBlock(condBlock)
	b.append(&Node{op: OpCondBranch, typ: Void, operands: []NodeID{cond}, targets: []BlockID{thenB, elseB}})
	b.ifs = append(b.ifs, ifFrame{thenBlock: thenB, elseBlock: elseB, merge: merge})
	b.startBlock(thenB)
}

// Else switches construction from the then arm to the else arm.
func (b *Builder) Else() {
	if b.err != nil {
		return
	}
	if len(b.ifs) == 0 {
		b.fail(ErrBadControl, "else outside an open if")
		return
	}
	f := &b.ifs[len(b.ifs)-1]
	if f.hasElse {
		b.fail(ErrBadControl, "duplicate else")
		return
	}
	f.hasElse = true
	f.thenExit = b.cur
	if !b.curBlock().Terminated() {
		b.append(&Node{op: OpJump, typ: Void, targets: []BlockID{f.merge}})
	}
	b.startBlock(f.elseBlock)
}

// EndIf closes the innermost if. thenVals and elseVals are the values each
// arm produced, in matching order; EndIf returns one merge-block Phi per
// position. Without an Else arm both lists must be empty.
func (b *Builder) EndIf(thenVals, elseVals []NodeID) []NodeID {
	if b.err != nil {
		return nil
	}
	if len(b.ifs) == 0 {
		b.fail(ErrBadControl, "endif outside an open if")
		return nil
	}
	f := b.ifs[len(b.ifs)-1]
	b.ifs = b.ifs[:len(b.ifs)-1]

	if !f.hasElse {
		if len(thenVals) != 0 || len(elseVals) != 0 {
			b.fail(ErrBadControl, "if without else cannot produce values")
			return nil
		}
		f.thenExit = b.cur
		if !b.curBlock().Terminated() {
			b.append(&Node{op: OpJump, typ: Void, targets: []BlockID{f.merge}})
		}
		// The empty else arm falls through to the merge.
		b.startBlock(f.elseBlock)
		b.append(&Node{op: OpJump, typ: Void, targets: []BlockID{f.merge}})
		b.startBlock(f.merge)
		return nil
	}

	if len(thenVals) != len(elseVals) {
		b.fail(ErrBadPhi, "if arms produce %d and %d values", len(thenVals), len(elseVals))
		return nil
	}
	elseExit := b.cur
	if !b.curBlock().Terminated() {
		b.append(&Node{op: OpJump, typ: Void, targets: []BlockID{f.merge}})
	}
	b.startBlock(f.merge)

	out := make([]NodeID, len(thenVals))
	for i := range thenVals {
		tn := b.g.NodeByID(thenVals[i])
		en := b.g.NodeByID(elseVals[i])
		if tn == nil || en == nil {
			b.fail(ErrBadPhi, "invalid if arm value")
			return nil
		}
		if !tn.typ.Equal(en.typ) {
			b.fail(ErrTypeMismatch, "if arms disagree on value %d: %s vs %s", i, tn.typ, en.typ)
			return nil
		}
		out[i] = b.append(&Node{
			op:       OpPhi,
			typ:      tn.typ,
			operands: []NodeID{thenVals[i], elseVals[i]},
			incoming: []BlockID{f.thenExit, elseExit},
		})
	}
	return out
}

// While builds a structured loop: a header block carrying one Phi per
// loop-carried value, a body block, and an exit edge. cond is evaluated in
// the header over the carried values; body computes the next carried values.
// While returns the carried Phis, whose values after the loop are the final
// iteration's state. Break and Continue may be used inside body.
func (b *Builder) While(init []NodeID, cond func(carried []NodeID) NodeID, body func(carried []NodeID) []NodeID) []NodeID {
	if b.err != nil {
		return nil
	}
	pre := b.cur
	header := b.newBlock(pre)
	b.append(&Node{op: OpJump, typ: Void, targets: []BlockID{header}})
	b.startBlock(header)

	phis := make([]NodeID, len(init))
	for i, v := range init {
		vn, ok := b.operand(v)
		if !ok {
			return nil
		}
		phis[i] = b.append(&Node{
			op:       OpPhi,
			typ:      vn.typ,
			operands: []NodeID{v},
			incoming: []BlockID{pre},
		})
	}

	c := cond(phis)
	if b.err != nil {
		return nil
	}
	cn, ok := b.operand(c)
	if !ok {
		return nil
	}
	if !(cn.typ.IsScalar() && cn.typ.Scalar == Bool) {
		b.fail(ErrTypeMismatch, "while condition must be bool, got %s", cn.typ)
		return nil
	}
	bodyB := b.newBlock(header)
	exitB := b.newBlock(header)
	b.append(&Node{op: OpCondBranch, typ: Void, operands: []NodeID{c}, targets: []BlockID{bodyB, exitB}})

	b.loops = append(b.loops, loopFrame{header: header, exit: exitB, phis: phis})
	b.startBlock(bodyB)
	next := body(phis)
	if b.err != nil {
		return nil
	}
	if !b.curBlock().Terminated() {
		b.loopLatch(next)
	}
	b.loops = b.loops[:len(b.loops)-1]
	b.startBlock(exitB)
	return phis
}

// loopLatch terminates the current block jumping back to the innermost loop
// header, wiring the next loop-carried values into the header Phis.
func (b *Builder) loopLatch(next []NodeID) {
	f := b.loops[len(b.loops)-1]
	if len(next) != len(f.phis) {
		b.fail(ErrBadPhi, "loop carries %d values but body produced %d", len(f.phis), len(next))
		return
	}
	latch := b.cur
	for i, v := range next {
		vn, ok := b.operand(v)
		if !ok {
			return
		}
		phi := b.g.nodes[f.phis[i]]
		if !phi.typ.Equal(vn.typ) {
			b.fail(ErrTypeMismatch, "loop-carried value %d changed type: %s vs %s", i, phi.typ, vn.typ)
			return
		}
		phi.operands = append(phi.operands, v)
		phi.incoming = append(phi.incoming, latch)
	}
	b.append(&Node{op: OpJump, typ: Void, targets: []BlockID{f.header}})
}

// Break jumps to the innermost loop's exit. Using it outside any open loop is
// a construction error. Code following Break in the same arm is unreachable.
func (b *Builder) Break() {
	if b.err != nil {
		return
	}
	if len(b.loops) == 0 {
		b.fail(ErrBadControl, "break outside any open loop")
		return
	}
	f := b.loops[len(b.loops)-1]
	b.append(&Node{op: OpJump, typ: Void, targets: []BlockID{f.exit}})
	b.startBlock(b.newBlock(b.cur))
}

// Continue jumps back to the innermost loop's header with the given next
// loop-carried values. Using it outside any open loop is a construction
// error.
func (b *Builder) Continue(next ...NodeID) {
	if b.err != nil {
		return
	}
	if len(b.loops) == 0 {
		b.fail(ErrBadControl, "continue outside any open loop")
		return
	}
	b.loopLatch(next)
	b.startBlock(b.newBlock(b.cur))
}

// RangeFor builds the common counted loop for i in [0, count): sugar over
// While with a u32 induction variable.
func (b *Builder) RangeFor(count NodeID, body func(i NodeID)) {
	zero := b.ConstInt(Uint32, 0)
	one := b.ConstInt(Uint32, 1)
	b.While([]NodeID{zero},
		func(carried []NodeID) NodeID { return b.Lt(carried[0], count) },
		func(carried []NodeID) []NodeID {
			body(carried[0])
			return []NodeID{b.Add(carried[0], one)}
		})
}

// SwitchOn lowers a multi-way branch on an integer tag: one case block per
// entry in cases, an optional default, and a merge block with one Phi per
// value position. Building fails if defaultFn is nil and the tag's value set
// is not exhaustively covered (exhaustive must be asserted by the caller,
// e.g. a closed dispatch registry); at execution time an unmatched tag in an
// exhaustive switch traps.
func (b *Builder) SwitchOn(tag NodeID, cases []int64, caseFn func(i int) []NodeID, defaultFn func() []NodeID, exhaustive bool) []NodeID {
	if b.err != nil {
		return nil
	}
	tn, ok := b.operand(tag)
	if !ok {
		return nil
	}
	if !(tn.typ.IsScalar() && tn.typ.Scalar.IsInteger()) {
		b.fail(ErrTypeMismatch, "switch tag must be an integer scalar, got %s", tn.typ)
		return nil
	}
	if defaultFn == nil && !exhaustive {
		b.fail(ErrBadControl, "switch without a default case does not cover the tag's value set")
		return nil
	}
	seen := make(map[int64]bool, len(cases))
	for _, c := range cases {
		if seen[c] {
			b.fail(ErrBadControl, "duplicate switch case %d", c)
			return nil
		}
		seen[c] = true
	}

	condBlock := b.cur
	targets := make([]BlockID, 0, len(cases)+1)
	for range cases {
		targets = append(targets, b.newBlock(condBlock))
	}
	if defaultFn != nil {
		targets = append(targets, b.newBlock(condBlock))
	}
	merge := b.newBlock(condBlock)
	b.append(&Node{op: OpSwitch, typ: Void, operands: []NodeID{tag}, cases: cases, targets: targets})

	type armResult struct {
		exit BlockID
		vals []NodeID
	}
	var arms []armResult
	runArm := func(blk BlockID, gen func() []NodeID) {
		b.startBlock(blk)
		vals := gen()
		exit := b.cur
		if !b.curBlock().Terminated() {
			b.append(&Node{op: OpJump, typ: Void, targets: []BlockID{merge}})
		}
		arms = append(arms, armResult{exit: exit, vals: vals})
	}
	for i := range cases {
		i := i
		runArm(targets[i], func() []NodeID { return caseFn(i) })
	}
	if defaultFn != nil {
		runArm(targets[len(targets)-1], defaultFn)
	}
	if b.err != nil {
		return nil
	}

	want := len(arms[0].vals)
	for _, a := range arms {
		if len(a.vals) != want {
			b.fail(ErrBadPhi, "switch arms disagree on value count: %d vs %d", want, len(a.vals))
			return nil
		}
	}
	b.startBlock(merge)
	out := make([]NodeID, want)
	for i := 0; i < want; i++ {
		operands := make([]NodeID, len(arms))
		incoming := make([]BlockID, len(arms))
		var t Type
		for j, a := range arms {
			vn := b.g.NodeByID(a.vals[i])
			if vn == nil {
				b.fail(ErrBadPhi, "invalid switch arm value")
				return nil
			}
			if j == 0 {
				t = vn.typ
			} else if !t.Equal(vn.typ) {
				b.fail(ErrTypeMismatch, "switch arms disagree on value %d: %s vs %s", i, t, vn.typ)
				return nil
			}
			operands[j] = a.vals[i]
			incoming[j] = a.exit
		}
		out[i] = b.append(&Node{op: OpPhi, typ: t, operands: operands, incoming: incoming})
	}
	return out
}

// Finish validates and freezes the graph. It fails if any block lacks a
// terminator, any Phi disagrees with its block's predecessor count, or any
// operand does not dominate its use.
func (b *Builder) Finish() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.ifs) > 0 {
		return nil, buildErrf(ErrBadControl, "%d if construct(s) left open", len(b.ifs))
	}
	if len(b.loops) > 0 {
		return nil, buildErrf(ErrBadControl, "%d loop(s) left open", len(b.loops))
	}
	if !b.curBlock().Terminated() {
		// Kernels commonly end without an explicit return.
		b.append(&Node{op: OpReturn, typ: Void})
		if b.err != nil {
			return nil, b.err
		}
	}
	if err := b.g.validate(); err != nil {
		return nil, err
	}
	b.g.finished = true
	return b.g, nil
}

// callerLoc returns "file.go:line" of the first stack frame outside this
// package, i.e. the kernel author's call site.
func callerLoc() string {
	var pcs [16]uintptr
	n := runtime.Callers(2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "internal/ir") {
			return fmt.Sprintf("%s:%d", trimPath(frame.File), frame.Line)
		}
		if !more {
			return "unknown"
		}
	}
}

func trimPath(file string) string {
	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		return file[i+1:]
	}
	return file
}
