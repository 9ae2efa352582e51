package ir

import (
	"fmt"
	"strings"
)

// NodeID is a unique node id within a Graph. IDs are dense: they index the
// graph's node arena directly.
type NodeID int32

// InvalidNodeID marks a node that failed to be created.
const InvalidNodeID = NodeID(-1)

// Node is one immutable instruction in the graph. Every operand is the id of
// a node that dominates the use site; this is validated both at append time
// and again when the graph is finished.
type Node struct {
	id       NodeID
	block    BlockID
	op       OpCode
	operands []NodeID
	typ      Type

	constValue any       // OpConst payload
	auxInt     int64     // index payload: arg/capture index, lane, axis
	sym        string    // OpCustomCall function name
	cases      []int64   // OpSwitch case values
	targets    []BlockID // terminator successor blocks
	incoming   []BlockID // OpPhi predecessor edges, parallel to operands

	loc   string // authoring source location, e.g. "kernel.go:42"
	trace error  // authoring call-stack snapshot, when tracing is enabled
}

// ID returns the node's unique id within its graph.
func (n *Node) ID() NodeID { return n.id }

// Op returns the node's opcode.
func (n *Node) Op() OpCode { return n.op }

// Block returns the id of the block that contains the node.
func (n *Node) Block() BlockID { return n.block }

// Operands returns the node's operand ids. The slice must not be mutated.
func (n *Node) Operands() []NodeID { return n.operands }

// Type returns the node's result type.
func (n *Node) Type() Type { return n.typ }

// ConstValue returns the payload of an OpConst node: a bool, int64, uint64,
// float64 or []float64 (vector/matrix lanes).
func (n *Node) ConstValue() any { return n.constValue }

// AuxInt returns the node's integer payload: argument/capture index for
// OpArg/OpCapture, axis for OpDispatchID, lane for OpExtract/OpInsert.
func (n *Node) AuxInt() int64 { return n.auxInt }

// Sym returns the host function name of an OpCustomCall node.
func (n *Node) Sym() string { return n.sym }

// Cases returns the case values of an OpSwitch terminator.
func (n *Node) Cases() []int64 { return n.cases }

// Targets returns the successor blocks of a terminator.
func (n *Node) Targets() []BlockID { return n.targets }

// Incoming returns the predecessor edge per operand of an OpPhi node.
func (n *Node) Incoming() []BlockID { return n.incoming }

// Loc returns the source location captured when the node was authored.
func (n *Node) Loc() string { return n.loc }

// Trace returns the host call-stack snapshot captured when the node was
// authored, as an error carrying a stack (pkg/errors). It is nil unless the
// builder was in traced mode, except for memory-access nodes which always
// capture their authoring stack so that runtime traps can report it.
func (n *Node) Trace() error { return n.trace }

// String renders the node in a compact assembly-like form.
func (n *Node) String() string {
	var sb strings.Builder
	if !n.typ.IsVoid() {
		fmt.Fprintf(&sb, "v%d:%s = ", n.id, n.typ)
	}
	sb.WriteString(n.op.String())
	switch n.op {
	case OpConst:
		fmt.Fprintf(&sb, " %v", n.constValue)
	case OpArg, OpCapture, OpDispatchID, OpExtract, OpInsert:
		fmt.Fprintf(&sb, " #%d", n.auxInt)
	case OpCustomCall:
		fmt.Fprintf(&sb, " %q", n.sym)
	}
	for _, o := range n.operands {
		fmt.Fprintf(&sb, " v%d", o)
	}
	if n.op == OpPhi {
		sb.WriteString(" [")
		for i, b := range n.incoming {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "b%d", b)
		}
		sb.WriteString("]")
	}
	for i, t := range n.targets {
		if n.op == OpSwitch && i < len(n.cases) {
			fmt.Fprintf(&sb, " %d=>b%d", n.cases[i], t)
		} else {
			fmt.Fprintf(&sb, " ->b%d", t)
		}
	}
	return sb.String()
}
