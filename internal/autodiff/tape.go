// Package autodiff implements reverse-mode automatic differentiation over
// finished IR graphs: a tape recording the dynamic forward execution, a
// reverse pass driven by a table of vector-Jacobian-product (VJP) rules keyed
// by opcode, and a graph-to-graph transform that augments a forward kernel
// with gradient outputs.
//
// The tape exists because the SSA graph alone does not say which runtime path
// was taken: control-flow decisions (branch taken, loop trip count) are
// logged per execution, so loops are effectively unrolled on the tape to
// their actual iteration count. Tape memory is therefore proportional to
// dynamic work, not to static graph size.
package autodiff

import (
	"github.com/lumen-compute/lumen/internal/ir"
	"github.com/lumen-compute/lumen/internal/value"
)

// Step is one dynamic instance of an executed node on the tape.
type Step struct {
	// Node is the executed node's id. A node inside a loop appears once
	// per iteration.
	Node ir.NodeID

	// Value is the result this instance produced.
	Value value.Value

	// Operands holds, per operand, the index of the step that produced the
	// operand's value at this point of execution, or -1 when not applicable
	// (untaken Phi edges, never-executed definitions).
	Operands []int

	// Incoming records the control decision: the chosen incoming-edge index
	// for Phi nodes and the taken-target index for CondBranch and Switch
	// terminators; -1 otherwise.
	Incoming int
}

// Tape is the append-only log of one forward execution, in execution order.
// It is exclusively owned by one activation and discarded when the
// activation ends, success or failure. Not safe for concurrent use.
type Tape struct {
	steps   []Step
	lastDef map[ir.NodeID]int
}

// NewTape creates an empty tape.
func NewTape() *Tape {
	return &Tape{lastDef: make(map[ir.NodeID]int, 64)}
}

// Record appends one executed node, resolving each operand against its most
// recent definition on the tape. For Phi nodes only the operand on the chosen
// incoming edge resolves; the rest stay -1 so gradients never flow along
// untaken edges. Returns the step index.
func (t *Tape) Record(n *ir.Node, v value.Value, incoming int) int {
	idx := len(t.steps)
	ops := n.Operands()
	operandSteps := make([]int, len(ops))
	for i, o := range ops {
		if n.Op() == ir.OpPhi && i != incoming {
			operandSteps[i] = -1
			continue
		}
		if s, ok := t.lastDef[o]; ok {
			operandSteps[i] = s
		} else {
			operandSteps[i] = -1
		}
	}
	t.steps = append(t.steps, Step{Node: n.ID(), Value: v, Operands: operandSteps, Incoming: incoming})
	t.lastDef[n.ID()] = idx
	return idx
}

// Len returns the number of recorded steps, i.e. the number of dynamically
// executed instructions.
func (t *Tape) Len() int { return len(t.steps) }

// StepAt returns step i.
func (t *Tape) StepAt(i int) Step { return t.steps[i] }

// LastDef returns the most recent step that defined the given node.
func (t *Tape) LastDef(id ir.NodeID) (int, bool) {
	s, ok := t.lastDef[id]
	return s, ok
}

// OperandValue returns the recorded value of operand i of the given step, or
// the zero Value when the operand never resolved.
func (t *Tape) OperandValue(st Step, i int) value.Value {
	if i >= len(st.Operands) || st.Operands[i] < 0 {
		return value.Value{}
	}
	return t.steps[st.Operands[i]].Value
}
