package autodiff

import (
	"github.com/pkg/errors"

	"github.com/lumen-compute/lumen/internal/ir"
	"github.com/lumen-compute/lumen/internal/value"
)

// Fatal activation errors. These abort the activation (and the dispatch that
// hosts it); they are programming errors, not data-dependent traps.
var (
	// ErrDoubleBackward means the reverse pass was requested twice on the
	// same tape, e.g. a Backward node executed inside a loop.
	ErrDoubleBackward = errors.New("autodiff: backward already ran on this tape")

	// ErrGradientNotReady means a gradient was read before the reverse pass
	// completed.
	ErrGradientNotReady = errors.New("autodiff: gradient read before backward")

	// ErrMissingVJP means the reverse pass hit a differentiable-looking
	// opcode it has no rule for.
	ErrMissingVJP = errors.New("autodiff: no VJP rule for opcode")
)

// Activation carries the differentiation state of one forward execution: the
// tape, the set of nodes whose gradients were requested, and the accumulated
// adjoints once the reverse pass has run. One activation per work item; never
// shared.
type Activation struct {
	tape   *Tape
	marked map[ir.NodeID]bool
	grads  map[ir.NodeID]value.Value
	done   bool
}

// NewActivation creates a fresh activation with an empty tape.
func NewActivation() *Activation {
	return &Activation{
		tape:   NewTape(),
		marked: make(map[ir.NodeID]bool, 4),
		grads:  make(map[ir.NodeID]value.Value, 4),
	}
}

// Tape returns the activation's forward tape.
func (a *Activation) Tape() *Tape { return a.tape }

// RequiresGrad marks a node so the reverse pass accumulates its adjoint.
// Unmarked nodes silently read as zero gradient afterwards; marking is how a
// value opts in.
func (a *Activation) RequiresGrad(id ir.NodeID) { a.marked[id] = true }

// Marked reports whether a node's gradient was requested.
func (a *Activation) Marked(id ir.NodeID) bool { return a.marked[id] }

// Done reports whether the reverse pass has completed.
func (a *Activation) Done() bool { return a.done }

// Gradient returns the accumulated adjoint of a node after the reverse pass.
// A marked node that received no adjoint, and any unmarked node, reads as
// exactly zero of the given type.
func (a *Activation) Gradient(id ir.NodeID, t ir.Type) (value.Value, error) {
	if !a.done {
		return value.Value{}, errors.Wrapf(ErrGradientNotReady, "gradient of v%d", id)
	}
	if g, ok := a.grads[id]; ok {
		return g, nil
	}
	return value.Zero(t), nil
}

// RunBackward walks the tape in reverse from the last definition of output,
// seeding its adjoint with one and propagating vector-Jacobian products to
// operand steps. Adjoints are per step, so each loop iteration's instance
// gets its own; a marked node's gradient is the sum over all its instances.
func (a *Activation) RunBackward(g *ir.Graph, output ir.NodeID) error {
	if a.done {
		return ErrDoubleBackward
	}
	t := a.tape
	outStep, ok := t.LastDef(output)
	if !ok {
		return errors.Errorf("autodiff: backward output v%d was never executed", output)
	}
	outNode := g.NodeByID(output)

	adj := make([]value.Value, t.Len())
	adj[outStep] = value.One(outNode.Type())

	for s := t.Len() - 1; s >= 0; s-- {
		av := adj[s]
		if av.Type().Kind == ir.KindInvalid {
			continue
		}
		st := t.StepAt(s)
		n := g.NodeByID(st.Node)
		if a.marked[st.Node] {
			a.grads[st.Node] = accumulate(a.grads[st.Node], av)
		}
		rule, ok := vjpRules[n.Op()]
		if !ok {
			if gradLeaf[n.Op()] {
				continue
			}
			return errors.Wrapf(ErrMissingVJP, "%s at %s", n.Op(), n.Loc())
		}
		contribs := rule(n, st, av, t)
		for i, c := range contribs {
			if c.Type().Kind == ir.KindInvalid {
				continue
			}
			if i >= len(st.Operands) || st.Operands[i] < 0 {
				continue
			}
			slot := st.Operands[i]
			adj[slot] = accumulate(adj[slot], c)
		}
	}
	a.done = true
	return nil
}

// accumulate adds a contribution into a possibly-unset adjoint slot.
func accumulate(acc, c value.Value) value.Value {
	if acc.Type().Kind == ir.KindInvalid {
		return c
	}
	return value.Add(acc, c)
}
