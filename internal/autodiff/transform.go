package autodiff

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/lumen-compute/lumen/internal/ir"
)

// GradOutput describes one gradient output that Transform wired into the
// augmented graph: the differentiated node and the capture slot its gradient
// buffer binds to.
type GradOutput struct {
	Node    ir.NodeID
	Capture int
	Name    string
}

// NeedsTape reports whether executing the graph requires an autodiff
// activation, i.e. whether it contains a Backward node.
func NeedsTape(g *ir.Graph) bool {
	for i := 0; i < g.NumNodes(); i++ {
		if g.NodeByID(ir.NodeID(i)).Op() == ir.OpBackward {
			return true
		}
	}
	return false
}

// Transform augments a finished forward graph with reverse-mode gradient
// plumbing. Each node in wrt is marked requires-grad at its definition, a
// backward pass is requested right after the scalar output's definition, and
// each gradient is then read and stored to a fresh capture buffer at the work
// item's x coordinate. The source graph is untouched; callers bind one
// buffer of at least the dispatch extent per returned GradOutput.
//
// Transform also checks ahead of time that every differentiable-looking node
// in the graph has a VJP rule, so a kernel that would die mid-reverse-pass is
// rejected here instead.
func Transform(g *ir.Graph, output ir.NodeID, wrt []ir.NodeID) (*ir.Graph, []GradOutput, error) {
	if !g.Finished() {
		return nil, nil, errors.New("autodiff: transform of unfinished graph")
	}
	out := g.NodeByID(output)
	if out == nil {
		return nil, nil, errors.Errorf("autodiff: output v%d does not exist", output)
	}
	if !(out.Type().IsScalar() && out.Type().Scalar.IsFloat()) {
		return nil, nil, errors.Errorf("autodiff: output must be a float scalar, got %s", out.Type())
	}
	if len(wrt) == 0 {
		return nil, nil, errors.New("autodiff: no gradients requested")
	}
	for _, w := range wrt {
		n := g.NodeByID(w)
		if n == nil {
			return nil, nil, errors.Errorf("autodiff: wrt node v%d does not exist", w)
		}
		if !n.Type().IsFloat() {
			return nil, nil, errors.Errorf("autodiff: wrt v%d has non-float type %s", w, n.Type())
		}
	}
	if err := checkDifferentiable(g); err != nil {
		return nil, nil, err
	}

	r := ir.NewRewriter(g)
	anchor := output
	for _, w := range wrt {
		rg := r.InsertAfter(w, ir.OpRequiresGrad, ir.Void, w)
		if w == output {
			// Differentiating the output itself: its mark must still
			// precede the backward request.
			anchor = rg
		}
	}

	anchor = r.InsertAfter(anchor, ir.OpBackward, ir.Void, output)
	tid := r.InsertAfterAux(anchor, ir.OpDispatchID, ir.ScalarType(ir.Uint32), 0)
	anchor = tid

	outs := make([]GradOutput, 0, len(wrt))
	for i, w := range wrt {
		gt := g.NodeByID(w).Type()
		name := fmt.Sprintf("grad%d", i)
		buf := r.AddCapture(name, ir.BufferType(gt))
		gn := r.InsertAfter(anchor, ir.OpGradient, gt, w)
		anchor = r.InsertAfter(gn, ir.OpStore, ir.Void, buf, tid, gn)
		outs = append(outs, GradOutput{Node: w, Capture: len(g.Captures()) + i, Name: name})
	}

	ag, err := r.Finish()
	if err != nil {
		return nil, nil, err
	}
	return ag, outs, nil
}

// checkDifferentiable rejects graphs that already carry autodiff markers or
// contain a float-producing opcode without a VJP rule.
func checkDifferentiable(g *ir.Graph) error {
	for i := 0; i < g.NumNodes(); i++ {
		n := g.NodeByID(ir.NodeID(i))
		switch n.Op() {
		case ir.OpRequiresGrad, ir.OpBackward, ir.OpGradient:
			return errors.Errorf("autodiff: graph already differentiated (v%d is %s)", n.ID(), n.Op())
		}
		if len(n.Operands()) == 0 || !n.Type().IsFloat() {
			continue
		}
		if _, ok := vjpRules[n.Op()]; ok {
			continue
		}
		if gradLeaf[n.Op()] {
			continue
		}
		return errors.Wrapf(ErrMissingVJP, "%s at %s", n.Op(), n.Loc())
	}
	return nil
}
