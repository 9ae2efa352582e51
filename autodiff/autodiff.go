// Copyright 2026 Lumen Compute. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides reverse-mode automatic differentiation over
// kernel graphs.
//
// Transform rewrites a finished forward kernel into a gradient kernel: the
// rewritten graph marks the requested inputs, runs the reverse pass after the
// output's definition and stores each gradient into a fresh capture buffer.
//
// Example:
//
//	import (
//	    "github.com/lumen-compute/lumen/autodiff"
//	    "github.com/lumen-compute/lumen/ir"
//	)
//
//	func main() {
//	    f32 := ir.ScalarType(ir.Float32)
//
//	    b := ir.NewBuilder("square")
//	    in := b.SetCapture("in", ir.BufferType(f32))
//	    x := b.Load(in, b.DispatchID(0))
//	    y := b.Mul(x, x)
//	    b.Return(y)
//	    g, _ := b.Finish()
//
//	    // grad has one extra capture buffer holding d(y)/d(x).
//	    grad, outs, err := autodiff.Transform(g, y, []ir.NodeID{x})
//	    if err != nil {
//	        panic(err)
//	    }
//	    _, _ = grad, outs
//	}
package autodiff

import (
	"github.com/lumen-compute/lumen/internal/autodiff"
	"github.com/lumen-compute/lumen/internal/ir"
)

// GradOutput names one gradient buffer appended by Transform.
type GradOutput = autodiff.GradOutput

// Gradient-state misuse errors. These abort a whole dispatch rather than a
// single work item.
var (
	ErrDoubleBackward   = autodiff.ErrDoubleBackward
	ErrGradientNotReady = autodiff.ErrGradientNotReady
	ErrMissingVJP       = autodiff.ErrMissingVJP
)

// Transform rewrites a finished graph into its gradient graph with respect to
// the given scalar float output and float-typed wrt nodes. One capture buffer
// per wrt node is appended; each work item stores its gradient at its x
// coordinate.
func Transform(g *ir.Graph, output ir.NodeID, wrt []ir.NodeID) (*ir.Graph, []GradOutput, error) {
	return autodiff.Transform(g, output, wrt)
}

// NeedsTape reports whether executing g requires gradient recording.
func NeedsTape(g *ir.Graph) bool { return autodiff.NeedsTape(g) }
