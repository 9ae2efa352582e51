// Copyright 2026 Lumen Compute. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package interp executes finished kernel graphs on the CPU, one isolated
// work item per dispatch coordinate.
//
// A trap (out-of-bounds access, tag mismatch, failed host call) kills only
// the item that raised it; the dispatch completes and the Report lists every
// trap with its coordinate. Write/write hazards between items are sampled and
// reported as warnings.
//
// Example:
//
//	import (
//	    "context"
//
//	    "github.com/lumen-compute/lumen/interp"
//	    "github.com/lumen-compute/lumen/ir"
//	)
//
//	func main() {
//	    f32 := ir.ScalarType(ir.Float32)
//
//	    b := ir.NewBuilder("fill")
//	    out := b.SetCapture("out", ir.BufferType(f32))
//	    tid := b.DispatchID(0)
//	    b.Store(out, tid, b.ConstFloat(ir.Float32, 1))
//	    b.Return()
//	    g, _ := b.Finish()
//
//	    buf := interp.NewBuffer(f32, 64)
//	    rep, err := interp.Execute(context.Background(), g, [3]int{64, 0, 0},
//	        nil, []interp.Resource{buf}, interp.Options{})
//	    if err != nil {
//	        panic(err)
//	    }
//	    _ = rep
//	}
package interp

import (
	"context"

	"github.com/lumen-compute/lumen/internal/interp"
	"github.com/lumen-compute/lumen/internal/ir"
	"github.com/lumen-compute/lumen/internal/value"
)

// Options tunes one dispatch.
type Options = interp.Options

// Report aggregates the outcome of one dispatch.
type Report = interp.Report

// Trap is one work item's fatal runtime error.
type Trap = interp.Trap

// TrapKind classifies runtime traps.
type TrapKind = interp.TrapKind

// Trap kinds.
const (
	TrapOutOfBounds  = interp.TrapOutOfBounds
	TrapTypeMismatch = interp.TrapTypeMismatch
	TrapInvalidTag   = interp.TrapInvalidTag
	TrapHostCall     = interp.TrapHostCall
	TrapInternal     = interp.TrapInternal
)

// HazardWarning is one sampled write/write conflict between work items.
type HazardWarning = interp.HazardWarning

// Resource is anything bindable to a kernel capture slot.
type Resource = interp.Resource

// Buffer is a typed linear resource shared by all work items of a dispatch.
type Buffer = interp.Buffer

// NewBuffer creates a zero-filled buffer of n elements.
func NewBuffer(elem ir.Type, n int) *Buffer { return interp.NewBuffer(elem, n) }

// NewBufferFrom creates a buffer initialized with the given elements.
func NewBufferFrom(elem ir.Type, elems []value.Value) *Buffer {
	return interp.NewBufferFrom(elem, elems)
}

// BindlessTable is an indexed table of buffers accessed by runtime slot.
type BindlessTable = interp.BindlessTable

// NewBindlessTable creates a table over the given slots. Nil slots are legal
// and trap when accessed.
func NewBindlessTable(slots ...*Buffer) *BindlessTable {
	return interp.NewBindlessTable(slots...)
}

// HostFunc implements a CustomCall symbol on the host.
type HostFunc = interp.HostFunc

// Execute runs a finished graph once per work item over a 1D/2D/3D extent.
func Execute(ctx context.Context, g *ir.Graph, extent [3]int, args []value.Value, captures []Resource, opts Options) (*Report, error) {
	return interp.Execute(ctx, g, extent, args, captures, opts)
}
