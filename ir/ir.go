// Copyright 2026 Lumen Compute. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package ir provides the kernel intermediate representation.
//
// Kernels are SSA graphs with structured control flow, built through a
// Builder and immutable once finished. A finished graph can be serialized,
// differentiated and executed.
//
// Example:
//
//	import (
//	    "github.com/lumen-compute/lumen/ir"
//	)
//
//	func main() {
//	    f32 := ir.ScalarType(ir.Float32)
//
//	    b := ir.NewBuilder("saxpy")
//	    a := b.SetArg("a", f32)
//	    x := b.SetCapture("x", ir.BufferType(f32))
//	    y := b.SetCapture("y", ir.BufferType(f32))
//	    tid := b.DispatchID(0)
//	    v := b.Add(b.Mul(a, b.Load(x, tid)), b.Load(y, tid))
//	    b.Store(y, tid, v)
//	    b.Return()
//
//	    g, err := b.Finish()
//	    if err != nil {
//	        panic(err)
//	    }
//	    _ = g
//	}
package ir

import (
	"io"

	"github.com/lumen-compute/lumen/internal/ir"
)

// Type describes the value produced by a node: void, scalar, vector, matrix,
// array, struct, pointer or resource.
type Type = ir.Type

// TypeKind discriminates the Type variants.
type TypeKind = ir.TypeKind

// Type kinds.
const (
	KindInvalid  = ir.KindInvalid
	KindVoid     = ir.KindVoid
	KindScalar   = ir.KindScalar
	KindVector   = ir.KindVector
	KindMatrix   = ir.KindMatrix
	KindArray    = ir.KindArray
	KindStruct   = ir.KindStruct
	KindPointer  = ir.KindPointer
	KindResource = ir.KindResource
)

// ScalarKind is the primitive element type of scalars, vectors and matrices.
type ScalarKind = ir.ScalarKind

// Scalar kinds.
const (
	Bool    = ir.Bool
	Int32   = ir.Int32
	Int64   = ir.Int64
	Uint32  = ir.Uint32
	Uint64  = ir.Uint64
	Float16 = ir.Float16
	Float32 = ir.Float32
	Float64 = ir.Float64
)

// StructField is one named, typed member of a struct type.
type StructField = ir.StructField

// Void is the type of nodes that produce no value.
var Void = ir.Void

// ScalarType returns the scalar type of the given kind.
func ScalarType(k ScalarKind) Type { return ir.ScalarType(k) }

// VectorType returns an n-lane vector of the given element kind (n in 2..4).
func VectorType(elem ScalarKind, n int) Type { return ir.VectorType(elem, n) }

// MatrixType returns a square column-major matrix type (dim in 2..4).
func MatrixType(elem ScalarKind, dim int) Type { return ir.MatrixType(elem, dim) }

// ArrayType returns a fixed-length array type.
func ArrayType(elem Type, n int) Type { return ir.ArrayType(elem, n) }

// StructType returns a struct type with explicitly placed fields.
func StructType(name string, size int, fields ...StructField) Type {
	return ir.StructType(name, size, fields...)
}

// LayoutStruct returns a struct type with fields laid out by natural
// alignment rules.
func LayoutStruct(name string, fields ...StructField) Type {
	return ir.LayoutStruct(name, fields...)
}

// BufferType returns a typed buffer resource type.
func BufferType(elem Type) Type { return ir.BufferType(elem) }

// BindlessType returns the bindless resource-array type.
func BindlessType() Type { return ir.BindlessType() }

// NodeID identifies one SSA node within a graph.
type NodeID = ir.NodeID

// InvalidNodeID is returned by builder operations after an error.
const InvalidNodeID = ir.InvalidNodeID

// BlockID identifies one basic block within a graph.
type BlockID = ir.BlockID

// OpCode identifies a node's operation.
type OpCode = ir.OpCode

// Node is one SSA instruction.
type Node = ir.Node

// Block is one basic block.
type Block = ir.Block

// Graph is a finished, immutable kernel.
type Graph = ir.Graph

// Param is a typed kernel argument or capture slot.
type Param = ir.Param

// Builder constructs a Graph. A builder latches its first error; every
// operation after a failure is a no-op returning InvalidNodeID, so a whole
// kernel can be emitted without per-call error checks and the failure read
// once from Finish.
type Builder = ir.Builder

// NewBuilder creates an empty builder for a kernel with the given name.
func NewBuilder(name string) *Builder { return ir.NewBuilder(name) }

// Rewriter clones a finished graph and applies local edits to the clone.
type Rewriter = ir.Rewriter

// NewRewriter creates a rewriter over a deep copy of src.
func NewRewriter(src *Graph) *Rewriter { return ir.NewRewriter(src) }

// BuildError is a fatal graph-construction error.
type BuildError = ir.BuildError

// BuildErrorKind classifies graph-construction failures.
type BuildErrorKind = ir.BuildErrorKind

// Graph-construction error kinds.
const (
	ErrMalformedSSA      = ir.ErrMalformedSSA
	ErrTypeMismatch      = ir.ErrTypeMismatch
	ErrMissingTerminator = ir.ErrMissingTerminator
	ErrBadPhi            = ir.ErrBadPhi
	ErrBadControl        = ir.ErrBadControl
	ErrUnregisteredTag   = ir.ErrUnregisteredTag
)

// Serialization errors.
var (
	ErrBadMagic           = ir.ErrBadMagic
	ErrUnsupportedVersion = ir.ErrUnsupportedVersion
	ErrChecksumMismatch   = ir.ErrChecksumMismatch
)

// Encode writes a finished graph to w in the binary kernel format.
func Encode(w io.Writer, g *Graph) error { return ir.Encode(w, g) }

// Decode reads a graph from r and validates it.
func Decode(r io.Reader) (*Graph, error) { return ir.Decode(r) }
