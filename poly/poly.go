// Copyright 2026 Lumen Compute. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package poly provides tag-based polymorphic dispatch inside kernels.
//
// Implementations of a capability are registered under dense integer tags;
// each Dispatch call site compiles into one exhaustive switch over the
// registered tags, with one specialization per implementation. A tag that was
// never registered traps the work item that carries it at run time.
package poly

import (
	"github.com/lumen-compute/lumen/internal/ir"
	"github.com/lumen-compute/lumen/internal/poly"
)

// Capability names one polymorphic operation.
type Capability = poly.Capability

// Entry is one registered implementation of a capability.
type Entry = poly.Entry

// Registry maps capabilities to their registered implementations. Safe for
// concurrent use.
type Registry = poly.Registry

// NewRegistry creates an empty registry.
func NewRegistry() *Registry { return poly.NewRegistry() }

// Specialization emits the body of one implementation at a dispatch site.
type Specialization = poly.Specialization

// Dispatch emits one exhaustive switch over the capability's registered tags.
// Dispatching a capability with no registered implementations is a build
// error.
func Dispatch(b *ir.Builder, r *Registry, cap Capability, tag, index ir.NodeID, fn Specialization) ([]ir.NodeID, error) {
	return poly.Dispatch(b, r, cap, tag, index, fn)
}
