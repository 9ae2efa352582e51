// Package poly compiles tag-selected polymorphic calls into the graph at
// build time. A registry maps each capability to the closed set of concrete
// types that can back it, one small integer tag per type; Dispatch then emits
// one specialized code path per registered type behind an exhaustive switch
// on the runtime tag. There is no dynamic dispatch in the generated kernel:
// the type set is frozen when the graph is built.
package poly

import (
	"sort"
	"sync"

	"github.com/lumen-compute/lumen/internal/ir"
)

// Capability names one polymorphic call site family, e.g. "shape" or
// "material". Tags are scoped per capability.
type Capability string

// Entry binds one concrete type to a capability: the tag the runtime value
// carries, the element type it selects, and the capture node of the buffer
// holding that type's instances.
type Entry struct {
	Tag     int64
	Desc    ir.Type
	Storage ir.NodeID
}

// Registry accumulates capability registrations during kernel construction.
// Entries persist with the graphs built against them. Safe for concurrent
// registration, though graph construction itself is single-threaded.
type Registry struct {
	mu   sync.RWMutex
	caps map[Capability][]Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{caps: make(map[Capability][]Entry)}
}

// Register records a concrete type backing the capability and returns the
// tag assigned to it. Tags are dense per capability, in registration order,
// so they double as switch case values. storage is the node id of the
// capture buffer holding the type's instances in the graph under
// construction.
func (r *Registry) Register(cap Capability, desc ir.Type, storage ir.NodeID) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	tag := int64(len(r.caps[cap]))
	r.caps[cap] = append(r.caps[cap], Entry{Tag: tag, Desc: desc, Storage: storage})
	return tag
}

// Entries returns the registered entries of a capability in tag order, or
// nil if the capability has no registrations.
func (r *Registry) Entries(cap Capability) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	es := r.caps[cap]
	out := make([]Entry, len(es))
	copy(out, es)
	return out
}

// Capabilities returns the registered capability names, sorted.
func (r *Registry) Capabilities() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Capability, 0, len(r.caps))
	for c := range r.caps {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
