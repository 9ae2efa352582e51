package poly

import (
	"github.com/pkg/errors"

	"github.com/lumen-compute/lumen/internal/ir"
)

// Specialization is the user closure compiled once per registered type. It
// receives the entry being specialized (tag, element type, storage buffer)
// and the index expression, and returns the case's result values. Every
// specialization must produce the same result arity and types; the merged
// values come back from Dispatch as phi nodes.
type Specialization func(b *ir.Builder, e Entry, index ir.NodeID) []ir.NodeID

// Dispatch compiles one instantiation of fn per type registered for the
// capability and emits an exhaustive switch on the runtime tag selecting
// among them. The registry is closed over the statically known type set, so
// a capability with no registrations is a build-time error even though the
// tag value is only known at run time; a tag outside the registered set
// traps the offending work item at execution.
func Dispatch(b *ir.Builder, r *Registry, cap Capability, tag, index ir.NodeID, fn Specialization) ([]ir.NodeID, error) {
	entries := r.Entries(cap)
	if len(entries) == 0 {
		err := &ir.BuildError{
			Kind: ir.ErrUnregisteredTag,
			Err:  errors.Errorf("poly: capability %q has no registered types", cap),
		}
		b.SetErr(err)
		return nil, err
	}

	cases := make([]int64, len(entries))
	for i, e := range entries {
		cases[i] = e.Tag
	}

	merged := b.SwitchOn(tag, cases,
		func(i int) []ir.NodeID { return fn(b, entries[i], index) },
		nil, true)
	if err := b.Err(); err != nil {
		return nil, err
	}
	return merged, nil
}
