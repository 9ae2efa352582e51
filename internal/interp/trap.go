// Package interp executes a finished graph once per work item across a
// 1D/2D/3D index domain, with every memory access bounds-checked and every
// bindless dereference type-checked. A violation aborts only the offending
// work item with a typed trap; sibling items proceed, and the caller gets an
// aggregated report of successes, traps, and best-effort hazard warnings.
package interp

import (
	"fmt"
	"strings"
)

// TrapKind classifies a per-item runtime trap.
type TrapKind int

// Trap kinds.
const (
	// TrapOutOfBounds is a buffer or bindless access past the resource's
	// declared extent.
	TrapOutOfBounds TrapKind = iota
	// TrapTypeMismatch is a bindless dereference whose slot holds a
	// different element type than the instruction expects.
	TrapTypeMismatch
	// TrapInvalidTag is a switch on a tag value outside the registered
	// set of an exhaustive dispatch.
	TrapInvalidTag
	// TrapHostCall is a host call that failed or was never bound.
	TrapHostCall
	// TrapInternal covers everything else that killed the item, e.g. an
	// integer division by zero.
	TrapInternal
)

// String returns a stable name for the trap kind.
func (k TrapKind) String() string {
	switch k {
	case TrapOutOfBounds:
		return "out of bounds"
	case TrapTypeMismatch:
		return "type mismatch"
	case TrapInvalidTag:
		return "invalid tag"
	case TrapHostCall:
		return "host call"
	case TrapInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Trap is one work item's fatal runtime violation. It carries enough context
// to locate the failure twice over: where the offending instruction was
// authored (source location plus host call-stack snapshot, when tracing was
// on) and which work item hit it at run time.
type Trap struct {
	Kind TrapKind

	// Loc is the authoring source location of the failing instruction.
	Loc string

	// AuthorStack is the host call-stack snapshot captured when the
	// instruction was appended, or nil when tracing was off.
	AuthorStack error

	// Coord is the failing work item's dispatch coordinate.
	Coord [3]int

	// Offset is the attempted element index for memory traps.
	Offset int64

	Message string
}

// Error implements the error interface.
func (t *Trap) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "trap(%s) at item (%d,%d,%d)", t.Kind, t.Coord[0], t.Coord[1], t.Coord[2])
	if t.Loc != "" {
		fmt.Fprintf(&sb, " in %s", t.Loc)
	}
	if t.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(t.Message)
	}
	return sb.String()
}
