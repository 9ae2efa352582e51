package ir

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// BuildErrorKind classifies graph-construction failures.
type BuildErrorKind int

// Graph-construction error kinds. All are fatal at build time and never
// auto-repaired.
const (
	ErrMalformedSSA BuildErrorKind = iota
	ErrTypeMismatch
	ErrMissingTerminator
	ErrBadPhi
	ErrBadControl
	ErrUnregisteredTag
)

// String returns a human-readable name for the error kind.
func (k BuildErrorKind) String() string {
	switch k {
	case ErrMalformedSSA:
		return "malformed SSA"
	case ErrTypeMismatch:
		return "type mismatch"
	case ErrMissingTerminator:
		return "missing terminator"
	case ErrBadPhi:
		return "bad phi"
	case ErrBadControl:
		return "bad control flow"
	case ErrUnregisteredTag:
		return "unregistered tag"
	default:
		return "unknown"
	}
}

// BuildError is a fatal graph-construction error. It wraps an error carrying
// the stack trace of the op that caused it, so the failing construction site
// can be located without re-running.
type BuildError struct {
	Kind BuildErrorKind
	Err  error
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	return fmt.Sprintf("graph construction: %s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error with its stack trace.
func (e *BuildError) Unwrap() error { return e.Err }

func buildErrf(kind BuildErrorKind, format string, args ...any) error {
	return &BuildError{Kind: kind, Err: errors.Errorf(format, args...)}
}

// Param is a typed kernel argument or capture slot.
type Param struct {
	Name string
	Type Type
}

// Graph is one kernel or custom operator: an entry block, the full block set,
// typed arguments and typed captures. A Graph is immutable once finished and
// safe for concurrent read-only execution.
type Graph struct {
	name     string
	nodes    []*Node
	blocks   []*Block
	entry    BlockID
	args     []Param
	captures []Param
	ret      Type
	finished bool
}

// Name returns the kernel name given at construction.
func (g *Graph) Name() string { return g.name }

// Entry returns the entry block id.
func (g *Graph) Entry() BlockID { return g.entry }

// NumNodes returns the number of nodes in the graph. Node ids are dense in
// [0, NumNodes).
func (g *Graph) NumNodes() int { return len(g.nodes) }

// NumBlocks returns the number of blocks in the graph.
func (g *Graph) NumBlocks() int { return len(g.blocks) }

// NodeByID returns the node with the given id, or nil if out of range.
func (g *Graph) NodeByID(id NodeID) *Node {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

// BlockByID returns the block with the given id, or nil if out of range.
func (g *Graph) BlockByID(id BlockID) *Block {
	if id < 0 || int(id) >= len(g.blocks) {
		return nil
	}
	return g.blocks[id]
}

// Args returns the typed argument list.
func (g *Graph) Args() []Param { return g.args }

// Captures returns the typed capture list (externally bound resources).
func (g *Graph) Captures() []Param { return g.captures }

// ReturnType returns the graph's result type (Void for kernels).
func (g *Graph) ReturnType() Type { return g.ret }

// Finished reports whether the graph passed validation and is immutable.
func (g *Graph) Finished() bool { return g.finished }

// String renders the whole graph in an assembly-like textual form.
func (g *Graph) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "kernel %q: %d blocks, %d nodes\n", g.name, len(g.blocks), len(g.nodes))
	for i, a := range g.args {
		fmt.Fprintf(&sb, "  arg #%d %s: %s\n", i, a.Name, a.Type)
	}
	for i, c := range g.captures {
		fmt.Fprintf(&sb, "  capture #%d %s: %s\n", i, c.Name, c.Type)
	}
	for _, blk := range g.blocks {
		fmt.Fprintf(&sb, "b%d:", blk.id)
		if len(blk.preds) > 0 {
			parts := make([]string, len(blk.preds))
			for i, p := range blk.preds {
				parts[i] = fmt.Sprintf("b%d", p)
			}
			fmt.Fprintf(&sb, " ; preds: %s", strings.Join(parts, ", "))
		}
		sb.WriteString("\n")
		for _, id := range blk.nodes {
			fmt.Fprintf(&sb, "  %s\n", g.nodes[id])
		}
	}
	return sb.String()
}

// reachable returns the set of blocks reachable from the entry block.
func (g *Graph) reachable() []bool {
	seen := make([]bool, len(g.blocks))
	stack := []BlockID{g.entry}
	seen[g.entry] = true
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range g.blocks[b].succs {
			if !seen[s] {
				seen[s] = true
				stack = append(stack, s)
			}
		}
	}
	return seen
}

// computeDominators fills each reachable block's immediate dominator using
// the iterative algorithm of Cooper, Harvey and Kennedy over a reverse
// post-order of the CFG.
func (g *Graph) computeDominators(reach []bool) {
	order := g.reversePostOrder(reach)
	pos := make([]int, len(g.blocks))
	for i := range pos {
		pos[i] = -1
	}
	for i, b := range order {
		pos[b] = i
	}

	idom := make([]BlockID, len(g.blocks))
	for i := range idom {
		idom[i] = InvalidBlockID
	}
	idom[g.entry] = g.entry

	intersect := func(a, b BlockID) BlockID {
		for a != b {
			for pos[a] > pos[b] {
				a = idom[a]
			}
			for pos[b] > pos[a] {
				b = idom[b]
			}
		}
		return a
	}

	for changed := true; changed; {
		changed = false
		for _, b := range order {
			if b == g.entry {
				continue
			}
			var newIdom = InvalidBlockID
			for _, p := range g.blocks[b].preds {
				if !reach[p] || idom[p] == InvalidBlockID {
					continue
				}
				if newIdom == InvalidBlockID {
					newIdom = p
				} else {
					newIdom = intersect(newIdom, p)
				}
			}
			if newIdom != InvalidBlockID && idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}

	for i := range g.blocks {
		g.blocks[i].idom = idom[i]
	}
}

// reversePostOrder returns reachable blocks in reverse post-order.
func (g *Graph) reversePostOrder(reach []bool) []BlockID {
	var post []BlockID
	seen := make([]bool, len(g.blocks))
	var visit func(b BlockID)
	visit = func(b BlockID) {
		seen[b] = true
		for _, s := range g.blocks[b].succs {
			if reach[s] && !seen[s] {
				visit(s)
			}
		}
		post = append(post, b)
	}
	visit(g.entry)
	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}

// dominates reports whether block a dominates block b. Valid only after
// computeDominators has run.
func (g *Graph) dominates(a, b BlockID) bool {
	for {
		if a == b {
			return true
		}
		if b == g.entry || g.blocks[b].idom == InvalidBlockID {
			return false
		}
		b = g.blocks[b].idom
	}
}

// validate re-checks the whole graph: every block terminated, every Phi's
// incoming count equal to its block's predecessor count, and every operand
// produced by a node that dominates the use site. A graph violating any of
// these never survives Finish.
func (g *Graph) validate() error {
	for _, blk := range g.blocks {
		if !blk.Terminated() {
			return buildErrf(ErrMissingTerminator, "block b%d has no terminator", blk.id)
		}
	}

	reach := g.reachable()
	g.computeDominators(reach)

	// Position of each node within its block, for same-block ordering.
	pos := make([]int, len(g.nodes))
	for _, blk := range g.blocks {
		for i, id := range blk.nodes {
			pos[id] = i
		}
	}

	for _, blk := range g.blocks {
		if !reach[blk.id] {
			continue // unreachable tail after break/continue, never executed
		}
		for _, id := range blk.nodes {
			n := g.nodes[id]
			if n.op == OpPhi {
				if len(n.operands) != len(blk.preds) {
					return buildErrf(ErrBadPhi,
						"phi v%d in b%d has %d incoming values but the block has %d predecessors",
						n.id, blk.id, len(n.operands), len(blk.preds))
				}
				for i, opnd := range n.operands {
					pred := n.incoming[i]
					if !reach[pred] {
						continue
					}
					def := g.nodes[opnd]
					if !g.dominates(def.block, pred) {
						return buildErrf(ErrMalformedSSA,
							"phi v%d incoming v%d does not dominate predecessor b%d",
							n.id, opnd, pred)
					}
				}
				continue
			}
			for _, opnd := range n.operands {
				def := g.nodes[opnd]
				if def.block == blk.id {
					if pos[def.id] >= pos[n.id] {
						return buildErrf(ErrMalformedSSA,
							"operand v%d of v%d is defined later in the same block", opnd, n.id)
					}
					continue
				}
				if !g.dominates(def.block, blk.id) {
					return buildErrf(ErrMalformedSSA,
						"operand v%d (b%d) does not dominate use v%d (b%d)",
						opnd, def.block, n.id, blk.id)
				}
			}
		}
	}
	return nil
}
