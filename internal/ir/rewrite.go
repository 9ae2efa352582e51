package ir

import "slices"

// Rewriter performs limited surgery on a finished graph. It deep-copies the
// source, lets a transform insert new nodes after existing ones and append
// new capture slots, then re-validates the result. The source graph is never
// touched. Like the Builder, a Rewriter latches its first error and turns
// later calls into no-ops.
type Rewriter struct {
	g   *Graph
	err error
}

// NewRewriter deep-copies src and returns a rewriter over the copy.
func NewRewriter(src *Graph) *Rewriter {
	return &Rewriter{g: cloneGraph(src)}
}

// Err returns the first rewrite error, if any.
func (r *Rewriter) Err() error { return r.err }

func cloneGraph(src *Graph) *Graph {
	g := &Graph{
		name:     src.name,
		entry:    src.entry,
		ret:      src.ret,
		args:     slices.Clone(src.args),
		captures: slices.Clone(src.captures),
	}
	g.nodes = make([]*Node, len(src.nodes))
	for i, n := range src.nodes {
		c := *n
		c.operands = slices.Clone(n.operands)
		c.cases = slices.Clone(n.cases)
		c.targets = slices.Clone(n.targets)
		c.incoming = slices.Clone(n.incoming)
		g.nodes[i] = &c
	}
	g.blocks = make([]*Block, len(src.blocks))
	for i, b := range src.blocks {
		c := *b
		c.nodes = slices.Clone(b.nodes)
		c.preds = slices.Clone(b.preds)
		c.succs = slices.Clone(b.succs)
		g.blocks[i] = &c
	}
	return g
}

// InsertAfter creates a node and places it in anchor's block immediately
// after anchor. Chain the returned id as the next anchor to insert a sequence
// in order. The anchor must not be a terminator.
func (r *Rewriter) InsertAfter(anchor NodeID, op OpCode, typ Type, operands ...NodeID) NodeID {
	return r.insert(anchor, &Node{op: op, typ: typ, operands: operands})
}

// InsertAfterAux is InsertAfter with an integer payload (axis, lane, slot).
func (r *Rewriter) InsertAfterAux(anchor NodeID, op OpCode, typ Type, aux int64, operands ...NodeID) NodeID {
	return r.insert(anchor, &Node{op: op, typ: typ, operands: operands, auxInt: aux})
}

func (r *Rewriter) insert(anchor NodeID, n *Node) NodeID {
	if r.err != nil {
		return InvalidNodeID
	}
	an := r.g.NodeByID(anchor)
	if an == nil {
		r.err = buildErrf(ErrMalformedSSA, "rewrite: insert after unknown node v%d", anchor)
		return InvalidNodeID
	}
	if an.op.IsTerminator() {
		r.err = buildErrf(ErrBadControl, "rewrite: cannot insert after terminator v%d", anchor)
		return InvalidNodeID
	}
	operandTypes := make([]Type, len(n.operands))
	for i, o := range n.operands {
		on := r.g.NodeByID(o)
		if on == nil {
			r.err = buildErrf(ErrMalformedSSA, "rewrite: operand v%d does not exist", o)
			return InvalidNodeID
		}
		operandTypes[i] = on.typ
	}
	if err := checkSignature(n.op, n.typ, operandTypes); err != nil {
		r.err = &BuildError{Kind: ErrTypeMismatch, Err: err}
		return InvalidNodeID
	}
	n.id = NodeID(len(r.g.nodes))
	n.block = an.block
	n.loc = "(rewrite)"
	r.g.nodes = append(r.g.nodes, n)

	blk := r.g.blocks[an.block]
	pos := slices.Index(blk.nodes, anchor)
	blk.nodes = slices.Insert(blk.nodes, pos+1, n.id)
	return n.id
}

// AddCapture appends a new capture slot of the given resource type and
// places its OpCapture node at the top of the entry block, so the new
// resource is visible everywhere.
func (r *Rewriter) AddCapture(name string, t Type) NodeID {
	if r.err != nil {
		return InvalidNodeID
	}
	if !t.IsResource() {
		r.err = buildErrf(ErrTypeMismatch, "rewrite: capture %q has non-resource type %s", name, t)
		return InvalidNodeID
	}
	idx := len(r.g.captures)
	r.g.captures = append(r.g.captures, Param{Name: name, Type: t})

	n := &Node{op: OpCapture, typ: t, auxInt: int64(idx), block: r.g.entry, loc: "(rewrite)"}
	n.id = NodeID(len(r.g.nodes))
	r.g.nodes = append(r.g.nodes, n)

	entry := r.g.blocks[r.g.entry]
	entry.nodes = slices.Insert(entry.nodes, 0, n.id)
	return n.id
}

// Finish re-validates the rewritten graph and marks it finished.
func (r *Rewriter) Finish() (*Graph, error) {
	if r.err != nil {
		return nil, r.err
	}
	if err := r.g.validate(); err != nil {
		return nil, err
	}
	r.g.finished = true
	return r.g, nil
}
