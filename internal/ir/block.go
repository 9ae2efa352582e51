package ir

// BlockID is a unique basic-block id within a Graph.
type BlockID int32

// InvalidBlockID marks a block reference that failed to resolve.
const InvalidBlockID = BlockID(-1)

// Block is an ordered node sequence ending in exactly one terminator.
// Blocks form a directed graph; cycles only occur through the structured
// loop construct, never through arbitrary jumps.
type Block struct {
	id    BlockID
	nodes []NodeID // in order; the last entry is the terminator once sealed
	preds []BlockID
	succs []BlockID
	term  NodeID // InvalidNodeID until the block is terminated
	idom  BlockID
}

// ID returns the block's id.
func (b *Block) ID() BlockID { return b.id }

// Nodes returns the block's node ids in order, terminator included.
func (b *Block) Nodes() []NodeID { return b.nodes }

// Preds returns the predecessor block ids.
func (b *Block) Preds() []BlockID { return b.preds }

// Succs returns the successor block ids.
func (b *Block) Succs() []BlockID { return b.succs }

// Terminator returns the terminator node id, or InvalidNodeID if the block
// has not been terminated yet.
func (b *Block) Terminator() NodeID { return b.term }

// Terminated reports whether the block ends in a terminator.
func (b *Block) Terminated() bool { return b.term != InvalidNodeID }
