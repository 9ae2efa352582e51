package ir

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// Decode errors.
var (
	ErrBadMagic           = errors.New("invalid magic bytes")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrChecksumMismatch   = errors.New("checksum mismatch: file may be corrupted")
)

type decoder struct {
	buf   *bytes.Reader
	types []Type
	err   error
}

// Decode reads a serialized graph, verifies its checksum, and re-validates
// it before returning. A decoded graph is finished and immutable like any
// other.
func Decode(r io.Reader) (*Graph, error) {
	header := make([]byte, len(encodeMagic)+4+checksumSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, errors.Wrap(err, "decode: header")
	}
	if string(header[:4]) != encodeMagic {
		return nil, ErrBadMagic
	}
	version := binary.LittleEndian.Uint32(header[4:8])
	if version != encodeVersion {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "version %d", version)
	}
	var want [checksumSize]byte
	copy(want[:], header[8:])

	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode: payload")
	}
	if sha256.Sum256(payload) != want {
		return nil, ErrChecksumMismatch
	}

	d := &decoder{buf: bytes.NewReader(payload)}
	d.readTypeTable()
	g := d.readGraph()
	if d.err != nil {
		return nil, errors.Wrap(d.err, "decode")
	}
	if err := g.validate(); err != nil {
		return nil, errors.Wrap(err, "decode: graph failed validation")
	}
	g.finished = true
	return g, nil
}

func (d *decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *decoder) u8() uint8 {
	b, err := d.buf.ReadByte()
	if err != nil {
		d.fail(err)
	}
	return b
}

func (d *decoder) u16() uint16 {
	var v uint16
	if err := binary.Read(d.buf, binary.LittleEndian, &v); err != nil {
		d.fail(err)
	}
	return v
}

func (d *decoder) u32() uint32 {
	var v uint32
	if err := binary.Read(d.buf, binary.LittleEndian, &v); err != nil {
		d.fail(err)
	}
	return v
}

func (d *decoder) i64() int64 {
	var v int64
	if err := binary.Read(d.buf, binary.LittleEndian, &v); err != nil {
		d.fail(err)
	}
	return v
}

func (d *decoder) u64() uint64 {
	var v uint64
	if err := binary.Read(d.buf, binary.LittleEndian, &v); err != nil {
		d.fail(err)
	}
	return v
}

func (d *decoder) f64() float64 { return math.Float64frombits(d.u64()) }

func (d *decoder) str() string {
	n := d.u32()
	if d.err != nil || n > uint32(d.buf.Len()) {
		d.fail(errors.New("string length exceeds payload"))
		return ""
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(d.buf, b); err != nil {
		d.fail(err)
	}
	return string(b)
}

func (d *decoder) typeRef() Type {
	idx := d.u32()
	if d.err != nil {
		return Type{}
	}
	if int(idx) >= len(d.types) {
		d.fail(errors.Errorf("type index %d out of range", idx))
		return Type{}
	}
	return d.types[idx]
}

func (d *decoder) readTypeTable() {
	count := d.u32()
	if d.err != nil {
		return
	}
	d.types = make([]Type, 0, count)
	for i := uint32(0); i < count && d.err == nil; i++ {
		kind := TypeKind(d.u8())
		t := Type{Kind: kind}
		switch kind {
		case KindScalar:
			t.Scalar = ScalarKind(d.u8())
		case KindVector, KindMatrix, KindArray:
			elem := d.typeRef()
			t.Elem = &elem
			t.Count = int(d.u32())
		case KindPointer:
			elem := d.typeRef()
			t.Elem = &elem
		case KindStruct:
			t.Name = d.str()
			t.Size = int(d.u32())
			nf := d.u32()
			for j := uint32(0); j < nf && d.err == nil; j++ {
				f := StructField{Name: d.str(), Type: d.typeRef(), Offset: int(d.u32())}
				t.Fields = append(t.Fields, f)
			}
		case KindResource:
			t.Resource = ResourceKind(d.u8())
			if d.u8() == 1 {
				elem := d.typeRef()
				t.Elem = &elem
			}
		case KindVoid:
		default:
			d.fail(errors.Errorf("unknown type kind %d", kind))
		}
		d.types = append(d.types, t)
	}
}

func (d *decoder) readParams() []Param {
	count := d.u32()
	params := make([]Param, 0, count)
	for i := uint32(0); i < count && d.err == nil; i++ {
		params = append(params, Param{Name: d.str(), Type: d.typeRef()})
	}
	return params
}

func (d *decoder) readGraph() *Graph {
	g := &Graph{}
	g.name = d.str()
	g.ret = d.typeRef()
	g.entry = BlockID(d.u32())
	g.args = d.readParams()
	g.captures = d.readParams()

	nodeCount := d.u32()
	if d.err != nil {
		return g
	}
	g.nodes = make([]*Node, 0, nodeCount)
	for i := uint32(0); i < nodeCount && d.err == nil; i++ {
		n := &Node{id: NodeID(i)}
		n.op = OpCode(d.u16())
		n.block = BlockID(d.u32())
		n.typ = d.typeRef()
		nOps := d.u32()
		for j := uint32(0); j < nOps && d.err == nil; j++ {
			id := NodeID(d.u32())
			if id < 0 || uint32(id) >= nodeCount {
				d.fail(errors.Errorf("operand id %d out of range", id))
				break
			}
			n.operands = append(n.operands, id)
		}
		n.auxInt = d.i64()
		n.sym = d.str()
		n.loc = d.str()
		n.constValue = d.readConst()
		nCases := d.u32()
		for j := uint32(0); j < nCases && d.err == nil; j++ {
			n.cases = append(n.cases, d.i64())
		}
		nTargets := d.u32()
		for j := uint32(0); j < nTargets && d.err == nil; j++ {
			n.targets = append(n.targets, BlockID(d.u32()))
		}
		nIncoming := d.u32()
		for j := uint32(0); j < nIncoming && d.err == nil; j++ {
			n.incoming = append(n.incoming, BlockID(d.u32()))
		}
		g.nodes = append(g.nodes, n)
	}

	blockCount := d.u32()
	if d.err != nil {
		return g
	}
	g.blocks = make([]*Block, 0, blockCount)
	for i := uint32(0); i < blockCount && d.err == nil; i++ {
		blk := &Block{id: BlockID(i), term: InvalidNodeID, idom: InvalidBlockID}
		nNodes := d.u32()
		for j := uint32(0); j < nNodes && d.err == nil; j++ {
			id := NodeID(d.u32())
			if id < 0 || uint32(id) >= nodeCount {
				d.fail(errors.Errorf("block node id %d out of range", id))
				break
			}
			blk.nodes = append(blk.nodes, id)
		}
		g.blocks = append(g.blocks, blk)
	}
	if d.err != nil {
		return g
	}

	// The checksum only catches accidental corruption; a buggy or hostile
	// writer can still emit block ids the validation passes would index by.
	if g.entry < 0 || int(g.entry) >= len(g.blocks) {
		d.fail(errors.Errorf("entry block b%d out of range", g.entry))
		return g
	}
	for _, n := range g.nodes {
		if n.block < 0 || int(n.block) >= len(g.blocks) {
			d.fail(errors.Errorf("node v%d block b%d out of range", n.id, n.block))
			return g
		}
		for _, in := range n.incoming {
			if in < 0 || int(in) >= len(g.blocks) {
				d.fail(errors.Errorf("phi v%d incoming b%d out of range", n.id, in))
				return g
			}
		}
	}

	// Rebuild edges from terminators rather than trusting the file.
	for _, blk := range g.blocks {
		if len(blk.nodes) == 0 {
			continue
		}
		last := g.nodes[blk.nodes[len(blk.nodes)-1]]
		if !last.op.IsTerminator() {
			continue
		}
		blk.term = last.id
		for _, t := range last.targets {
			if t < 0 || int(t) >= len(g.blocks) {
				d.fail(errors.Errorf("terminator target b%d out of range", t))
				return g
			}
			blk.succs = append(blk.succs, t)
			g.blocks[t].preds = append(g.blocks[t].preds, blk.id)
		}
	}
	return g
}

func (d *decoder) readConst() any {
	switch d.u8() {
	case constNone:
		return nil
	case constBool:
		return d.u8() == 1
	case constInt:
		return d.i64()
	case constUint:
		return d.u64()
	case constFloat:
		return d.f64()
	case constLanes:
		n := d.u32()
		if d.err != nil || n > uint32(d.buf.Len()/8) {
			d.fail(errors.New("lane count exceeds payload"))
			return nil
		}
		lanes := make([]float64, n)
		for i := range lanes {
			lanes[i] = d.f64()
		}
		return lanes
	default:
		d.fail(errors.New("unknown constant tag"))
		return nil
	}
}
