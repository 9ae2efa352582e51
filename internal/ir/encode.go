package ir

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// Serialized graph format, for tooling and alternate execution backends:
//
//	magic "LMNK" | u32 version | 32-byte SHA-256 of the payload | payload
//
// The payload is a type table followed by one function table (name, return
// type, argument and capture tables, blocks, nodes with operand-id lists and
// terminator kinds). All integers are little-endian. Authoring stack
// snapshots are not serialized; source locations are.
const (
	encodeMagic   = "LMNK"
	encodeVersion = 1
	checksumSize  = sha256.Size
)

type encoder struct {
	buf      bytes.Buffer
	types    []Type
	typeIdx  map[string]uint32 // keyed by Type.String(), which is canonical
	graphErr error
}

// Encode writes the graph's serialized form. The graph must be finished.
func Encode(w io.Writer, g *Graph) error {
	if g == nil || !g.finished {
		return errors.New("encode: graph is not finished")
	}
	e := &encoder{typeIdx: make(map[string]uint32)}

	// Collect every type up front so the table is complete before nodes
	// reference it.
	for _, p := range g.args {
		e.internType(p.Type)
	}
	for _, p := range g.captures {
		e.internType(p.Type)
	}
	e.internType(g.ret)
	for _, n := range g.nodes {
		e.internType(n.typ)
	}

	var payload bytes.Buffer
	pe := &encoder{buf: payload, types: e.types, typeIdx: e.typeIdx}
	pe.writeTypeTable()
	pe.writeGraph(g)

	sum := sha256.Sum256(pe.buf.Bytes())
	if _, err := io.WriteString(w, encodeMagic); err != nil {
		return errors.Wrap(err, "encode: magic")
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(encodeVersion)); err != nil {
		return errors.Wrap(err, "encode: version")
	}
	if _, err := w.Write(sum[:]); err != nil {
		return errors.Wrap(err, "encode: checksum")
	}
	if _, err := w.Write(pe.buf.Bytes()); err != nil {
		return errors.Wrap(err, "encode: payload")
	}
	return nil
}

// internType registers a type (and its children) in the table, returning its
// index.
func (e *encoder) internType(t Type) uint32 {
	key := t.String()
	if idx, ok := e.typeIdx[key]; ok {
		return idx
	}
	// Children first, so indices of components always precede composites.
	if t.Elem != nil {
		e.internType(*t.Elem)
	}
	for _, f := range t.Fields {
		e.internType(f.Type)
	}
	idx := uint32(len(e.types))
	e.types = append(e.types, t)
	e.typeIdx[key] = idx
	return idx
}

func (e *encoder) u8(v uint8)    { e.buf.WriteByte(v) }
func (e *encoder) u16(v uint16)  { _ = binary.Write(&e.buf, binary.LittleEndian, v) }
func (e *encoder) u32(v uint32)  { _ = binary.Write(&e.buf, binary.LittleEndian, v) }
func (e *encoder) i64(v int64)   { _ = binary.Write(&e.buf, binary.LittleEndian, v) }
func (e *encoder) u64(v uint64)  { _ = binary.Write(&e.buf, binary.LittleEndian, v) }
func (e *encoder) f64(v float64) { e.u64(math.Float64bits(v)) }

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.buf.WriteString(s)
}

func (e *encoder) typeRef(t Type) {
	e.u32(e.typeIdx[t.String()])
}

func (e *encoder) writeTypeTable() {
	e.u32(uint32(len(e.types)))
	for _, t := range e.types {
		e.u8(uint8(t.Kind))
		switch t.Kind {
		case KindScalar:
			e.u8(uint8(t.Scalar))
		case KindVector, KindMatrix, KindArray:
			e.typeRef(*t.Elem)
			e.u32(uint32(t.Count))
		case KindPointer:
			e.typeRef(*t.Elem)
		case KindStruct:
			e.str(t.Name)
			e.u32(uint32(t.Size))
			e.u32(uint32(len(t.Fields)))
			for _, f := range t.Fields {
				e.str(f.Name)
				e.typeRef(f.Type)
				e.u32(uint32(f.Offset))
			}
		case KindResource:
			e.u8(uint8(t.Resource))
			if t.Elem != nil {
				e.u8(1)
				e.typeRef(*t.Elem)
			} else {
				e.u8(0)
			}
		}
	}
}

func (e *encoder) writeParams(params []Param) {
	e.u32(uint32(len(params)))
	for _, p := range params {
		e.str(p.Name)
		e.typeRef(p.Type)
	}
}

func (e *encoder) writeGraph(g *Graph) {
	e.str(g.name)
	e.typeRef(g.ret)
	e.u32(uint32(g.entry))
	e.writeParams(g.args)
	e.writeParams(g.captures)

	e.u32(uint32(len(g.nodes)))
	for _, n := range g.nodes {
		e.u16(uint16(n.op))
		e.u32(uint32(n.block))
		e.typeRef(n.typ)
		e.u32(uint32(len(n.operands)))
		for _, o := range n.operands {
			e.u32(uint32(o))
		}
		e.i64(n.auxInt)
		e.str(n.sym)
		e.str(n.loc)
		e.writeConst(n)
		e.u32(uint32(len(n.cases)))
		for _, c := range n.cases {
			e.i64(c)
		}
		e.u32(uint32(len(n.targets)))
		for _, t := range n.targets {
			e.u32(uint32(t))
		}
		e.u32(uint32(len(n.incoming)))
		for _, in := range n.incoming {
			e.u32(uint32(in))
		}
	}

	e.u32(uint32(len(g.blocks)))
	for _, blk := range g.blocks {
		e.u32(uint32(len(blk.nodes)))
		for _, id := range blk.nodes {
			e.u32(uint32(id))
		}
	}
}

// Constant payload tags.
const (
	constNone  = 0
	constBool  = 1
	constInt   = 2
	constUint  = 3
	constFloat = 4
	constLanes = 5
)

func (e *encoder) writeConst(n *Node) {
	switch v := n.constValue.(type) {
	case nil:
		e.u8(constNone)
	case bool:
		e.u8(constBool)
		if v {
			e.u8(1)
		} else {
			e.u8(0)
		}
	case int64:
		e.u8(constInt)
		e.i64(v)
	case uint64:
		e.u8(constUint)
		e.u64(v)
	case float64:
		e.u8(constFloat)
		e.f64(v)
	case []float64:
		e.u8(constLanes)
		e.u32(uint32(len(v)))
		for _, f := range v {
			e.f64(f)
		}
	}
}
