package ir

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roundTripFixture builds a kernel exercising every structural feature the
// format has to carry: control flow, phis, constants of several types,
// captures, memory ops and a custom call.
func roundTripFixture(t *testing.T) *Graph {
	t.Helper()
	f32 := ScalarType(Float32)

	b := NewBuilder("roundtrip")
	scale := b.SetArg("scale", f32)
	buf := b.SetCapture("buf", BufferType(f32))
	tbl := b.SetCapture("tbl", BindlessType())
	tid := b.DispatchID(0)

	x := b.Mul(b.Load(buf, tid), scale)
	v := b.MakeVector(x, x, b.ConstFloat(Float32, 0.5))
	d := b.Dot(v, v)

	b.If(b.Lt(d, b.ConstFloat(Float32, 100)))
	small := b.Sqrt(d)
	b.Else()
	large := b.CustomCall("host_clamp", f32, d)
	merged := b.EndIf([]NodeID{small}, []NodeID{large})

	sum := b.While([]NodeID{merged[0]},
		func(c []NodeID) NodeID { return b.Lt(c[0], b.ConstFloat(Float32, 1000)) },
		func(c []NodeID) []NodeID { return []NodeID{b.Add(c[0], c[0])} })

	b.BindlessStore(tbl, b.ConstInt(Uint32, 0), tid, sum[0])
	b.Store(buf, tid, sum[0])
	b.Return(sum[0])

	g, err := b.Finish()
	require.NoError(t, err)
	return g
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	g := roundTripFixture(t)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, g))

	got, err := Decode(&buf)
	require.NoError(t, err)

	assert.Equal(t, g.Name(), got.Name())
	assert.Equal(t, g.NumNodes(), got.NumNodes())
	assert.Equal(t, g.NumBlocks(), got.NumBlocks())
	assert.Equal(t, g.Args(), got.Args())
	assert.Equal(t, g.Captures(), got.Captures())
	assert.Equal(t, g.ReturnType(), got.ReturnType())
	assert.True(t, got.Finished())

	// The listing covers opcodes, operands, cases, targets, phi edges,
	// aux payloads and source locations in one comparison.
	assert.Equal(t, g.String(), got.String())
}

func TestEncode_RejectsUnfinished(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Encode(&buf, nil))
}

func TestDecode_BadMagic(t *testing.T) {
	g := roundTripFixture(t)
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, g))

	raw := buf.Bytes()
	raw[0] = 'X'
	_, err := Decode(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestDecode_UnsupportedVersion(t *testing.T) {
	g := roundTripFixture(t)
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, g))

	raw := buf.Bytes()
	binary.LittleEndian.PutUint32(raw[4:8], 99)
	_, err := Decode(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestDecode_ChecksumMismatch(t *testing.T) {
	g := roundTripFixture(t)
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, g))

	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xff
	_, err := Decode(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestDecode_Truncated(t *testing.T) {
	g := roundTripFixture(t)
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, g))

	raw := buf.Bytes()
	_, err := Decode(bytes.NewReader(raw[:len(raw)/2]))
	assert.Error(t, err)
}

// The checksum does not protect against a writer that emits out-of-range
// block ids, so the decoder must reject them itself rather than index by
// them during validation.
func TestDecode_RejectsBadBlockIDs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(g *Graph)
	}{
		{"entry out of range", func(g *Graph) {
			g.entry = BlockID(1 << 30)
		}},
		{"negative entry", func(g *Graph) {
			g.entry = BlockID(-1)
		}},
		{"node block out of range", func(g *Graph) {
			g.nodes[0].block = BlockID(len(g.blocks))
		}},
		{"phi incoming out of range", func(g *Graph) {
			for _, n := range g.nodes {
				if n.op == OpPhi {
					n.incoming[0] = BlockID(1 << 30)
					return
				}
			}
			t.Fatal("fixture has no phi")
		}},
		{"negative jump target", func(g *Graph) {
			for _, n := range g.nodes {
				if n.op == OpJump {
					n.targets[0] = BlockID(-7)
					return
				}
			}
			t.Fatal("fixture has no jump")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := roundTripFixture(t)
			tt.mutate(g)

			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, g))
			_, err := Decode(bytes.NewReader(buf.Bytes()))
			require.Error(t, err)
		})
	}
}
