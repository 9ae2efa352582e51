package poly_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-compute/lumen/internal/ir"
	"github.com/lumen-compute/lumen/internal/poly"
)

// buildAreaKernel registers two concrete "shape" types (circle: f32 radius,
// box: vec2 extents) and dispatches an area computation over a tag buffer.
func buildAreaKernel(t *testing.T) (*ir.Graph, int) {
	t.Helper()
	f32 := ir.ScalarType(ir.Float32)
	vec2 := ir.VectorType(ir.Float32, 2)

	reg := poly.NewRegistry()
	b := ir.NewBuilder("area")
	circles := b.SetCapture("circles", ir.BufferType(f32))
	boxes := b.SetCapture("boxes", ir.BufferType(vec2))
	tags := b.SetCapture("tags", ir.BufferType(ir.ScalarType(ir.Uint32)))
	index := b.SetCapture("index", ir.BufferType(ir.ScalarType(ir.Uint32)))
	out := b.SetCapture("out", ir.BufferType(f32))

	ct := reg.Register("shape", f32, circles)
	bt := reg.Register("shape", vec2, boxes)
	require.Equal(t, int64(0), ct)
	require.Equal(t, int64(1), bt)

	tid := b.DispatchID(0)
	tag := b.Load(tags, tid)
	idx := b.Load(index, tid)

	vals, err := poly.Dispatch(b, reg, "shape", tag, idx,
		func(b *ir.Builder, e poly.Entry, index ir.NodeID) []ir.NodeID {
			v := b.Load(e.Storage, index)
			switch e.Tag {
			case 0: // circle: pi * r * r
				pi := b.ConstFloat(ir.Float32, 3.14159265)
				return []ir.NodeID{b.Mul(pi, b.Mul(v, v))}
			default: // box: w * h
				return []ir.NodeID{b.Mul(b.Extract(v, 0), b.Extract(v, 1))}
			}
		})
	require.NoError(t, err)
	require.Len(t, vals, 1)

	b.Store(out, tid, vals[0])
	b.Return()
	g, err := b.Finish()
	require.NoError(t, err)

	switches := 0
	for i := 0; i < g.NumNodes(); i++ {
		if g.NodeByID(ir.NodeID(i)).Op() == ir.OpSwitch {
			switches++
		}
	}
	return g, switches
}

func TestDispatch_EmitsOneSwitchPerCallSite(t *testing.T) {
	g, switches := buildAreaKernel(t)
	assert.Equal(t, 1, switches)

	// No default arm: the registry's type set is closed, so the switch has
	// exactly one target per registered type.
	for i := 0; i < g.NumNodes(); i++ {
		n := g.NodeByID(ir.NodeID(i))
		if n.Op() == ir.OpSwitch {
			assert.Len(t, n.Cases(), 2)
			assert.Len(t, n.Targets(), 2)
		}
	}
}

func TestDispatch_UnregisteredCapabilityFailsAtBuild(t *testing.T) {
	reg := poly.NewRegistry()

	b := ir.NewBuilder("bad")
	tags := b.SetCapture("tags", ir.BufferType(ir.ScalarType(ir.Uint32)))
	tid := b.DispatchID(0)
	tag := b.Load(tags, tid)

	_, err := poly.Dispatch(b, reg, "material", tag, tid,
		func(b *ir.Builder, e poly.Entry, index ir.NodeID) []ir.NodeID {
			return []ir.NodeID{b.ConstFloat(ir.Float32, 0)}
		})
	require.Error(t, err)

	var be *ir.BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, ir.ErrUnregisteredTag, be.Kind)

	// The builder is poisoned: the kernel can never finish.
	b.Return()
	_, err = b.Finish()
	assert.Error(t, err)
}

func TestRegistry_TagsAreDensePerCapability(t *testing.T) {
	reg := poly.NewRegistry()
	f32 := ir.ScalarType(ir.Float32)

	assert.Equal(t, int64(0), reg.Register("shape", f32, 0))
	assert.Equal(t, int64(1), reg.Register("shape", f32, 1))
	assert.Equal(t, int64(0), reg.Register("light", f32, 2))

	shapes := reg.Entries("shape")
	require.Len(t, shapes, 2)
	assert.Equal(t, int64(0), shapes[0].Tag)
	assert.Equal(t, int64(1), shapes[1].Tag)
	assert.Len(t, reg.Entries("light"), 1)
	assert.Empty(t, reg.Entries("material"))
	assert.Equal(t, []poly.Capability{"light", "shape"}, reg.Capabilities())
}
