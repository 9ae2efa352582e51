package autodiff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-compute/lumen/internal/autodiff"
	"github.com/lumen-compute/lumen/internal/ir"
)

// forwardKernel builds a plain kernel: y = dot(v, M*v) loaded from captures,
// nothing differentiated yet.
func forwardKernel(t *testing.T) (*ir.Graph, ir.NodeID, ir.NodeID, ir.NodeID) {
	t.Helper()
	vec3 := ir.VectorType(ir.Float32, 3)
	mat3 := ir.MatrixType(ir.Float32, 3)

	b := ir.NewBuilder("quadratic")
	vbuf := b.SetCapture("v", ir.BufferType(vec3))
	mbuf := b.SetCapture("m", ir.BufferType(mat3))
	tid := b.DispatchID(0)
	v := b.Load(vbuf, tid)
	m := b.Load(mbuf, tid)
	z := b.Dot(v, b.MatVec(m, v))
	b.Return()
	g, err := b.Finish()
	require.NoError(t, err)
	return g, z, v, m
}

func TestTransform_AddsGradientPlumbing(t *testing.T) {
	g, z, v, m := forwardKernel(t)
	before := len(g.Captures())

	ag, outs, err := autodiff.Transform(g, z, []ir.NodeID{v, m})
	require.NoError(t, err)
	require.Len(t, outs, 2)

	// One new gradient buffer per request, appended after the originals.
	assert.Len(t, ag.Captures(), before+2)
	assert.Equal(t, before, outs[0].Capture)
	assert.Equal(t, before+1, outs[1].Capture)
	assert.Equal(t, ir.VectorType(ir.Float32, 3), ag.Captures()[outs[0].Capture].Type.ElemType())
	assert.Equal(t, ir.MatrixType(ir.Float32, 3), ag.Captures()[outs[1].Capture].Type.ElemType())

	// The augmented graph now needs a tape; the source does not.
	assert.True(t, autodiff.NeedsTape(ag))
	assert.False(t, autodiff.NeedsTape(g))

	// The source graph was not touched.
	assert.Len(t, g.Captures(), before)

	counts := map[ir.OpCode]int{}
	for i := 0; i < ag.NumNodes(); i++ {
		counts[ag.NodeByID(ir.NodeID(i)).Op()]++
	}
	assert.Equal(t, 2, counts[ir.OpRequiresGrad])
	assert.Equal(t, 1, counts[ir.OpBackward])
	assert.Equal(t, 2, counts[ir.OpGradient])
	assert.Equal(t, 2, counts[ir.OpStore])
}

func TestTransform_RejectsSecondPass(t *testing.T) {
	g, z, v, _ := forwardKernel(t)
	ag, _, err := autodiff.Transform(g, z, []ir.NodeID{v})
	require.NoError(t, err)

	_, _, err = autodiff.Transform(ag, z, []ir.NodeID{v})
	assert.Error(t, err)
}

func TestTransform_RejectsNonScalarOutput(t *testing.T) {
	g, _, v, _ := forwardKernel(t)
	_, _, err := autodiff.Transform(g, v, []ir.NodeID{v})
	assert.Error(t, err)
}

func TestTransform_RejectsOpaqueCall(t *testing.T) {
	f32 := ir.ScalarType(ir.Float32)
	b := ir.NewBuilder("opaque")
	buf := b.SetCapture("in", ir.BufferType(f32))
	tid := b.DispatchID(0)
	x := b.Load(buf, tid)
	y := b.CustomCall("host_fn", f32, x)
	z := b.Mul(y, y)
	b.Return()
	g, err := b.Finish()
	require.NoError(t, err)

	_, _, err = autodiff.Transform(g, z, []ir.NodeID{x})
	assert.ErrorIs(t, err, autodiff.ErrMissingVJP)
}

func TestTransform_RejectsNonFloatWrt(t *testing.T) {
	f32 := ir.ScalarType(ir.Float32)
	b := ir.NewBuilder("mixed")
	buf := b.SetCapture("in", ir.BufferType(f32))
	tid := b.DispatchID(0)
	x := b.Load(buf, tid)
	y := b.Mul(x, x)
	b.Return()
	g, err := b.Finish()
	require.NoError(t, err)

	_, _, err = autodiff.Transform(g, y, []ir.NodeID{tid})
	assert.Error(t, err)
}
