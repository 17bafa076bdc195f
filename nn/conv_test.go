package nn_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koaning/wallholla/nn"
	"github.com/koaning/wallholla/tensor"
)

// ascending3x3 returns a [1, 3, 3, 1] tensor with values 1..9.
func ascending3x3(t *testing.T) *tensor.Tensor {
	t.Helper()
	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, tensor.Shape{1, 3, 3, 1})
	require.NoError(t, err)
	return x
}

func TestConv2DValid(t *testing.T) {
	conv := nn.NewConv2D(1, 1, 3, 1, nn.PaddingValid, nil)
	for i := range conv.Parameters()[0].Tensor().Data() {
		conv.Parameters()[0].Tensor().Data()[i] = 1
	}

	out := conv.Forward(ascending3x3(t))
	require.True(t, out.Shape().Equal(tensor.Shape{1, 1, 1, 1}))
	assert.Equal(t, float32(45), out.Data()[0])
}

func TestConv2DSame(t *testing.T) {
	conv := nn.NewConv2D(1, 2, 3, 1, nn.PaddingSame, nil)

	out := conv.Forward(ascending3x3(t))
	assert.True(t, out.Shape().Equal(tensor.Shape{1, 3, 3, 2}))
}

func TestConv2DStrideHalvesSpatialDims(t *testing.T) {
	conv := nn.NewConv2D(3, 8, 3, 2, nn.PaddingSame, nn.NewReLU6())

	out := conv.Forward(tensor.Randn(tensor.Shape{2, 8, 8, 3}))
	require.True(t, out.Shape().Equal(tensor.Shape{2, 4, 4, 8}))
	for _, v := range out.Data() {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(6))
	}
}

func TestDepthwiseConv2D(t *testing.T) {
	dw := nn.NewDepthwiseConv2D(1, 3, 1, nn.PaddingValid, nil)
	for i := range dw.Parameters()[0].Tensor().Data() {
		dw.Parameters()[0].Tensor().Data()[i] = 1
	}

	out := dw.Forward(ascending3x3(t))
	require.True(t, out.Shape().Equal(tensor.Shape{1, 1, 1, 1}))
	assert.Equal(t, float32(45), out.Data()[0])
}

func TestSeparableConv2DShape(t *testing.T) {
	sep := nn.NewSeparableConv2D(4, 16, 3, 1, nn.PaddingSame, nil)

	out := sep.Forward(tensor.Randn(tensor.Shape{1, 6, 6, 4}))
	assert.True(t, out.Shape().Equal(tensor.Shape{1, 6, 6, 16}))

	state := sep.StateDict()
	assert.Contains(t, state, "depthwise.weight")
	assert.Contains(t, state, "pointwise.weight")
	require.NoError(t, sep.LoadStateDict(state))
}

func TestMaxPool2D(t *testing.T) {
	pool := nn.NewMaxPool2D(2, 2, nn.PaddingValid)

	x, err := tensor.FromSlice([]float32{
		1, 2, 5, 6,
		3, 4, 7, 8,
		9, 1, 2, 3,
		1, 1, 1, 1,
	}, tensor.Shape{1, 4, 4, 1})
	require.NoError(t, err)

	out := pool.Forward(x)
	require.True(t, out.Shape().Equal(tensor.Shape{1, 2, 2, 1}))
	assert.Equal(t, []float32{4, 8, 9, 3}, out.Data())
}

func TestGlobalAvgPool2D(t *testing.T) {
	pool := nn.NewGlobalAvgPool2D()

	x := tensor.Full(tensor.Shape{2, 3, 3, 4}, 2)
	out := pool.Forward(x)
	require.True(t, out.Shape().Equal(tensor.Shape{2, 4}))
	for _, v := range out.Data() {
		assert.InDelta(t, 2.0, v, 1e-6)
	}
}

func TestBatchNormDefaultsAreIdentity(t *testing.T) {
	bn := nn.NewBatchNorm(3, 1e-5)

	x := tensor.Randn(tensor.Shape{2, 2, 2, 3})
	out := bn.Forward(x)
	for i, v := range out.Data() {
		assert.InDelta(t, x.Data()[i], v, 1e-4)
	}
}

func TestBatchNormScaleAndShift(t *testing.T) {
	bn := nn.NewBatchNorm(2, 1e-5)
	state := bn.StateDict()
	copy(state["gamma"].Data(), []float32{2, 1})
	copy(state["beta"].Data(), []float32{0, 10})
	copy(state["running_mean"].Data(), []float32{1, 0})
	copy(state["running_var"].Data(), []float32{1, 1})

	x, err := tensor.FromSlice([]float32{2, 3}, tensor.Shape{1, 1, 1, 2})
	require.NoError(t, err)

	out := bn.Forward(x)
	assert.InDelta(t, 2.0, out.Data()[0], 1e-3)  // 2*(2-1)/1
	assert.InDelta(t, 13.0, out.Data()[1], 1e-3) // 3 + 10
}
