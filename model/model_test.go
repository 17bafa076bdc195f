package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koaning/wallholla/model"
	"github.com/koaning/wallholla/nn"
	"github.com/koaning/wallholla/tensor"
)

// TestFCWeightShapes checks that a custom fully-connected model produces
// weight and bias tensors of the expected shape at every layer.
func TestFCWeightShapes(t *testing.T) {
	m, err := model.FC(16, []int{8, 2, 1})
	require.NoError(t, err)

	weightShapes := []tensor.Shape{{8, 16}, {2, 8}, {1, 2}}
	biasDims := []int{8, 2, 1}

	require.Equal(t, len(weightShapes), m.Len())
	for i := 0; i < m.Len(); i++ {
		dense, ok := m.At(i).(*nn.Dense)
		require.True(t, ok, "layer %d should be Dense", i)
		assert.True(t, dense.Weight().Tensor().Shape().Equal(weightShapes[i]),
			"layer %d weight shape = %v, want %v", i, dense.Weight().Tensor().Shape(), weightShapes[i])
		assert.Equal(t, biasDims[i], dense.Bias().Tensor().Shape()[0], "layer %d bias", i)
	}
}

func TestFCForwardShape(t *testing.T) {
	m, err := model.FC(16, []int{8, 2, 1})
	require.NoError(t, err)

	out := m.Forward(tensor.Randn(tensor.Shape{5, 16}))
	assert.True(t, out.Shape().Equal(tensor.Shape{5, 1}))
}

func TestFCBroadcastsActivationsAndDropouts(t *testing.T) {
	m, err := model.FC(4, []int{3, 2},
		model.WithActivations("tanh"),
		model.WithDropouts(0.1))
	require.NoError(t, err)

	// Dense, Dropout, Dense, Dropout.
	require.Equal(t, 4, m.Len())
	dense, ok := m.At(0).(*nn.Dense)
	require.True(t, ok)
	assert.Equal(t, "tanh", dense.Activation().Name())
	drop, ok := m.At(1).(*nn.Dropout)
	require.True(t, ok)
	assert.Equal(t, float32(0.1), drop.Rate())
}

func TestFCPerLayerSettings(t *testing.T) {
	m, err := model.FC(4, []int{3, 2},
		model.WithActivations("relu", "sigmoid"),
		model.WithDropouts(0, 0.5))
	require.NoError(t, err)

	// Only the second layer gets a dropout.
	require.Equal(t, 3, m.Len())
	second, ok := m.At(1).(*nn.Dense)
	require.True(t, ok)
	assert.Equal(t, "sigmoid", second.Activation().Name())
	_, ok = m.At(2).(*nn.Dropout)
	assert.True(t, ok)
}

func TestFCConfigurationErrors(t *testing.T) {
	_, err := model.FC(0, []int{3})
	require.Error(t, err)

	_, err = model.FC(4, nil)
	require.Error(t, err)

	_, err = model.FC(4, []int{3, 2}, model.WithActivations("relu", "tanh", "relu"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "activations")

	_, err = model.FC(4, []int{3}, model.WithActivations("rectified"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown activation")

	_, err = model.FC(4, []int{3}, model.WithDropouts(1.5))
	require.Error(t, err)
}

func TestResNetStructure(t *testing.T) {
	m, err := model.ResNet(model.ResNetConfig{
		InputDim:        10,
		OutputDim:       2,
		Depth:           4,
		Width:           32,
		Activation:      "relu",
		FinalActivation: "softmax",
		Dropout:         0.2,
	})
	require.NoError(t, err)

	// Entry dense, depth/2 residual blocks, final dense.
	require.Equal(t, 4, m.Len())
	for i := 1; i <= 2; i++ {
		block, ok := m.At(i).(*model.ResidualBlock)
		require.True(t, ok, "layer %d should be a residual block", i)
		assert.Equal(t, 32, block.Width())
		assert.True(t, block.HasDropout())
	}

	out := m.Forward(tensor.Randn(tensor.Shape{3, 10}))
	require.True(t, out.Shape().Equal(tensor.Shape{3, 2}))

	// Softmax output rows sum to one.
	var sum float32
	for _, v := range out.Data()[:2] {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}

func TestResNetNoDropout(t *testing.T) {
	m, err := model.ResNet(model.ResNetConfig{
		InputDim:  4,
		OutputDim: 1,
		Depth:     2,
		Width:     8,
	})
	require.NoError(t, err)

	block, ok := m.At(1).(*model.ResidualBlock)
	require.True(t, ok)
	assert.False(t, block.HasDropout())
}

func TestResNetConfigurationErrors(t *testing.T) {
	_, err := model.ResNet(model.ResNetConfig{InputDim: 0, OutputDim: 1, Width: 8})
	require.Error(t, err)

	_, err = model.ResNet(model.ResNetConfig{InputDim: 4, OutputDim: 1, Width: 8, Activation: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown activation")

	_, err = model.ResNet(model.ResNetConfig{InputDim: 4, OutputDim: 1, Width: 8, Dropout: -1})
	require.Error(t, err)
}

func TestResidualBlockStateDictRoundtrip(t *testing.T) {
	block := model.NewResidualBlock(6, nn.NewReLU(), 0)
	restored := model.NewResidualBlock(6, nn.NewReLU(), 0)
	require.NoError(t, restored.LoadStateDict(block.StateDict()))

	x := tensor.Randn(tensor.Shape{2, 6})
	assert.Equal(t, block.Forward(x).Data(), restored.Forward(x).Data())
}

func TestFinalLayers(t *testing.T) {
	m, err := model.FinalLayers(tensor.Shape{4, 4, 8}, 10, 0.5)
	require.NoError(t, err)

	out := m.Forward(tensor.Randn(tensor.Shape{3, 4, 4, 8}))
	require.True(t, out.Shape().Equal(tensor.Shape{3, 1}))
	for _, v := range out.Data() {
		assert.Greater(t, v, float32(0))
		assert.Less(t, v, float32(1))
	}

	_, err = model.FinalLayers(tensor.Shape{}, 10, 0.5)
	require.Error(t, err)
	_, err = model.FinalLayers(tensor.Shape{4}, 0, 0.5)
	require.Error(t, err)
}
