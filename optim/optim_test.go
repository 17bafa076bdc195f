package optim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koaning/wallholla/nn"
	"github.com/koaning/wallholla/optim"
	"github.com/koaning/wallholla/tensor"
)

func newParam(t *testing.T, values []float32) *nn.Parameter {
	t.Helper()
	data, err := tensor.FromSlice(values, tensor.Shape{len(values)})
	require.NoError(t, err)
	return nn.NewParameter("w", data)
}

func TestNewByName(t *testing.T) {
	param := newParam(t, []float32{1})

	for _, name := range optim.Names {
		opt, err := optim.New(name, []*nn.Parameter{param}, 0.5)
		require.NoError(t, err)
		assert.Equal(t, name, opt.Name())
		assert.Equal(t, float32(0.5), opt.LR())
	}

	// The default learning rate kicks in when none is given.
	opt, err := optim.New("adam", []*nn.Parameter{param}, 0)
	require.NoError(t, err)
	assert.Equal(t, optim.DefaultLR, opt.LR())
}

func TestNewUnknownName(t *testing.T) {
	_, err := optim.New("adagrad", nil, 0.1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown optimizer")
	assert.Contains(t, err.Error(), "adam")
	assert.Contains(t, err.Error(), "rmsprop")
	assert.Contains(t, err.Error(), "sgd")
}

func TestSGDStep(t *testing.T) {
	param := newParam(t, []float32{1, 2})
	opt := optim.NewSGD([]*nn.Parameter{param}, optim.SGDConfig{LR: 0.1})

	grad, err := tensor.FromSlice([]float32{1, -1}, tensor.Shape{2})
	require.NoError(t, err)
	opt.Step(optim.Gradients{param: grad})

	got := param.Tensor().Data()
	assert.InDelta(t, 0.9, got[0], 1e-6)
	assert.InDelta(t, 2.1, got[1], 1e-6)
}

func TestSGDMomentumAccumulates(t *testing.T) {
	param := newParam(t, []float32{0})
	opt := optim.NewSGD([]*nn.Parameter{param}, optim.SGDConfig{LR: 1, Momentum: 0.5})

	grad, err := tensor.FromSlice([]float32{1}, tensor.Shape{1})
	require.NoError(t, err)

	opt.Step(optim.Gradients{param: grad}) // velocity 1, param -1
	opt.Step(optim.Gradients{param: grad}) // velocity 1.5, param -2.5

	assert.InDelta(t, -2.5, param.Tensor().Data()[0], 1e-6)
}

func TestAdamFirstStepUsesLR(t *testing.T) {
	// With bias correction the very first Adam step moves each weight by
	// roughly lr, regardless of gradient scale.
	param := newParam(t, []float32{1, 1})
	opt := optim.NewAdam([]*nn.Parameter{param}, optim.AdamConfig{LR: 0.1})

	grad, err := tensor.FromSlice([]float32{10, 0.5}, tensor.Shape{2})
	require.NoError(t, err)
	opt.Step(optim.Gradients{param: grad})

	got := param.Tensor().Data()
	assert.InDelta(t, 0.9, got[0], 1e-3)
	assert.InDelta(t, 0.9, got[1], 1e-3)
}

func TestRMSpropStep(t *testing.T) {
	param := newParam(t, []float32{1})
	opt := optim.NewRMSprop([]*nn.Parameter{param}, optim.RMSpropConfig{LR: 0.1, Rho: 0.9})

	grad, err := tensor.FromSlice([]float32{2}, tensor.Shape{1})
	require.NoError(t, err)
	opt.Step(optim.Gradients{param: grad})

	// sq = 0.1*4 = 0.4; update = 0.1*2/sqrt(0.4) ~= 0.3162
	assert.InDelta(t, 1-0.3162, param.Tensor().Data()[0], 1e-3)
}

func TestStepSkipsParamsWithoutGradient(t *testing.T) {
	param := newParam(t, []float32{1})
	other := newParam(t, []float32{5})
	opt := optim.NewSGD([]*nn.Parameter{param, other}, optim.SGDConfig{LR: 0.1})

	grad, err := tensor.FromSlice([]float32{1}, tensor.Shape{1})
	require.NoError(t, err)
	opt.Step(optim.Gradients{param: grad})

	assert.Equal(t, float32(5), other.Tensor().Data()[0])
}
