package nn

import (
	"fmt"
	"math"

	"github.com/koaning/wallholla/tensor"
)

// BatchNorm normalizes the channel (last) dimension with stored running
// statistics:
//
//	y = gamma * (x - mean) / sqrt(var + eps) + beta
//
// The backbones here only run inference, so Forward always uses the
// running statistics; the statistics themselves come from a loaded weight
// archive or from initialization (mean 0, var 1).
type BatchNorm struct {
	channels int
	eps      float32
	gamma    *Parameter
	beta     *Parameter
	mean     *tensor.Tensor
	variance *tensor.Tensor
}

// NewBatchNorm creates a BatchNorm layer over the given channel count.
func NewBatchNorm(channels int, eps float32) *BatchNorm {
	if eps == 0 {
		eps = 1e-3
	}
	return &BatchNorm{
		channels: channels,
		eps:      eps,
		gamma:    NewParameter("gamma", Ones(tensor.Shape{channels})),
		beta:     NewParameter("beta", Zeros(tensor.Shape{channels})),
		mean:     Zeros(tensor.Shape{channels}),
		variance: Ones(tensor.Shape{channels}),
	}
}

// Forward applies the normalization along the last dimension.
func (b *BatchNorm) Forward(input *tensor.Tensor) *tensor.Tensor {
	shape := input.Shape()
	if shape[len(shape)-1] != b.channels {
		panic(fmt.Sprintf("BatchNorm.Forward: expected %d channels in last dimension, got shape %v", b.channels, shape))
	}

	// Precompute per-channel scale and shift.
	scale := make([]float32, b.channels)
	shift := make([]float32, b.channels)
	gamma := b.gamma.Tensor().Data()
	beta := b.beta.Tensor().Data()
	mean := b.mean.Data()
	variance := b.variance.Data()
	for c := 0; c < b.channels; c++ {
		inv := float32(1.0 / math.Sqrt(float64(variance[c]+b.eps)))
		scale[c] = gamma[c] * inv
		shift[c] = beta[c] - mean[c]*scale[c]
	}

	out := input.Clone()
	data := out.Data()
	for i := range data {
		c := i % b.channels
		data[i] = data[i]*scale[c] + shift[c]
	}
	return out
}

// Parameters returns the trainable [gamma, beta]; running statistics are
// state, not parameters.
func (b *BatchNorm) Parameters() []*Parameter {
	return []*Parameter{b.gamma, b.beta}
}

// StateDict exports gamma, beta and the running statistics.
func (b *BatchNorm) StateDict() StateDict {
	return StateDict{
		"gamma":        b.gamma.Tensor(),
		"beta":         b.beta.Tensor(),
		"running_mean": b.mean,
		"running_var":  b.variance,
	}
}

// LoadStateDict restores gamma, beta and the running statistics.
func (b *BatchNorm) LoadStateDict(state StateDict) error {
	if err := loadParam(state, "gamma", b.gamma); err != nil {
		return err
	}
	if err := loadParam(state, "beta", b.beta); err != nil {
		return err
	}
	if err := loadParam(state, "running_mean", NewParameter("running_mean", b.mean)); err != nil {
		return err
	}
	return loadParam(state, "running_var", NewParameter("running_var", b.variance))
}
