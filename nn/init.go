package nn

import (
	"math"
	"math/rand"

	"github.com/koaning/wallholla/tensor"
)

// Xavier initializes a weight tensor with the Glorot uniform distribution:
// U(-sqrt(6/(fanIn+fanOut)), sqrt(6/(fanIn+fanOut))).
func Xavier(fanIn, fanOut int, shape tensor.Shape) *tensor.Tensor {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	t := tensor.New(shape)
	data := t.Data()
	for i := range data {
		data[i] = float32((rand.Float64()*2.0 - 1.0) * bound)
	}
	return t
}

// HeNormal initializes a weight tensor with N(0, sqrt(2/fanIn)), the
// usual choice in front of ReLU-family activations.
func HeNormal(fanIn int, shape tensor.Shape) *tensor.Tensor {
	std := math.Sqrt(2.0 / float64(fanIn))
	t := tensor.New(shape)
	data := t.Data()
	for i := range data {
		data[i] = float32(rand.NormFloat64() * std)
	}
	return t
}

// Zeros creates a zero-filled tensor, the bias default.
func Zeros(shape tensor.Shape) *tensor.Tensor {
	return tensor.Zeros(shape)
}

// Ones creates a one-filled tensor, the batch-norm scale default.
func Ones(shape tensor.Shape) *tensor.Tensor {
	return tensor.Ones(shape)
}

// Reinitialize refills every weight matrix/kernel from a seeded
// N(0, 0.05) source. One-dimensional parameters (biases, batch-norm
// scales) keep their defaults.
//
// The pretrained backbones use this to get reproducible weights when no
// local weight archive is available.
func Reinitialize(params []*Parameter, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for _, p := range params {
		if len(p.Tensor().Shape()) < 2 {
			continue
		}
		data := p.Tensor().Data()
		for i := range data {
			data[i] = float32(rng.NormFloat64() * 0.05)
		}
	}
}
