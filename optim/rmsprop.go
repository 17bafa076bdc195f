package optim

import (
	"math"

	"github.com/koaning/wallholla/nn"
	"github.com/koaning/wallholla/tensor"
)

// RMSprop implements the RMSprop optimizer: an exponential moving average
// of squared gradients normalizes the step size per weight.
//
//	sq = rho*sq + (1-rho)*g^2
//	param -= lr * g / (sqrt(sq) + eps)
type RMSprop struct {
	params []*nn.Parameter
	lr     float32
	rho    float32
	eps    float32
	sq     map[*nn.Parameter]*tensor.Tensor
}

// RMSpropConfig holds RMSprop hyperparameters. Zero values select the
// usual defaults (LR 0.001, rho 0.9, eps 1e-7).
type RMSpropConfig struct {
	LR  float32
	Rho float32
	Eps float32
}

// NewRMSprop creates an RMSprop optimizer over the given parameters.
func NewRMSprop(params []*nn.Parameter, config RMSpropConfig) *RMSprop {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Rho == 0 {
		config.Rho = 0.9
	}
	if config.Eps == 0 {
		config.Eps = 1e-7
	}
	return &RMSprop{
		params: params,
		lr:     config.LR,
		rho:    config.Rho,
		eps:    config.Eps,
		sq:     make(map[*nn.Parameter]*tensor.Tensor),
	}
}

// Step applies one RMSprop update.
func (r *RMSprop) Step(grads Gradients) {
	for _, param := range r.params {
		grad, ok := grads[param]
		if !ok {
			continue
		}

		sq, ok := r.sq[param]
		if !ok {
			sq = tensor.Zeros(grad.Shape())
			r.sq[param] = sq
		}

		gradData := grad.Data()
		sqData := sq.Data()
		update := make([]float32, len(gradData))
		for i, g := range gradData {
			sqData[i] = r.rho*sqData[i] + (1-r.rho)*g*g
			update[i] = r.lr * g / (float32(math.Sqrt(float64(sqData[i]))) + r.eps)
		}
		applyInPlace(param, update)
	}
}

// LR returns the learning rate.
func (r *RMSprop) LR() float32 { return r.lr }

// Name returns "rmsprop".
func (r *RMSprop) Name() string { return "rmsprop" }
