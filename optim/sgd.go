package optim

import (
	"github.com/koaning/wallholla/nn"
	"github.com/koaning/wallholla/tensor"
)

// SGD implements stochastic gradient descent with optional momentum.
//
// Without momentum: param -= lr * grad.
// With momentum: velocity = momentum*velocity + grad; param -= lr*velocity.
type SGD struct {
	params     []*nn.Parameter
	lr         float32
	momentum   float32
	velocities map[*nn.Parameter]*tensor.Tensor
}

// SGDConfig holds SGD hyperparameters. Zero values select defaults
// (LR 0.01, no momentum).
type SGDConfig struct {
	LR       float32
	Momentum float32
}

// NewSGD creates an SGD optimizer over the given parameters.
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.01
	}
	return &SGD{
		params:     params,
		lr:         config.LR,
		momentum:   config.Momentum,
		velocities: make(map[*nn.Parameter]*tensor.Tensor),
	}
}

// Step applies one SGD update.
func (s *SGD) Step(grads Gradients) {
	for _, param := range s.params {
		grad, ok := grads[param]
		if !ok {
			continue
		}

		update := make([]float32, grad.NumElements())
		gradData := grad.Data()

		if s.momentum > 0 {
			vel, ok := s.velocities[param]
			if !ok {
				vel = tensor.Zeros(grad.Shape())
				s.velocities[param] = vel
			}
			velData := vel.Data()
			for i := range velData {
				velData[i] = s.momentum*velData[i] + gradData[i]
				update[i] = s.lr * velData[i]
			}
		} else {
			for i := range update {
				update[i] = s.lr * gradData[i]
			}
		}
		applyInPlace(param, update)
	}
}

// LR returns the learning rate.
func (s *SGD) LR() float32 { return s.lr }

// Name returns "sgd".
func (s *SGD) Name() string { return "sgd" }
