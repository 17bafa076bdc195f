package optim

import (
	"math"

	"github.com/koaning/wallholla/nn"
	"github.com/koaning/wallholla/tensor"
)

// Adam implements the Adam optimizer (Kingma & Ba, 2014): exponential
// moving averages of gradients and squared gradients with bias
// correction.
//
//	m = beta1*m + (1-beta1)*g
//	v = beta2*v + (1-beta2)*g^2
//	param -= lr * (m / (1-beta1^t)) / (sqrt(v / (1-beta2^t)) + eps)
type Adam struct {
	params []*nn.Parameter
	lr     float32
	beta1  float32
	beta2  float32
	eps    float32
	t      int
	m      map[*nn.Parameter]*tensor.Tensor
	v      map[*nn.Parameter]*tensor.Tensor
}

// AdamConfig holds Adam hyperparameters. Zero values select the usual
// defaults (LR 0.001, betas 0.9/0.999, eps 1e-8).
type AdamConfig struct {
	LR    float32
	Betas [2]float32
	Eps   float32
}

// NewAdam creates an Adam optimizer over the given parameters.
func NewAdam(params []*nn.Parameter, config AdamConfig) *Adam {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	return &Adam{
		params: params,
		lr:     config.LR,
		beta1:  config.Betas[0],
		beta2:  config.Betas[1],
		eps:    config.Eps,
		m:      make(map[*nn.Parameter]*tensor.Tensor),
		v:      make(map[*nn.Parameter]*tensor.Tensor),
	}
}

// Step applies one Adam update.
func (a *Adam) Step(grads Gradients) {
	a.t++
	correction1 := 1 - float32(math.Pow(float64(a.beta1), float64(a.t)))
	correction2 := 1 - float32(math.Pow(float64(a.beta2), float64(a.t)))

	for _, param := range a.params {
		grad, ok := grads[param]
		if !ok {
			continue
		}

		m, ok := a.m[param]
		if !ok {
			m = tensor.Zeros(grad.Shape())
			a.m[param] = m
		}
		v, ok := a.v[param]
		if !ok {
			v = tensor.Zeros(grad.Shape())
			a.v[param] = v
		}

		gradData := grad.Data()
		mData := m.Data()
		vData := v.Data()
		update := make([]float32, len(gradData))
		for i, g := range gradData {
			mData[i] = a.beta1*mData[i] + (1-a.beta1)*g
			vData[i] = a.beta2*vData[i] + (1-a.beta2)*g*g
			mHat := mData[i] / correction1
			vHat := vData[i] / correction2
			update[i] = a.lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
		}
		applyInPlace(param, update)
	}
}

// LR returns the learning rate.
func (a *Adam) LR() float32 { return a.lr }

// Name returns "adam".
func (a *Adam) Name() string { return "adam" }
