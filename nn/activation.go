package nn

import (
	"fmt"
	"math"

	"github.com/koaning/wallholla/tensor"
)

// Activation is a Module that applies an elementwise (or row-wise, for
// softmax) nonlinearity and can report its canonical name.
type Activation interface {
	Module
	Name() string
}

// ActivationNames lists the activations resolvable by ActivationByName.
var ActivationNames = []string{"relu", "relu6", "sigmoid", "tanh", "softmax", "linear"}

// ActivationByName resolves an activation from its name.
//
// Returns a descriptive error for unknown names, mirroring the model
// builders' configuration-error contract.
func ActivationByName(name string) (Activation, error) {
	switch name {
	case "relu":
		return NewReLU(), nil
	case "relu6":
		return NewReLU6(), nil
	case "sigmoid":
		return NewSigmoid(), nil
	case "tanh":
		return NewTanh(), nil
	case "softmax":
		return NewSoftmax(), nil
	case "linear", "":
		return NewLinearActivation(), nil
	default:
		return nil, fmt.Errorf("unknown activation %q: must be one of %v", name, ActivationNames)
	}
}

// ReLU applies f(x) = max(0, x).
type ReLU struct{}

// NewReLU creates a ReLU activation.
func NewReLU() *ReLU { return &ReLU{} }

// Forward applies ReLU elementwise.
func (r *ReLU) Forward(input *tensor.Tensor) *tensor.Tensor {
	return input.Apply(func(v float32) float32 {
		if v < 0 {
			return 0
		}
		return v
	})
}

// Parameters returns nil (no trainable state).
func (r *ReLU) Parameters() []*Parameter { return nil }

// Name returns "relu".
func (r *ReLU) Name() string { return "relu" }

// ReLU6 applies f(x) = min(max(0, x), 6), the activation used by MobileNet.
type ReLU6 struct{}

// NewReLU6 creates a ReLU6 activation.
func NewReLU6() *ReLU6 { return &ReLU6{} }

// Forward applies ReLU6 elementwise.
func (r *ReLU6) Forward(input *tensor.Tensor) *tensor.Tensor {
	return input.Apply(func(v float32) float32 {
		if v < 0 {
			return 0
		}
		if v > 6 {
			return 6
		}
		return v
	})
}

// Parameters returns nil.
func (r *ReLU6) Parameters() []*Parameter { return nil }

// Name returns "relu6".
func (r *ReLU6) Name() string { return "relu6" }

// Sigmoid applies f(x) = 1 / (1 + exp(-x)).
type Sigmoid struct{}

// NewSigmoid creates a Sigmoid activation.
func NewSigmoid() *Sigmoid { return &Sigmoid{} }

// Forward applies sigmoid elementwise.
func (s *Sigmoid) Forward(input *tensor.Tensor) *tensor.Tensor {
	return input.Apply(func(v float32) float32 {
		return float32(1.0 / (1.0 + math.Exp(float64(-v))))
	})
}

// Parameters returns nil.
func (s *Sigmoid) Parameters() []*Parameter { return nil }

// Name returns "sigmoid".
func (s *Sigmoid) Name() string { return "sigmoid" }

// Tanh applies the hyperbolic tangent.
type Tanh struct{}

// NewTanh creates a Tanh activation.
func NewTanh() *Tanh { return &Tanh{} }

// Forward applies tanh elementwise.
func (t *Tanh) Forward(input *tensor.Tensor) *tensor.Tensor {
	return input.Apply(func(v float32) float32 {
		return float32(math.Tanh(float64(v)))
	})
}

// Parameters returns nil.
func (t *Tanh) Parameters() []*Parameter { return nil }

// Name returns "tanh".
func (t *Tanh) Name() string { return "tanh" }

// Softmax normalizes the last dimension into a probability distribution.
type Softmax struct{}

// NewSoftmax creates a Softmax activation.
func NewSoftmax() *Softmax { return &Softmax{} }

// Forward applies softmax over the last dimension, shifted by the row
// maximum for numerical stability.
func (s *Softmax) Forward(input *tensor.Tensor) *tensor.Tensor {
	shape := input.Shape()
	n := shape[len(shape)-1]
	out := input.Clone()
	data := out.Data()

	for start := 0; start < len(data); start += n {
		row := data[start : start+n]
		max := row[0]
		for _, v := range row[1:] {
			if v > max {
				max = v
			}
		}
		var sum float64
		for i, v := range row {
			e := math.Exp(float64(v - max))
			row[i] = float32(e)
			sum += e
		}
		for i := range row {
			row[i] = float32(float64(row[i]) / sum)
		}
	}
	return out
}

// Parameters returns nil.
func (s *Softmax) Parameters() []*Parameter { return nil }

// Name returns "softmax".
func (s *Softmax) Name() string { return "softmax" }

// LinearActivation is the identity, the default when no activation is set.
type LinearActivation struct{}

// NewLinearActivation creates an identity activation.
func NewLinearActivation() *LinearActivation { return &LinearActivation{} }

// Forward returns a copy of the input.
func (l *LinearActivation) Forward(input *tensor.Tensor) *tensor.Tensor {
	return input.Clone()
}

// Parameters returns nil.
func (l *LinearActivation) Parameters() []*Parameter { return nil }

// Name returns "linear".
func (l *LinearActivation) Name() string { return "linear" }
