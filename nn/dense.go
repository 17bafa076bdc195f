package nn

import (
	"fmt"

	"github.com/koaning/wallholla/tensor"
)

// Dense implements a fully connected layer: y = act(x @ W.T + b).
//
// Shapes:
//   - input: [batch, in_features]
//   - weight: [out_features, in_features], Xavier initialized
//   - bias: [out_features], zero initialized
//   - output: [batch, out_features]
//
// Example:
//
//	layer := nn.NewDense(16, 8, nn.NewReLU())
//	out := layer.Forward(x) // [batch, 16] -> [batch, 8]
type Dense struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter
	bias        *Parameter
	activation  Activation
}

// NewDense creates a Dense layer. A nil activation means identity.
func NewDense(inFeatures, outFeatures int, activation Activation) *Dense {
	weight := NewParameter("weight", Xavier(inFeatures, outFeatures, tensor.Shape{outFeatures, inFeatures}))
	bias := NewParameter("bias", Zeros(tensor.Shape{outFeatures}))
	return &Dense{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      weight,
		bias:        bias,
		activation:  activation,
	}
}

// Forward computes act(x @ W.T + b).
func (d *Dense) Forward(input *tensor.Tensor) *tensor.Tensor {
	shape := input.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("Dense.Forward: expected 2D input [batch, features], got shape %v", shape))
	}
	if shape[1] != d.inFeatures {
		panic(fmt.Sprintf("Dense.Forward: expected input with %d features, got %d", d.inFeatures, shape[1]))
	}

	out := input.MatMul(d.weight.Tensor().Transpose())
	out = out.Add(d.bias.Tensor())
	if d.activation != nil {
		out = d.activation.Forward(out)
	}
	return out
}

// Parameters returns [weight, bias].
func (d *Dense) Parameters() []*Parameter {
	return []*Parameter{d.weight, d.bias}
}

// Weight returns the weight parameter, shape [out_features, in_features].
func (d *Dense) Weight() *Parameter { return d.weight }

// Bias returns the bias parameter, shape [out_features].
func (d *Dense) Bias() *Parameter { return d.bias }

// InFeatures returns the input width.
func (d *Dense) InFeatures() int { return d.inFeatures }

// OutFeatures returns the output width.
func (d *Dense) OutFeatures() int { return d.outFeatures }

// Activation returns the configured activation, possibly nil.
func (d *Dense) Activation() Activation { return d.activation }

// StateDict exports weight and bias.
func (d *Dense) StateDict() StateDict {
	return StateDict{
		"weight": d.weight.Tensor(),
		"bias":   d.bias.Tensor(),
	}
}

// LoadStateDict restores weight and bias, validating shapes.
func (d *Dense) LoadStateDict(state StateDict) error {
	if err := loadParam(state, "weight", d.weight); err != nil {
		return err
	}
	return loadParam(state, "bias", d.bias)
}

// loadParam copies a named tensor from a state dict into a parameter.
func loadParam(state StateDict, name string, param *Parameter) error {
	src, ok := state[name]
	if !ok {
		return fmt.Errorf("missing %s in state dict", name)
	}
	dst := param.Tensor()
	if !src.Shape().Equal(dst.Shape()) {
		return fmt.Errorf("%s shape mismatch: expected %v, got %v", name, dst.Shape(), src.Shape())
	}
	copy(dst.Data(), src.Data())
	return nil
}
