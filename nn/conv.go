package nn

import (
	"fmt"
	"strings"

	"github.com/koaning/wallholla/tensor"
)

// Padding selects how convolutions handle borders.
type Padding string

const (
	// PaddingSame zero-pads so the output keeps ceil(size/stride).
	PaddingSame Padding = "same"
	// PaddingValid applies no padding.
	PaddingValid Padding = "valid"
)

// Conv2D implements a 2D convolution over NHWC input.
//
// Shapes:
//   - input: [batch, height, width, in_channels]
//   - weight: [kernel, kernel, in_channels, out_channels], He initialized
//   - bias: [out_channels]
//   - output: [batch, out_height, out_width, out_channels]
type Conv2D struct {
	inChannels  int
	outChannels int
	kernelSize  int
	stride      int
	padding     Padding
	weight      *Parameter
	bias        *Parameter
	activation  Activation
}

// NewConv2D creates a Conv2D layer with a square kernel.
func NewConv2D(inChannels, outChannels, kernelSize, stride int, padding Padding, activation Activation) *Conv2D {
	fanIn := kernelSize * kernelSize * inChannels
	weight := NewParameter("weight",
		HeNormal(fanIn, tensor.Shape{kernelSize, kernelSize, inChannels, outChannels}))
	bias := NewParameter("bias", Zeros(tensor.Shape{outChannels}))
	return &Conv2D{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		stride:      stride,
		padding:     padding,
		weight:      weight,
		bias:        bias,
		activation:  activation,
	}
}

// outputDims computes output height/width and top/left padding.
func outputDims(h, w, kernel, stride int, padding Padding) (oh, ow, padTop, padLeft int) {
	switch padding {
	case PaddingSame:
		oh = (h + stride - 1) / stride
		ow = (w + stride - 1) / stride
		padH := max((oh-1)*stride+kernel-h, 0)
		padW := max((ow-1)*stride+kernel-w, 0)
		padTop = padH / 2
		padLeft = padW / 2
	case PaddingValid:
		oh = (h-kernel)/stride + 1
		ow = (w-kernel)/stride + 1
	default:
		panic(fmt.Sprintf("conv: unknown padding %q", padding))
	}
	return oh, ow, padTop, padLeft
}

func checkImageInput(op string, shape tensor.Shape, channels int) {
	if len(shape) != 4 {
		panic(fmt.Sprintf("%s: expected 4D input [batch, height, width, channels], got shape %v", op, shape))
	}
	if shape[3] != channels {
		panic(fmt.Sprintf("%s: expected %d input channels, got %d", op, channels, shape[3]))
	}
}

// Forward applies the convolution.
func (c *Conv2D) Forward(input *tensor.Tensor) *tensor.Tensor {
	shape := input.Shape()
	checkImageInput("Conv2D.Forward", shape, c.inChannels)
	batch, h, w := shape[0], shape[1], shape[2]
	oh, ow, padTop, padLeft := outputDims(h, w, c.kernelSize, c.stride, c.padding)

	in := input.Data()
	weights := c.weight.Tensor().Data()
	biases := c.bias.Tensor().Data()
	out := tensor.New(tensor.Shape{batch, oh, ow, c.outChannels})
	outData := out.Data()

	k, ci, co := c.kernelSize, c.inChannels, c.outChannels
	for n := 0; n < batch; n++ {
		for oy := 0; oy < oh; oy++ {
			for ox := 0; ox < ow; ox++ {
				dst := outData[((n*oh+oy)*ow+ox)*co : ((n*oh+oy)*ow+ox)*co+co]
				copy(dst, biases)
				for ky := 0; ky < k; ky++ {
					iy := oy*c.stride + ky - padTop
					if iy < 0 || iy >= h {
						continue
					}
					for kx := 0; kx < k; kx++ {
						ix := ox*c.stride + kx - padLeft
						if ix < 0 || ix >= w {
							continue
						}
						src := in[((n*h+iy)*w+ix)*ci : ((n*h+iy)*w+ix)*ci+ci]
						wRow := weights[(ky*k+kx)*ci*co:]
						for cIn := 0; cIn < ci; cIn++ {
							v := src[cIn]
							if v == 0 {
								continue
							}
							wSlice := wRow[cIn*co : cIn*co+co]
							for cOut := 0; cOut < co; cOut++ {
								dst[cOut] += v * wSlice[cOut]
							}
						}
					}
				}
			}
		}
	}

	if c.activation != nil {
		return c.activation.Forward(out)
	}
	return out
}

// Parameters returns [weight, bias].
func (c *Conv2D) Parameters() []*Parameter {
	return []*Parameter{c.weight, c.bias}
}

// OutChannels returns the number of output channels.
func (c *Conv2D) OutChannels() int { return c.outChannels }

// StateDict exports weight and bias.
func (c *Conv2D) StateDict() StateDict {
	return StateDict{"weight": c.weight.Tensor(), "bias": c.bias.Tensor()}
}

// LoadStateDict restores weight and bias, validating shapes.
func (c *Conv2D) LoadStateDict(state StateDict) error {
	if err := loadParam(state, "weight", c.weight); err != nil {
		return err
	}
	return loadParam(state, "bias", c.bias)
}

// DepthwiseConv2D convolves each input channel with its own kernel
// (channel multiplier 1), the spatial half of a separable convolution.
//
// Shapes:
//   - input: [batch, height, width, channels]
//   - weight: [kernel, kernel, channels]
//   - bias: [channels]
type DepthwiseConv2D struct {
	channels   int
	kernelSize int
	stride     int
	padding    Padding
	weight     *Parameter
	bias       *Parameter
	activation Activation
}

// NewDepthwiseConv2D creates a DepthwiseConv2D layer.
func NewDepthwiseConv2D(channels, kernelSize, stride int, padding Padding, activation Activation) *DepthwiseConv2D {
	fanIn := kernelSize * kernelSize
	weight := NewParameter("weight", HeNormal(fanIn, tensor.Shape{kernelSize, kernelSize, channels}))
	bias := NewParameter("bias", Zeros(tensor.Shape{channels}))
	return &DepthwiseConv2D{
		channels:   channels,
		kernelSize: kernelSize,
		stride:     stride,
		padding:    padding,
		weight:     weight,
		bias:       bias,
		activation: activation,
	}
}

// Forward applies the per-channel convolution.
func (d *DepthwiseConv2D) Forward(input *tensor.Tensor) *tensor.Tensor {
	shape := input.Shape()
	checkImageInput("DepthwiseConv2D.Forward", shape, d.channels)
	batch, h, w := shape[0], shape[1], shape[2]
	oh, ow, padTop, padLeft := outputDims(h, w, d.kernelSize, d.stride, d.padding)

	in := input.Data()
	weights := d.weight.Tensor().Data()
	biases := d.bias.Tensor().Data()
	out := tensor.New(tensor.Shape{batch, oh, ow, d.channels})
	outData := out.Data()

	k, ch := d.kernelSize, d.channels
	for n := 0; n < batch; n++ {
		for oy := 0; oy < oh; oy++ {
			for ox := 0; ox < ow; ox++ {
				dst := outData[((n*oh+oy)*ow+ox)*ch : ((n*oh+oy)*ow+ox)*ch+ch]
				copy(dst, biases)
				for ky := 0; ky < k; ky++ {
					iy := oy*d.stride + ky - padTop
					if iy < 0 || iy >= h {
						continue
					}
					for kx := 0; kx < k; kx++ {
						ix := ox*d.stride + kx - padLeft
						if ix < 0 || ix >= w {
							continue
						}
						src := in[((n*h+iy)*w+ix)*ch : ((n*h+iy)*w+ix)*ch+ch]
						wSlice := weights[(ky*k+kx)*ch : (ky*k+kx)*ch+ch]
						for cc := 0; cc < ch; cc++ {
							dst[cc] += src[cc] * wSlice[cc]
						}
					}
				}
			}
		}
	}

	if d.activation != nil {
		return d.activation.Forward(out)
	}
	return out
}

// Parameters returns [weight, bias].
func (d *DepthwiseConv2D) Parameters() []*Parameter {
	return []*Parameter{d.weight, d.bias}
}

// StateDict exports weight and bias.
func (d *DepthwiseConv2D) StateDict() StateDict {
	return StateDict{"weight": d.weight.Tensor(), "bias": d.bias.Tensor()}
}

// LoadStateDict restores weight and bias, validating shapes.
func (d *DepthwiseConv2D) LoadStateDict(state StateDict) error {
	if err := loadParam(state, "weight", d.weight); err != nil {
		return err
	}
	return loadParam(state, "bias", d.bias)
}

// SeparableConv2D chains a depthwise convolution with a pointwise (1x1)
// convolution, the factored convolution Xception is built from.
type SeparableConv2D struct {
	depthwise *DepthwiseConv2D
	pointwise *Conv2D
}

// NewSeparableConv2D creates a SeparableConv2D layer. The activation, if
// any, runs after the pointwise projection.
func NewSeparableConv2D(inChannels, outChannels, kernelSize, stride int, padding Padding, activation Activation) *SeparableConv2D {
	return &SeparableConv2D{
		depthwise: NewDepthwiseConv2D(inChannels, kernelSize, stride, padding, nil),
		pointwise: NewConv2D(inChannels, outChannels, 1, 1, PaddingSame, activation),
	}
}

// Forward applies depthwise then pointwise convolution.
func (s *SeparableConv2D) Forward(input *tensor.Tensor) *tensor.Tensor {
	return s.pointwise.Forward(s.depthwise.Forward(input))
}

// Parameters returns the depthwise and pointwise parameters.
func (s *SeparableConv2D) Parameters() []*Parameter {
	return append(s.depthwise.Parameters(), s.pointwise.Parameters()...)
}

// StateDict exports both halves under "depthwise." and "pointwise."
// prefixes.
func (s *SeparableConv2D) StateDict() StateDict {
	state := make(StateDict)
	for name, t := range s.depthwise.StateDict() {
		state["depthwise."+name] = t
	}
	for name, t := range s.pointwise.StateDict() {
		state["pointwise."+name] = t
	}
	return state
}

// LoadStateDict restores both halves.
func (s *SeparableConv2D) LoadStateDict(state StateDict) error {
	dw := make(StateDict)
	pw := make(StateDict)
	for name, t := range state {
		if rest, ok := strings.CutPrefix(name, "depthwise."); ok {
			dw[rest] = t
		} else if rest, ok := strings.CutPrefix(name, "pointwise."); ok {
			pw[rest] = t
		} else {
			return fmt.Errorf("unexpected separable conv state key %q", name)
		}
	}
	if err := s.depthwise.LoadStateDict(dw); err != nil {
		return fmt.Errorf("depthwise: %w", err)
	}
	if err := s.pointwise.LoadStateDict(pw); err != nil {
		return fmt.Errorf("pointwise: %w", err)
	}
	return nil
}
