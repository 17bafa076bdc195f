package nn

import (
	"fmt"
	"math"

	"github.com/koaning/wallholla/tensor"
)

// MaxPool2D downsamples NHWC input by taking the maximum over square
// windows.
type MaxPool2D struct {
	poolSize int
	stride   int
	padding  Padding
}

// NewMaxPool2D creates a MaxPool2D layer.
func NewMaxPool2D(poolSize, stride int, padding Padding) *MaxPool2D {
	return &MaxPool2D{poolSize: poolSize, stride: stride, padding: padding}
}

// Forward applies max pooling.
func (p *MaxPool2D) Forward(input *tensor.Tensor) *tensor.Tensor {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("MaxPool2D.Forward: expected 4D input [batch, height, width, channels], got shape %v", shape))
	}
	batch, h, w, ch := shape[0], shape[1], shape[2], shape[3]
	oh, ow, padTop, padLeft := outputDims(h, w, p.poolSize, p.stride, p.padding)

	in := input.Data()
	out := tensor.New(tensor.Shape{batch, oh, ow, ch})
	outData := out.Data()

	negInf := float32(math.Inf(-1))
	for n := 0; n < batch; n++ {
		for oy := 0; oy < oh; oy++ {
			for ox := 0; ox < ow; ox++ {
				dst := outData[((n*oh+oy)*ow+ox)*ch : ((n*oh+oy)*ow+ox)*ch+ch]
				for cc := range dst {
					dst[cc] = negInf
				}
				for ky := 0; ky < p.poolSize; ky++ {
					iy := oy*p.stride + ky - padTop
					if iy < 0 || iy >= h {
						continue
					}
					for kx := 0; kx < p.poolSize; kx++ {
						ix := ox*p.stride + kx - padLeft
						if ix < 0 || ix >= w {
							continue
						}
						src := in[((n*h+iy)*w+ix)*ch : ((n*h+iy)*w+ix)*ch+ch]
						for cc, v := range src {
							if v > dst[cc] {
								dst[cc] = v
							}
						}
					}
				}
			}
		}
	}
	return out
}

// Parameters returns nil.
func (p *MaxPool2D) Parameters() []*Parameter { return nil }

// GlobalAvgPool2D averages NHWC input over the spatial dimensions:
// [batch, height, width, channels] -> [batch, channels].
type GlobalAvgPool2D struct{}

// NewGlobalAvgPool2D creates a GlobalAvgPool2D layer.
func NewGlobalAvgPool2D() *GlobalAvgPool2D { return &GlobalAvgPool2D{} }

// Forward averages over height and width.
func (g *GlobalAvgPool2D) Forward(input *tensor.Tensor) *tensor.Tensor {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("GlobalAvgPool2D.Forward: expected 4D input, got shape %v", shape))
	}
	batch, h, w, ch := shape[0], shape[1], shape[2], shape[3]

	in := input.Data()
	out := tensor.New(tensor.Shape{batch, ch})
	outData := out.Data()
	area := float32(h * w)

	for n := 0; n < batch; n++ {
		dst := outData[n*ch : (n+1)*ch]
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				src := in[((n*h+y)*w+x)*ch : ((n*h+y)*w+x)*ch+ch]
				for cc, v := range src {
					dst[cc] += v
				}
			}
		}
		for cc := range dst {
			dst[cc] /= area
		}
	}
	return out
}

// Parameters returns nil.
func (g *GlobalAvgPool2D) Parameters() []*Parameter { return nil }
