package nn

import (
	"fmt"

	"github.com/koaning/wallholla/tensor"
)

// Flatten collapses all dimensions after the batch dimension:
// [batch, d1, ..., dn] -> [batch, d1*...*dn].
type Flatten struct{}

// NewFlatten creates a Flatten layer.
func NewFlatten() *Flatten { return &Flatten{} }

// Forward flattens everything after the batch dimension.
func (f *Flatten) Forward(input *tensor.Tensor) *tensor.Tensor {
	shape := input.Shape()
	if len(shape) < 2 {
		panic(fmt.Sprintf("Flatten.Forward: expected at least 2D input, got shape %v", shape))
	}
	return input.Reshape(shape[0], shape.NumElements()/shape[0])
}

// Parameters returns nil.
func (f *Flatten) Parameters() []*Parameter { return nil }
