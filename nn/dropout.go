package nn

import (
	"fmt"
	"math/rand"

	"github.com/koaning/wallholla/tensor"
)

// Dropout randomly zeroes elements with probability rate during training
// and rescales the survivors by 1/(1-rate) (inverted dropout).
//
// In inference mode, the default, Forward is the identity. The model
// builders insert Dropout layers so a later training harness can flip
// them on with SetTraining.
type Dropout struct {
	rate     float32
	training bool
	rng      *rand.Rand
}

// NewDropout creates a Dropout layer. The rate must be in [0, 1).
func NewDropout(rate float32) *Dropout {
	if rate < 0 || rate >= 1 {
		panic(fmt.Sprintf("NewDropout: rate must be in [0, 1), got %v", rate))
	}
	return &Dropout{rate: rate}
}

// Rate returns the configured drop probability.
func (d *Dropout) Rate() float32 { return d.rate }

// SetTraining toggles training mode.
func (d *Dropout) SetTraining(training bool) { d.training = training }

// SetSeed makes the training-mode mask reproducible.
func (d *Dropout) SetSeed(seed int64) {
	d.rng = rand.New(rand.NewSource(seed))
}

// Forward applies the dropout mask in training mode, identity otherwise.
func (d *Dropout) Forward(input *tensor.Tensor) *tensor.Tensor {
	if !d.training || d.rate == 0 {
		return input.Clone()
	}

	out := input.Clone()
	data := out.Data()
	keep := 1 - d.rate
	scale := 1 / keep
	for i := range data {
		if d.random() < d.rate {
			data[i] = 0
		} else {
			data[i] *= scale
		}
	}
	return out
}

func (d *Dropout) random() float32 {
	if d.rng != nil {
		return d.rng.Float32()
	}
	return rand.Float32()
}

// Parameters returns nil (no trainable state).
func (d *Dropout) Parameters() []*Parameter { return nil }
