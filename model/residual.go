package model

import (
	"fmt"
	"strings"

	"github.com/koaning/wallholla/nn"
	"github.com/koaning/wallholla/tensor"
)

// ResidualBlock is one skip-connection block of the ResNet builder:
//
//	h   = dense1(x)
//	sum = x + h
//	out = dense2(sum)      // then optional dropout
//
// Both dense layers keep the block width, so the skip addition needs no
// projection.
type ResidualBlock struct {
	width   int
	dense1  *nn.Dense
	dense2  *nn.Dense
	dropout *nn.Dropout
}

// NewResidualBlock creates a residual block of the given width. A
// dropout of 0 inserts no Dropout layer.
func NewResidualBlock(width int, activation nn.Activation, dropout float32) *ResidualBlock {
	b := &ResidualBlock{
		width:  width,
		dense1: nn.NewDense(width, width, activation),
		dense2: nn.NewDense(width, width, activation),
	}
	if dropout > 0 {
		b.dropout = nn.NewDropout(dropout)
	}
	return b
}

// Forward applies the block.
func (b *ResidualBlock) Forward(input *tensor.Tensor) *tensor.Tensor {
	shape := input.Shape()
	if len(shape) != 2 || shape[1] != b.width {
		panic(fmt.Sprintf("ResidualBlock.Forward: expected input [batch, %d], got shape %v", b.width, shape))
	}

	h := b.dense1.Forward(input)
	out := b.dense2.Forward(input.Add(h))
	if b.dropout != nil {
		out = b.dropout.Forward(out)
	}
	return out
}

// Parameters returns the parameters of both dense layers.
func (b *ResidualBlock) Parameters() []*nn.Parameter {
	return append(b.dense1.Parameters(), b.dense2.Parameters()...)
}

// Width returns the block width.
func (b *ResidualBlock) Width() int { return b.width }

// HasDropout reports whether the block ends in a dropout layer.
func (b *ResidualBlock) HasDropout() bool { return b.dropout != nil }

// StateDict exports both dense layers under "dense1." and "dense2."
// prefixes.
func (b *ResidualBlock) StateDict() nn.StateDict {
	state := make(nn.StateDict)
	for name, t := range b.dense1.StateDict() {
		state["dense1."+name] = t
	}
	for name, t := range b.dense2.StateDict() {
		state["dense2."+name] = t
	}
	return state
}

// LoadStateDict restores both dense layers.
func (b *ResidualBlock) LoadStateDict(state nn.StateDict) error {
	first := make(nn.StateDict)
	second := make(nn.StateDict)
	for name, t := range state {
		switch {
		case strings.HasPrefix(name, "dense1."):
			first[strings.TrimPrefix(name, "dense1.")] = t
		case strings.HasPrefix(name, "dense2."):
			second[strings.TrimPrefix(name, "dense2.")] = t
		default:
			return fmt.Errorf("unexpected residual block state key %q", name)
		}
	}
	if err := b.dense1.LoadStateDict(first); err != nil {
		return fmt.Errorf("dense1: %w", err)
	}
	if err := b.dense2.LoadStateDict(second); err != nil {
		return fmt.Errorf("dense2: %w", err)
	}
	return nil
}
