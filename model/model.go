// Copyright 2025 The Wallholla Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package model provides declarative builders for the small
// fully-connected models trained on top of cached backbone features.
//
// Three builders exist:
//   - FC: a plain fully-connected stack from per-layer neuron counts
//   - ResNet: a feed-forward stack with residual (skip) connections
//   - FinalLayers: the binary classification head for cached features
package model

import (
	"fmt"

	"github.com/koaning/wallholla/nn"
	"github.com/koaning/wallholla/tensor"
)

// fcConfig collects the FC builder options.
type fcConfig struct {
	activations []string
	dropouts    []float32
}

// Option configures the FC builder.
type Option func(*fcConfig)

// WithActivations sets layer activations. A single name applies to every
// layer; otherwise one name per layer is required.
func WithActivations(names ...string) Option {
	return func(c *fcConfig) { c.activations = names }
}

// WithDropouts sets per-layer dropout probabilities. A single rate
// applies to every layer; otherwise one rate per layer is required. A
// rate of 0 inserts no Dropout layer.
func WithDropouts(rates ...float32) Option {
	return func(c *fcConfig) { c.dropouts = rates }
}

// FC builds a custom fully-connected model.
//
// layers holds the neuron count of each layer in order. Activations
// default to relu and dropouts to 0.
//
// Example:
//
//	// 16-dim input into layers of 8, 2 and 1 neurons, each followed by
//	// a dropout of 0.1.
//	m, err := model.FC(16, []int{8, 2, 1}, model.WithDropouts(0.1))
func FC(inputDim int, layers []int, opts ...Option) (*nn.Sequential, error) {
	if inputDim <= 0 {
		return nil, fmt.Errorf("fc model: input dimension must be positive, got %d", inputDim)
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("fc model: at least one layer is required")
	}
	for _, units := range layers {
		if units <= 0 {
			return nil, fmt.Errorf("fc model: layer sizes must be positive, got %v", layers)
		}
	}

	cfg := fcConfig{activations: []string{"relu"}, dropouts: []float32{0}}
	for _, opt := range opts {
		opt(&cfg)
	}

	activations, err := broadcast(cfg.activations, len(layers), "activations")
	if err != nil {
		return nil, err
	}
	dropouts, err := broadcast(cfg.dropouts, len(layers), "dropouts")
	if err != nil {
		return nil, err
	}

	m := nn.NewSequential()
	in := inputDim
	for i, units := range layers {
		act, err := nn.ActivationByName(activations[i])
		if err != nil {
			return nil, fmt.Errorf("fc model layer %d: %w", i, err)
		}
		m.Append(nn.NewDense(in, units, act))
		if dropouts[i] < 0 || dropouts[i] >= 1 {
			return nil, fmt.Errorf("fc model layer %d: dropout must be in [0, 1), got %v", i, dropouts[i])
		}
		if dropouts[i] > 0 {
			m.Append(nn.NewDropout(dropouts[i]))
		}
		in = units
	}
	return m, nil
}

// broadcast expands a single-element slice to n entries, or validates an
// explicit per-layer slice.
func broadcast[T any](values []T, n int, what string) ([]T, error) {
	if len(values) == 1 {
		out := make([]T, n)
		for i := range out {
			out[i] = values[0]
		}
		return out, nil
	}
	if len(values) != n {
		return nil, fmt.Errorf("fc model: got %d %s for %d layers", len(values), what, n)
	}
	return values, nil
}

// ResNetConfig describes a residual feed-forward model.
type ResNetConfig struct {
	InputDim        int
	OutputDim       int
	Depth           int     // number of hidden dense layers; every pair forms a residual block
	Width           int     // neurons per hidden layer
	Activation      string  // hidden activation, default relu
	FinalActivation string  // output activation, default linear
	Dropout         float32 // dropout after each residual block, 0 disables
}

// ResNet builds a feed-forward model with skip connections.
//
// The skip connections add each block's input back onto its first dense
// layer's output, which keeps gradients stable on deeper stacks.
func ResNet(cfg ResNetConfig) (*nn.Sequential, error) {
	if cfg.InputDim <= 0 || cfg.OutputDim <= 0 || cfg.Width <= 0 {
		return nil, fmt.Errorf("resnet model: dimensions must be positive, got input=%d output=%d width=%d",
			cfg.InputDim, cfg.OutputDim, cfg.Width)
	}
	if cfg.Depth < 0 {
		return nil, fmt.Errorf("resnet model: depth must be non-negative, got %d", cfg.Depth)
	}
	if cfg.Dropout < 0 || cfg.Dropout >= 1 {
		return nil, fmt.Errorf("resnet model: dropout must be in [0, 1), got %v", cfg.Dropout)
	}
	if cfg.Activation == "" {
		cfg.Activation = "relu"
	}

	act, err := nn.ActivationByName(cfg.Activation)
	if err != nil {
		return nil, fmt.Errorf("resnet model: %w", err)
	}
	finalAct, err := nn.ActivationByName(cfg.FinalActivation)
	if err != nil {
		return nil, fmt.Errorf("resnet model: %w", err)
	}

	m := nn.NewSequential(nn.NewDense(cfg.InputDim, cfg.Width, act))
	for i := 0; i < cfg.Depth/2; i++ {
		m.Append(NewResidualBlock(cfg.Width, act, cfg.Dropout))
	}
	m.Append(nn.NewDense(cfg.Width, cfg.OutputDim, finalAct))
	return m, nil
}

// FinalLayers builds the classification head placed on top of cached
// backbone features: Flatten, a hidden relu layer, dropout, and a single
// sigmoid output.
//
// featureShape is the per-sample feature shape, without the batch
// dimension.
func FinalLayers(featureShape tensor.Shape, hidden int, dropout float32) (*nn.Sequential, error) {
	if len(featureShape) == 0 || featureShape.NumElements() <= 0 {
		return nil, fmt.Errorf("final layers model: invalid feature shape %v", featureShape)
	}
	if hidden <= 0 {
		return nil, fmt.Errorf("final layers model: hidden size must be positive, got %d", hidden)
	}
	if dropout < 0 || dropout >= 1 {
		return nil, fmt.Errorf("final layers model: dropout must be in [0, 1), got %v", dropout)
	}

	return nn.NewSequential(
		nn.NewFlatten(),
		nn.NewDense(featureShape.NumElements(), hidden, nn.NewReLU()),
		nn.NewDropout(dropout),
		nn.NewDense(hidden, 1, nn.NewSigmoid()),
	), nil
}
