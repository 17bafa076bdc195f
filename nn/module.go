// Copyright 2025 The Wallholla Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn implements the neural network building blocks used by the
// Wallholla model builders and pretrained backbones.
//
// The package provides:
//   - Module interface: base interface for all layers
//   - Parameter: a named weight tensor
//   - Dense, Dropout, Flatten: fully-connected building blocks
//   - Conv2D, DepthwiseConv2D, SeparableConv2D, BatchNorm, MaxPool2D:
//     convolutional building blocks (NHWC layout)
//   - Sequential: container for stacking layers
//   - Activations resolvable by name (relu, sigmoid, tanh, ...)
package nn

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/koaning/wallholla/tensor"
)

// Module is the base interface for all neural network components.
//
// Modules compose into models:
//
//	model := nn.NewSequential(
//	    nn.NewDense(784, 128, nn.NewReLU()),
//	    nn.NewDense(128, 10, nn.NewSigmoid()),
//	)
type Module interface {
	// Forward computes the output of the module for the given input.
	// Shape misuse panics with a descriptive message; modules never
	// mutate their input.
	Forward(input *tensor.Tensor) *tensor.Tensor

	// Parameters returns all trainable parameters of this module.
	// Modules without trainable state return nil.
	Parameters() []*Parameter
}

// StateDict maps parameter names to tensors.
type StateDict = map[string]*tensor.Tensor

// StatefulModule is a Module whose weights can be exported and restored.
type StatefulModule interface {
	Module

	// StateDict returns the module weights keyed by parameter name.
	StateDict() StateDict

	// LoadStateDict restores weights from a state dictionary, validating
	// names and shapes.
	LoadStateDict(state StateDict) error
}

// Parameter represents a named, trainable tensor.
type Parameter struct {
	name   string
	tensor *tensor.Tensor
}

// NewParameter creates a parameter wrapping the given tensor.
func NewParameter(name string, t *tensor.Tensor) *Parameter {
	return &Parameter{name: name, tensor: t}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the underlying tensor.
func (p *Parameter) Tensor() *tensor.Tensor {
	return p.tensor
}

// Sequential chains modules, feeding each output into the next module.
type Sequential struct {
	modules []Module
}

// NewSequential creates a sequential container from the given modules.
func NewSequential(modules ...Module) *Sequential {
	return &Sequential{modules: modules}
}

// Append adds a module to the end of the chain.
func (s *Sequential) Append(m Module) {
	s.modules = append(s.modules, m)
}

// Forward runs the input through every module in order.
func (s *Sequential) Forward(input *tensor.Tensor) *tensor.Tensor {
	out := input
	for _, m := range s.modules {
		out = m.Forward(out)
	}
	return out
}

// Parameters returns the parameters of all contained modules.
func (s *Sequential) Parameters() []*Parameter {
	var params []*Parameter
	for _, m := range s.modules {
		params = append(params, m.Parameters()...)
	}
	return params
}

// Len returns the number of contained modules.
func (s *Sequential) Len() int {
	return len(s.modules)
}

// At returns the i-th module.
func (s *Sequential) At(i int) Module {
	return s.modules[i]
}

// Layers returns the contained modules in order.
func (s *Sequential) Layers() []Module {
	return s.modules
}

// StateDict exports the weights of all stateful layers, with entries
// named "layer.<index>.<param>".
func (s *Sequential) StateDict() StateDict {
	state := make(StateDict)
	for i, m := range s.modules {
		sm, ok := m.(StatefulModule)
		if !ok {
			continue
		}
		for name, t := range sm.StateDict() {
			state[fmt.Sprintf("layer.%d.%s", i, name)] = t
		}
	}
	return state
}

// LoadStateDict restores weights previously exported by StateDict.
func (s *Sequential) LoadStateDict(state StateDict) error {
	perLayer := make(map[int]StateDict)
	for key, t := range state {
		rest, ok := strings.CutPrefix(key, "layer.")
		if !ok {
			return fmt.Errorf("unexpected state dict key %q", key)
		}
		idxStr, param, ok := strings.Cut(rest, ".")
		if !ok {
			return fmt.Errorf("unexpected state dict key %q", key)
		}
		idx, err := strconv.Atoi(idxStr)
		if err != nil || idx < 0 || idx >= len(s.modules) {
			return fmt.Errorf("state dict key %q references no layer", key)
		}
		if perLayer[idx] == nil {
			perLayer[idx] = make(StateDict)
		}
		perLayer[idx][param] = t
	}

	for idx, layerState := range perLayer {
		sm, ok := s.modules[idx].(StatefulModule)
		if !ok {
			return fmt.Errorf("layer %d has no loadable state", idx)
		}
		if err := sm.LoadStateDict(layerState); err != nil {
			return fmt.Errorf("layer %d: %w", idx, err)
		}
	}
	return nil
}
