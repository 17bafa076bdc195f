// Copyright 2025 The Wallholla Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim implements the optimizers selectable from the command
// line: SGD (momentum), Adam and RMSprop.
//
// Training loops are out of scope for this repository; optimizers apply
// externally computed gradients. Configs use zero-value defaults:
//
//	opt := optim.NewAdam(model.Parameters(), optim.AdamConfig{LR: 0.001})
//	opt.Step(grads)
package optim

import (
	"fmt"
	"log/slog"

	"github.com/koaning/wallholla/nn"
	"github.com/koaning/wallholla/tensor"
)

// Gradients maps parameters to their gradient tensors.
type Gradients = map[*nn.Parameter]*tensor.Tensor

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step applies one gradient update to every parameter present in
	// grads. Parameters without a gradient are skipped.
	Step(grads Gradients)

	// LR returns the current learning rate.
	LR() float32

	// Name returns the canonical optimizer name.
	Name() string
}

// Names lists the optimizers resolvable by New.
var Names = []string{"adam", "rmsprop", "sgd"}

// DefaultLR is the learning rate New uses when none is given.
const DefaultLR float32 = 0.0001

// New creates an optimizer from its command-line name.
//
// A zero learningRate selects DefaultLR. Unknown names return an error
// naming the valid set.
func New(name string, params []*nn.Parameter, learningRate float32) (Optimizer, error) {
	if learningRate == 0 {
		learningRate = DefaultLR
	}
	var opt Optimizer
	switch name {
	case "adam":
		opt = NewAdam(params, AdamConfig{LR: learningRate})
	case "rmsprop":
		opt = NewRMSprop(params, RMSpropConfig{LR: learningRate})
	case "sgd":
		opt = NewSGD(params, SGDConfig{LR: learningRate})
	default:
		return nil, fmt.Errorf("unknown optimizer %q: name needs to be one of %v", name, Names)
	}
	slog.Debug("created optimizer", "name", name, "lr", learningRate)
	return opt, nil
}

// applyInPlace subtracts update from the parameter data.
func applyInPlace(param *nn.Parameter, update []float32) {
	data := param.Tensor().Data()
	for i, u := range update {
		data[i] -= u
	}
}
