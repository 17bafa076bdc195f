package nn

import (
	"fmt"
	"strings"

	"github.com/koaning/wallholla/tensor"
)

// Residual adds a module's output back onto its input:
//
//	out = main(x) + shortcut(x)
//
// A nil shortcut is the identity. When main changes the spatial shape or
// channel count, the shortcut must project the input accordingly (the
// usual 1x1 strided convolution).
type Residual struct {
	main     Module
	shortcut Module
}

// NewResidual creates a residual wrapper around main. shortcut may be
// nil for an identity skip.
func NewResidual(main, shortcut Module) *Residual {
	return &Residual{main: main, shortcut: shortcut}
}

// Forward computes main(x) + shortcut(x).
func (r *Residual) Forward(input *tensor.Tensor) *tensor.Tensor {
	out := r.main.Forward(input)
	skip := input
	if r.shortcut != nil {
		skip = r.shortcut.Forward(input)
	}
	if !out.Shape().Equal(skip.Shape()) {
		panic(fmt.Sprintf("Residual.Forward: branch shapes differ: %v vs %v", out.Shape(), skip.Shape()))
	}
	return out.Add(skip)
}

// Parameters returns both branches' parameters.
func (r *Residual) Parameters() []*Parameter {
	params := r.main.Parameters()
	if r.shortcut != nil {
		params = append(params, r.shortcut.Parameters()...)
	}
	return params
}

// StateDict exports both branches under "main." and "shortcut." prefixes.
func (r *Residual) StateDict() StateDict {
	state := make(StateDict)
	if sm, ok := r.main.(StatefulModule); ok {
		for name, t := range sm.StateDict() {
			state["main."+name] = t
		}
	}
	if sm, ok := r.shortcut.(StatefulModule); ok {
		for name, t := range sm.StateDict() {
			state["shortcut."+name] = t
		}
	}
	return state
}

// LoadStateDict restores both branches.
func (r *Residual) LoadStateDict(state StateDict) error {
	mainState := make(StateDict)
	shortcutState := make(StateDict)
	for name, t := range state {
		switch {
		case strings.HasPrefix(name, "main."):
			mainState[strings.TrimPrefix(name, "main.")] = t
		case strings.HasPrefix(name, "shortcut."):
			shortcutState[strings.TrimPrefix(name, "shortcut.")] = t
		default:
			return fmt.Errorf("unexpected residual state key %q", name)
		}
	}
	if len(mainState) > 0 {
		sm, ok := r.main.(StatefulModule)
		if !ok {
			return fmt.Errorf("residual main branch has no loadable state")
		}
		if err := sm.LoadStateDict(mainState); err != nil {
			return fmt.Errorf("main: %w", err)
		}
	}
	if len(shortcutState) > 0 {
		sm, ok := r.shortcut.(StatefulModule)
		if !ok {
			return fmt.Errorf("residual shortcut branch has no loadable state")
		}
		if err := sm.LoadStateDict(shortcutState); err != nil {
			return fmt.Errorf("shortcut: %w", err)
		}
	}
	return nil
}
