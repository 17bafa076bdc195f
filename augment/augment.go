// Copyright 2025 The Wallholla Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package augment generates augmented image batches from
// class-per-directory datasets.
//
// A Generator bundles an augmentation policy (rescale, shear, zoom,
// horizontal flip) selected by kind, and FlowFromDirectory turns a
// directory tree like
//
//	catdog/train/cat/001.jpg
//	catdog/train/dog/001.jpg
//
// into an endless stream of (images, labels) batches.
package augment

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/koaning/wallholla/tensor"
)

// Kind selects an augmentation policy.
type Kind string

// The supported generator kinds.
const (
	KindNotRandom  Kind = "not-random"
	KindRandom     Kind = "random"
	KindVeryRandom Kind = "very-random"
)

// Kinds lists the generator kinds resolvable by New.
var Kinds = []Kind{KindRandom, KindVeryRandom, KindNotRandom}

// Generator holds an augmentation policy. All values are fixed per kind;
// randomness is drawn per image at flow time.
type Generator struct {
	kind           Kind
	Rescale        float32 // multiplier applied to every pixel
	ShearRange     float32 // shear intensity in radians, sampled from [-v, v]
	ZoomRange      float32 // zoom sampled from [1-v, 1+v] per axis
	HorizontalFlip bool    // flip with probability 0.5
}

// New creates a Generator for the given kind.
//
// Returns a descriptive error for unknown kinds.
func New(kind Kind) (*Generator, error) {
	switch kind {
	case KindNotRandom:
		return &Generator{kind: kind, Rescale: 1.0 / 255}, nil
	case KindRandom:
		return &Generator{kind: kind, Rescale: 1.0 / 255, ShearRange: 0.1, ZoomRange: 0.1}, nil
	case KindVeryRandom:
		return &Generator{
			kind:           kind,
			Rescale:        1.0 / 255,
			ShearRange:     0.2,
			ZoomRange:      0.2,
			HorizontalFlip: true,
		}, nil
	default:
		return nil, fmt.Errorf("unknown generator kind %q: kind needs to be one of %v", kind, Kinds)
	}
}

// Kind returns the generator kind.
func (g *Generator) Kind() Kind { return g.kind }

// sampleTransform draws the random parameters for one image.
func (g *Generator) sampleTransform(rng *rand.Rand) transformParams {
	p := transformParams{zoomX: 1, zoomY: 1}
	if g.ZoomRange > 0 {
		p.zoomX = 1 + (rng.Float32()*2-1)*g.ZoomRange
		p.zoomY = 1 + (rng.Float32()*2-1)*g.ZoomRange
	}
	if g.ShearRange > 0 {
		shear := (rng.Float64()*2 - 1) * float64(g.ShearRange)
		p.shear = math.Tan(shear)
	}
	if g.HorizontalFlip && rng.Float32() < 0.5 {
		p.flip = true
	}
	return p
}

// transformParams are the sampled augmentation parameters for one image.
type transformParams struct {
	zoomX float32
	zoomY float32
	shear float64
	flip  bool
}

// identity reports whether the parameters leave the image untouched
// (besides resizing).
func (p transformParams) identity() bool {
	return p.zoomX == 1 && p.zoomY == 1 && p.shear == 0 && !p.flip
}

// oneHot writes a one-hot row into a [batch, classes] label tensor.
func oneHot(y *tensor.Tensor, row, class int) {
	classes := y.Shape()[1]
	y.Data()[row*classes+class] = 1
}
