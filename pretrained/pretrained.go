// Copyright 2025 The Wallholla Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package pretrained provides the convolutional backbones used as frozen
// feature extractors: vgg16, vgg19, mobilenet and xception, all without
// their classification heads.
//
// Backbones initialize deterministically from a seeded source; weights
// from a local .wha archive can be loaded on top with LoadWeights.
package pretrained

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"

	"github.com/koaning/wallholla/internal/serialization"
	"github.com/koaning/wallholla/nn"
	"github.com/koaning/wallholla/tensor"
)

// DataFormat selects the image memory layout at the package boundary.
// Computation always happens in channels-last (NHWC); channels-first
// input/output is permuted at the edges.
type DataFormat string

// The supported data formats.
const (
	ChannelsLast  DataFormat = "channels_last"
	ChannelsFirst DataFormat = "channels_first"
)

// architecture builds a backbone network and describes its geometry.
type architecture struct {
	build func() *nn.Sequential
	// reduce maps input spatial dims to feature-map dims.
	reduce func(h, w int) (int, int)
	// outChannels is the feature-map depth.
	outChannels int
}

// registry maps backbone names to their architectures. Populated by the
// arch file's init function.
var registry = map[string]architecture{}

// Names returns the available backbone names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Backbone is a frozen feature extractor.
type Backbone struct {
	name         string
	net          *nn.Sequential
	imgSize      [2]int // width, height
	dataFormat   DataFormat
	featureShape tensor.Shape // per-sample, channels-last
}

type options struct {
	dataFormat DataFormat
	seed       int64
}

// Option configures New.
type Option func(*options)

// WithDataFormat sets the image layout expected by Predict and reported
// by InputShape/OutputShape. Default channels_last.
func WithDataFormat(format DataFormat) Option {
	return func(o *options) { o.dataFormat = format }
}

// WithSeed overrides the deterministic weight initialization seed.
func WithSeed(seed int64) Option {
	return func(o *options) { o.seed = seed }
}

// New creates a backbone by name for the given image size (width,
// height).
//
// Unknown names return an error listing the valid backbones.
func New(name string, imgSize [2]int, opts ...Option) (*Backbone, error) {
	arch, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown backbone model %q: model needs to be one of %v", name, Names())
	}
	if imgSize[0] < 32 || imgSize[1] < 32 {
		return nil, fmt.Errorf("backbone %s: image size %dx%d too small, need at least 32x32", name, imgSize[0], imgSize[1])
	}

	o := options{dataFormat: ChannelsLast, seed: defaultSeed(name)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.dataFormat != ChannelsLast && o.dataFormat != ChannelsFirst {
		return nil, fmt.Errorf("backbone %s: unknown data format %q", name, o.dataFormat)
	}

	net := arch.build()
	nn.Reinitialize(net.Parameters(), o.seed)

	fh, fw := arch.reduce(imgSize[1], imgSize[0])
	slog.Debug("built backbone",
		"model", name, "img_size", fmt.Sprintf("%dx%d", imgSize[0], imgSize[1]),
		"data_format", o.dataFormat, "feature_shape", tensor.Shape{fh, fw, arch.outChannels})

	return &Backbone{
		name:         name,
		net:          net,
		imgSize:      imgSize,
		dataFormat:   o.dataFormat,
		featureShape: tensor.Shape{fh, fw, arch.outChannels},
	}, nil
}

// defaultSeed derives a stable per-model seed so two processes build
// identical backbones.
func defaultSeed(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF)
}

// Name returns the backbone name.
func (b *Backbone) Name() string { return b.name }

// DataFormat returns the configured image layout.
func (b *Backbone) DataFormat() DataFormat { return b.dataFormat }

// InputShape returns the per-image input shape for the configured data
// format.
func (b *Backbone) InputShape() tensor.Shape {
	w, h := b.imgSize[0], b.imgSize[1]
	if b.dataFormat == ChannelsFirst {
		return tensor.Shape{3, h, w}
	}
	return tensor.Shape{h, w, 3}
}

// OutputShape returns the feature shape for a batch of the given size.
func (b *Backbone) OutputShape(batch int) tensor.Shape {
	fs := b.featureShape
	if b.dataFormat == ChannelsFirst {
		return tensor.Shape{batch, fs[2], fs[0], fs[1]}
	}
	return tensor.Shape{batch, fs[0], fs[1], fs[2]}
}

// Predict runs the frozen backbone over a batch of images, processing
// batchSize images per forward pass (0 selects 32).
//
// Input shape: [n, ...InputShape()]. Output shape: OutputShape(n).
func (b *Backbone) Predict(images *tensor.Tensor, batchSize int) (*tensor.Tensor, error) {
	shape := images.Shape()
	if len(shape) != 4 {
		return nil, fmt.Errorf("backbone %s: expected 4D input, got shape %v", b.name, shape)
	}
	want := b.InputShape()
	if !tensor.Shape(shape[1:]).Equal(want) {
		return nil, fmt.Errorf("backbone %s: expected per-image shape %v, got %v", b.name, want, tensor.Shape(shape[1:]))
	}
	if batchSize <= 0 {
		batchSize = 32
	}

	if b.dataFormat == ChannelsFirst {
		images = images.Permute(0, 2, 3, 1) // NCHW -> NHWC
	}

	n := shape[0]
	fs := b.featureShape
	out := tensor.New(tensor.Shape{n, fs[0], fs[1], fs[2]})
	perIn := images.NumElements() / n
	perOut := fs.NumElements()

	for start := 0; start < n; start += batchSize {
		end := min(start+batchSize, n)
		chunk, err := tensor.FromSlice(
			images.Data()[start*perIn:end*perIn],
			tensor.Shape{end - start, b.imgSize[1], b.imgSize[0], 3},
		)
		if err != nil {
			return nil, fmt.Errorf("backbone %s: %w", b.name, err)
		}
		features := b.net.Forward(chunk)
		got := features.Shape()
		if got.NumElements() != (end-start)*perOut {
			return nil, fmt.Errorf("backbone %s: unexpected feature shape %v", b.name, got)
		}
		copy(out.Data()[start*perOut:end*perOut], features.Data())
	}

	if b.dataFormat == ChannelsFirst {
		return out.Permute(0, 3, 1, 2), nil // NHWC -> NCHW
	}
	return out, nil
}

// LoadWeights restores backbone weights from a .wha archive previously
// written by SaveWeights.
func (b *Backbone) LoadWeights(path string) error {
	state, _, err := serialization.Load(path)
	if err != nil {
		return fmt.Errorf("load %s weights: %w", b.name, err)
	}
	if err := b.net.LoadStateDict(state); err != nil {
		return fmt.Errorf("load %s weights from %s: %w", b.name, path, err)
	}
	slog.Debug("loaded backbone weights", "model", b.name, "path", path)
	return nil
}

// SaveWeights writes the backbone weights to a .wha archive.
func (b *Backbone) SaveWeights(path string) error {
	meta := map[string]string{
		"model":    b.name,
		"img_size": fmt.Sprintf("%dx%d", b.imgSize[0], b.imgSize[1]),
	}
	if err := serialization.Save(path, b.net.StateDict(), meta); err != nil {
		return fmt.Errorf("save %s weights: %w", b.name, err)
	}
	return nil
}

// Parameters exposes the backbone parameters (frozen: nothing in this
// repository updates them).
func (b *Backbone) Parameters() []*nn.Parameter {
	return b.net.Parameters()
}
