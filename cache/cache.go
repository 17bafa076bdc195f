// Copyright 2025 The Wallholla Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cache builds and reuses on-disk archives of pretrained
// backbone activations.
//
// Running a frozen backbone over a dataset is by far the most expensive
// step of the pipeline, so the resulting feature tensors are written to
// .wha archives keyed on dataset, generator, model, sample count and
// image size. Load regenerates the archives once when any of the four
// files is missing and serves from disk afterwards.
package cache

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"github.com/koaning/wallholla/augment"
	"github.com/koaning/wallholla/internal/serialization"
	"github.com/koaning/wallholla/pretrained"
	"github.com/koaning/wallholla/tensor"
)

// Config holds the inputs Generate and Load need besides the Key.
type Config struct {
	TrainDir string // directory with one subdirectory per class
	ValidDir string
	CacheDir string // where the .wha archives live
	// ClassMode selects the label encoding; default binary.
	ClassMode string
	// BatchSize is the backbone forward batch; default 32.
	BatchSize int
	// DataFormat is the image layout fed to the backbone and stored in
	// the archives, channels_last (default) or channels_first.
	DataFormat string
}

func (c Config) classMode() string {
	if c.ClassMode == "" {
		return augment.ClassModeBinary
	}
	return c.ClassMode
}

// Dataset holds the four tensors of one cached feature set.
type Dataset struct {
	TrainData   *tensor.Tensor
	TrainLabels *tensor.Tensor
	ValidData   *tensor.Tensor
	ValidLabels *tensor.Tensor
}

// Exists reports whether all four archives for key are present in dir.
func Exists(key Key, dir string) bool {
	for _, path := range key.Paths(dir) {
		if _, err := os.Stat(path); err != nil {
			return false
		}
	}
	return true
}

// Load returns the cached feature set for key, generating it first when
// any of the four archives is missing.
func Load(key Key, cfg Config) (*Dataset, error) {
	if !Exists(key, cfg.CacheDir) {
		slog.Debug("cache incomplete, generating", "key", key.base())
		if err := Generate(key, cfg); err != nil {
			return nil, err
		}
	}

	paths := key.Paths(cfg.CacheDir)
	ds := &Dataset{}
	for i, dst := range []**tensor.Tensor{
		&ds.TrainData, &ds.TrainLabels, &ds.ValidData, &ds.ValidLabels,
	} {
		t, err := serialization.LoadTensor(paths[i], archiveTensorName(i))
		if err != nil {
			return nil, fmt.Errorf("load cached features: %w", err)
		}
		slog.Debug("loaded archive", "path", paths[i], "shape", t.Shape())
		*dst = t
	}
	slog.Debug("train data shape", "shape", ds.TrainData.Shape())
	slog.Debug("valid data shape", "shape", ds.ValidData.Shape())
	slog.Debug("train label counts", "counts", labelCounts(ds.TrainLabels))
	slog.Debug("valid label counts", "counts", labelCounts(ds.ValidLabels))
	return ds, nil
}

// Generate draws key.NumImages augmented samples from the train and
// validation directories, runs them through the pretrained backbone and
// writes the four archives.
func Generate(key Key, cfg Config) error {
	if key.NumImages <= 0 {
		return fmt.Errorf("cache: number of images must be positive, got %d", key.NumImages)
	}
	if key.ImgSize[0] <= 0 || key.ImgSize[1] <= 0 {
		return fmt.Errorf("cache: image size must be positive, got %dx%d", key.ImgSize[0], key.ImgSize[1])
	}
	gen, err := augment.New(augment.Kind(key.Generator))
	if err != nil {
		return err
	}
	flowCfg := augment.FlowConfig{
		TargetSize: key.ImgSize,
		BatchSize:  1,
		ClassMode:  cfg.classMode(),
	}
	trainFlow, err := gen.FlowFromDirectory(cfg.TrainDir, flowCfg)
	if err != nil {
		return fmt.Errorf("train flow: %w", err)
	}
	validFlow, err := gen.FlowFromDirectory(cfg.ValidDir, flowCfg)
	if err != nil {
		return fmt.Errorf("validation flow: %w", err)
	}

	n := key.NumImages
	w, h := key.ImgSize[0], key.ImgSize[1]
	labelWidth := 1
	if cfg.classMode() == augment.ClassModeCategorical {
		labelWidth = trainFlow.NumClasses()
	}

	xTrain := tensor.New(tensor.Shape{n, h, w, 3})
	xValid := tensor.New(tensor.Shape{n, h, w, 3})
	yTrain := tensor.New(labelShape(n, labelWidth))
	yValid := tensor.New(labelShape(n, labelWidth))

	// One image at a time, matching the flow batch size.
	perImage := h * w * 3
	bar := progressbar.Default(int64(n), "collecting samples")
	for i := 0; i < n; i++ {
		if err := drawSample(trainFlow, xTrain, yTrain, i, perImage, labelWidth); err != nil {
			return fmt.Errorf("train sample %d: %w", i, err)
		}
		if err := drawSample(validFlow, xValid, yValid, i, perImage, labelWidth); err != nil {
			return fmt.Errorf("validation sample %d: %w", i, err)
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	slog.Debug("train label counts", "counts", labelCounts(yTrain))
	slog.Debug("valid label counts", "counts", labelCounts(yValid))

	var opts []pretrained.Option
	if cfg.DataFormat != "" {
		opts = append(opts, pretrained.WithDataFormat(pretrained.DataFormat(cfg.DataFormat)))
	}
	backbone, err := pretrained.New(key.Model, key.ImgSize, opts...)
	if err != nil {
		return err
	}
	if backbone.DataFormat() == pretrained.ChannelsFirst {
		// Flows always yield channels-last images.
		xTrain = xTrain.Permute(0, 3, 1, 2)
		xValid = xValid.Permute(0, 3, 1, 2)
	}
	slog.Debug("applying backbone", "model", key.Model, "num_images", n, "data_format", backbone.DataFormat())
	featTrain, err := backbone.Predict(xTrain, cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("predict train features: %w", err)
	}
	featValid, err := backbone.Predict(xValid, cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("predict validation features: %w", err)
	}

	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	runID := uuid.New().String()
	meta := map[string]string{
		"run_id":     runID,
		"dataset":    key.Dataset,
		"model":      key.Model,
		"generator":  key.Generator,
		"class_mode": cfg.classMode(),
		"num_images": fmt.Sprint(n),
		"img_size":   fmt.Sprintf("%dx%d", w, h),
	}

	paths := key.Paths(cfg.CacheDir)
	tensors := []*tensor.Tensor{featTrain, yTrain, featValid, yValid}
	for i, t := range tensors {
		archive := map[string]*tensor.Tensor{archiveTensorName(i): t}
		if err := serialization.Save(paths[i], archive, meta); err != nil {
			return fmt.Errorf("write cache archive: %w", err)
		}
		slog.Debug("wrote archive", "path", paths[i], "shape", t.Shape(), "run_id", runID)
	}
	return nil
}

// archiveTensorName maps a Filenames index to the tensor name stored in
// that archive.
func archiveTensorName(i int) string {
	if i%2 == 0 {
		return "data"
	}
	return "labels"
}

func labelShape(n, width int) tensor.Shape {
	if width == 1 {
		return tensor.Shape{n}
	}
	return tensor.Shape{n, width}
}

// drawSample pulls one batch-of-one from the flow into row i of x and y.
func drawSample(flow *augment.Flow, x, y *tensor.Tensor, i, perImage, labelWidth int) error {
	img, label, err := flow.Next()
	if err != nil {
		return err
	}
	copy(x.Data()[i*perImage:(i+1)*perImage], img.Data())
	copy(y.Data()[i*labelWidth:(i+1)*labelWidth], label.Data())
	return nil
}

// labelCounts tallies scalar label values for debug logging. One-hot
// labels are counted by their argmax.
func labelCounts(y *tensor.Tensor) string {
	counts := make(map[int]int)
	shape := y.Shape()
	if len(shape) == 1 {
		for _, v := range y.Data() {
			counts[int(v)]++
		}
	} else {
		width := shape[1]
		data := y.Data()
		for i := 0; i < shape[0]; i++ {
			best := 0
			for j := 1; j < width; j++ {
				if data[i*width+j] > data[i*width+best] {
					best = j
				}
			}
			counts[best]++
		}
	}

	classes := make([]int, 0, len(counts))
	for c := range counts {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	out := ""
	for _, c := range classes {
		if out != "" {
			out += " "
		}
		out += fmt.Sprintf("%d:%d", c, counts[c])
	}
	return out
}
