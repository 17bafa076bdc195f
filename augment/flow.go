package augment

import (
	"fmt"
	"image"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	// Registered decoders for the formats the flow accepts.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/koaning/wallholla/tensor"
)

// Class modes for label encoding.
const (
	ClassModeBinary      = "binary"      // float 0/1 vector; requires exactly two classes
	ClassModeCategorical = "categorical" // one-hot matrix
	ClassModeSparse      = "sparse"      // class index vector
)

// ClassModes lists the supported label encodings.
var ClassModes = []string{ClassModeBinary, ClassModeCategorical, ClassModeSparse}

// FlowConfig configures FlowFromDirectory. Zero values select the
// defaults noted per field.
type FlowConfig struct {
	TargetSize [2]int // output width, height; default 256x256
	BatchSize  int    // default 32
	ClassMode  string // default categorical
	Seed       int64  // default 1
}

// Flow yields augmented (images, labels) batches from a directory tree,
// cycling endlessly with a reshuffle per pass.
type Flow struct {
	gen        *Generator
	config     FlowConfig
	classNames []string
	samples    []flowSample
	order      []int
	pos        int
	rng        *rand.Rand
}

type flowSample struct {
	path  string
	class int
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
}

// FlowFromDirectory scans dir for one subdirectory per class (sorted for
// stable class indices) and returns a Flow over the images inside.
func (g *Generator) FlowFromDirectory(dir string, config FlowConfig) (*Flow, error) {
	if config.TargetSize[0] == 0 && config.TargetSize[1] == 0 {
		config.TargetSize = [2]int{256, 256}
	}
	if config.TargetSize[0] <= 0 || config.TargetSize[1] <= 0 {
		return nil, fmt.Errorf("flow from %s: invalid target size %dx%d", dir, config.TargetSize[0], config.TargetSize[1])
	}
	if config.BatchSize == 0 {
		config.BatchSize = 32
	}
	if config.BatchSize < 0 {
		return nil, fmt.Errorf("flow from %s: invalid batch size %d", dir, config.BatchSize)
	}
	if config.ClassMode == "" {
		config.ClassMode = ClassModeCategorical
	}
	validMode := false
	for _, mode := range ClassModes {
		if config.ClassMode == mode {
			validMode = true
			break
		}
	}
	if !validMode {
		return nil, fmt.Errorf("flow from %s: unknown class mode %q: must be one of %v", dir, config.ClassMode, ClassModes)
	}
	if config.Seed == 0 {
		config.Seed = 1
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan dataset folder %s: %w", dir, err)
	}

	var classNames []string
	for _, entry := range entries {
		if entry.IsDir() {
			classNames = append(classNames, entry.Name())
		}
	}
	sort.Strings(classNames)
	if len(classNames) == 0 {
		return nil, fmt.Errorf("flow from %s: no class subdirectories found", dir)
	}
	if config.ClassMode == ClassModeBinary && len(classNames) != 2 {
		return nil, fmt.Errorf("flow from %s: binary class mode requires exactly 2 classes, found %d", dir, len(classNames))
	}

	var samples []flowSample
	for classIdx, name := range classNames {
		files, err := os.ReadDir(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("scan class folder %s: %w", name, err)
		}
		for _, file := range files {
			if file.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(file.Name()))] {
				continue
			}
			samples = append(samples, flowSample{
				path:  filepath.Join(dir, name, file.Name()),
				class: classIdx,
			})
		}
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("flow from %s: no images found", dir)
	}

	f := &Flow{
		gen:        g,
		config:     config,
		classNames: classNames,
		samples:    samples,
		rng:        rand.New(rand.NewSource(config.Seed)),
	}
	f.reshuffle()
	return f, nil
}

// reshuffle draws a fresh sample order for the next pass.
func (f *Flow) reshuffle() {
	f.order = f.rng.Perm(len(f.samples))
	f.pos = 0
}

// NumClasses returns the number of classes found.
func (f *Flow) NumClasses() int { return len(f.classNames) }

// Classes returns the class names in index order.
func (f *Flow) Classes() []string { return f.classNames }

// NumSamples returns the number of images found.
func (f *Flow) NumSamples() int { return len(f.samples) }

// ImageShape returns the per-image output shape [height, width, 3].
func (f *Flow) ImageShape() tensor.Shape {
	return tensor.Shape{f.config.TargetSize[1], f.config.TargetSize[0], 3}
}

// Next returns the next (images, labels) batch.
//
// Shapes: images [batch, height, width, 3]; labels [batch] for binary and
// sparse modes, [batch, classes] for categorical. The flow cycles
// endlessly, reshuffling after each full pass.
func (f *Flow) Next() (*tensor.Tensor, *tensor.Tensor, error) {
	w, h := f.config.TargetSize[0], f.config.TargetSize[1]
	batch := f.config.BatchSize

	x := tensor.New(tensor.Shape{batch, h, w, 3})
	var y *tensor.Tensor
	if f.config.ClassMode == ClassModeCategorical {
		y = tensor.New(tensor.Shape{batch, len(f.classNames)})
	} else {
		y = tensor.New(tensor.Shape{batch})
	}

	perImage := h * w * 3
	for i := 0; i < batch; i++ {
		if f.pos >= len(f.order) {
			f.reshuffle()
		}
		sample := f.samples[f.order[f.pos]]
		f.pos++

		img, err := f.loadImage(sample.path)
		if err != nil {
			return nil, nil, err
		}
		copy(x.Data()[i*perImage:(i+1)*perImage], img.Data())

		switch f.config.ClassMode {
		case ClassModeCategorical:
			oneHot(y, i, sample.class)
		default: // binary, sparse: the class index as a float
			y.Data()[i] = float32(sample.class)
		}
	}
	return x, y, nil
}

// loadImage decodes, transforms and rescales one image into a
// [height, width, 3] tensor.
func (f *Flow) loadImage(path string) (*tensor.Tensor, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	defer file.Close()

	src, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}

	w, h := f.config.TargetSize[0], f.config.TargetSize[1]
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	params := f.gen.sampleTransform(f.rng)

	if params.identity() {
		draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	} else {
		draw.BiLinear.Transform(dst, affine(src.Bounds(), w, h, params), src, src.Bounds(), draw.Src, nil)
	}

	out := tensor.New(tensor.Shape{h, w, 3})
	data := out.Data()
	scale := f.gen.Rescale
	if scale == 0 {
		scale = 1
	}
	i := 0
	for yPix := 0; yPix < h; yPix++ {
		for xPix := 0; xPix < w; xPix++ {
			offset := dst.PixOffset(xPix, yPix)
			data[i] = float32(dst.Pix[offset]) * scale
			data[i+1] = float32(dst.Pix[offset+1]) * scale
			data[i+2] = float32(dst.Pix[offset+2]) * scale
			i += 3
		}
	}
	return out, nil
}

// affine composes resize, zoom, shear and flip into a source-to-dest
// matrix for draw.Transform, anchored at the output center.
func affine(srcBounds image.Rectangle, w, h int, params transformParams) f64.Aff3 {
	srcW := float64(srcBounds.Dx())
	srcH := float64(srcBounds.Dy())

	// Base resize onto the target, scaled by the sampled zoom.
	sx := float64(w) / srcW * float64(params.zoomX)
	sy := float64(h) / srcH * float64(params.zoomY)

	// dstX = sx*srcX + shear*sy*srcY + tx; dstY = sy*srcY + ty.
	a, b := sx, params.shear*sy
	d, e := 0.0, sy

	// Anchor: map the source center onto the output center.
	cx, cy := srcW/2, srcH/2
	tx := float64(w)/2 - (a*cx + b*cy)
	ty := float64(h)/2 - (d*cx + e*cy)

	if params.flip {
		a, b = -a, -b
		tx = float64(w) - tx
	}
	return f64.Aff3{a, b, tx, d, e, ty}
}
