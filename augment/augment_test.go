package augment_test

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koaning/wallholla/augment"
	"github.com/koaning/wallholla/tensor"
)

func TestNewKinds(t *testing.T) {
	notRandom, err := augment.New(augment.KindNotRandom)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/255, notRandom.Rescale, 1e-9)
	assert.Zero(t, notRandom.ShearRange)
	assert.Zero(t, notRandom.ZoomRange)
	assert.False(t, notRandom.HorizontalFlip)

	random, err := augment.New(augment.KindRandom)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, random.ShearRange, 1e-6)
	assert.InDelta(t, 0.1, random.ZoomRange, 1e-6)
	assert.False(t, random.HorizontalFlip)

	veryRandom, err := augment.New(augment.KindVeryRandom)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, veryRandom.ShearRange, 1e-6)
	assert.InDelta(t, 0.2, veryRandom.ZoomRange, 1e-6)
	assert.True(t, veryRandom.HorizontalFlip)
}

func TestNewUnknownKind(t *testing.T) {
	_, err := augment.New("sorta-random")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown generator kind")
}

// writeDataset creates dir/<class>/img<i>.png for each class with the
// given solid color and image count.
func writeDataset(t *testing.T, dir string, classes map[string]color.RGBA, perClass int) {
	t.Helper()
	for name, fill := range classes {
		classDir := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(classDir, 0o755))
		for i := 0; i < perClass; i++ {
			img := image.NewRGBA(image.Rect(0, 0, 12, 10))
			for y := 0; y < 10; y++ {
				for x := 0; x < 12; x++ {
					img.SetRGBA(x, y, fill)
				}
			}
			file, err := os.Create(filepath.Join(classDir, "img"+string(rune('a'+i))+".png"))
			require.NoError(t, err)
			require.NoError(t, png.Encode(file, img))
			require.NoError(t, file.Close())
		}
	}
}

func TestFlowFromDirectoryBinary(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, map[string]color.RGBA{
		"cat": {R: 255, A: 255},
		"dog": {B: 255, A: 255},
	}, 3)

	gen, err := augment.New(augment.KindNotRandom)
	require.NoError(t, err)

	flow, err := gen.FlowFromDirectory(dir, augment.FlowConfig{
		TargetSize: [2]int{8, 8},
		BatchSize:  4,
		ClassMode:  augment.ClassModeBinary,
		Seed:       3,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, flow.NumClasses())
	assert.Equal(t, []string{"cat", "dog"}, flow.Classes())
	assert.Equal(t, 6, flow.NumSamples())
	assert.True(t, flow.ImageShape().Equal(tensor.Shape{8, 8, 3}))

	x, y, err := flow.Next()
	require.NoError(t, err)
	require.True(t, x.Shape().Equal(tensor.Shape{4, 8, 8, 3}))
	require.True(t, y.Shape().Equal(tensor.Shape{4}))
	for _, label := range y.Data() {
		assert.Contains(t, []float32{0, 1}, label)
	}

	// Pixels are rescaled into [0, 1]; a pure red cat image keeps its
	// red channel near 1 and green near 0.
	for _, v := range x.Data() {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}
}

func TestFlowLabelsMatchClassColor(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, map[string]color.RGBA{
		"cat": {R: 255, A: 255}, // class 0, red
		"dog": {B: 255, A: 255}, // class 1, blue
	}, 2)

	gen, err := augment.New(augment.KindNotRandom)
	require.NoError(t, err)
	flow, err := gen.FlowFromDirectory(dir, augment.FlowConfig{
		TargetSize: [2]int{4, 4},
		BatchSize:  1,
		ClassMode:  augment.ClassModeBinary,
	})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		x, y, err := flow.Next()
		require.NoError(t, err)
		red := x.At(0, 2, 2, 0)
		blue := x.At(0, 2, 2, 2)
		if y.Data()[0] == 0 {
			assert.Greater(t, red, blue, "class 0 images are red")
		} else {
			assert.Greater(t, blue, red, "class 1 images are blue")
		}
	}
}

func TestFlowCategoricalAndSparse(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, map[string]color.RGBA{
		"bird": {G: 255, A: 255},
		"cat":  {R: 255, A: 255},
		"dog":  {B: 255, A: 255},
	}, 2)

	gen, err := augment.New(augment.KindRandom)
	require.NoError(t, err)

	catFlow, err := gen.FlowFromDirectory(dir, augment.FlowConfig{
		TargetSize: [2]int{6, 6},
		BatchSize:  5,
		ClassMode:  augment.ClassModeCategorical,
	})
	require.NoError(t, err)

	_, y, err := catFlow.Next()
	require.NoError(t, err)
	require.True(t, y.Shape().Equal(tensor.Shape{5, 3}))
	for row := 0; row < 5; row++ {
		var sum float32
		for c := 0; c < 3; c++ {
			sum += y.At(row, c)
		}
		assert.Equal(t, float32(1), sum, "one-hot row %d", row)
	}

	sparseFlow, err := gen.FlowFromDirectory(dir, augment.FlowConfig{
		TargetSize: [2]int{6, 6},
		BatchSize:  5,
		ClassMode:  augment.ClassModeSparse,
	})
	require.NoError(t, err)

	_, y, err = sparseFlow.Next()
	require.NoError(t, err)
	require.True(t, y.Shape().Equal(tensor.Shape{5}))
	for _, label := range y.Data() {
		assert.Contains(t, []float32{0, 1, 2}, label)
	}
}

func TestFlowConfigErrors(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, map[string]color.RGBA{
		"bird": {G: 255, A: 255},
		"cat":  {R: 255, A: 255},
		"dog":  {B: 255, A: 255},
	}, 1)

	gen, err := augment.New(augment.KindNotRandom)
	require.NoError(t, err)

	_, err = gen.FlowFromDirectory(dir, augment.FlowConfig{ClassMode: "multilabel"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown class mode")

	// Binary needs exactly two classes.
	_, err = gen.FlowFromDirectory(dir, augment.FlowConfig{ClassMode: augment.ClassModeBinary})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly 2 classes")

	_, err = gen.FlowFromDirectory(filepath.Join(dir, "missing"), augment.FlowConfig{})
	require.Error(t, err)

	empty := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(empty, "cat"), 0o755))
	_, err = gen.FlowFromDirectory(empty, augment.FlowConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no images")
}

func TestFlowCyclesPastOnePass(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir, map[string]color.RGBA{
		"cat": {R: 255, A: 255},
		"dog": {B: 255, A: 255},
	}, 1)

	gen, err := augment.New(augment.KindVeryRandom)
	require.NoError(t, err)
	flow, err := gen.FlowFromDirectory(dir, augment.FlowConfig{
		TargetSize: [2]int{4, 4},
		BatchSize:  1,
		ClassMode:  augment.ClassModeBinary,
	})
	require.NoError(t, err)

	// 2 samples, 5 draws: the flow must wrap around.
	for i := 0; i < 5; i++ {
		x, _, err := flow.Next()
		require.NoError(t, err)
		require.True(t, x.Shape().Equal(tensor.Shape{1, 4, 4, 3}))
	}
}
