package pretrained

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koaning/wallholla/tensor"
)

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"mobilenet", "vgg16", "vgg19", "xception"}, Names())
}

func TestNewUnknownModel(t *testing.T) {
	_, err := New("resnet50", [2]int{224, 224})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resnet50")
	assert.Contains(t, err.Error(), "mobilenet")
}

func TestNewImageTooSmall(t *testing.T) {
	_, err := New("vgg16", [2]int{16, 16})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too small")
}

func TestOutputShapes(t *testing.T) {
	tests := []struct {
		model    string
		channels int
	}{
		{"vgg16", 512},
		{"vgg19", 512},
		{"mobilenet", 1024},
		{"xception", 2048},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			b, err := New(tt.model, [2]int{32, 32})
			require.NoError(t, err)

			assert.Equal(t, tensor.Shape{32, 32, 3}, b.InputShape())
			// Five halvings reduce 32x32 to 1x1.
			assert.Equal(t, tensor.Shape{2, 1, 1, tt.channels}, b.OutputShape(2))
		})
	}
}

func TestOutputShapeRectangular(t *testing.T) {
	b, err := New("mobilenet", [2]int{64, 32})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{32, 64, 3}, b.InputShape())
	assert.Equal(t, tensor.Shape{1, 1, 2, 1024}, b.OutputShape(1))
}

func TestPredict(t *testing.T) {
	b, err := New("mobilenet", [2]int{32, 32})
	require.NoError(t, err)

	images := tensor.RandnSeeded(tensor.Shape{2, 32, 32, 3}, 7)
	features, err := b.Predict(images, 1)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 1, 1, 1024}, features.Shape())
}

func TestPredictDeterministic(t *testing.T) {
	images := tensor.RandnSeeded(tensor.Shape{1, 32, 32, 3}, 7)

	var runs [2][]float32
	for i := range runs {
		b, err := New("mobilenet", [2]int{32, 32})
		require.NoError(t, err)
		features, err := b.Predict(images, 0)
		require.NoError(t, err)
		runs[i] = features.Data()
	}
	assert.Equal(t, runs[0], runs[1])
}

func TestPredictShapeMismatch(t *testing.T) {
	b, err := New("mobilenet", [2]int{32, 32})
	require.NoError(t, err)

	_, err = b.Predict(tensor.Zeros(tensor.Shape{1, 16, 16, 3}), 0)
	require.Error(t, err)

	_, err = b.Predict(tensor.Zeros(tensor.Shape{16, 16, 3}), 0)
	require.Error(t, err)
}

func TestChannelsFirst(t *testing.T) {
	last, err := New("mobilenet", [2]int{32, 32})
	require.NoError(t, err)
	first, err := New("mobilenet", [2]int{32, 32}, WithDataFormat(ChannelsFirst))
	require.NoError(t, err)

	assert.Equal(t, tensor.Shape{3, 32, 32}, first.InputShape())
	assert.Equal(t, tensor.Shape{1, 1024, 1, 1}, first.OutputShape(1))

	images := tensor.RandnSeeded(tensor.Shape{1, 32, 32, 3}, 7)
	want, err := last.Predict(images, 0)
	require.NoError(t, err)

	got, err := first.Predict(images.Permute(0, 3, 1, 2), 0)
	require.NoError(t, err)
	assert.Equal(t, want.Data(), got.Permute(0, 2, 3, 1).Data())
}

func TestSaveLoadWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mobilenet.wha")

	b, err := New("mobilenet", [2]int{32, 32})
	require.NoError(t, err)
	require.NoError(t, b.SaveWeights(path))

	other, err := New("mobilenet", [2]int{32, 32}, WithSeed(99))
	require.NoError(t, err)
	require.NoError(t, other.LoadWeights(path))

	images := tensor.RandnSeeded(tensor.Shape{1, 32, 32, 3}, 7)
	want, err := b.Predict(images, 0)
	require.NoError(t, err)
	got, err := other.Predict(images, 0)
	require.NoError(t, err)
	assert.Equal(t, want.Data(), got.Data())
}

func TestLoadWeightsMissingFile(t *testing.T) {
	b, err := New("vgg16", [2]int{32, 32})
	require.NoError(t, err)
	require.Error(t, b.LoadWeights(filepath.Join(t.TempDir(), "nope.wha")))
}
