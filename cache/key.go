package cache

import (
	"fmt"
	"path/filepath"
)

// Key identifies one cached feature set: a dataset run through one
// augmentation generator and one pretrained backbone at a fixed image
// size and sample count.
type Key struct {
	Dataset   string
	Generator string
	Model     string
	NumImages int
	ImgSize   [2]int // width, height
}

func (k Key) base() string {
	return fmt.Sprintf("%s-%s-%s-%d-%dx%d",
		k.Dataset, k.Model, k.Generator, k.NumImages, k.ImgSize[0], k.ImgSize[1])
}

// Filenames returns the four archive names for this key, in order:
// train data, train labels, validation data, validation labels.
func (k Key) Filenames() [4]string {
	base := k.base()
	return [4]string{
		base + "-train-data.wha",
		base + "-train-label.wha",
		base + "-valid-data.wha",
		base + "-valid-label.wha",
	}
}

// Paths returns the four archive paths under dir, in Filenames order.
func (k Key) Paths(dir string) [4]string {
	names := k.Filenames()
	var paths [4]string
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths
}
