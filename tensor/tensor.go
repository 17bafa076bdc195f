// Copyright 2025 The Wallholla Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor implements a dense float32 tensor for the Wallholla
// helpers.
//
// Every model in this repository runs a single synchronous CPU path, so
// the tensor is deliberately small: contiguous float32 storage, row-major
// strides, and the handful of operations the layer code needs (MatMul,
// broadcast Add, Transpose, Permute, Reshape and elementwise Apply).
package tensor

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
)

// Shape describes the dimensions of a tensor.
type Shape []int

// NumElements returns the total number of elements for this shape.
func (s Shape) NumElements() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// Equal reports whether two shapes have identical dimensions.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i, d := range s {
		if d != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	out := make(Shape, len(s))
	copy(out, s)
	return out
}

// String renders the shape as "[2 3 4]".
func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = fmt.Sprintf("%d", d)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Tensor is a dense, row-major float32 tensor.
//
// Example:
//
//	x, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
//	y := x.MatMul(x)
type Tensor struct {
	shape Shape
	data  []float32
}

// New creates a zero-filled tensor with the given shape.
//
// Panics if any dimension is non-positive; use FromSlice for fallible
// construction from external data.
func New(shape Shape) *Tensor {
	for _, d := range shape {
		if d <= 0 {
			panic(fmt.Sprintf("tensor.New: invalid dimension in shape %v", shape))
		}
	}
	return &Tensor{
		shape: shape.Clone(),
		data:  make([]float32, shape.NumElements()),
	}
}

// FromSlice creates a tensor that copies the given data.
//
// Returns an error when the data length does not match the shape.
func FromSlice(data []float32, shape Shape) (*Tensor, error) {
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("tensor: data length %d does not match shape %v (%d elements)",
			len(data), shape, shape.NumElements())
	}
	t := New(shape)
	copy(t.data, data)
	return t, nil
}

// Zeros creates a tensor filled with zeros.
func Zeros(shape Shape) *Tensor {
	return New(shape)
}

// Ones creates a tensor filled with ones.
func Ones(shape Shape) *Tensor {
	return Full(shape, 1)
}

// Full creates a tensor filled with the given value.
func Full(shape Shape, value float32) *Tensor {
	t := New(shape)
	for i := range t.data {
		t.data[i] = value
	}
	return t
}

// Randn creates a tensor with values drawn from N(0, 1).
func Randn(shape Shape) *Tensor {
	t := New(shape)
	for i := range t.data {
		t.data[i] = float32(rand.NormFloat64())
	}
	return t
}

// RandnSeeded creates a tensor with N(0, 1) values from a seeded source.
//
// Used wherever reproducible initialization matters (frozen backbones,
// tests).
func RandnSeeded(shape Shape, seed int64) *Tensor {
	rng := rand.New(rand.NewSource(seed))
	t := New(shape)
	for i := range t.data {
		t.data[i] = float32(rng.NormFloat64())
	}
	return t
}

// Shape returns the tensor shape. The returned slice must not be mutated.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// Data returns the underlying storage. Mutations are visible to the tensor.
func (t *Tensor) Data() []float32 {
	return t.data
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return len(t.data)
}

// Clone returns a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	out := New(t.shape)
	copy(out.data, t.data)
	return out
}

// Reshape returns a copy of the tensor with a new shape.
//
// Panics when the element counts differ; callers control both shapes.
func (t *Tensor) Reshape(dims ...int) *Tensor {
	shape := Shape(dims)
	if shape.NumElements() != len(t.data) {
		panic(fmt.Sprintf("tensor.Reshape: cannot reshape %v into %v", t.shape, shape))
	}
	out := &Tensor{shape: shape.Clone(), data: make([]float32, len(t.data))}
	copy(out.data, t.data)
	return out
}

// Squeeze removes all dimensions of size 1.
//
// A tensor whose every dimension is 1 squeezes to shape [1].
func (t *Tensor) Squeeze() *Tensor {
	shape := Shape{}
	for _, d := range t.shape {
		if d != 1 {
			shape = append(shape, d)
		}
	}
	if len(shape) == 0 {
		shape = Shape{1}
	}
	return t.Reshape(shape...)
}

// strides returns row-major strides for the tensor shape.
func (t *Tensor) strides() []int {
	strides := make([]int, len(t.shape))
	acc := 1
	for i := len(t.shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= t.shape[i]
	}
	return strides
}

// offset converts multi-dimensional indices to a flat offset.
func (t *Tensor) offset(indices ...int) int {
	if len(indices) != len(t.shape) {
		panic(fmt.Sprintf("tensor: got %d indices for shape %v", len(indices), t.shape))
	}
	strides := t.strides()
	off := 0
	for i, idx := range indices {
		if idx < 0 || idx >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index %d out of range for dimension %d of shape %v", idx, i, t.shape))
		}
		off += idx * strides[i]
	}
	return off
}

// At returns the element at the given indices.
func (t *Tensor) At(indices ...int) float32 {
	return t.data[t.offset(indices...)]
}

// Set writes the element at the given indices.
func (t *Tensor) Set(value float32, indices ...int) {
	t.data[t.offset(indices...)] = value
}

// Transpose returns the transpose of a 2D tensor.
func (t *Tensor) Transpose() *Tensor {
	if len(t.shape) != 2 {
		panic(fmt.Sprintf("tensor.Transpose: expected 2D tensor, got shape %v", t.shape))
	}
	rows, cols := t.shape[0], t.shape[1]
	out := New(Shape{cols, rows})
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out.data[c*rows+r] = t.data[r*cols+c]
		}
	}
	return out
}

// Permute returns a copy of the tensor with its axes reordered.
//
// perm must be a permutation of [0, ndim). Permute(0, 2, 3, 1) converts a
// NCHW tensor to NHWC.
func (t *Tensor) Permute(perm ...int) *Tensor {
	if len(perm) != len(t.shape) {
		panic(fmt.Sprintf("tensor.Permute: got %d axes for shape %v", len(perm), t.shape))
	}
	seen := make([]bool, len(perm))
	outShape := make(Shape, len(perm))
	for i, p := range perm {
		if p < 0 || p >= len(perm) || seen[p] {
			panic(fmt.Sprintf("tensor.Permute: invalid permutation %v", perm))
		}
		seen[p] = true
		outShape[i] = t.shape[p]
	}

	inStrides := t.strides()
	out := New(outShape)
	outStrides := out.strides()

	indices := make([]int, len(outShape))
	for flat := 0; flat < len(out.data); flat++ {
		rem := flat
		for i := range outShape {
			indices[i] = rem / outStrides[i]
			rem %= outStrides[i]
		}
		src := 0
		for i, p := range perm {
			src += indices[i] * inStrides[p]
		}
		out.data[flat] = t.data[src]
	}
	return out
}

// MatMul computes the matrix product of two 2D tensors.
//
// [m, k] @ [k, n] -> [m, n].
func (t *Tensor) MatMul(other *Tensor) *Tensor {
	if len(t.shape) != 2 || len(other.shape) != 2 {
		panic(fmt.Sprintf("tensor.MatMul: expected 2D tensors, got %v and %v", t.shape, other.shape))
	}
	m, k := t.shape[0], t.shape[1]
	k2, n := other.shape[0], other.shape[1]
	if k != k2 {
		panic(fmt.Sprintf("tensor.MatMul: inner dimensions differ: %v vs %v", t.shape, other.shape))
	}

	out := New(Shape{m, n})
	for i := 0; i < m; i++ {
		rowOut := out.data[i*n : (i+1)*n]
		rowIn := t.data[i*k : (i+1)*k]
		for kk := 0; kk < k; kk++ {
			a := rowIn[kk]
			if a == 0 {
				continue
			}
			rowB := other.data[kk*n : (kk+1)*n]
			for j := 0; j < n; j++ {
				rowOut[j] += a * rowB[j]
			}
		}
	}
	return out
}

// Add returns the elementwise sum of two tensors.
//
// Shapes must either match exactly, or other must match the trailing
// dimensions of t (broadcast over leading dimensions, how biases are
// applied).
func (t *Tensor) Add(other *Tensor) *Tensor {
	if t.shape.Equal(other.shape) {
		out := t.Clone()
		for i, v := range other.data {
			out.data[i] += v
		}
		return out
	}

	// Trailing-dimension broadcast.
	offset := len(t.shape) - len(other.shape)
	if offset > 0 {
		tail := Shape(t.shape[offset:])
		if tail.Equal(other.shape) {
			out := t.Clone()
			n := len(other.data)
			for i := range out.data {
				out.data[i] += other.data[i%n]
			}
			return out
		}
	}
	panic(fmt.Sprintf("tensor.Add: cannot broadcast %v onto %v", other.shape, t.shape))
}

// Sub returns the elementwise difference of two equally shaped tensors.
func (t *Tensor) Sub(other *Tensor) *Tensor {
	if !t.shape.Equal(other.shape) {
		panic(fmt.Sprintf("tensor.Sub: shape mismatch: %v vs %v", t.shape, other.shape))
	}
	out := t.Clone()
	for i, v := range other.data {
		out.data[i] -= v
	}
	return out
}

// Mul returns the elementwise product of two equally shaped tensors.
func (t *Tensor) Mul(other *Tensor) *Tensor {
	if !t.shape.Equal(other.shape) {
		panic(fmt.Sprintf("tensor.Mul: shape mismatch: %v vs %v", t.shape, other.shape))
	}
	out := t.Clone()
	for i, v := range other.data {
		out.data[i] *= v
	}
	return out
}

// Scale returns the tensor multiplied by a scalar.
func (t *Tensor) Scale(value float32) *Tensor {
	out := t.Clone()
	for i := range out.data {
		out.data[i] *= value
	}
	return out
}

// AddScalar returns the tensor with a scalar added to every element.
func (t *Tensor) AddScalar(value float32) *Tensor {
	out := t.Clone()
	for i := range out.data {
		out.data[i] += value
	}
	return out
}

// Apply returns a new tensor with fn applied to every element.
func (t *Tensor) Apply(fn func(float32) float32) *Tensor {
	out := t.Clone()
	for i, v := range out.data {
		out.data[i] = fn(v)
	}
	return out
}

// Sum returns the sum of all elements as float64 to limit rounding drift.
func (t *Tensor) Sum() float64 {
	var acc float64
	for _, v := range t.data {
		acc += float64(v)
	}
	return acc
}

// Max returns the largest element.
func (t *Tensor) Max() float32 {
	max := float32(math.Inf(-1))
	for _, v := range t.data {
		if v > max {
			max = v
		}
	}
	return max
}
