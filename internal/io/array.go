package io

import (
	"errors"
	"fmt"

	"github.com/gonum/matrix/mat64"
)

// ErrRank is returned when an array cannot be viewed as a matrix
var ErrRank = errors.New("io: array is not two-dimensional")

// Array is an N-dimensional float64 array stored in row-major order
type Array struct {
	Shape []int
	Data  []float64
}

// Rank returns the number of axes
func (a *Array) Rank() int {
	return len(a.Shape)
}

// Len returns the number of elements implied by Shape
func (a *Array) Len() int {
	return numElements(a.Shape)
}

// Dense wraps a rank-2 array as mat64 matrix. The matrix shares Data.
func (a *Array) Dense() (*mat64.Dense, error) {
	if len(a.Shape) != 2 {
		return nil, fmt.Errorf("%w: shape %v", ErrRank, a.Shape)
	}
	if a.Shape[0] == 0 || a.Shape[1] == 0 {
		return nil, fmt.Errorf("%w: empty shape %v", ErrRank, a.Shape)
	}

	return mat64.NewDense(a.Shape[0], a.Shape[1], a.Data), nil
}

// ArrayOf copies a mat64 matrix into a rank-2 Array
func ArrayOf(matrix *mat64.Dense) *Array {
	rows, cols := matrix.Dims()
	return &Array{
		Shape: []int{rows, cols},
		Data:  denseData(matrix),
	}
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// denseData returns the elements of matrix in row-major order, copying when
// the backing slice is strided.
func denseData(matrix *mat64.Dense) []float64 {
	rows, cols := matrix.Dims()
	raw := matrix.RawMatrix()
	if raw.Stride == cols {
		return raw.Data[:rows*cols]
	}

	data := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		data = append(data, matrix.RawRowView(i)...)
	}
	return data
}

// rowMajor reorders column-major (Fortran order) data into row-major order
func rowMajor(shape []int, data []float64) []float64 {
	if len(shape) < 2 {
		return data
	}

	// strides of the column-major layout
	fStride := make([]int, len(shape))
	s := 1
	for i := range shape {
		fStride[i] = s
		s *= shape[i]
	}

	out := make([]float64, len(data))
	index := make([]int, len(shape))
	for pos := range out {
		offset := 0
		for i, v := range index {
			offset += v * fStride[i]
		}
		out[pos] = data[offset]

		// advance the row-major multi-index, last axis fastest
		for axis := len(shape) - 1; axis >= 0; axis-- {
			index[axis]++
			if index[axis] < shape[axis] {
				break
			}
			index[axis] = 0
		}
	}

	return out
}
