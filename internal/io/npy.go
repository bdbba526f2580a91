package io

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gonum/matrix/mat64"
	"github.com/kshedden/gonpy"
)

// ErrDtype is returned for npy payloads that are not numeric
var ErrDtype = errors.New("io: unsupported npy dtype")

// Mat64toNpy writes mat64 matrix to Python numpy npy binary file
func Mat64toNpy(path string, matrix *mat64.Dense) error {
	rows, cols := matrix.Dims()

	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return fmt.Errorf("[Mat64toNpy] failed to open %s: %w", path, err)
	}
	w.Shape = []int{rows, cols}
	w.Version = 2
	if err := w.WriteFloat64(denseData(matrix)); err != nil {
		return fmt.Errorf("[Mat64toNpy] failed to write %s: %w", path, err)
	}

	return nil
}

// NpytoMat64 reads Python numpy npy binary file as mat64 matrix.
// One-dimensional arrays are read as a single column.
func NpytoMat64(path string) (*mat64.Dense, error) {
	a, err := ReadNpy(path)
	if err != nil {
		return nil, err
	}
	if a.Rank() == 1 {
		a.Shape = []int{a.Shape[0], 1}
	}

	matrix, err := a.Dense()
	if err != nil {
		return nil, fmt.Errorf("[NpytoMat64] %s: %w", path, err)
	}
	return matrix, nil
}

// ReadNpy reads a npy file of any rank
func ReadNpy(path string) (*Array, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	a, err := decodeNpy(f)
	if err != nil {
		return nil, fmt.Errorf("[ReadNpy] %s: %w", path, err)
	}
	return a, nil
}

func decodeNpy(r io.Reader) (*Array, error) {
	rdr, err := gonpy.NewReader(r)
	if err != nil {
		return nil, err
	}

	shape := append([]int(nil), rdr.Shape...)
	var data []float64

	switch strings.TrimLeft(rdr.Dtype, "<>|=") {
	case "f8":
		data, err = rdr.GetFloat64()
	case "f4":
		data, err = widen(rdr.GetFloat32())
	case "i8":
		data, err = widen(rdr.GetInt64())
	case "i4":
		data, err = widen(rdr.GetInt32())
	case "i2":
		data, err = widen(rdr.GetInt16())
	case "i1":
		data, err = widen(rdr.GetInt8())
	case "u8":
		data, err = widen(rdr.GetUint64())
	case "u4":
		data, err = widen(rdr.GetUint32())
	case "u2":
		data, err = widen(rdr.GetUint16())
	case "u1":
		data, err = widen(rdr.GetUint8())
	default:
		return nil, fmt.Errorf("%w: %q", ErrDtype, rdr.Dtype)
	}
	if err != nil {
		return nil, err
	}

	if len(data) != numElements(shape) {
		return nil, fmt.Errorf("io: npy payload has %d elements, shape %v wants %d", len(data), shape, numElements(shape))
	}
	if rdr.ColumnMajor {
		data = rowMajor(shape, data)
	}

	return &Array{Shape: shape, Data: data}, nil
}

type number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32
}

// widen converts a decoded payload to float64
func widen[T number](raw []T, err error) ([]float64, error) {
	if err != nil {
		return nil, err
	}
	data := make([]float64, len(raw))
	for i, v := range raw {
		data[i] = float64(v)
	}
	return data, nil
}

func encodeNpy(w io.WriteCloser, a *Array) error {
	wtr, err := gonpy.NewWriter(w)
	if err != nil {
		return err
	}
	wtr.Shape = a.Shape
	return wtr.WriteFloat64(a.Data)
}

// nopWriteCloser lets gonpy write into a zip member, which has no Close
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
