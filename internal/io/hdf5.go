//go:build hdf5

package io

import (
	"fmt"

	"github.com/gonum/hdf5"
)

// hdf5File reads top-level datasets of an HDF5 file, which is also the
// layout of MATLAB v7.3 .mat files
type hdf5File struct {
	f    *hdf5.File
	keys []string
}

func openHDF5(path string) (StructuredArrayFile, error) {
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, fmt.Errorf("opening hdf5 file: %w", err)
	}

	n, err := f.NumObjects()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("listing hdf5 objects: %w", err)
	}

	h := &hdf5File{f: f}
	for i := uint(0); i < n; i++ {
		typ, err := f.ObjectTypeByIndex(i)
		if err != nil || typ != hdf5.H5G_DATASET {
			continue
		}
		name, err := f.ObjectNameByIndex(i)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("reading hdf5 object name: %w", err)
		}
		h.keys = append(h.keys, name)
	}

	return h, nil
}

func (h *hdf5File) Keys() []string {
	return append([]string(nil), h.keys...)
}

func (h *hdf5File) Get(key string) (*Array, error) {
	found := false
	for _, k := range h.keys {
		if k == key {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrNoKey, key)
	}

	ds, err := h.f.OpenDataset(key)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	space := ds.Space()
	defer space.Close()

	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, err
	}

	shape := make([]int, len(dims))
	for i, d := range dims {
		shape[i] = int(d)
	}

	data := make([]float64, numElements(shape))
	if err := ds.Read(&data); err != nil {
		return nil, fmt.Errorf("hdf5 dataset %s: %w", key, err)
	}

	return &Array{Shape: shape, Data: data}, nil
}

func (h *hdf5File) Close() error {
	return h.f.Close()
}
