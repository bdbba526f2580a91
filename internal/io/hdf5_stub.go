//go:build !hdf5

package io

import "fmt"

func openHDF5(path string) (StructuredArrayFile, error) {
	return nil, fmt.Errorf("%w: %s is HDF5, rebuild with -tags hdf5", ErrUnsupportedFormat, path)
}
