package io

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned for files that are not a known array container
	ErrUnsupportedFormat = errors.New("io: unsupported array container")
	// ErrNoKey is returned by Get for keys the container does not hold
	ErrNoKey = errors.New("io: no such key")
)

var (
	zipMagic  = []byte("PK\x03\x04")
	npyMagic  = []byte("\x93NUMPY")
	hdf5Magic = []byte("\x89HDF\r\n\x1a\n")
)

// StructuredArrayFile is a file holding named numeric arrays
type StructuredArrayFile interface {
	Keys() []string
	Get(key string) (*Array, error)
	Close() error
}

// OpenArrayFile opens path as npz, npy or hdf5 depending on its magic bytes
func OpenArrayFile(path string) (StructuredArrayFile, error) {
	magic, err := readMagic(path, len(hdf5Magic))
	if err != nil {
		return nil, err
	}

	switch {
	case bytes.HasPrefix(magic, zipMagic):
		return OpenNpz(path)
	case bytes.HasPrefix(magic, npyMagic):
		return &npyFile{path: path, key: NpyKey(path)}, nil
	case bytes.HasPrefix(magic, hdf5Magic):
		return openHDF5(path)
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// NpyKey is the key a bare .npy file is exposed under: its file stem
func NpyKey(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".npy")
}

func readMagic(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:read], nil
}

// npyFile exposes a single .npy file as a one-key container
type npyFile struct {
	path string
	key  string
}

func (f *npyFile) Keys() []string {
	return []string{f.key}
}

func (f *npyFile) Get(key string) (*Array, error) {
	if key != f.key {
		return nil, fmt.Errorf("%w: %q", ErrNoKey, key)
	}
	return ReadNpy(f.path)
}

func (f *npyFile) Close() error { return nil }
