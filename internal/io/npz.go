package io

import (
	"archive/zip"
	"fmt"
	"os"
	"sort"
	"strings"
)

// NpzFile is a numpy .npz archive: a zip of .npy members keyed by member name
type NpzFile struct {
	zr      *zip.ReadCloser
	members map[string]*zip.File
}

// OpenNpz opens an npz archive for reading
func OpenNpz(path string) (*NpzFile, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening npz archive: %w", err)
	}

	f := &NpzFile{
		zr:      zr,
		members: make(map[string]*zip.File),
	}
	for _, m := range zr.File {
		if !strings.HasSuffix(m.Name, ".npy") {
			continue
		}
		f.members[strings.TrimSuffix(m.Name, ".npy")] = m
	}

	return f, nil
}

// Keys returns member names without the .npy suffix, sorted
func (f *NpzFile) Keys() []string {
	keys := make([]string, 0, len(f.members))
	for k := range f.members {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get decodes the member bound to key
func (f *NpzFile) Get(key string) (*Array, error) {
	m, ok := f.members[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoKey, key)
	}

	rc, err := m.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	a, err := decodeNpy(rc)
	if err != nil {
		return nil, fmt.Errorf("npz member %s: %w", m.Name, err)
	}
	return a, nil
}

// Close releases the archive
func (f *NpzFile) Close() error {
	if f.zr != nil {
		err := f.zr.Close()
		f.zr = nil
		return err
	}
	return nil
}

// WriteNpz writes arrays as an uncompressed npz archive
func WriteNpz(path string, arrays map[string]*Array) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("[WriteNpz] failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	keys := make([]string, 0, len(arrays))
	for k := range arrays {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	zw := zip.NewWriter(out)
	for _, k := range keys {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: k + ".npy", Method: zip.Store})
		if err != nil {
			return err
		}
		if err := encodeNpy(nopWriteCloser{w}, arrays[k]); err != nil {
			return fmt.Errorf("[WriteNpz] member %s: %w", k, err)
		}
	}

	return zw.Close()
}
