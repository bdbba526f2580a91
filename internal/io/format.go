package io

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gonum/matrix/mat64"
)

// Format is a matrix output format
type Format string

// Supported output formats
const (
	FormatNpy Format = "npy"
	FormatCSV Format = "csv"
	FormatBin Format = "bin"
)

// ParseFormat accepts npy, csv or bin, case-insensitive
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(s, "."))); f {
	case FormatNpy, FormatCSV, FormatBin:
		return f, nil
	}
	return "", fmt.Errorf("io: unknown output format %q", s)
}

// FormatOf picks the format from a file extension
func FormatOf(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// Ext returns the file extension including the dot
func (f Format) Ext() string {
	return "." + string(f)
}

// WriteMatrix writes matrix to path in the given format
func WriteMatrix(path string, f Format, matrix *mat64.Dense) error {
	switch f {
	case FormatNpy:
		return Mat64toNpy(path, matrix)
	case FormatCSV:
		return Mat64toCSV(path, matrix)
	case FormatBin:
		return Mat64toBin(path, matrix)
	}
	return fmt.Errorf("io: unknown output format %q", string(f))
}
