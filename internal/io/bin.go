package io

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/gonum/matrix/mat64"
)

// Mat64toBin writes the matrix as raw little-endian float64, row-major
func Mat64toBin(path string, matrix *mat64.Dense) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("[Mat64toBin] failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	w := bufio.NewWriter(file)
	if err := binary.Write(w, binary.LittleEndian, denseData(matrix)); err != nil {
		return fmt.Errorf("[Mat64toBin] failed to write %s: %w", path, err)
	}
	return w.Flush()
}
