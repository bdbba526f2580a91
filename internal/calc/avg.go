package calc

import (
	"fmt"

	"github.com/gonum/matrix/mat64"
)

func avg(inputMat *mat64.Dense, outputMat *mat64.Dense, div float64, index int) {
	_, inputCols := inputMat.Dims()

	for t := 0; t < inputCols; t++ {
		value := inputMat.At(index, t) / div
		outputMat.Set(index, t, value)
	}
}

// Avg does averaging
func (p *PipeLine) Avg(inputMat *mat64.Dense, outputMat *mat64.Dense, div float64) error {
	inputRows, inputCols := inputMat.Dims()
	outputRows, outputCols := outputMat.Dims()

	if inputRows != outputRows || inputCols != outputCols {
		return fmt.Errorf("%w: Avg input dims: %d by %d when output dims: %d by %d", ErrDims, inputRows, inputCols, outputRows, outputCols)
	}
	if div == 0 {
		return fmt.Errorf("calc: Avg divisor is zero")
	}

	p.ForEach(inputRows, func(index int) {
		avg(inputMat, outputMat, div, index)
	})

	return nil
}
