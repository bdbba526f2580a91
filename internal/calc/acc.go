package calc

import (
	"fmt"

	"github.com/gonum/matrix/mat64"
)

func acc(inputMat *mat64.Dense, outputMat *mat64.Dense, index int) {
	_, inputCols := inputMat.Dims()

	for t := 0; t < inputCols; t++ {
		value := outputMat.At(index, t) + inputMat.At(index, t)
		outputMat.Set(index, t, value)
	}
}

// Acc does accumulation
func (p *PipeLine) Acc(inputMat *mat64.Dense, outputMat *mat64.Dense) error {
	inputRows, inputCols := inputMat.Dims()
	outputRows, outputCols := outputMat.Dims()

	if inputRows != outputRows || inputCols != outputCols {
		return fmt.Errorf("%w: Acc input dims: %d by %d when output dims: %d by %d", ErrDims, inputRows, inputCols, outputRows, outputCols)
	}

	p.ForEach(inputRows, func(index int) {
		acc(inputMat, outputMat, index)
	})

	return nil
}
