package calc

import (
	"fmt"
	"math"

	"github.com/gonum/matrix/mat64"
)

// fisherClip keeps |r| below 1 so arctanh stays finite on the diagonal
const fisherClip = 1 - 1e-7

func fisherZ(inputMat *mat64.Dense, outputMat *mat64.Dense, index int) {
	_, inputCols := inputMat.Dims()

	for t := 0; t < inputCols; t++ {
		value := math.Max(-fisherClip, math.Min(fisherClip, inputMat.At(index, t)))
		outputMat.Set(index, t, math.Atanh(value))
	}
}

// FisherZ applies the Fisher z-transform (arctanh) to correlation values
func (p *PipeLine) FisherZ(inputMat *mat64.Dense, outputMat *mat64.Dense) error {
	inputRows, inputCols := inputMat.Dims()
	outputRows, outputCols := outputMat.Dims()

	if inputRows != outputRows || inputCols != outputCols {
		return fmt.Errorf("%w: FisherZ input dims: %d by %d when output dims: %d by %d", ErrDims, inputRows, inputCols, outputRows, outputCols)
	}

	p.ForEach(inputRows, func(index int) {
		fisherZ(inputMat, outputMat, index)
	})

	return nil
}
