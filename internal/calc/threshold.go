package calc

import (
	"fmt"
	"math"

	"github.com/gonum/matrix/mat64"
)

func absThreshold(inputMat *mat64.Dense, outputMat *mat64.Dense, thr float64, sub float64, index int) {
	_, inputCols := inputMat.Dims()

	for t := 0; t < inputCols; t++ {
		value := inputMat.At(index, t)
		if math.Abs(value) <= thr {
			value = sub
		}

		outputMat.Set(index, t, value)
	}
}

// AbsThreshold keeps values whose magnitude exceeds thr and replaces the rest
// with sub
func (p *PipeLine) AbsThreshold(inputMat *mat64.Dense, outputMat *mat64.Dense, thr float64, sub float64) error {
	inputRows, inputCols := inputMat.Dims()
	outputRows, outputCols := outputMat.Dims()

	if inputRows != outputRows || inputCols != outputCols {
		return fmt.Errorf("%w: AbsThreshold input dims: %d by %d when output dims: %d by %d", ErrDims, inputRows, inputCols, outputRows, outputCols)
	}

	thr = math.Abs(thr)
	p.ForEach(inputRows, func(index int) {
		absThreshold(inputMat, outputMat, thr, sub, index)
	})

	return nil
}
