package calc

import (
	"fmt"

	"github.com/gonum/matrix/mat64"
)

func zScoring(inputMat *mat64.Dense, outputMat *mat64.Dense, stats []statistic, index int) {
	_, inputCols := inputMat.Dims()

	for t := 0; t < inputCols; t++ {
		var newValue float64
		if stats[index].std != 0 {
			newValue = (inputMat.At(index, t) - stats[index].avg) / stats[index].std
		}
		outputMat.Set(index, t, newValue)
	}
}

// ZScoring does z-scoring on each rows. Constant rows become zero.
func (p *PipeLine) ZScoring(inputMat *mat64.Dense, outputMat *mat64.Dense) error {
	inputRows, inputCols := inputMat.Dims()
	outputRows, outputCols := outputMat.Dims()

	if outputRows != inputRows || outputCols != inputCols {
		return fmt.Errorf("%w: ZScoring input is %d by %d but output is %d by %d", ErrDims, inputRows, inputCols, outputRows, outputCols)
	}

	stats := p.stats(inputMat)

	p.ForEach(inputRows, func(index int) {
		zScoring(inputMat, outputMat, stats, index)
	})

	return nil
}
