package calc

import (
	"fmt"
	"math"

	"github.com/gonum/matrix/mat64"
)

func getStat(timeSeriesMat *mat64.Dense, stats []statistic, index int) {
	values := timeSeriesMat.RawRowView(index)

	var accVal float64
	for _, v := range values {
		accVal += v
	}
	avgVal := accVal / float64(len(values))

	var accSqrDev float64
	for _, v := range values {
		accSqrDev += (v - avgVal) * (v - avgVal)
	}

	stats[index].avg = avgVal
	stats[index].std = math.Sqrt(accSqrDev / float64(len(values)))
}

func (p *PipeLine) stats(timeSeriesMat *mat64.Dense) []statistic {
	rows, _ := timeSeriesMat.Dims()
	stats := make([]statistic, rows)

	p.ForEach(rows, func(index int) {
		getStat(timeSeriesMat, stats, index)
	})

	return stats
}

func pearson(timeSeriesMat *mat64.Dense, pearsonMat *mat64.Dense, stats []statistic, from int) {
	inputRows, inputCols := timeSeriesMat.Dims()
	x := timeSeriesMat.RawRowView(from)

	for to := from; to < inputRows; to++ {
		var value float64

		switch {
		case to == from:
			value = 1
		case stats[from].std == 0 || stats[to].std == 0:
			value = 0
		default:
			y := timeSeriesMat.RawRowView(to)

			var accProd float64
			for t := 0; t < inputCols; t++ {
				accProd += (x[t] - stats[from].avg) * (y[t] - stats[to].avg)
			}

			cov := accProd / float64(inputCols)
			value = math.Max(-1, math.Min(1, cov/(stats[from].std*stats[to].std)))
		}

		pearsonMat.Set(from, to, value)
		pearsonMat.Set(to, from, value)
	}
}

// Pearson does Pearson's correlation calculation between the rows of
// timeSeriesMat. Rows with zero variance correlate 0 with every other row.
func (p *PipeLine) Pearson(timeSeriesMat *mat64.Dense, outputMat *mat64.Dense) error {
	inputRows, inputCols := timeSeriesMat.Dims()
	outputRows, outputCols := outputMat.Dims()

	if outputRows != inputRows || outputCols != inputRows {
		return fmt.Errorf("%w: Pearson input is %d by %d but output is %d by %d", ErrDims, inputRows, inputCols, outputRows, outputCols)
	}

	stats := p.stats(timeSeriesMat)

	p.ForEach(inputRows, func(from int) {
		pearson(timeSeriesMat, outputMat, stats, from)
	})

	return nil
}
