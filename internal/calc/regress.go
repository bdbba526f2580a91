package calc

import (
	"errors"
	"fmt"
	"math"

	"github.com/gonum/matrix"
	"github.com/gonum/matrix/mat64"
)

// ErrSingular is returned when the confound design cannot be solved
var ErrSingular = errors.New("calc: singular confound design")

// Regress removes the least-squares fit of designMat, plus an intercept, from
// every row of seriesMat. seriesMat is series by time, designMat is time by
// regressor. outputMat may be seriesMat itself.
func (p *PipeLine) Regress(seriesMat *mat64.Dense, designMat *mat64.Dense, outputMat *mat64.Dense) error {
	rows, cols := seriesMat.Dims()
	designRows, designCols := designMat.Dims()
	outputRows, outputCols := outputMat.Dims()

	if designRows != cols {
		return fmt.Errorf("%w: Regress series have %d frames but design has %d rows", ErrDims, cols, designRows)
	}
	if outputRows != rows || outputCols != cols {
		return fmt.Errorf("%w: Regress input is %d by %d but output is %d by %d", ErrDims, rows, cols, outputRows, outputCols)
	}

	numReg := designCols + 1
	if numReg >= cols {
		return fmt.Errorf("%w: %d regressors for %d frames", ErrSingular, numReg, cols)
	}

	design := mat64.NewDense(cols, numReg, nil)
	for t := 0; t < cols; t++ {
		design.Set(t, 0, 1)
		for k := 0; k < designCols; k++ {
			design.Set(t, k+1, designMat.At(t, k))
		}
	}

	// beta is regressor by series
	var beta mat64.Dense
	if err := beta.Solve(design, seriesMat.T()); err != nil {
		var cond matrix.Condition
		if !errors.As(err, &cond) {
			return fmt.Errorf("calc: regress: %w", err)
		}
		p.logger.Warn("ill-conditioned confound design", "condition", float64(cond))
	}

	for k := 0; k < numReg; k++ {
		for _, v := range beta.RawRowView(k) {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return ErrSingular
			}
		}
	}

	p.ForEach(rows, func(index int) {
		for t := 0; t < cols; t++ {
			var fit float64
			for k := 0; k < numReg; k++ {
				fit += design.At(t, k) * beta.At(k, index)
			}
			outputMat.Set(index, t, seriesMat.At(index, t)-fit)
		}
	})

	return nil
}
