package calc

import (
	"math"

	"github.com/gonum/matrix/mat64"
)

// SymCheck checks symmetry up to pre
func (p *PipeLine) SymCheck(matrix *mat64.Dense, pre float64) bool {
	rows, cols := matrix.Dims()
	if rows != cols {
		return false
	}

	isSymm := make([]bool, rows)
	tol := math.Abs(pre)

	p.ForEach(rows, func(index int) {
		isSymm[index] = true
		for i := index; i < cols; i++ {
			if math.Abs(matrix.At(index, i)-matrix.At(i, index)) > tol {
				isSymm[index] = false
				break
			}
		}
	})

	symm := true
	for i := 0; i < rows; i++ {
		symm = symm && isSymm[i]
	}

	return symm
}
