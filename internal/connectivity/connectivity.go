// Package connectivity estimates functional connectivity matrices from
// region signals and averages them over a group.
package connectivity

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gonum/matrix/mat64"

	"github.com/KyungWonPark/Connectivity/internal/calc"
)

var (
	// ErrTooShort is returned for signals with fewer than two frames
	ErrTooShort = errors.New("connectivity: need at least two frames")

	// ErrEmpty is returned when averaging zero matrices
	ErrEmpty = errors.New("connectivity: no matrices to average")
)

// Correlation returns the region by region Pearson correlation of signals,
// which is time by region.
func Correlation(pl *calc.PipeLine, signals *mat64.Dense) (*mat64.Dense, error) {
	frames, regions := signals.Dims()
	if frames < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrTooShort, frames)
	}

	out := mat64.NewDense(regions, regions, nil)
	if err := pl.Pearson(mat64.DenseCopyOf(signals.T()), out); err != nil {
		return nil, err
	}
	return out, nil
}

// Post applies optional post-processing to a correlation matrix
type Post struct {
	// FisherZ maps r to atanh(r)
	FisherZ bool
	// Threshold, when set, zeroes entries whose magnitude is at or below it
	Threshold *float64
}

// Apply runs the configured steps in place
func (o Post) Apply(pl *calc.PipeLine, m *mat64.Dense) error {
	if o.Threshold != nil {
		if err := pl.AbsThreshold(m, m, *o.Threshold, 0); err != nil {
			return err
		}
	}
	if o.FisherZ {
		if err := pl.FisherZ(m, m); err != nil {
			return err
		}
	}
	return nil
}

// Accumulator sums same-shaped matrices for a group mean. It is safe for
// concurrent use.
type Accumulator struct {
	mu    sync.Mutex
	pl    *calc.PipeLine
	sum   *mat64.Dense
	count int
}

// NewAccumulator returns an empty accumulator
func NewAccumulator(pl *calc.PipeLine) *Accumulator {
	return &Accumulator{pl: pl}
}

// Add adds m to the running sum
func (a *Accumulator) Add(m *mat64.Dense) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sum == nil {
		rows, cols := m.Dims()
		a.sum = mat64.NewDense(rows, cols, nil)
	}
	if err := a.pl.Acc(m, a.sum); err != nil {
		return err
	}
	a.count++
	return nil
}

// Count returns the number of added matrices
func (a *Accumulator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Mean returns the element-wise mean of the added matrices
func (a *Accumulator) Mean() (*mat64.Dense, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.count == 0 {
		return nil, ErrEmpty
	}

	rows, cols := a.sum.Dims()
	out := mat64.NewDense(rows, cols, nil)
	if err := a.pl.Avg(a.sum, out, float64(a.count)); err != nil {
		return nil, err
	}
	return out, nil
}

// Mean averages mats
func Mean(pl *calc.PipeLine, mats []*mat64.Dense) (*mat64.Dense, error) {
	acc := NewAccumulator(pl)
	for _, m := range mats {
		if err := acc.Add(m); err != nil {
			return nil, err
		}
	}
	return acc.Mean()
}
