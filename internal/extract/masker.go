package extract

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/gonum/matrix/mat64"
	"github.com/hashicorp/go-hclog"

	"github.com/KyungWonPark/Connectivity/internal/calc"
	"github.com/KyungWonPark/Connectivity/internal/logger"
)

var (
	// ErrFrameMismatch is returned when confounds and image disagree on the
	// number of frames
	ErrFrameMismatch = errors.New("extract: confound rows do not match image frames")

	// ErrGridMismatch is returned when atlas and image are sampled on
	// different voxel grids
	ErrGridMismatch = errors.New("extract: atlas and image grids differ")

	// ErrEmptyAtlas is returned when an atlas has no non-zero label
	ErrEmptyAtlas = errors.New("extract: atlas has no labels")
)

// Signals holds one averaged time series per atlas region
type Signals struct {
	// Matrix is time by region
	Matrix *mat64.Dense
	// Labels[r] is the atlas label of column r
	Labels []int
}

type voxel struct {
	x, y, z int
}

// LabelsMasker averages an image over the regions of a label atlas
type LabelsMasker struct {
	Atlas       Volume
	Standardize bool

	pl      *calc.PipeLine
	labels  []int
	regions [][]voxel
	logger  hclog.Logger
}

// NewLabelsMasker indexes the non-zero labels of atlas. Labels are rounded
// to the nearest integer and ordered ascending.
func NewLabelsMasker(atlas Volume, pl *calc.PipeLine, standardize bool, lg hclog.Logger) (*LabelsMasker, error) {
	dims := atlas.Dims()

	byLabel := make(map[int][]voxel)
	for z := 0; z < dims[2]; z++ {
		for y := 0; y < dims[1]; y++ {
			for x := 0; x < dims[0]; x++ {
				label := int(math.Round(atlas.At(x, y, z, 0)))
				if label == 0 {
					continue
				}
				byLabel[label] = append(byLabel[label], voxel{x, y, z})
			}
		}
	}

	if len(byLabel) == 0 {
		return nil, ErrEmptyAtlas
	}

	m := &LabelsMasker{
		Atlas:       atlas,
		Standardize: standardize,
		pl:          pl,
		logger:      logger.OrNull(lg).Named("extract"),
	}

	for label := range byLabel {
		m.labels = append(m.labels, label)
	}
	sort.Ints(m.labels)

	m.regions = make([][]voxel, len(m.labels))
	for i, label := range m.labels {
		m.regions[i] = byLabel[label]
	}

	m.logger.Debug("indexed atlas", "grid", gridString(dims), "regions", len(m.labels))
	return m, nil
}

// Labels returns the region labels in column order
func (m *LabelsMasker) Labels() []int {
	out := make([]int, len(m.labels))
	copy(out, m.labels)
	return out
}

// Transform extracts region signals from img. When confounds is not nil it
// must be time by regressor; its fit plus an intercept is removed from every
// region before standardization.
func (m *LabelsMasker) Transform(img Volume, confounds *mat64.Dense) (*Signals, error) {
	imgDims := img.Dims()
	atlasDims := m.Atlas.Dims()

	if !sameGrid(imgDims, atlasDims) {
		return nil, fmt.Errorf("%w: image %s, atlas %s", ErrGridMismatch, gridString(imgDims), gridString(atlasDims))
	}

	frames := imgDims[3]
	if confounds != nil {
		if rows, _ := confounds.Dims(); rows != frames {
			return nil, fmt.Errorf("%w: %d confound rows, %d frames", ErrFrameMismatch, rows, frames)
		}
	}

	// region by time, so the calc kernels work on rows
	series := mat64.NewDense(len(m.regions), frames, nil)
	m.pl.ForEach(len(m.regions), func(index int) {
		row := series.RawRowView(index)
		region := m.regions[index]
		for t := 0; t < frames; t++ {
			var acc float64
			for _, v := range region {
				acc += img.At(v.x, v.y, v.z, t)
			}
			row[t] = acc / float64(len(region))
		}
	})

	if confounds != nil {
		if err := m.pl.Regress(series, confounds, series); err != nil {
			return nil, err
		}
	}

	if m.Standardize {
		if err := m.pl.ZScoring(series, series); err != nil {
			return nil, err
		}
	}

	m.logger.Trace("extracted signals", "frames", frames, "regions", len(m.regions), "cleaned", confounds != nil)

	return &Signals{
		Matrix: mat64.DenseCopyOf(series.T()),
		Labels: m.Labels(),
	}, nil
}
