// Package confound loads nuisance-regressor matrices from keyed array files.
//
// A confound file holds several named arrays (npz, npy, or HDF5 / MATLAB v7.3
// with the hdf5 build tag). Load selects one array by key and returns it as a
// time-major matrix: rows are frames, columns are regressors. Files written by
// MATLAB store the regressors as rows, hence the transpose by default.
package confound

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gonum/matrix/mat64"
	"github.com/hashicorp/go-hclog"

	arrayio "github.com/KyungWonPark/Connectivity/internal/io"
	"github.com/KyungWonPark/Connectivity/internal/logger"
	"github.com/KyungWonPark/Connectivity/internal/metrics"
)

// DefaultKey is the array key read when none is given.
const DefaultKey = "R"

// Loader reads one confound matrix per call and keeps no state between calls.
type Loader struct {
	Key       string
	Transpose bool

	logger  hclog.Logger
	metrics *metrics.Registry
}

// Option configures a Loader.
type Option func(*Loader)

// WithKey selects the array key.
func WithKey(key string) Option {
	return func(l *Loader) {
		l.Key = key
	}
}

// WithTranspose sets whether the stored array is transposed.
func WithTranspose(transpose bool) Option {
	return func(l *Loader) {
		l.Transpose = transpose
	}
}

// WithLogger sets the logger.
func WithLogger(lg hclog.Logger) Option {
	return func(l *Loader) {
		l.logger = lg
	}
}

// WithMetrics records every load on reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(l *Loader) {
		l.metrics = reg
	}
}

// New returns a Loader reading DefaultKey with transpose enabled.
func New(opts ...Option) *Loader {
	l := &Loader{
		Key:       DefaultKey,
		Transpose: true,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logger.OrNull(l.logger).Named("confound")
	return l
}

// Load reads the confound matrix at path with a one-off Loader.
func Load(path string, opts ...Option) (*mat64.Dense, error) {
	return New(opts...).Load(path)
}

// Load opens path, selects the array bound to l.Key and returns it, transposed
// when l.Transpose is set. The caller owns the returned matrix.
func (l *Loader) Load(path string) (*mat64.Dense, error) {
	start := time.Now()

	m, err := l.load(path)
	l.metrics.ObserveConfoundLoad(result(err), time.Since(start))
	if err != nil {
		l.logger.Debug("failed to load confounds", "path", path, "key", l.Key, "error", err)
		return nil, &LoadError{Path: path, Key: l.Key, Err: err}
	}

	rows, cols := m.Dims()
	l.logger.Debug("loaded confounds", "path", path, "key", l.Key, "frames", rows, "regressors", cols)
	return m, nil
}

func (l *Loader) load(path string) (*mat64.Dense, error) {
	f, err := arrayio.OpenArrayFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileAccess, err)
	}
	defer f.Close()

	keys := make(map[string]struct{})
	for _, k := range f.Keys() {
		keys[k] = struct{}{}
	}
	if _, ok := keys[l.Key]; !ok {
		return nil, fmt.Errorf("%w (available: %s)", ErrKeyNotFound, strings.Join(sortedKeys(keys), ", "))
	}

	a, err := f.Get(l.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileAccess, err)
	}

	return toMatrix(a, l.Transpose)
}

// toMatrix reduces a to two dimensions and applies the transpose.
// Rank-1 arrays become a single column when no transpose is asked for;
// higher ranks lose their size-1 axes.
func toMatrix(a *arrayio.Array, transpose bool) (*mat64.Dense, error) {
	shape := a.Shape

	switch {
	case len(shape) == 0:
		return nil, fmt.Errorf("%w: scalar array", ErrShape)
	case len(shape) == 1:
		if transpose {
			return nil, fmt.Errorf("%w: cannot transpose 1-d array of length %d", ErrShape, shape[0])
		}
		shape = []int{shape[0], 1}
	case len(shape) > 2:
		shape = squeeze(shape)
		if len(shape) != 2 {
			return nil, fmt.Errorf("%w: cannot reduce shape %v to two dimensions", ErrShape, a.Shape)
		}
	}

	if shape[0] == 0 || shape[1] == 0 {
		return nil, fmt.Errorf("%w: empty array of shape %v", ErrShape, a.Shape)
	}

	m := mat64.NewDense(shape[0], shape[1], a.Data)
	if transpose {
		return mat64.DenseCopyOf(m.T()), nil
	}
	return m, nil
}

func squeeze(shape []int) []int {
	out := make([]int, 0, len(shape))
	for _, d := range shape {
		if d != 1 {
			out = append(out, d)
		}
	}
	return out
}

// Keys lists the array keys held by the file at path.
func Keys(path string) ([]string, error) {
	f, err := arrayio.OpenArrayFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileAccess, err)
	}
	defer f.Close()

	keys := f.Keys()
	sort.Strings(keys)
	return keys, nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
