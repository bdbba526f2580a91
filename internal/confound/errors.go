package confound

import (
	"errors"
	"fmt"

	"github.com/KyungWonPark/Connectivity/internal/metrics"
)

var (
	// ErrFileAccess is returned when the confound file is missing, unreadable
	// or not a supported array container.
	ErrFileAccess = errors.New("confound: file access")
	// ErrKeyNotFound is returned when the requested regressor key is absent.
	ErrKeyNotFound = errors.New("confound: key not found")
	// ErrShape is returned when the selected array cannot be turned into a
	// time-by-regressor matrix.
	ErrShape = errors.New("confound: incompatible shape")
)

// LoadError carries the file and key of a failed load.
type LoadError struct {
	Path string
	Key  string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load confounds %s[%q]: %v", e.Path, e.Key, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// result maps a load error to its metrics label
func result(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, ErrKeyNotFound):
		return metrics.ResultKeyNotFound
	case errors.Is(err, ErrShape):
		return metrics.ResultShape
	default:
		return metrics.ResultFileAccess
	}
}
