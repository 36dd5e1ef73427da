package runstat

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAllocationFailed  = errors.New("snapshot buffer allocation failed")
	ErrInvalidSize       = errors.New("snapshot source filled an invalid number of entries")
	ErrDuplicateIdentity = fmt.Errorf("%w: duplicate identity", ErrInvalidSize)
	ErrDegenerateWindow  = errors.New("zero-length sampling window")
	ErrCounterRegression = errors.New("runtime counter regression")
)

// Regression records one counter that decreased across the window.
type Regression struct {
	Identity Identity
	Name     string
	Start    uint64
	End      uint64
	Global   bool // the snapshot-wide total, Identity unused
}

// RegressionError lists every counter that went backwards in one interval.
type RegressionError struct {
	Regressions []Regression
}

func (e *RegressionError) Error() string {
	parts := make([]string, 0, len(e.Regressions))
	for _, r := range e.Regressions {
		label := r.Name
		if r.Global {
			label = "total runtime"
		} else if label == "" {
			label = fmt.Sprintf("#%d", r.Identity)
		}
		parts = append(parts, fmt.Sprintf("%s %d->%d", label, r.Start, r.End))
	}
	return fmt.Sprintf("%s: %s", ErrCounterRegression, strings.Join(parts, ", "))
}

func (e *RegressionError) Is(target error) bool { return target == ErrCounterRegression }

// Kind returns a short label for the error kinds of this package, used as
// a metric label and in log fields.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAllocationFailed):
		return "allocation_failed"
	case errors.Is(err, ErrDuplicateIdentity):
		return "duplicate_identity"
	case errors.Is(err, ErrInvalidSize):
		return "invalid_size"
	case errors.Is(err, ErrDegenerateWindow):
		return "degenerate_window"
	case errors.Is(err, ErrCounterRegression):
		return "counter_regression"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}
