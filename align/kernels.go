package align

import (
	"fmt"
	"math"
)

// KernelKind selects the robust kernel used to down-weight outlier pairings
type KernelKind string

const (
	// KernelNone disables robust weighting (identity)
	KernelNone KernelKind = "none"
	// KernelHuber is quadratic below the parameter and linear above it
	KernelHuber KernelKind = "huber"
	// KernelGemanMcClure saturates hard for gross outliers
	KernelGemanMcClure KernelKind = "gemanmcclure"
)

// RobustSqrtWeightFunc maps a squared residual norm to the square root of the
// IRLS down-weighting factor. The solver multiplies this scalar into the
// pairing weight so the weighted residual and Jacobian are scaled together.
type RobustSqrtWeightFunc func(sqNorm float64) float64

// NewRobustKernel builds the weighting function for the given kernel kind.
// KernelNone (and the empty kind) return a nil function, meaning identity
// weighting. The parameter is the kernel scale, in residual units.
func NewRobustKernel(kind KernelKind, param float64) (RobustSqrtWeightFunc, error) {
	switch kind {
	case KernelNone, "":
		return nil, nil

	case KernelHuber:
		if param <= 0 {
			return nil, fmt.Errorf("huber kernel requires a positive parameter, got %g", param)
		}
		k2 := param * param
		return func(sqNorm float64) float64 {
			if sqNorm <= k2 {
				return 1
			}
			// sqrt of the IRLS weight k/|r|
			return math.Sqrt(param / math.Sqrt(sqNorm))
		}, nil

	case KernelGemanMcClure:
		if param <= 0 {
			return nil, fmt.Errorf("geman-mcclure kernel requires a positive parameter, got %g", param)
		}
		c2 := param * param
		return func(sqNorm float64) float64 {
			// sqrt of the IRLS weight (c^2/(c^2+r^2))^2
			return c2 / (c2 + sqNorm)
		}, nil

	default:
		return nil, fmt.Errorf("unknown robust kernel %q", kind)
	}
}
