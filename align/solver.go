package align

import (
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/mat"
)

// TermReason reports how a Gauss-Newton solve terminated. All three terminal
// reasons are successful returns; callers judge solution quality from the
// final cost.
type TermReason int

const (
	// TermRunning means the solve has not reached a terminal state
	TermRunning TermReason = iota
	// TermResidual means the aggregate residual norm reached the target
	TermResidual
	// TermStagnation means the pose increment fell below the minimum step
	TermStagnation
	// TermMaxIterations means the iteration budget ran out
	TermMaxIterations
)

func (t TermReason) String() string {
	switch t {
	case TermRunning:
		return "running"
	case TermResidual:
		return "residual"
	case TermStagnation:
		return "stagnation"
	case TermMaxIterations:
		return "max-iterations"
	}
	return "unknown"
}

// GNParams configures a Gauss-Newton solve
type GNParams struct {
	// LinearizationPoint is the starting pose. It is mandatory; GaussNewton
	// fails before any computation when it is nil.
	LinearizationPoint *Pose

	MaxIterations int     // inner-loop iteration budget
	MaxCost       float64 // stop once the residual norm is at or below this
	MinDelta      float64 // stop once the tangent increment norm is below this

	Kernel      KernelKind
	KernelParam float64

	Weights PairWeights

	// Verbose prints per-iteration diagnostics. It has no effect on the
	// iteration itself.
	Verbose bool
}

// DefaultGNParams returns the solver defaults used by the service
func DefaultGNParams() GNParams {
	return GNParams{
		MaxIterations: 30,
		MaxCost:       1e-8,
		MinDelta:      1e-10,
		Kernel:        KernelNone,
		KernelParam:   1,
		Weights:       DefaultPairWeights(),
	}
}

// GNResult is the caller-owned output slot of a Gauss-Newton solve
type GNResult struct {
	// Pose is the last accepted estimate
	Pose Pose
	// FinalCost is the residual norm at the last full evaluation
	FinalCost float64
	// Iterations counts completed residual evaluations
	Iterations int
	// Term records which stopping rule fired
	Term TermReason
	// Condition is the singular-value ratio of the normal matrix from the
	// last linear solve. A huge value flags a degenerate pairing geometry;
	// the solver does not regularize, it only reports.
	Condition float64
}

// GaussNewton refines the pose aligning the paired source primitives to
// their targets by minimizing the weighted, optionally robust-kernel
// modulated, sum of squared residuals. The pose state lives on SE(3):
// every update goes through the exponential map, composed on the right of
// the current estimate.
//
// Each iteration evaluates all pairings before testing the residual
// threshold, so one full evaluation pass always happens even when the
// starting pose is already within tolerance.
func GaussNewton(in *Pairings, params GNParams, result *GNResult) error {
	if params.LinearizationPoint == nil {
		return fmt.Errorf("gauss-newton solver requires a linearization point")
	}

	ptWeights, err := in.expandPointWeights()
	if err != nil {
		return fmt.Errorf("invalid point weight overrides: %w", err)
	}

	robust, err := NewRobustKernel(params.Kernel, params.KernelParam)
	if err != nil {
		return err
	}

	pose := *params.LinearizationPoint
	result.Pose = pose
	result.Term = TermRunning
	result.Iterations = 0

	h := mat.NewDense(6, 6, nil)
	grad := mat.NewVecDense(6, nil)

	for iter := 0; iter < params.MaxIterations; iter++ {
		dExp := pose.diffExp()

		h.Zero()
		grad.Zero()
		errNormSqr := 0.0

		accumulate := func(res []float64, jAmbient *mat.Dense, weight float64) {
			if robust != nil {
				sq := 0.0
				for _, v := range res {
					sq += v * v
				}
				weight *= robust(sq)
			}

			d := len(res)
			jl := mat.NewDense(d, 6, nil)
			jl.Mul(jAmbient, dExp)
			jl.Scale(weight, jl)

			e := mat.NewVecDense(d, nil)
			for i, v := range res {
				e.SetVec(i, weight*v)
			}
			errNormSqr += mat.Dot(e, e)

			var gi mat.VecDense
			gi.MulVec(jl.T(), e)
			grad.AddVec(grad, &gi)

			var hi mat.Dense
			hi.Mul(jl.T(), jl)
			h.Add(h, &hi)
		}

		for i, p := range in.PointPairs {
			w := params.Weights.PointPoint
			if ptWeights != nil {
				w = ptWeights[i]
			}
			res, j := errorPointToPoint(p, pose)
			accumulate(res, j, w)
		}
		for _, p := range in.PointLinePairs {
			res, j := errorPointToLine(p, pose)
			accumulate(res, j, params.Weights.PointLine)
		}
		for _, p := range in.LinePairs {
			res, j := errorLineToLine(p, pose)
			accumulate(res, j, params.Weights.LineLine)
		}
		for _, p := range in.PointPlanePairs {
			res, j := errorPointToPlane(p, pose)
			accumulate(res, j, params.Weights.PointPlane)
		}
		for _, p := range in.PlanePairs {
			res, j := errorPlaneToPlane(p, pose)
			accumulate(res, j, params.Weights.PlanePlane)
		}

		errNorm := math.Sqrt(errNormSqr)
		result.FinalCost = errNorm
		result.Iterations = iter + 1

		if errNorm <= params.MaxCost {
			result.Term = TermResidual
			break
		}

		// Solve H*delta = -g. SVD least-squares tolerates a rank-deficient
		// normal matrix; the increment quality degrades instead of the
		// solve failing.
		var svd mat.SVD
		if !svd.Factorize(h, mat.SVDFull) {
			log.Printf("[align GN] SVD factorization failed at iteration %d", iter)
			result.Term = TermStagnation
			break
		}
		vals := svd.Values(nil)
		if vals[len(vals)-1] > 0 {
			result.Condition = vals[0] / vals[len(vals)-1]
		} else {
			result.Condition = math.Inf(1)
		}

		rank := 0
		tol := 1e-12 * vals[0]
		for _, v := range vals {
			if v > tol {
				rank++
			}
		}
		if rank == 0 {
			result.Term = TermStagnation
			break
		}

		negG := mat.NewVecDense(6, nil)
		negG.ScaleVec(-1, grad)
		var deltaVec mat.VecDense
		svd.SolveVecTo(&deltaVec, negG, rank)

		var delta [6]float64
		deltaNormSqr := 0.0
		for i := 0; i < 6; i++ {
			delta[i] = deltaVec.AtVec(i)
			deltaNormSqr += delta[i] * delta[i]
		}

		pose = pose.Retract(delta)
		result.Pose = pose

		if params.Verbose {
			log.Printf("[align GN] iter:%d err:%.6g delta:%v cond:%.3g",
				iter, errNorm, delta, result.Condition)
		}

		if math.Sqrt(deltaNormSqr) < params.MinDelta {
			result.Term = TermStagnation
			break
		}
	}

	if result.Term == TermRunning {
		result.Term = TermMaxIterations
	}
	return nil
}
