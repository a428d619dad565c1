package align

import (
	"fmt"
	"log"
)

// AlignConfig configures the outer ICP loop: correspondence rounds wrapped
// around the Gauss-Newton core
type AlignConfig struct {
	// MaxRounds bounds the match/solve rounds
	MaxRounds int
	// MinPairs aborts a round that found fewer correspondences than this
	MinPairs int
	// CostImprovement stops the outer loop once a round improves the
	// residual norm by less than this
	CostImprovement float64

	Match  MatchConfig
	Solver GNParams

	Verbose bool
}

// DefaultAlignConfig returns outer-loop defaults
func DefaultAlignConfig() AlignConfig {
	return AlignConfig{
		MaxRounds:       20,
		MinPairs:        3,
		CostImprovement: 1e-6,
		Match:           DefaultMatchConfig(),
		Solver:          DefaultGNParams(),
	}
}

// AlignResult reports a completed cloud alignment. Pairings holds the
// correspondences of the last round, for residual inspection and overlays.
type AlignResult struct {
	Pose      Pose
	FinalCost float64
	Rounds    int
	Pairs     int
	Converged bool
	Condition float64
	Pairings  *Pairings
}

// AlignClouds registers the source cloud onto the target cloud. When initial
// is nil, correspondences at the identity pose seed a closed-form estimate
// which becomes the first linearization point.
//
// The inner solver owns the pose during each round; rounds only re-run the
// correspondence search at the refined pose.
func AlignClouds(source, target *Cloud, initial *Pose, cfg AlignConfig) (AlignResult, error) {
	result := AlignResult{Pose: IdentityPose()}

	if len(source.Points) == 0 || len(target.Points) == 0 {
		return result, fmt.Errorf("both clouds must contain points")
	}

	pose := IdentityPose()
	if initial != nil {
		pose = *initial
	} else {
		// Seed from a closed-form fit of identity-pose correspondences.
		// Matching without a distance gate keeps the seed usable even when
		// the clouds start far apart.
		seedCfg := cfg.Match
		seedCfg.MaxDistance = 0
		seedCfg.UsePointToPlane = false
		seedPairs := MatchClouds(source, target, pose, seedCfg)
		if len(seedPairs.PointPairs) >= 3 {
			if seed, err := HornAlign(seedPairs.PointPairs); err == nil {
				pose = seed
			}
		}
	}

	prevCost := 0.0
	for round := 0; round < cfg.MaxRounds; round++ {
		result.Rounds = round + 1

		pairs := MatchClouds(source, target, pose, cfg.Match)
		if pairs.Len() < cfg.MinPairs {
			return result, fmt.Errorf("round %d found %d correspondences, need at least %d",
				round, pairs.Len(), cfg.MinPairs)
		}
		result.Pairs = pairs.Len()
		result.Pairings = pairs

		params := cfg.Solver
		params.LinearizationPoint = &pose

		var gn GNResult
		if err := GaussNewton(pairs, params, &gn); err != nil {
			return result, fmt.Errorf("solving round %d: %w", round, err)
		}

		pose = gn.Pose
		result.Pose = pose
		result.FinalCost = gn.FinalCost
		result.Condition = gn.Condition

		if cfg.Verbose {
			log.Printf("[align ICP] round:%d pairs:%d cost:%.6g term:%s",
				round, pairs.Len(), gn.FinalCost, gn.Term)
		}

		if gn.Term == TermResidual {
			result.Converged = true
			break
		}
		if round > 0 {
			improvement := prevCost - gn.FinalCost
			if improvement >= 0 && improvement < cfg.CostImprovement {
				result.Converged = true
				break
			}
		}
		prevCost = gn.FinalCost
	}

	return result, nil
}
