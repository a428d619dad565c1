package align

import (
	"math"
	"sort"
)

// MatchConfig controls correspondence construction between two clouds
type MatchConfig struct {
	// MaxDistance gates candidate pairs; 0 disables the gate
	MaxDistance float64
	// OutlierPercentile keeps only this fraction of the closest gated pairs
	// (0-1; >= 1 keeps everything)
	OutlierPercentile float64
	// UsePointToPlane builds point-to-plane pairings at target points that
	// carry a normal, instead of point-to-point
	UsePointToPlane bool
}

// DefaultMatchConfig returns matcher defaults suitable for meter-scale clouds
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		MaxDistance:       1.0,
		OutlierPercentile: 0.9,
		UsePointToPlane:   true,
	}
}

// MatchClouds pairs every source point with its nearest target point under
// the given pose estimate, gated by MaxDistance and trimmed to the
// OutlierPercentile closest pairs. Pairings carry the untransformed source
// point so the solver can relinearize from the same pose.
func MatchClouds(source, target *Cloud, pose Pose, cfg MatchConfig) *Pairings {
	type match struct {
		srcIdx int
		tgtIdx int
		dist   float64
	}

	matches := make([]match, 0, len(source.Points))
	for si, sp := range source.Points {
		g := pose.Apply(sp)
		best := -1
		bestDist := math.MaxFloat64
		for ti, tp := range target.Points {
			d := g.Sub(tp).Norm()
			if d < bestDist {
				bestDist = d
				best = ti
			}
		}
		if best < 0 {
			continue
		}
		if cfg.MaxDistance > 0 && bestDist > cfg.MaxDistance {
			continue
		}
		matches = append(matches, match{srcIdx: si, tgtIdx: best, dist: bestDist})
	}

	// Percentile trim: keep only the closest fraction of the gated pairs
	if cfg.OutlierPercentile > 0 && cfg.OutlierPercentile < 1 && len(matches) > 0 {
		sort.Slice(matches, func(i, j int) bool { return matches[i].dist < matches[j].dist })
		keep := int(float64(len(matches)) * cfg.OutlierPercentile)
		if keep < 1 {
			keep = 1
		}
		matches = matches[:keep]
	}

	pairs := &Pairings{}
	haveNormals := len(target.Normals) == len(target.Points) && len(target.Normals) > 0
	for _, m := range matches {
		sp := source.Points[m.srcIdx]
		tp := target.Points[m.tgtIdx]
		if cfg.UsePointToPlane && haveNormals {
			pairs.PointPlanePairs = append(pairs.PointPlanePairs, PairPointPlane{
				Source: sp,
				Target: Plane{Point: tp, Normal: target.Normals[m.tgtIdx]},
			})
		} else {
			pairs.PointPairs = append(pairs.PointPairs, PairPointPoint{Source: sp, Target: tp})
		}
	}
	return pairs
}
