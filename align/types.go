package align

import (
	"fmt"
	"math"
)

// Vec3 represents a 3D point or direction
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns v + o
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v - o
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v scaled by s
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Dot returns the dot product of v and o
func (v Vec3) Dot(o Vec3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// Cross returns the cross product v x o
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		X: v.Y*o.Z - v.Z*o.Y,
		Y: v.Z*o.X - v.X*o.Z,
		Z: v.X*o.Y - v.Y*o.X,
	}
}

// Norm returns the Euclidean length of v
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// SqNorm returns the squared Euclidean length of v
func (v Vec3) SqNorm() float64 {
	return v.Dot(v)
}

// Normalize returns v scaled to unit length.
// The zero vector is returned unchanged.
func (v Vec3) Normalize() Vec3 {
	n := v.Norm()
	if n == 0 {
		return v
	}
	return v.Scale(1 / n)
}

// Line is an infinite 3D line through Point along the unit direction Dir
type Line struct {
	Point Vec3 `json:"point"`
	Dir   Vec3 `json:"dir"`
}

// Plane is an infinite 3D plane through Point with unit normal Normal
type Plane struct {
	Point  Vec3 `json:"point"`
	Normal Vec3 `json:"normal"`
}

// PairPointPoint associates a sensor-frame point with a reference-frame point.
// The solved pose maps Source into the reference frame: pose(Source) ~= Target.
type PairPointPoint struct {
	Source Vec3
	Target Vec3
}

// PairPointLine associates a sensor-frame point with a reference-frame line
type PairPointLine struct {
	Source Vec3
	Target Line
}

// PairPointPlane associates a sensor-frame point with a reference-frame plane
type PairPointPlane struct {
	Source Vec3
	Target Plane
}

// PairPlanePlane associates a sensor-frame plane with a reference-frame plane.
// Only the normal directions enter the residual.
type PairPlanePlane struct {
	Source Plane
	Target Plane
}

// PairLineLine associates a sensor-frame line with a reference-frame line
type PairLineLine struct {
	Source Line
	Target Line
}

// PointWeightRun overrides the point-to-point base weight for a contiguous
// block of Count pairings. Runs partition the point-pair sequence in order.
type PointWeightRun struct {
	Count  int
	Weight float64
}

// Pairings holds the putative correspondences between two primitive sets.
// The sequences define iteration order; PointWeightRuns, when non-empty,
// must cover the PointPairs sequence exactly.
type Pairings struct {
	PointPairs      []PairPointPoint
	PointLinePairs  []PairPointLine
	PointPlanePairs []PairPointPlane
	PlanePairs      []PairPlanePlane
	LinePairs       []PairLineLine

	PointWeightRuns []PointWeightRun
}

// Len returns the total number of pairings across all types
func (p *Pairings) Len() int {
	return len(p.PointPairs) + len(p.PointLinePairs) + len(p.PointPlanePairs) +
		len(p.PlanePairs) + len(p.LinePairs)
}

// Empty reports whether no pairings of any type are present
func (p *Pairings) Empty() bool {
	return p.Len() == 0
}

// expandPointWeights flattens the run-length-encoded weight overrides into
// one weight per point pairing. It returns nil when no overrides are set, in
// which case the base point-to-point weight applies uniformly. The run counts
// must sum to the number of point pairings; a mismatch is a caller bug and is
// rejected here rather than silently misassigning weights partway through a
// solve.
func (p *Pairings) expandPointWeights() ([]float64, error) {
	if len(p.PointWeightRuns) == 0 {
		return nil, nil
	}

	total := 0
	for i, run := range p.PointWeightRuns {
		if run.Count < 0 {
			return nil, fmt.Errorf("point weight run %d has negative count %d", i, run.Count)
		}
		total += run.Count
	}
	if total != len(p.PointPairs) {
		return nil, fmt.Errorf("point weight runs cover %d pairings, have %d point pairings",
			total, len(p.PointPairs))
	}

	weights := make([]float64, 0, total)
	for _, run := range p.PointWeightRuns {
		for i := 0; i < run.Count; i++ {
			weights = append(weights, run.Weight)
		}
	}
	return weights, nil
}

// PairWeights holds the base weight applied to every pairing of each type
type PairWeights struct {
	PointPoint float64
	PointLine  float64
	PointPlane float64
	PlanePlane float64
	LineLine   float64
}

// DefaultPairWeights returns unit weights for all pairing types
func DefaultPairWeights() PairWeights {
	return PairWeights{
		PointPoint: 1,
		PointLine:  1,
		PointPlane: 1,
		PlanePlane: 1,
		LineLine:   1,
	}
}
