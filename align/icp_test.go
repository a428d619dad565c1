package align

import (
	"math/rand"
	"testing"
)

func transformedCloud(src *Cloud, pose Pose) *Cloud {
	out := &Cloud{SensorID: src.SensorID, Points: make([]Vec3, len(src.Points))}
	for i, p := range src.Points {
		out.Points[i] = pose.Apply(p)
	}
	if len(src.Normals) > 0 {
		out.Normals = make([]Vec3, len(src.Normals))
		for i, n := range src.Normals {
			out.Normals[i] = pose.RotateVec(n)
		}
	}
	return out
}

func TestAlignCloudsEmptyInput(t *testing.T) {
	cloud := &Cloud{Points: []Vec3{{1, 0, 0}}}
	if _, err := AlignClouds(&Cloud{}, cloud, nil, DefaultAlignConfig()); err == nil {
		t.Error("expected error for empty source cloud")
	}
	if _, err := AlignClouds(cloud, &Cloud{}, nil, DefaultAlignConfig()); err == nil {
		t.Error("expected error for empty target cloud")
	}
}

func TestAlignCloudsTooFewCorrespondences(t *testing.T) {
	source := &Cloud{Points: []Vec3{{0, 0, 0}, {1, 0, 0}}}
	target := &Cloud{Points: []Vec3{{0, 0, 0}, {1, 0, 0}}}
	cfg := DefaultAlignConfig()
	cfg.MinPairs = 3
	if _, err := AlignClouds(source, target, nil, cfg); err == nil {
		t.Error("expected error when correspondences fall below MinPairs")
	}
}

func TestAlignCloudsIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(200))
	source := &Cloud{Points: randomPoints(rng, 60, 10)}

	result, err := AlignClouds(source, source, nil, DefaultAlignConfig())
	if err != nil {
		t.Fatalf("AlignClouds failed: %v", err)
	}
	if !result.Converged {
		t.Error("identity alignment did not converge")
	}
	if e := poseError(result.Pose, IdentityPose(), source.Points); e > 1e-6 {
		t.Errorf("pose error %g aligning a cloud to itself", e)
	}
}

func TestAlignCloudsRecoversSmallTransform(t *testing.T) {
	rng := rand.New(rand.NewSource(201))
	truth := PoseFromAxisAngle(Vec3{0, 0, 1}, 0.05, Vec3{0.3, -0.2, 0.1})
	source := &Cloud{Points: randomPoints(rng, 80, 10)}
	target := transformedCloud(source, truth)

	result, err := AlignClouds(source, target, nil, DefaultAlignConfig())
	if err != nil {
		t.Fatalf("AlignClouds failed: %v", err)
	}
	if e := poseError(result.Pose, truth, source.Points); e > 1e-4 {
		t.Errorf("pose error %g (cost %g, %d rounds, %d pairs)",
			e, result.FinalCost, result.Rounds, result.Pairs)
	}
}

func TestAlignCloudsWithInitialGuess(t *testing.T) {
	rng := rand.New(rand.NewSource(202))
	truth := PoseFromAxisAngle(Vec3{1, 1, 0}, 0.4, Vec3{2, -1, 0.5})
	source := &Cloud{Points: randomPoints(rng, 80, 10)}
	target := transformedCloud(source, truth)

	// Start from a pose near the truth; the rounds only need to refine
	initial := truth.Retract([6]float64{0.05, -0.05, 0.02, 0.01, -0.01, 0.02})
	result, err := AlignClouds(source, target, &initial, DefaultAlignConfig())
	if err != nil {
		t.Fatalf("AlignClouds failed: %v", err)
	}
	if e := poseError(result.Pose, truth, source.Points); e > 1e-4 {
		t.Errorf("pose error %g with a near-truth initial guess", e)
	}
}

func TestAlignCloudsPointToPlane(t *testing.T) {
	rng := rand.New(rand.NewSource(203))
	truth := PoseFromAxisAngle(Vec3{0, 1, 0}, 0.03, Vec3{0.2, 0.1, -0.1})

	// Points on three orthogonal planes, each carrying its plane normal
	source := &Cloud{}
	for i := 0; i < 30; i++ {
		a := (rng.Float64() - 0.5) * 8
		b := (rng.Float64() - 0.5) * 8
		source.Points = append(source.Points, Vec3{X: a, Y: b}, Vec3{X: a, Z: b}, Vec3{Y: a, Z: b})
		source.Normals = append(source.Normals, Vec3{Z: 1}, Vec3{Y: 1}, Vec3{X: 1})
	}
	target := transformedCloud(source, truth)

	cfg := DefaultAlignConfig()
	cfg.Match.UsePointToPlane = true
	result, err := AlignClouds(source, target, nil, cfg)
	if err != nil {
		t.Fatalf("AlignClouds failed: %v", err)
	}
	if e := poseError(result.Pose, truth, source.Points); e > 1e-3 {
		t.Errorf("point-to-plane pose error %g", e)
	}
}

func TestAlignCloudsReportsRoundsAndPairs(t *testing.T) {
	rng := rand.New(rand.NewSource(204))
	source := &Cloud{Points: randomPoints(rng, 40, 8)}

	result, err := AlignClouds(source, source, nil, DefaultAlignConfig())
	if err != nil {
		t.Fatalf("AlignClouds failed: %v", err)
	}
	if result.Rounds < 1 {
		t.Errorf("rounds = %d, want at least 1", result.Rounds)
	}
	if result.Pairs < 3 {
		t.Errorf("pairs = %d, want at least MinPairs", result.Pairs)
	}
	if result.Pairings == nil || result.Pairings.Len() != result.Pairs {
		t.Errorf("last-round pairings not retained: %v", result.Pairings)
	}
}
