package align

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlayFeatureCollection(t *testing.T) {
	source := &Cloud{SensorID: "src", Points: []Vec3{{0, 0, 0}, {1, 0, 0}}}
	target := &Cloud{SensorID: "tgt", Points: []Vec3{{2, 0, 0}, {3, 0, 0}, {4, 0, 0}}}
	pose := NewPose(IdentityPose().RotationMatrix(), Vec3{2, 0, 0})

	pairs := &Pairings{
		PointPairs: []PairPointPoint{{Source: Vec3{0, 0, 0}, Target: Vec3{2, 0, 0}}},
		PointPlanePairs: []PairPointPlane{
			{Source: Vec3{1, 0, 0}, Target: Plane{Point: Vec3{3, 0, 0}, Normal: Vec3{0, 0, 1}}},
		},
	}

	fc := OverlayFeatureCollection(source, target, pose, pairs)
	require.Len(t, fc.Features, 3)

	tf := fc.Features[0]
	assert.Equal(t, "target", tf.Properties["role"])
	assert.Equal(t, "tgt", tf.Properties["sensor_id"])
	tgtPts, ok := tf.Geometry.(orb.MultiPoint)
	require.True(t, ok)
	assert.Len(t, tgtPts, 3)

	sf := fc.Features[1]
	assert.Equal(t, "source", sf.Properties["role"])
	srcPts, ok := sf.Geometry.(orb.MultiPoint)
	require.True(t, ok)
	require.Len(t, srcPts, 2)
	// Source points appear under the solved pose
	assert.Equal(t, orb.Point{2, 0}, srcPts[0])

	rf := fc.Features[2]
	assert.Equal(t, "residuals", rf.Properties["role"])
	assert.Equal(t, 2, rf.Properties["count"])
	segs, ok := rf.Geometry.(orb.MultiLineString)
	require.True(t, ok)
	assert.Len(t, segs, 2)
}

func TestOverlayFeatureCollectionWithoutPairs(t *testing.T) {
	source := &Cloud{SensorID: "src", Points: []Vec3{{0, 0, 0}}}
	target := &Cloud{SensorID: "tgt", Points: []Vec3{{1, 1, 0}}}

	fc := OverlayFeatureCollection(source, target, IdentityPose(), nil)
	assert.Len(t, fc.Features, 2)

	// The collection must serialize as valid GeoJSON
	data, err := json.Marshal(fc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"FeatureCollection"`)
}
