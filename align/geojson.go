package align

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// OverlayFeatureCollection exports an alignment as GeoJSON for map-based
// inspection: the target cloud, the source cloud under the solved pose, and
// one residual segment per point pairing. Geometry is the XY projection of
// the clouds; Z is dropped.
func OverlayFeatureCollection(source, target *Cloud, pose Pose, pairs *Pairings) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	targetPts := make(orb.MultiPoint, len(target.Points))
	for i, p := range target.Points {
		targetPts[i] = orb.Point{p.X, p.Y}
	}
	tf := geojson.NewFeature(targetPts)
	tf.Properties["role"] = "target"
	tf.Properties["sensor_id"] = target.SensorID
	fc.Append(tf)

	sourcePts := make(orb.MultiPoint, len(source.Points))
	for i, p := range source.Points {
		g := pose.Apply(p)
		sourcePts[i] = orb.Point{g.X, g.Y}
	}
	sf := geojson.NewFeature(sourcePts)
	sf.Properties["role"] = "source"
	sf.Properties["sensor_id"] = source.SensorID
	fc.Append(sf)

	if pairs != nil {
		var segments orb.MultiLineString
		for _, p := range pairs.PointPairs {
			g := pose.Apply(p.Source)
			segments = append(segments, orb.LineString{
				{g.X, g.Y},
				{p.Target.X, p.Target.Y},
			})
		}
		for _, p := range pairs.PointPlanePairs {
			g := pose.Apply(p.Source)
			segments = append(segments, orb.LineString{
				{g.X, g.Y},
				{p.Target.Point.X, p.Target.Point.Y},
			})
		}
		if len(segments) > 0 {
			rf := geojson.NewFeature(segments)
			rf.Properties["role"] = "residuals"
			rf.Properties["count"] = len(segments)
			fc.Append(rf)
		}
	}

	return fc
}
