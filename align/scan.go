package align

import (
	"encoding/json"
	"fmt"
)

// Cloud is a set of 3D points captured by one sensor, optionally with a
// per-point surface normal
type Cloud struct {
	SensorID string `json:"sensor_id,omitempty"`
	Points   []Vec3 `json:"points"`
	// Normals, when present, has one unit normal per point
	Normals []Vec3 `json:"normals,omitempty"`
}

// scanPayload is the wire format of a scan message: point (and optional
// normal) coordinates as flat triplets
type scanPayload struct {
	SensorID string       `json:"sensor_id"`
	Points   [][3]float64 `json:"points"`
	Normals  [][3]float64 `json:"normals,omitempty"`
}

// DecodeScan parses a JSON scan payload into a Cloud
func DecodeScan(payload []byte) (*Cloud, error) {
	var raw scanPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("parsing scan JSON: %w", err)
	}
	if len(raw.Points) == 0 {
		return nil, fmt.Errorf("scan contains no points")
	}
	if len(raw.Normals) > 0 && len(raw.Normals) != len(raw.Points) {
		return nil, fmt.Errorf("scan has %d normals for %d points", len(raw.Normals), len(raw.Points))
	}

	cloud := &Cloud{
		SensorID: raw.SensorID,
		Points:   make([]Vec3, len(raw.Points)),
	}
	for i, p := range raw.Points {
		cloud.Points[i] = Vec3{p[0], p[1], p[2]}
	}
	if len(raw.Normals) > 0 {
		cloud.Normals = make([]Vec3, len(raw.Normals))
		for i, n := range raw.Normals {
			cloud.Normals[i] = Vec3{n[0], n[1], n[2]}.Normalize()
		}
	}
	return cloud, nil
}

// EncodeScan serializes a Cloud back into the scan wire format
func EncodeScan(cloud *Cloud) ([]byte, error) {
	raw := scanPayload{
		SensorID: cloud.SensorID,
		Points:   make([][3]float64, len(cloud.Points)),
	}
	for i, p := range cloud.Points {
		raw.Points[i] = [3]float64{p.X, p.Y, p.Z}
	}
	if len(cloud.Normals) > 0 {
		raw.Normals = make([][3]float64, len(cloud.Normals))
		for i, n := range cloud.Normals {
			raw.Normals[i] = [3]float64{n.X, n.Y, n.Z}
		}
	}
	return json.Marshal(raw)
}

// Downsample reduces the cloud to at most max points by uniform striding.
// Normals, when present, are kept in step with their points.
func (c *Cloud) Downsample(max int) *Cloud {
	if max <= 0 || len(c.Points) <= max {
		return c
	}

	out := &Cloud{SensorID: c.SensorID, Points: make([]Vec3, max)}
	if len(c.Normals) > 0 {
		out.Normals = make([]Vec3, max)
	}

	step := 1.0
	if max > 1 {
		step = float64(len(c.Points)-1) / float64(max-1)
	}
	for i := 0; i < max; i++ {
		idx := int(float64(i) * step)
		out.Points[i] = c.Points[idx]
		if out.Normals != nil {
			out.Normals[i] = c.Normals[idx]
		}
	}
	return out
}

// Centroid returns the mean of the cloud's points
func (c *Cloud) Centroid() Vec3 {
	if len(c.Points) == 0 {
		return Vec3{}
	}
	var sum Vec3
	for _, p := range c.Points {
		sum = sum.Add(p)
	}
	return sum.Scale(1 / float64(len(c.Points)))
}
