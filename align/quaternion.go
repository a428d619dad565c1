package align

import "math"

// Quaternion is a unit quaternion describing an orientation, used as the
// wire representation of a pose's rotation
type Quaternion struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// QuaternionFromRotation converts a rotation matrix to a unit quaternion.
// The branch on the largest diagonal term keeps the conversion numerically
// stable for rotations near 180 degrees.
func QuaternionFromRotation(r [3][3]float64) Quaternion {
	trace := r[0][0] + r[1][1] + r[2][2]

	var q Quaternion
	switch {
	case trace > 0:
		s := 2 * math.Sqrt(trace+1)
		q.W = s / 4
		q.X = (r[2][1] - r[1][2]) / s
		q.Y = (r[0][2] - r[2][0]) / s
		q.Z = (r[1][0] - r[0][1]) / s
	case r[0][0] > r[1][1] && r[0][0] > r[2][2]:
		s := 2 * math.Sqrt(1+r[0][0]-r[1][1]-r[2][2])
		q.W = (r[2][1] - r[1][2]) / s
		q.X = s / 4
		q.Y = (r[0][1] + r[1][0]) / s
		q.Z = (r[0][2] + r[2][0]) / s
	case r[1][1] > r[2][2]:
		s := 2 * math.Sqrt(1+r[1][1]-r[0][0]-r[2][2])
		q.W = (r[0][2] - r[2][0]) / s
		q.X = (r[0][1] + r[1][0]) / s
		q.Y = s / 4
		q.Z = (r[1][2] + r[2][1]) / s
	default:
		s := 2 * math.Sqrt(1+r[2][2]-r[0][0]-r[1][1])
		q.W = (r[1][0] - r[0][1]) / s
		q.X = (r[0][2] + r[2][0]) / s
		q.Y = (r[1][2] + r[2][1]) / s
		q.Z = s / 4
	}
	return q
}

// RotationFromQuaternion converts a unit quaternion back to a rotation matrix
func RotationFromQuaternion(q Quaternion) [3][3]float64 {
	w, x, y, z := q.W, q.X, q.Y, q.Z
	return [3][3]float64{
		{1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y)},
		{2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x)},
		{2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y)},
	}
}

// Yaw returns the pose's heading about the Z axis, in radians
func (p Pose) Yaw() float64 {
	return math.Atan2(p.r[1][0], p.r[0][0])
}
