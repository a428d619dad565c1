package align

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Pose is a rigid transformation in SE(3): a rotation followed by a
// translation. The fields are unexported so the optimizer can only move a
// pose through composition and tangent-space retraction, never by poking at
// the rotation parameterization.
type Pose struct {
	r [3][3]float64
	t Vec3
}

// IdentityPose returns the identity transformation
func IdentityPose() Pose {
	return Pose{r: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}
}

// NewPose builds a pose from a rotation matrix and a translation.
// The rotation matrix is taken as-is; callers are responsible for passing a
// proper rotation.
func NewPose(r [3][3]float64, t Vec3) Pose {
	return Pose{r: r, t: t}
}

// PoseFromAxisAngle builds a pose rotating by angle (radians) about the given
// axis, followed by the translation t
func PoseFromAxisAngle(axis Vec3, angle float64, t Vec3) Pose {
	u := axis.Normalize()
	return Pose{r: rotationFromAxisAngle(u.Scale(angle)), t: t}
}

// Translation returns the translation component
func (p Pose) Translation() Vec3 {
	return p.t
}

// RotationMatrix returns a copy of the rotation component
func (p Pose) RotationMatrix() [3][3]float64 {
	return p.r
}

// Apply transforms the point v by the pose: R*v + t
func (p Pose) Apply(v Vec3) Vec3 {
	return p.RotateVec(v).Add(p.t)
}

// RotateVec applies only the rotation component to v
func (p Pose) RotateVec(v Vec3) Vec3 {
	return Vec3{
		X: p.r[0][0]*v.X + p.r[0][1]*v.Y + p.r[0][2]*v.Z,
		Y: p.r[1][0]*v.X + p.r[1][1]*v.Y + p.r[1][2]*v.Z,
		Z: p.r[2][0]*v.X + p.r[2][1]*v.Y + p.r[2][2]*v.Z,
	}
}

// Compose returns the composition p * o (o applied first)
func (p Pose) Compose(o Pose) Pose {
	var r [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = p.r[i][0]*o.r[0][j] + p.r[i][1]*o.r[1][j] + p.r[i][2]*o.r[2][j]
		}
	}
	return Pose{r: r, t: p.RotateVec(o.t).Add(p.t)}
}

// Inverse returns the inverse transformation
func (p Pose) Inverse() Pose {
	var rt [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rt[i][j] = p.r[j][i]
		}
	}
	inv := Pose{r: rt}
	inv.t = inv.RotateVec(p.t).Scale(-1)
	return inv
}

// Retract composes the exponential of the tangent increment delta onto the
// right of p, i.e. the increment is expressed in the body frame
func (p Pose) Retract(delta [6]float64) Pose {
	return p.Compose(ExpSE3(delta))
}

// ExpSE3 maps a tangent 6-vector (translation first, rotation second) to a
// pose via the SE(3) exponential map
func ExpSE3(delta [6]float64) Pose {
	v := Vec3{delta[0], delta[1], delta[2]}
	w := Vec3{delta[3], delta[4], delta[5]}

	r := rotationFromAxisAngle(w)

	// t = V*v with V the left Jacobian of SO(3)
	theta := w.Norm()
	var a, b float64
	if theta < 1e-9 {
		// Second-order series; avoids catastrophic cancellation near zero
		a = 0.5 - theta*theta/24
		b = 1.0/6 - theta*theta/120
	} else {
		a = (1 - math.Cos(theta)) / (theta * theta)
		b = (theta - math.Sin(theta)) / (theta * theta * theta)
	}
	wxv := w.Cross(v)
	wxwxv := w.Cross(wxv)
	t := v.Add(wxv.Scale(a)).Add(wxwxv.Scale(b))

	return Pose{r: r, t: t}
}

// rotationFromAxisAngle is the Rodrigues formula for the rotation vector w
func rotationFromAxisAngle(w Vec3) [3][3]float64 {
	theta := w.Norm()
	var a, b float64
	if theta < 1e-9 {
		a = 1 - theta*theta/6
		b = 0.5 - theta*theta/24
	} else {
		a = math.Sin(theta) / theta
		b = (1 - math.Cos(theta)) / (theta * theta)
	}

	wx, wy, wz := w.X, w.Y, w.Z
	// K = [w]x, R = I + a*K + b*K^2
	return [3][3]float64{
		{1 + b*(-wz*wz-wy*wy), -a*wz + b*wx*wy, a*wy + b*wx*wz},
		{a*wz + b*wx*wy, 1 + b*(-wz*wz-wx*wx), -a*wx + b*wy*wz},
		{-a*wy + b*wx*wz, a*wx + b*wy*wz, 1 + b*(-wy*wy-wx*wx)},
	}
}

// ambientVector serializes the pose into its 12-parameter ambient form: the
// three rotation columns stacked, then the translation
func (p Pose) ambientVector() [12]float64 {
	return [12]float64{
		p.r[0][0], p.r[1][0], p.r[2][0],
		p.r[0][1], p.r[1][1], p.r[2][1],
		p.r[0][2], p.r[1][2], p.r[2][2],
		p.t.X, p.t.Y, p.t.Z,
	}
}

// diffExp returns the 12x6 differential of D*exp(eps) with respect to eps at
// eps = 0, for D = p. Rows follow the ambient 12-parameter layout, columns
// the tangent layout (translation, rotation). Composing a residual's ambient
// Jacobian with this matrix yields its tangent-space Jacobian at p.
func (p Pose) diffExp() *mat.Dense {
	d := mat.NewDense(12, 6, nil)

	// d(column j of R)/dw = -R*[e_j]x; translation columns are zero
	for j := 0; j < 3; j++ {
		ej := Vec3{}
		switch j {
		case 0:
			ej.X = 1
		case 1:
			ej.Y = 1
		case 2:
			ej.Z = 1
		}
		for k := 0; k < 3; k++ {
			wk := Vec3{}
			switch k {
			case 0:
				wk.X = 1
			case 1:
				wk.Y = 1
			case 2:
				wk.Z = 1
			}
			// column derivative: -R*(e_j x w_k) ... note [e_j]x w_k = e_j x w_k
			col := p.RotateVec(ej.Cross(wk)).Scale(-1)
			d.Set(3*j+0, 3+k, col.X)
			d.Set(3*j+1, 3+k, col.Y)
			d.Set(3*j+2, 3+k, col.Z)
		}
	}

	// dt/dv = R; rotation columns are zero
	for i := 0; i < 3; i++ {
		for k := 0; k < 3; k++ {
			d.Set(9+i, k, p.r[i][k])
		}
	}

	return d
}
