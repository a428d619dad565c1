package align

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// The error evaluators below return a residual vector and its Jacobian with
// respect to the 12-parameter ambient pose (rotation columns stacked, then
// translation). The solver composes these with the pose's tangent
// differential; see Pose.diffExp.

// pointJacobian is the 3x12 ambient Jacobian of pose.Apply(s):
// R*s + t = s.X*c1 + s.Y*c2 + s.Z*c3 + t
func pointJacobian(s Vec3) *mat.Dense {
	j := mat.NewDense(3, 12, nil)
	for i := 0; i < 3; i++ {
		j.Set(i, 0+i, s.X)
		j.Set(i, 3+i, s.Y)
		j.Set(i, 6+i, s.Z)
		j.Set(i, 9+i, 1)
	}
	return j
}

// errorPointToPoint returns the transformed-source minus target residual
func errorPointToPoint(p PairPointPoint, pose Pose) ([]float64, *mat.Dense) {
	g := pose.Apply(p.Source)
	r := g.Sub(p.Target)
	return []float64{r.X, r.Y, r.Z}, pointJacobian(p.Source)
}

// errorPointToLine returns the component of the transformed source point
// orthogonal to the target line: (I - u*u^T)*(g - q)
func errorPointToLine(p PairPointLine, pose Pose) ([]float64, *mat.Dense) {
	u := p.Target.Dir.Normalize()
	g := pose.Apply(p.Source)
	d := g.Sub(p.Target.Point)

	proj := u.Scale(d.Dot(u))
	r := d.Sub(proj)

	// J = (I - u*u^T) * pointJacobian
	pm := projectorOrthogonal(u)
	j := mat.NewDense(3, 12, nil)
	j.Mul(pm, pointJacobian(p.Source))
	return []float64{r.X, r.Y, r.Z}, j
}

// errorPointToPlane returns the normal component of the transformed source
// point's offset from the target plane: n*(n^T*(g - c))
func errorPointToPlane(p PairPointPlane, pose Pose) ([]float64, *mat.Dense) {
	n := p.Target.Normal.Normalize()
	g := pose.Apply(p.Source)
	d := g.Sub(p.Target.Point)

	r := n.Scale(d.Dot(n))

	// J = (n*n^T) * pointJacobian
	nm := outerProduct(n, n)
	j := mat.NewDense(3, 12, nil)
	j.Mul(nm, pointJacobian(p.Source))
	return []float64{r.X, r.Y, r.Z}, j
}

// errorPlaneToPlane compares only the normal directions: R*ns - nt
func errorPlaneToPlane(p PairPlanePlane, pose Pose) ([]float64, *mat.Dense) {
	ns := p.Source.Normal.Normalize()
	nt := p.Target.Normal.Normalize()
	r := pose.RotateVec(ns).Sub(nt)

	// R*ns = ns.X*c1 + ns.Y*c2 + ns.Z*c3; no translation dependence
	j := mat.NewDense(3, 12, nil)
	for i := 0; i < 3; i++ {
		j.Set(i, 0+i, ns.X)
		j.Set(i, 3+i, ns.Y)
		j.Set(i, 6+i, ns.Z)
	}
	return []float64{r.X, r.Y, r.Z}, j
}

// errorLineToLine measures two points of the transformed source line (its
// base point and the point one unit along its direction) against the target
// line, each expressed in an orthonormal basis of the target line's normal
// plane. The four components vanish exactly when the two lines coincide as
// point sets.
func errorLineToLine(p PairLineLine, pose Pose) ([]float64, *mat.Dense) {
	u := p.Target.Dir.Normalize()
	v1, v2 := orthonormalBasis(u)

	sa := p.Source.Point
	sb := p.Source.Point.Add(p.Source.Dir.Normalize())
	da := pose.Apply(sa).Sub(p.Target.Point)
	db := pose.Apply(sb).Sub(p.Target.Point)

	r := []float64{v1.Dot(da), v2.Dot(da), v1.Dot(db), v2.Dot(db)}

	j := mat.NewDense(4, 12, nil)
	fillRowVecJacobian(j, 0, v1, sa)
	fillRowVecJacobian(j, 1, v2, sa)
	fillRowVecJacobian(j, 2, v1, sb)
	fillRowVecJacobian(j, 3, v2, sb)
	return r, j
}

// fillRowVecJacobian writes the ambient Jacobian row of v^T * pose.Apply(s)
func fillRowVecJacobian(j *mat.Dense, row int, v, s Vec3) {
	vc := [3]float64{v.X, v.Y, v.Z}
	sc := [3]float64{s.X, s.Y, s.Z}
	for blk := 0; blk < 3; blk++ {
		for k := 0; k < 3; k++ {
			j.Set(row, 3*blk+k, sc[blk]*vc[k])
		}
	}
	for k := 0; k < 3; k++ {
		j.Set(row, 9+k, vc[k])
	}
}

// projectorOrthogonal returns I - u*u^T for a unit vector u
func projectorOrthogonal(u Vec3) *mat.Dense {
	m := outerProduct(u, u)
	m.Scale(-1, m)
	for i := 0; i < 3; i++ {
		m.Set(i, i, m.At(i, i)+1)
	}
	return m
}

// outerProduct returns a*b^T as a 3x3 matrix
func outerProduct(a, b Vec3) *mat.Dense {
	ac := [3]float64{a.X, a.Y, a.Z}
	bc := [3]float64{b.X, b.Y, b.Z}
	m := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for k := 0; k < 3; k++ {
			m.Set(i, k, ac[i]*bc[k])
		}
	}
	return m
}

// orthonormalBasis returns two unit vectors spanning the plane orthogonal to
// the unit vector u
func orthonormalBasis(u Vec3) (Vec3, Vec3) {
	seed := Vec3{X: 1}
	if math.Abs(u.X) > 0.9 {
		seed = Vec3{Y: 1}
	}
	v1 := u.Cross(seed).Normalize()
	v2 := u.Cross(v1)
	return v1, v2
}
