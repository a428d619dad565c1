package align

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// HornAlign computes the closed-form rigid transformation minimizing the sum
// of squared point-to-point distances, via SVD of the cross-covariance
// matrix (Kabsch). No scale is estimated. It is used to seed the iterative
// solver when the caller has no pose estimate.
func HornAlign(pairs []PairPointPoint) (Pose, error) {
	n := len(pairs)
	if n < 3 {
		return IdentityPose(), fmt.Errorf("closed-form alignment requires at least 3 point pairs, have %d", n)
	}

	var cs, ct Vec3
	for _, p := range pairs {
		cs = cs.Add(p.Source)
		ct = ct.Add(p.Target)
	}
	cs = cs.Scale(1 / float64(n))
	ct = ct.Scale(1 / float64(n))

	// Cross-covariance K = sum (s-cs)*(t-ct)^T
	k := mat.NewDense(3, 3, nil)
	for _, p := range pairs {
		s := p.Source.Sub(cs)
		t := p.Target.Sub(ct)
		sc := [3]float64{s.X, s.Y, s.Z}
		tc := [3]float64{t.X, t.Y, t.Z}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				k.Set(i, j, k.At(i, j)+sc[i]*tc[j])
			}
		}
	}

	var svd mat.SVD
	if !svd.Factorize(k, mat.SVDFull) {
		return IdentityPose(), fmt.Errorf("SVD of cross-covariance failed")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// R = V * diag(1,1,d) * U^T with d correcting an improper rotation
	var vut mat.Dense
	vut.Mul(&v, u.T())
	d := det3(&vut)

	var corr mat.Dense
	corr.CloneFrom(&v)
	if d < 0 {
		for i := 0; i < 3; i++ {
			corr.Set(i, 2, -corr.At(i, 2))
		}
	}
	var rm mat.Dense
	rm.Mul(&corr, u.T())

	var r [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = rm.At(i, j)
		}
	}

	pose := Pose{r: r}
	pose.t = ct.Sub(pose.RotateVec(cs))
	return pose, nil
}

// det3 returns the determinant of a 3x3 matrix
func det3(m *mat.Dense) float64 {
	return m.At(0, 0)*(m.At(1, 1)*m.At(2, 2)-m.At(1, 2)*m.At(2, 1)) -
		m.At(0, 1)*(m.At(1, 0)*m.At(2, 2)-m.At(1, 2)*m.At(2, 0)) +
		m.At(0, 2)*(m.At(1, 0)*m.At(2, 1)-m.At(1, 1)*m.At(2, 0))
}
