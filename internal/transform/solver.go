package transform

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// pivotTolerance is both the Householder skip threshold for a column whose
// sub-diagonal part is already (numerically) zero, and the back-substitution
// pivot threshold below which the system is reported as degenerate.
const pivotTolerance = 1e-10

// SolveLeastSquares returns x minimising ‖A·x − b‖₂ using a Householder QR
// factorisation of A. A is n×k with n ≥ 1; len(b) must equal n.
//
// The factorisation is done by hand rather than through mat.QR so the skip
// threshold, the sign convention of the reflector and the pivot policy stay
// fixed: residuals must be reproducible bit for bit across releases.
//
// A pivot |R[i][i]| ≤ 1e-10 (rank deficiency, fewer rows than unknowns,
// duplicate or collinear points) fails with a *DegeneracyError.
func SolveLeastSquares(a mat.Matrix, b []float64) ([]float64, error) {
	n, k := a.Dims()
	if len(b) != n {
		panic(mat.ErrShape)
	}

	r := mat.DenseCopyOf(a)
	q := identity(n)
	u := make([]float64, n)

	for c := 0; c < k && c < n; c++ {
		v := u[:n-c]
		for i := range v {
			v[i] = r.At(c+i, c)
		}
		norm := floats.Norm(v, 2)
		if norm <= pivotTolerance {
			continue
		}

		if v[0] >= 0 {
			v[0] += norm
		} else {
			v[0] -= norm
		}
		floats.Scale(1/floats.Norm(v, 2), v)

		// R ← H·R on the trailing columns.
		for j := c; j < k; j++ {
			var dot float64
			for i := range v {
				dot += v[i] * r.At(c+i, j)
			}
			for i := range v {
				r.Set(c+i, j, r.At(c+i, j)-2*v[i]*dot)
			}
		}
		// Q ← Q·H.
		for j := 0; j < n; j++ {
			var dot float64
			for i := range v {
				dot += v[i] * q.At(j, c+i)
			}
			for i := range v {
				q.Set(j, c+i, q.At(j, c+i)-2*v[i]*dot)
			}
		}
	}

	var qtb mat.VecDense
	qtb.MulVec(q.T(), mat.NewVecDense(n, append([]float64(nil), b...)))

	x := make([]float64, k)
	for i := k - 1; i >= 0; i-- {
		if i >= n {
			return nil, &DegeneracyError{Column: i}
		}
		pivot := r.At(i, i)
		if math.Abs(pivot) <= pivotTolerance {
			return nil, &DegeneracyError{Column: i}
		}
		var sum float64
		for j := i + 1; j < k; j++ {
			sum += r.At(i, j) * x[j]
		}
		x[i] = (qtb.AtVec(i) - sum) / pivot
	}
	return x, nil
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}
