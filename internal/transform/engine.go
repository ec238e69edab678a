// Package transform estimates polynomial pixel-to-map transformations from
// ground control points and measures how well they fit.
//
// Everything here is a pure function of its inputs: no I/O, no shared state,
// and repeated calls with the same inputs return bit-identical results.
package transform

// Compute fits a polynomial of degree d to points and returns the residual of
// every point, in input order, together with the RMSE.
//
// It fails with ErrInvalidDegree for an unsupported degree, with an
// *InsufficientPointsError before any matrix is built when there are fewer
// points than MinimumPoints(d), and with a *DegeneracyError when the points
// cannot determine the polynomial (duplicates, collinearity).
func Compute(points []ControlPoint, d Degree, ref ReferenceKind) (ResidualSet, error) {
	ok, err := HasEnough(points, d)
	if err != nil {
		return ResidualSet{}, err
	}
	if !ok {
		return ResidualSet{}, &InsufficientPointsError{Have: len(points), Need: d.Terms()}
	}

	model, err := Fit(points, d)
	if err != nil {
		return ResidualSet{}, err
	}
	return Evaluate(points, model, ref), nil
}
