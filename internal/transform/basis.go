package transform

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ControlPoint pairs a source pixel position with its map position.
type ControlPoint struct {
	SourceX float64
	SourceY float64
	MapX    float64
	MapY    float64
}

// Features returns the basis vector of (x, y) for d. Column order:
//
//	Linear:    x, y, 1
//	Quadratic: x², y², xy, x, y, 1
//	Cubic:     x³, y³, x²y, xy², x², y², xy, x, y, 1
//
// The design matrix and model evaluation both go through appendFeatures, so
// fitted parameters always line up with the columns they were solved for.
func Features(d Degree, x, y float64) ([]float64, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDegree, int(d))
	}
	return appendFeatures(make([]float64, 0, d.Terms()), d, x, y), nil
}

// appendFeatures expects a valid degree.
func appendFeatures(dst []float64, d Degree, x, y float64) []float64 {
	switch d {
	case Linear:
		return append(dst, x, y, 1)
	case Quadratic:
		return append(dst, x*x, y*y, x*y, x, y, 1)
	case Cubic:
		return append(dst, x*x*x, y*y*y, x*x*y, x*y*y, x*x, y*y, x*y, x, y, 1)
	default:
		panic(fmt.Sprintf("transform: appendFeatures called with invalid degree %d", int(d)))
	}
}

// BuildDesignMatrix returns the n×k matrix whose row i is the feature vector
// of (xs[i], ys[i]). xs and ys must have the same non-zero length; a mismatch
// is a caller bug and panics with mat.ErrShape.
func BuildDesignMatrix(xs, ys []float64, d Degree) (*mat.Dense, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDegree, int(d))
	}
	if len(xs) != len(ys) || len(xs) == 0 {
		panic(mat.ErrShape)
	}

	k := d.Terms()
	a := mat.NewDense(len(xs), k, nil)
	row := make([]float64, 0, k)
	for i := range xs {
		row = appendFeatures(row[:0], d, xs[i], ys[i])
		a.SetRow(i, row)
	}
	return a, nil
}

func splitPoints(points []ControlPoint) (xs, ys, mapXs, mapYs []float64) {
	n := len(points)
	xs = make([]float64, n)
	ys = make([]float64, n)
	mapXs = make([]float64, n)
	mapYs = make([]float64, n)
	for i, p := range points {
		xs[i], ys[i] = p.SourceX, p.SourceY
		mapXs[i], mapYs[i] = p.MapX, p.MapY
	}
	return xs, ys, mapXs, mapYs
}
