package transform

import (
	"fmt"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// Model is a fitted polynomial transformation: one parameter vector per map
// axis, both ordered like the Features basis of Degree.
type Model struct {
	Degree Degree
	X      []float64
	Y      []float64
}

// Apply maps a pixel position to a map position.
func (m Model) Apply(x, y float64) (mapX, mapY float64) {
	f := appendFeatures(make([]float64, 0, m.Degree.Terms()), m.Degree, x, y)
	return floats.Dot(f, m.X), floats.Dot(f, m.Y)
}

// parallelSolveThreshold is the point count from which Fit solves the two map
// axes on separate goroutines. Below it the goroutine setup costs more than
// the second solve.
const parallelSolveThreshold = 512

// Fit solves the least-squares systems for both map axes. The design matrix is
// built once and shared read-only by the two solves, which run concurrently
// for inputs of at least parallelSolveThreshold points.
// Fit does not check the minimum point count; Compute does.
func Fit(points []ControlPoint, d Degree) (Model, error) {
	if !d.Valid() {
		return Model{}, fmt.Errorf("%w: %d", ErrInvalidDegree, int(d))
	}
	if len(points) == 0 {
		return Model{}, &InsufficientPointsError{Have: 0, Need: d.Terms()}
	}

	xs, ys, mapXs, mapYs := splitPoints(points)
	a, err := BuildDesignMatrix(xs, ys, d)
	if err != nil {
		return Model{}, err
	}

	model := Model{Degree: d}
	if len(points) < parallelSolveThreshold {
		if model.X, err = SolveLeastSquares(a, mapXs); err != nil {
			return Model{}, err
		}
		if model.Y, err = SolveLeastSquares(a, mapYs); err != nil {
			return Model{}, err
		}
		return model, nil
	}

	var g errgroup.Group
	g.Go(func() error {
		var err error
		model.X, err = SolveLeastSquares(a, mapXs)
		return err
	})
	g.Go(func() error {
		var err error
		model.Y, err = SolveLeastSquares(a, mapYs)
		return err
	})
	if err := g.Wait(); err != nil {
		return Model{}, err
	}
	return model, nil
}

// ResidualSet holds the per-point residual distances, aligned with the input
// points, and their RMSE.
type ResidualSet struct {
	Residuals []float64 `json:"residuals"`
	RMSE      float64   `json:"rmse"`
}

// Evaluate applies m to every source position and measures the distance to
// the observed map position with the metric selected by ref.
func Evaluate(points []ControlPoint, m Model, ref ReferenceKind) ResidualSet {
	residuals := make([]float64, len(points))
	for i, p := range points {
		estX, estY := m.Apply(p.SourceX, p.SourceY)
		if ref == Geodesic {
			residuals[i] = Haversine(p.MapY, p.MapX, estY, estX)
		} else {
			residuals[i] = Euclidean(p.MapX, p.MapY, estX, estY)
		}
	}
	return ResidualSet{Residuals: residuals, RMSE: RMSE(residuals)}
}
