package transform

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below match them through errors.Is so callers
// can branch on the class and still read the details with errors.As.
var (
	ErrInsufficientPoints  = errors.New("transform: insufficient control points")
	ErrNumericalDegeneracy = errors.New("transform: numerically degenerate system")
	ErrInvalidDegree       = errors.New("transform: invalid polynomial degree")
)

// InsufficientPointsError is returned when fewer points than the degree's
// minimum were supplied. It is an expected, user-facing condition.
type InsufficientPointsError struct {
	Have int
	Need int
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("transform: insufficient control points: have %d, need %d", e.Have, e.Need)
}

func (e *InsufficientPointsError) Is(target error) bool {
	return target == ErrInsufficientPoints
}

// DegeneracyError reports a near-zero pivot met during back-substitution,
// typically caused by duplicate or collinear points for the chosen degree.
type DegeneracyError struct {
	Column int
}

func (e *DegeneracyError) Error() string {
	return fmt.Sprintf("transform: numerically degenerate system: near-zero pivot in column %d", e.Column)
}

func (e *DegeneracyError) Is(target error) bool {
	return target == ErrNumericalDegeneracy
}
