package transform

import (
	"fmt"
	"strconv"
	"strings"
)

// Degree is the order of the polynomial mapping pixel coordinates to map
// coordinates. Only the three orders below are supported.
type Degree int

const (
	Linear    Degree = 1
	Quadratic Degree = 2
	Cubic     Degree = 3
)

// DefaultDegree is used when neither the request nor the image settings name one.
const DefaultDegree = Linear

var degreeLabels = map[Degree]string{
	Linear:    "Polynomiale 1",
	Quadratic: "Polynomiale 2",
	Cubic:     "Polynomiale 3",
}

// Valid reports whether d is one of Linear, Quadratic or Cubic.
func (d Degree) Valid() bool {
	_, ok := degreeLabels[d]
	return ok
}

// Terms returns the size k of the feature basis for d, or 0 when d is invalid.
func (d Degree) Terms() int {
	switch d {
	case Linear:
		return 3
	case Quadratic:
		return 6
	case Cubic:
		return 10
	default:
		return 0
	}
}

func (d Degree) String() string {
	if label, ok := degreeLabels[d]; ok {
		return label
	}
	return "Degree(" + strconv.Itoa(int(d)) + ")"
}

// ParseDegree accepts the transformation type labels used by the UI
// ("Polynomiale 1".."Polynomiale 3", case-insensitive) as well as the bare
// numbers "1".."3".
func ParseDegree(s string) (Degree, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if d := Degree(n); d.Valid() {
			return d, nil
		}
		return 0, fmt.Errorf("%w: %d", ErrInvalidDegree, n)
	}
	for d, label := range degreeLabels {
		if strings.EqualFold(label, s) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidDegree, s)
}

func (d Degree) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDegree, int(d))
	}
	return []byte(degreeLabels[d]), nil
}

// UnmarshalJSON accepts either a label string or a bare JSON number.
func (d *Degree) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	return d.UnmarshalText([]byte(s))
}

func (d *Degree) UnmarshalText(text []byte) error {
	parsed, err := ParseDegree(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MinimumPoints returns how many control points are needed to fit d. The
// minimum equals the basis size: the system is only over-determined above it.
func MinimumPoints(d Degree) (int, error) {
	if !d.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidDegree, int(d))
	}
	return d.Terms(), nil
}

// HasEnough reports whether points is large enough to fit d.
func HasEnough(points []ControlPoint, d Degree) (bool, error) {
	need, err := MinimumPoints(d)
	if err != nil {
		return false, err
	}
	return len(points) >= need, nil
}
