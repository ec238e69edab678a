package transform

// ReferenceKind selects how residual distances are measured. It never changes
// the fit itself, which always works on the raw map coordinates.
type ReferenceKind int

const (
	// Planar measures residuals as Euclidean distances in map units.
	Planar ReferenceKind = iota
	// Geodesic treats map coordinates as lon/lat degrees and measures
	// great-circle distances in meters.
	Geodesic
)

func (r ReferenceKind) String() string {
	switch r {
	case Planar:
		return "planar"
	case Geodesic:
		return "geodesic"
	default:
		return "unknown"
	}
}
