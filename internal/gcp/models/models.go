package models

import (
	"math"
	"time"

	"georef/internal/transform"
	id "georef/pkg/domain"
)

// GCP is a ground control point: a pixel position on an image paired with
// the map coordinate it should land on.
//
// Invariants:
//   - Index is 1-based and unique within an image
//   - Indices of one image always form the sequence 1..n
//   - Residual is nil until a fit has succeeded, and reflects the last
//     successful fit only
type GCP struct {
	ID        id.GCPID   `json:"id"`
	ImageID   id.ImageID `json:"image_id"`
	SourceX   float64    `json:"source_x"`
	SourceY   float64    `json:"source_y"`
	MapX      float64    `json:"map_x"`
	MapY      float64    `json:"map_y"`
	Index     int        `json:"index"`
	Residual  *float64   `json:"residual"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ControlPoint strips identity and index, leaving the engine input.
func (g GCP) ControlPoint() transform.ControlPoint {
	return transform.ControlPoint{SourceX: g.SourceX, SourceY: g.SourceY, MapX: g.MapX, MapY: g.MapY}
}

// ControlPoints converts gcps in order.
func ControlPoints(gcps []GCP) []transform.ControlPoint {
	out := make([]transform.ControlPoint, len(gcps))
	for i, g := range gcps {
		out[i] = g.ControlPoint()
	}
	return out
}

// Coordinates is a bare point pair, used for creation and bulk loads.
type Coordinates struct {
	SourceX float64 `json:"source_x"`
	SourceY float64 `json:"source_y"`
	MapX    float64 `json:"map_x"`
	MapY    float64 `json:"map_y"`
}

// Finite reports whether every coordinate is a finite number.
func (c Coordinates) Finite() bool {
	for _, v := range []float64{c.SourceX, c.SourceY, c.MapX, c.MapY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

type AddGCPRequest struct {
	ImageID id.ImageID
	Coordinates
}

type UpdateGCPRequest struct {
	ID id.GCPID
	Coordinates
}

type LoadGCPsRequest struct {
	ImageID   id.ImageID
	GCPs      []Coordinates
	Overwrite bool
}

// ResidualsRequest asks for residuals of an image's GCPs. Nil fields fall
// back to the image settings.
type ResidualsRequest struct {
	ImageID id.ImageID
	Type    *transform.Degree
	SRID    *int
}

// ResidualsResult is the outcome of the apply-results step. Success is false
// when the image has too few GCPs for the requested degree; residuals are
// then cleared and RMSE is nil.
type ResidualsResult struct {
	Success           bool     `json:"success"`
	GCPs              []GCP    `json:"gcps"`
	RMSE              *float64 `json:"rmse"`
	MinPointsRequired int      `json:"min_points_required"`
}

// ExportFile is the portable GCP document; its shape is accepted back by
// the bulk load endpoint.
type ExportFile struct {
	ImageID            id.ImageID       `json:"image_id"`
	TransformationType transform.Degree `json:"transformation_type"`
	SRID               int              `json:"srid"`
	GCPs               []Coordinates    `json:"gcps"`
	ExportedAt         time.Time        `json:"exported_at"`
}

// RoundResidual rounds to 4 decimals, the precision residuals are stored at.
func RoundResidual(v float64) float64 {
	return math.Round(v*10000) / 10000
}
