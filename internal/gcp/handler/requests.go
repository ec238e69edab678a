package handler

import (
	"georef/internal/gcp/models"
	"georef/internal/transform"
	id "georef/pkg/domain"
	dErrors "georef/pkg/domain-errors"
)

// PointRequest carries the four coordinates of a point. Fields are pointers
// so a missing coordinate is told apart from zero.
type PointRequest struct {
	SourceX *float64 `json:"source_x"`
	SourceY *float64 `json:"source_y"`
	MapX    *float64 `json:"map_x"`
	MapY    *float64 `json:"map_y"`
}

func (p PointRequest) validate() error {
	for _, f := range []struct {
		name  string
		value *float64
	}{
		{"source_x", p.SourceX},
		{"source_y", p.SourceY},
		{"map_x", p.MapX},
		{"map_y", p.MapY},
	} {
		if f.value == nil {
			return dErrors.New(dErrors.CodeInvalidInput, f.name+" is required")
		}
	}
	return nil
}

func (p PointRequest) coordinates() models.Coordinates {
	return models.Coordinates{SourceX: *p.SourceX, SourceY: *p.SourceY, MapX: *p.MapX, MapY: *p.MapY}
}

// AddGCPRequest is the body of POST /georef/gcp.
type AddGCPRequest struct {
	ImageID id.ImageID `json:"image_id"`
	PointRequest
}

func (r *AddGCPRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.ImageID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "image_id is required")
	}
	return r.PointRequest.validate()
}

// UpdateGCPRequest is the body of PUT /georef/gcp.
type UpdateGCPRequest struct {
	ID id.GCPID `json:"id"`
	PointRequest
}

func (r *UpdateGCPRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.ID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "id is required")
	}
	return r.PointRequest.validate()
}

// ResidualsRequest is the body of PUT /georef/gcp/residuals. Type and SRID
// default to the image settings.
type ResidualsRequest struct {
	ImageID id.ImageID        `json:"image_id"`
	Type    *transform.Degree `json:"type,omitempty"`
	SRID    *int              `json:"srid,omitempty"`
}

func (r *ResidualsRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.ImageID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "image_id is required")
	}
	if r.SRID != nil && *r.SRID <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "srid must be a positive EPSG code")
	}
	return nil
}

// LoadGCPsRequest is the body of POST /georef/gcp/load. An export file is a
// valid body; its extra fields are ignored.
type LoadGCPsRequest struct {
	ImageID   id.ImageID     `json:"image_id"`
	GCPs      []PointRequest `json:"gcps"`
	Overwrite bool           `json:"overwrite"`
}

func (r *LoadGCPsRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.ImageID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "image_id is required")
	}
	if len(r.GCPs) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "gcps must not be empty")
	}
	for _, p := range r.GCPs {
		if err := p.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (r *LoadGCPsRequest) coordinates() []models.Coordinates {
	out := make([]models.Coordinates, len(r.GCPs))
	for i, p := range r.GCPs {
		out[i] = p.coordinates()
	}
	return out
}
