package handler

import (
	"strings"

	"georef/internal/image/models"
	"georef/internal/transform"
	dErrors "georef/pkg/domain-errors"
)

// RegisterImageRequest is the body of POST /georef/images.
type RegisterImageRequest struct {
	Filename string           `json:"filename"`
	Hash     string           `json:"hash"`
	Settings *models.Settings `json:"settings,omitempty"`
}

func (r *RegisterImageRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Filename = strings.TrimSpace(r.Filename)
	r.Hash = strings.TrimSpace(r.Hash)
	if r.Filename == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "filename is required")
	}
	if r.Settings != nil {
		return r.Settings.Validate()
	}
	return nil
}

// UpdateSettingsRequest is the body of PUT /georef/images/{imageId}/settings.
// Omitted fields keep their stored value.
type UpdateSettingsRequest struct {
	TransformationType *transform.Degree        `json:"transformation_type,omitempty"`
	SRID               *models.SRID             `json:"srid,omitempty"`
	ResamplingMethod   *models.ResamplingMethod `json:"resampling_method,omitempty"`
	Compression        *models.Compression      `json:"compression,omitempty"`
}

func (r *UpdateSettingsRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.SRID != nil && !r.SRID.Valid() {
		return dErrors.New(dErrors.CodeInvalidInput, "srid must be a positive EPSG code")
	}
	return nil
}
