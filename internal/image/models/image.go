package models

import (
	"fmt"
	"strings"
	"time"

	"georef/internal/transform"
	id "georef/pkg/domain"
	dErrors "georef/pkg/domain-errors"
)

// Status tracks an image through the georeferencing workflow.
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var statuses = []Status{StatusUploaded, StatusPending, StatusProcessing, StatusCompleted, StatusFailed}

func ParseStatus(s string) (Status, error) {
	return parseLabel(s, statuses, "status")
}

func (st *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*st = parsed
	return nil
}

const maxFilenameLength = 255

// Image is the metadata record that owns a set of GCPs.
//
// Invariants:
//   - Filename is non-empty and at most 255 characters
//   - Settings are always valid
//   - MeanResidual is nil until residuals have been computed, and is reset
//     to nil whenever the GCP set can no longer be fitted
type Image struct {
	ID           id.ImageID `json:"id"`
	Filename     string     `json:"filename"`
	Hash         string     `json:"hash,omitempty"`
	Status       Status     `json:"status"`
	Settings     Settings   `json:"settings"`
	MeanResidual *float64   `json:"mean_residual"`
	UploadedAt   time.Time  `json:"uploaded_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewImage builds an uploaded image with default settings.
func NewImage(imageID id.ImageID, filename, hash string, now time.Time) (*Image, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "filename is required")
	}
	if len(filename) > maxFilenameLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("filename must be at most %d characters", maxFilenameLength))
	}
	return &Image{
		ID:         imageID,
		Filename:   filename,
		Hash:       strings.TrimSpace(hash),
		Status:     StatusUploaded,
		Settings:   DefaultSettings(),
		UploadedAt: now,
		UpdatedAt:  now,
	}, nil
}

// RegisterImageRequest creates a new image record.
type RegisterImageRequest struct {
	Filename string
	Hash     string
	Settings *Settings
}

// UpdateSettingsRequest replaces the settings of an image. Nil fields keep
// their current value.
type UpdateSettingsRequest struct {
	ImageID            id.ImageID
	TransformationType *transform.Degree
	SRID               *SRID
	ResamplingMethod   *ResamplingMethod
	Compression        *Compression
}
