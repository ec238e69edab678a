// Package domain holds the typed identifiers shared across modules.
//
// IDs wrap uuid.UUID so an image ID can never be passed where a GCP ID is
// expected. Parsing happens once, at trust boundaries (HTTP paths, JSON
// bodies); the rest of the code only sees validated values.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "georef/pkg/domain-errors"
)

type (
	ImageID uuid.UUID
	GCPID   uuid.UUID
)

// NewImageID returns a fresh random image ID.
func NewImageID() ImageID { return ImageID(uuid.New()) }

// NewGCPID returns a fresh random GCP ID.
func NewGCPID() GCPID { return GCPID(uuid.New()) }

func ParseImageID(s string) (ImageID, error) {
	u, err := parseUUID(s, "image_id")
	return ImageID(u), err
}

func ParseGCPID(s string) (GCPID, error) {
	u, err := parseUUID(s, "gcp_id")
	return GCPID(u), err
}

func (id ImageID) String() string { return uuid.UUID(id).String() }
func (id ImageID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id ImageID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *ImageID) UnmarshalText(text []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(text)
}

func (id GCPID) String() string { return uuid.UUID(id).String() }
func (id GCPID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id GCPID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *GCPID) UnmarshalText(text []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(text)
}

func parseUUID(s, field string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" cannot be nil")
	}
	return u, nil
}
