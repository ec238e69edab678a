// Package audit records what happened to images and their control points.
package audit

import (
	"time"

	id "georef/pkg/domain"
)

// EventType names an auditable action.
type EventType string

const (
	EventImageRegistered      EventType = "image_registered"
	EventImageSettingsUpdated EventType = "image_settings_updated"
	EventGCPAdded             EventType = "gcp_added"
	EventGCPUpdated           EventType = "gcp_updated"
	EventGCPDeleted           EventType = "gcp_deleted"
	EventGCPsLoaded           EventType = "gcps_loaded"
	EventGCPsCleared          EventType = "gcps_cleared"
	EventResidualsComputed    EventType = "residuals_computed"
	EventResidualsCleared     EventType = "residuals_cleared"
)

// Event is emitted from services to capture key actions. It stays
// transport-agnostic so sinks can fan out.
type Event struct {
	Type      EventType  `json:"type"`
	ImageID   id.ImageID `json:"image_id"`
	GCPID     *id.GCPID  `json:"gcp_id,omitempty"`
	Detail    string     `json:"detail,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}
