package ingestion

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error [%s]: %s", e.Field, e.Message)
}

// ValidateTrackingMessage validates a GPS fix before it enters the
// pipeline. Non-finite coordinates are rejected here so downstream
// consumers never see them.
func ValidateTrackingMessage(msg *TrackingMessage) error {
	if msg.ParcelID == "" {
		return &ValidationError{Field: "parcel_id", Message: "parcel_id is required"}
	}
	if _, err := uuid.Parse(msg.ParcelID); err != nil {
		return &ValidationError{Field: "parcel_id", Message: "parcel_id must be valid UUID"}
	}

	if msg.AgentID == "" {
		return &ValidationError{Field: "agent_id", Message: "agent_id is required"}
	}
	if _, err := uuid.Parse(msg.AgentID); err != nil {
		return &ValidationError{Field: "agent_id", Message: "agent_id must be valid UUID"}
	}

	if msg.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Message: "timestamp is required"}
	}

	if !isFinite(msg.Latitude) || msg.Latitude < -90 || msg.Latitude > 90 {
		return &ValidationError{Field: "latitude", Message: "latitude must be a finite value between -90 and 90"}
	}

	if !isFinite(msg.Longitude) || msg.Longitude < -180 || msg.Longitude > 180 {
		return &ValidationError{Field: "longitude", Message: "longitude must be a finite value between -180 and 180"}
	}

	if msg.Speed != nil {
		if !isFinite(*msg.Speed) || *msg.Speed < 0 {
			return &ValidationError{Field: "speed", Message: "speed must be non-negative"}
		}
	}

	if msg.Heading != nil {
		if !isFinite(*msg.Heading) || *msg.Heading < 0 || *msg.Heading >= 360 {
			return &ValidationError{Field: "heading", Message: "heading must be between 0 and 360"}
		}
	}

	if msg.Accuracy != nil {
		if !isFinite(*msg.Accuracy) || *msg.Accuracy < 0 {
			return &ValidationError{Field: "accuracy", Message: "accuracy must be non-negative"}
		}
	}

	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
