package ingestion

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TrackingMessage is one GPS fix published by an agent device on the
// courier tracking topic.
type TrackingMessage struct {
	ParcelID  string    `json:"parcel_id"`
	AgentID   string    `json:"agent_id"`
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     *float64  `json:"speed"`
	Heading   *float64  `json:"heading"`
	Accuracy  *float64  `json:"accuracy"`
}

// TrackingRecord is the persisted form of a validated fix.
type TrackingRecord struct {
	Time      time.Time
	ParcelID  uuid.UUID
	AgentID   uuid.UUID
	Latitude  float64
	Longitude float64
	Speed     *float64
	Heading   *float64
	Accuracy  *float64
}

// ParseTrackingMessage decodes a JSON payload into a TrackingMessage.
// Devices with a drifting clock may omit the timestamp; the receive time
// is used instead.
func ParseTrackingMessage(payload []byte) (*TrackingMessage, error) {
	var msg TrackingMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return &msg, nil
}

func recordFromMessage(msg *TrackingMessage) (TrackingRecord, error) {
	parcelID, err := uuid.Parse(msg.ParcelID)
	if err != nil {
		return TrackingRecord{}, err
	}
	agentID, err := uuid.Parse(msg.AgentID)
	if err != nil {
		return TrackingRecord{}, err
	}
	return TrackingRecord{
		Time:      msg.Timestamp,
		ParcelID:  parcelID,
		AgentID:   agentID,
		Latitude:  msg.Latitude,
		Longitude: msg.Longitude,
		Speed:     msg.Speed,
		Heading:   msg.Heading,
		Accuracy:  msg.Accuracy,
	}, nil
}
