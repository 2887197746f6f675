package model

import "time"

// Realtime event names pushed by the server.
const (
	EventParcelStatus     = "parcel:status"
	EventParcelTracking   = "parcel:tracking"
	EventNotificationUser = "notification:user"
)

// Room join commands emitted by clients.
const (
	JoinParcel   = "join:parcel"
	JoinUser     = "join:user"
	JoinCustomer = "join:customer"
	JoinAgent    = "join:agent"
)

// ParcelStatusEvent is the parcel:status payload. ParcelID is the primary
// match key; TrackingCode is a fallback for event sources that only carry
// the human-readable code.
type ParcelStatusEvent struct {
	ParcelID      string       `json:"parcelId"`
	TrackingCode  string       `json:"trackingCode,omitempty"`
	Status        ParcelStatus `json:"status"`
	Note          *string      `json:"note,omitempty"`
	UpdatedAt     *time.Time   `json:"updatedAt,omitempty"`
	DeliveredAt   *time.Time   `json:"deliveredAt,omitempty"`
	FailureReason *string      `json:"failureReason,omitempty"`
}

// TrackingEvent is the parcel:tracking payload: one live GPS fix.
type TrackingEvent struct {
	ParcelID  string    `json:"parcelId"`
	AgentID   string    `json:"agentId,omitempty"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Speed     *float64  `json:"speed,omitempty"`
	Heading   *float64  `json:"heading,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
