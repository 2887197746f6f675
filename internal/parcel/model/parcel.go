package model

import (
	"math"
	"time"

	"github.com/google/uuid"
)

type ParcelStatus string

const (
	StatusBooked    ParcelStatus = "BOOKED"
	StatusAssigned  ParcelStatus = "ASSIGNED"
	StatusPickedUp  ParcelStatus = "PICKED_UP"
	StatusInTransit ParcelStatus = "IN_TRANSIT"
	StatusDelivered ParcelStatus = "DELIVERED"
	StatusFailed    ParcelStatus = "FAILED"
	StatusCancelled ParcelStatus = "CANCELLED"
)

type PaymentType string

const (
	PaymentPrepaid PaymentType = "PREPAID"
	PaymentCOD     PaymentType = "COD"
)

// Parcel is a single shipment tracked from booking to delivery or failure.
type Parcel struct {
	ID           uuid.UUID    `json:"id"`
	TrackingCode string       `json:"tracking_code"`
	Status       ParcelStatus `json:"status"`

	CustomerID uuid.UUID `json:"customer_id"`
	Agent      *AgentRef `json:"agent,omitempty"`

	PickupAddress   *AddressSnapshot `json:"pickup_address,omitempty"`
	DeliveryAddress *AddressSnapshot `json:"delivery_address,omitempty"`

	Weight      *float64    `json:"weight"`
	PaymentType PaymentType `json:"payment_type"`
	CODAmount   *float64    `json:"cod_amount"`

	// Present only while Status is FAILED.
	FailureReason *string `json:"failure_reason,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeliveredAt *time.Time `json:"delivered_at"`
}

// AgentRef is a weak reference to the assigned delivery agent:
// display fields only, no ownership of the user record.
type AgentRef struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// AddressSnapshot is the pickup/delivery address captured at booking time.
// Coordinates are optional; geocoding is an external concern.
type AddressSnapshot struct {
	Label       string   `json:"label"`
	FullAddress string   `json:"full_address"`
	City        string   `json:"city"`
	Area        string   `json:"area"`
	PostalCode  string   `json:"postal_code"`
	Lat         *float64 `json:"lat,omitempty"`
	Lng         *float64 `json:"lng,omitempty"`
}

// EntrySource tags where a history entry came from. Locally synthesized
// entries never match server-issued ids during merges.
type EntrySource string

const (
	SourceServer EntrySource = "server"
	SourceLocal  EntrySource = "local"
)

// StatusHistoryEntry is one step in a parcel's status history.
// Server-issued entries carry a UUID string id; entries synthesized for
// live-pushed events carry a "live-" prefixed id and SourceLocal.
type StatusHistoryEntry struct {
	ID        string       `json:"id"`
	Source    EntrySource  `json:"source"`
	Status    ParcelStatus `json:"status"`
	Note      *string      `json:"note,omitempty"`
	Actor     *AgentRef    `json:"actor,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// TrackingPoint is a single GPS fix reported for a parcel. Ephemeral live
// points pushed over the realtime channel have an empty ID.
type TrackingPoint struct {
	ID        string     `json:"id,omitempty"`
	ParcelID  uuid.UUID  `json:"parcel_id"`
	AgentID   *uuid.UUID `json:"agent_id,omitempty"`
	Lat       float64    `json:"lat"`
	Lng       float64    `json:"lng"`
	Speed     *float64   `json:"speed,omitempty"`
	Heading   *float64   `json:"heading,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// HasValidCoords reports whether both coordinates are finite numbers.
// Points failing this check must be discarded before route computation.
func (p TrackingPoint) HasValidCoords() bool {
	return isFinite(p.Lat) && isFinite(p.Lng)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
