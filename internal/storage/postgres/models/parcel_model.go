package models

import (
	"time"

	"github.com/google/uuid"
)

// ParcelModel represents the database model for parcels
type ParcelModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TrackingCode string    `gorm:"type:varchar(32);not null;uniqueIndex"`
	Status       string    `gorm:"type:parcel_status;not null;default:'BOOKED';index"`

	CustomerID uuid.UUID  `gorm:"type:uuid;not null;index"`
	AgentID    *uuid.UUID `gorm:"type:uuid;index"`
	AgentName  *string    `gorm:"type:varchar(128)"`
	AgentEmail *string    `gorm:"type:varchar(256)"`

	PickupLabel    *string  `gorm:"type:varchar(128)"`
	PickupAddress  *string  `gorm:"type:text"`
	PickupCity     *string  `gorm:"type:varchar(64)"`
	PickupArea     *string  `gorm:"type:varchar(64)"`
	PickupPostal   *string  `gorm:"type:varchar(16)"`
	PickupLat      *float64 `gorm:"type:decimal(10,7)"`
	PickupLng      *float64 `gorm:"type:decimal(10,7)"`
	DeliveryLabel  *string  `gorm:"type:varchar(128)"`
	DeliveryAddr   *string  `gorm:"type:text"`
	DeliveryCity   *string  `gorm:"type:varchar(64)"`
	DeliveryArea   *string  `gorm:"type:varchar(64)"`
	DeliveryPostal *string  `gorm:"type:varchar(16)"`
	DeliveryLat    *float64 `gorm:"type:decimal(10,7)"`
	DeliveryLng    *float64 `gorm:"type:decimal(10,7)"`

	Weight      *float64 `gorm:"type:decimal(8,2)"`
	PaymentType string   `gorm:"type:varchar(16);not null;default:'PREPAID'"`
	CODAmount   *float64 `gorm:"type:decimal(12,2)"`

	FailureReason *string `gorm:"type:text"`

	CreatedAt   time.Time  `gorm:"not null;index"`
	UpdatedAt   time.Time  `gorm:"not null"`
	DeliveredAt *time.Time `gorm:"type:timestamptz"`
}

func (ParcelModel) TableName() string {
	return "parcels"
}

// StatusHistoryModel represents one status transition on a parcel
type StatusHistoryModel struct {
	ID        uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ParcelID  uuid.UUID  `gorm:"type:uuid;not null;index"`
	Status    string     `gorm:"type:parcel_status;not null"`
	Note      *string    `gorm:"type:text"`
	ActorID   *uuid.UUID `gorm:"type:uuid"`
	ActorName *string    `gorm:"type:varchar(128)"`
	CreatedAt time.Time  `gorm:"not null;index"`

	Parcel *ParcelModel `gorm:"foreignKey:ParcelID"`
}

func (StatusHistoryModel) TableName() string {
	return "parcel_status_history"
}

// TrackingPointModel represents one persisted GPS fix for a parcel
type TrackingPointModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ParcelID  uuid.UUID `gorm:"type:uuid;not null;index:idx_tracking_parcel_time"`
	AgentID   uuid.UUID `gorm:"type:uuid;not null;index"`
	Latitude  float64   `gorm:"type:decimal(10,7);not null"`
	Longitude float64   `gorm:"type:decimal(10,7);not null"`
	Speed     *float64  `gorm:"type:decimal(6,2)"`
	Heading   *float64  `gorm:"type:decimal(5,1)"`
	Accuracy  *float64  `gorm:"type:decimal(8,2)"`
	CreatedAt time.Time `gorm:"not null;index:idx_tracking_parcel_time"`
}

func (TrackingPointModel) TableName() string {
	return "tracking_points"
}

// NotificationModel represents a stored user notification
type NotificationModel struct {
	ID        uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;index"`
	Type      string     `gorm:"type:varchar(32);not null"`
	Title     string     `gorm:"type:varchar(256);not null"`
	Body      string     `gorm:"type:text;not null"`
	Payload   []byte     `gorm:"type:jsonb"`
	IsRead    bool       `gorm:"not null;default:false;index"`
	ReadAt    *time.Time `gorm:"type:timestamptz"`
	CreatedAt time.Time  `gorm:"not null;index"`
}

func (NotificationModel) TableName() string {
	return "notifications"
}
