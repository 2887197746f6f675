package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"courier-sync/internal/ingestion"
	"courier-sync/internal/parcel/lifecycle"
	"courier-sync/internal/parcel/model"
	"courier-sync/internal/storage/postgres/models"
	appErrors "courier-sync/pkg/errors"
)

var ErrTrackingCodeTaken = errors.New("tracking code already exists")

type ParcelRepository struct {
	db *DB
}

func NewParcelRepository(db *DB) *ParcelRepository {
	return &ParcelRepository{db: db}
}

func (r *ParcelRepository) Create(ctx context.Context, p *model.Parcel) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()
	if p.Status == "" {
		p.Status = model.StatusBooked
	}

	dbModel := toParcelModel(p)
	if err := r.db.DB.WithContext(ctx).Create(dbModel).Error; err != nil {
		if strings.Contains(err.Error(), "duplicate key value") {
			return ErrTrackingCodeTaken
		}
		return fmt.Errorf("failed to create parcel: %w", err)
	}

	p.ID = dbModel.ID
	p.CreatedAt = dbModel.CreatedAt
	p.UpdatedAt = dbModel.UpdatedAt

	history := &models.StatusHistoryModel{
		ParcelID:  dbModel.ID,
		Status:    string(p.Status),
		CreatedAt: dbModel.CreatedAt,
	}
	if err := r.db.DB.WithContext(ctx).Create(history).Error; err != nil {
		return fmt.Errorf("failed to record initial status: %w", err)
	}

	return nil
}

func (r *ParcelRepository) GetByID(ctx context.Context, parcelID uuid.UUID) (*model.Parcel, error) {
	var dbModel models.ParcelModel
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", parcelID).
		First(&dbModel).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrParcelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get parcel: %w", err)
	}

	return toParcelEntity(&dbModel), nil
}

func (r *ParcelRepository) GetByTrackingCode(ctx context.Context, code string) (*model.Parcel, error) {
	var dbModel models.ParcelModel
	err := r.db.DB.WithContext(ctx).
		Where("tracking_code = ?", code).
		First(&dbModel).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrParcelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get parcel by tracking code: %w", err)
	}

	return toParcelEntity(&dbModel), nil
}

// ListFilter narrows parcel listings. Zero-value fields are ignored.
type ListFilter struct {
	CustomerID *uuid.UUID
	AgentID    *uuid.UUID
	Status     *model.ParcelStatus
	Page       int
	Limit      int
}

func (r *ParcelRepository) List(ctx context.Context, filter ListFilter) ([]model.Parcel, int64, error) {
	query := r.db.DB.WithContext(ctx).Model(&models.ParcelModel{})

	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.AgentID != nil {
		query = query.Where("agent_id = ?", *filter.AgentID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count parcels: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 20
	}

	var dbModels []models.ParcelModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&dbModels).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list parcels: %w", err)
	}

	parcels := make([]model.Parcel, len(dbModels))
	for i := range dbModels {
		parcels[i] = *toParcelEntity(&dbModels[i])
	}
	return parcels, total, nil
}

// UpdateStatus applies a status transition atomically: the parcel row is
// locked, the transition is checked against the lifecycle rules, and the
// history entry is written in the same transaction.
func (r *ParcelRepository) UpdateStatus(ctx context.Context, parcelID uuid.UUID, target model.ParcelStatus, note *string, actor *model.AgentRef) (*model.Parcel, *model.StatusHistoryEntry, error) {
	var updated *model.Parcel
	var entry *model.StatusHistoryEntry

	err := r.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var dbModel models.ParcelModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", parcelID).
			First(&dbModel).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErrors.ErrParcelNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock parcel: %w", err)
		}

		current := model.ParcelStatus(dbModel.Status)
		noteText := ""
		if note != nil {
			noteText = *note
		}
		if err := lifecycle.ValidateTransition(current, target, noteText); err != nil {
			return err
		}

		now := time.Now()
		updates := map[string]interface{}{
			"status":     string(target),
			"updated_at": now,
		}
		if target == model.StatusFailed {
			updates["failure_reason"] = note
		} else {
			// The reason describes the current failure only; any other
			// status clears it.
			updates["failure_reason"] = nil
		}
		if target == model.StatusDelivered {
			updates["delivered_at"] = now
		}

		if err := tx.Model(&models.ParcelModel{}).
			Where("id = ?", parcelID).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update parcel status: %w", err)
		}

		history := &models.StatusHistoryModel{
			ParcelID:  parcelID,
			Status:    string(target),
			Note:      note,
			CreatedAt: now,
		}
		if actor != nil {
			history.ActorID = &actor.ID
			history.ActorName = &actor.Name
		}
		if err := tx.Create(history).Error; err != nil {
			return fmt.Errorf("failed to record status history: %w", err)
		}

		dbModel.Status = string(target)
		dbModel.UpdatedAt = now
		if target == model.StatusFailed {
			dbModel.FailureReason = note
		} else {
			dbModel.FailureReason = nil
		}
		if target == model.StatusDelivered {
			dbModel.DeliveredAt = &now
		}

		updated = toParcelEntity(&dbModel)
		entry = toHistoryEntry(history)
		return nil
	})

	if err != nil {
		return nil, nil, err
	}
	return updated, entry, nil
}

// ListHistory returns the parcel's status history in chronological order.
func (r *ParcelRepository) ListHistory(ctx context.Context, parcelID uuid.UUID) ([]model.StatusHistoryEntry, error) {
	var dbModels []models.StatusHistoryModel
	err := r.db.DB.WithContext(ctx).
		Where("parcel_id = ?", parcelID).
		Order("created_at ASC").
		Find(&dbModels).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list status history: %w", err)
	}

	entries := make([]model.StatusHistoryEntry, len(dbModels))
	for i := range dbModels {
		entries[i] = *toHistoryEntry(&dbModels[i])
	}
	return entries, nil
}

// AppendTrackingPoint persists a single REST-posted agent fix.
func (r *ParcelRepository) AppendTrackingPoint(ctx context.Context, point *model.TrackingPoint) error {
	if point.AgentID == nil {
		return appErrors.ErrInvalidInput
	}

	dbModel := &models.TrackingPointModel{
		ParcelID:  point.ParcelID,
		AgentID:   *point.AgentID,
		Latitude:  point.Lat,
		Longitude: point.Lng,
		Speed:     point.Speed,
		Heading:   point.Heading,
		CreatedAt: point.CreatedAt,
	}
	if dbModel.CreatedAt.IsZero() {
		dbModel.CreatedAt = time.Now()
	}

	if err := r.db.DB.WithContext(ctx).Create(dbModel).Error; err != nil {
		return fmt.Errorf("failed to insert tracking point: %w", err)
	}

	point.ID = dbModel.ID.String()
	point.CreatedAt = dbModel.CreatedAt
	return nil
}

// BatchInsertTrackingPoints inserts fixes collected by the ingestion
// pipeline.
func (r *ParcelRepository) BatchInsertTrackingPoints(ctx context.Context, records []ingestion.TrackingRecord) error {
	if len(records) == 0 {
		return nil
	}

	dbModels := make([]models.TrackingPointModel, len(records))
	for i, record := range records {
		dbModels[i] = models.TrackingPointModel{
			ParcelID:  record.ParcelID,
			AgentID:   record.AgentID,
			Latitude:  record.Latitude,
			Longitude: record.Longitude,
			Speed:     record.Speed,
			Heading:   record.Heading,
			Accuracy:  record.Accuracy,
			CreatedAt: record.Time,
		}
	}

	return r.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(dbModels, 500).Error; err != nil {
			return fmt.Errorf("failed to insert tracking batch: %w", err)
		}
		return nil
	})
}

// ListTrackingPoints returns persisted fixes for a parcel in
// chronological order, capped at limit.
func (r *ParcelRepository) ListTrackingPoints(ctx context.Context, parcelID uuid.UUID, limit int) ([]model.TrackingPoint, error) {
	if limit < 1 {
		limit = 200
	}

	var dbModels []models.TrackingPointModel
	err := r.db.DB.WithContext(ctx).
		Where("parcel_id = ?", parcelID).
		Order("created_at ASC").
		Limit(limit).
		Find(&dbModels).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tracking points: %w", err)
	}

	points := make([]model.TrackingPoint, len(dbModels))
	for i := range dbModels {
		m := dbModels[i]
		agentID := m.AgentID
		points[i] = model.TrackingPoint{
			ID:        m.ID.String(),
			ParcelID:  m.ParcelID,
			AgentID:   &agentID,
			Lat:       m.Latitude,
			Lng:       m.Longitude,
			Speed:     m.Speed,
			Heading:   m.Heading,
			CreatedAt: m.CreatedAt,
		}
	}
	return points, nil
}

func toParcelModel(p *model.Parcel) *models.ParcelModel {
	dbModel := &models.ParcelModel{
		ID:            p.ID,
		TrackingCode:  p.TrackingCode,
		Status:        string(p.Status),
		CustomerID:    p.CustomerID,
		Weight:        p.Weight,
		PaymentType:   string(p.PaymentType),
		CODAmount:     p.CODAmount,
		FailureReason: p.FailureReason,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
		DeliveredAt:   p.DeliveredAt,
	}

	if p.Agent != nil {
		dbModel.AgentID = &p.Agent.ID
		dbModel.AgentName = &p.Agent.Name
		dbModel.AgentEmail = &p.Agent.Email
	}
	if addr := p.PickupAddress; addr != nil {
		dbModel.PickupLabel = &addr.Label
		dbModel.PickupAddress = &addr.FullAddress
		dbModel.PickupCity = &addr.City
		dbModel.PickupArea = &addr.Area
		dbModel.PickupPostal = &addr.PostalCode
		dbModel.PickupLat = addr.Lat
		dbModel.PickupLng = addr.Lng
	}
	if addr := p.DeliveryAddress; addr != nil {
		dbModel.DeliveryLabel = &addr.Label
		dbModel.DeliveryAddr = &addr.FullAddress
		dbModel.DeliveryCity = &addr.City
		dbModel.DeliveryArea = &addr.Area
		dbModel.DeliveryPostal = &addr.PostalCode
		dbModel.DeliveryLat = addr.Lat
		dbModel.DeliveryLng = addr.Lng
	}

	return dbModel
}

func toParcelEntity(m *models.ParcelModel) *model.Parcel {
	p := &model.Parcel{
		ID:            m.ID,
		TrackingCode:  m.TrackingCode,
		Status:        model.ParcelStatus(m.Status),
		CustomerID:    m.CustomerID,
		Weight:        m.Weight,
		PaymentType:   model.PaymentType(m.PaymentType),
		CODAmount:     m.CODAmount,
		FailureReason: m.FailureReason,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
		DeliveredAt:   m.DeliveredAt,
	}

	if m.AgentID != nil {
		p.Agent = &model.AgentRef{ID: *m.AgentID}
		if m.AgentName != nil {
			p.Agent.Name = *m.AgentName
		}
		if m.AgentEmail != nil {
			p.Agent.Email = *m.AgentEmail
		}
	}
	if m.PickupAddress != nil {
		p.PickupAddress = &model.AddressSnapshot{
			FullAddress: *m.PickupAddress,
			Lat:         m.PickupLat,
			Lng:         m.PickupLng,
		}
		if m.PickupLabel != nil {
			p.PickupAddress.Label = *m.PickupLabel
		}
		if m.PickupCity != nil {
			p.PickupAddress.City = *m.PickupCity
		}
		if m.PickupArea != nil {
			p.PickupAddress.Area = *m.PickupArea
		}
		if m.PickupPostal != nil {
			p.PickupAddress.PostalCode = *m.PickupPostal
		}
	}
	if m.DeliveryAddr != nil {
		p.DeliveryAddress = &model.AddressSnapshot{
			FullAddress: *m.DeliveryAddr,
			Lat:         m.DeliveryLat,
			Lng:         m.DeliveryLng,
		}
		if m.DeliveryLabel != nil {
			p.DeliveryAddress.Label = *m.DeliveryLabel
		}
		if m.DeliveryCity != nil {
			p.DeliveryAddress.City = *m.DeliveryCity
		}
		if m.DeliveryArea != nil {
			p.DeliveryAddress.Area = *m.DeliveryArea
		}
		if m.DeliveryPostal != nil {
			p.DeliveryAddress.PostalCode = *m.DeliveryPostal
		}
	}

	return p
}

func toHistoryEntry(m *models.StatusHistoryModel) *model.StatusHistoryEntry {
	entry := &model.StatusHistoryEntry{
		ID:        m.ID.String(),
		Source:    model.SourceServer,
		Status:    model.ParcelStatus(m.Status),
		Note:      m.Note,
		CreatedAt: m.CreatedAt,
	}
	if m.ActorID != nil {
		entry.Actor = &model.AgentRef{ID: *m.ActorID}
		if m.ActorName != nil {
			entry.Actor.Name = *m.ActorName
		}
	}
	return entry
}
