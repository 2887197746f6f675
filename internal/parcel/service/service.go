package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"courier-sync/internal/notification"
	"courier-sync/internal/parcel/model"
	"courier-sync/internal/realtime"
	"courier-sync/internal/storage/postgres"
	"courier-sync/internal/timeline"
	appErrors "courier-sync/pkg/errors"
	"courier-sync/pkg/utils"
)

// ParcelStore is the persistence surface the service needs. Implemented
// by postgres.ParcelRepository.
type ParcelStore interface {
	GetByID(ctx context.Context, parcelID uuid.UUID) (*model.Parcel, error)
	GetByTrackingCode(ctx context.Context, code string) (*model.Parcel, error)
	List(ctx context.Context, filter postgres.ListFilter) ([]model.Parcel, int64, error)
	UpdateStatus(ctx context.Context, parcelID uuid.UUID, target model.ParcelStatus, note *string, actor *model.AgentRef) (*model.Parcel, *model.StatusHistoryEntry, error)
	ListHistory(ctx context.Context, parcelID uuid.UUID) ([]model.StatusHistoryEntry, error)
	AppendTrackingPoint(ctx context.Context, point *model.TrackingPoint) error
	ListTrackingPoints(ctx context.Context, parcelID uuid.UUID, limit int) ([]model.TrackingPoint, error)
}

// NotificationStore persists user notifications. Implemented by
// postgres.NotificationRepository.
type NotificationStore interface {
	Create(ctx context.Context, userID uuid.UUID, item *notification.Item) error
	UnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
	PruneOlderThan(ctx context.Context, retention time.Duration) error
}

// FixCache keeps the latest fix per parcel. Implemented by
// cache.TrackingCache.
type FixCache interface {
	StoreLatestFix(ctx context.Context, event model.TrackingEvent) error
	LatestFix(ctx context.Context, parcelID string) (model.TrackingEvent, bool, error)
	RecentFixes(ctx context.Context, parcelID string) ([]model.TrackingEvent, error)
}

// Broadcaster pushes realtime events. Implemented by *realtime.Hub.
type Broadcaster interface {
	Broadcast(room, event string, payload interface{})
}

// Service coordinates parcel reads, status transitions, and the realtime
// fan-out that accompanies them.
type Service struct {
	parcels ParcelStore
	notifs  NotificationStore
	cache   FixCache
	hub     Broadcaster
	log     *zap.Logger
}

func NewService(parcels ParcelStore, notifs NotificationStore, cache FixCache, hub Broadcaster, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		parcels: parcels,
		notifs:  notifs,
		cache:   cache,
		hub:     hub,
		log:     log,
	}
}

// ListRequest narrows a parcel listing.
type ListRequest struct {
	Status string `form:"status"`
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
}

func (s *Service) ListForCustomer(ctx context.Context, customerID uuid.UUID, req ListRequest) ([]model.Parcel, int64, error) {
	filter := listFilter(req)
	filter.CustomerID = &customerID
	return s.parcels.List(ctx, filter)
}

func (s *Service) ListForAgent(ctx context.Context, agentID uuid.UUID, req ListRequest) ([]model.Parcel, int64, error) {
	filter := listFilter(req)
	filter.AgentID = &agentID
	return s.parcels.List(ctx, filter)
}

func (s *Service) ListAll(ctx context.Context, req ListRequest) ([]model.Parcel, int64, error) {
	return s.parcels.List(ctx, listFilter(req))
}

func listFilter(req ListRequest) postgres.ListFilter {
	filter := postgres.ListFilter{Page: req.Page, Limit: req.Limit}
	if req.Status != "" {
		status := model.ParcelStatus(req.Status)
		filter.Status = &status
	}
	return filter
}

// DetailResponse is the full parcel view: status history, persisted
// route points, and the derived timeline and route polyline.
type DetailResponse struct {
	Parcel   *model.Parcel              `json:"parcel"`
	History  []model.StatusHistoryEntry `json:"history"`
	Points   []model.TrackingPoint      `json:"points"`
	Timeline []timeline.Entry           `json:"timeline"`
	Route    []timeline.RoutePoint      `json:"route"`
	Latest   *model.TrackingEvent       `json:"latest_fix,omitempty"`
	// Cached ring of the newest fixes, newest first. Lets the tracking
	// page render live movement before the full point history loads.
	Recent []model.TrackingEvent `json:"recent_fixes,omitempty"`
}

func (s *Service) GetDetail(ctx context.Context, parcelID uuid.UUID) (*DetailResponse, error) {
	parcel, err := s.parcels.GetByID(ctx, parcelID)
	if err != nil {
		return nil, err
	}
	return s.buildDetail(ctx, parcel)
}

func (s *Service) GetDetailByTrackingCode(ctx context.Context, code string) (*DetailResponse, error) {
	parcel, err := s.parcels.GetByTrackingCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.buildDetail(ctx, parcel)
}

func (s *Service) buildDetail(ctx context.Context, parcel *model.Parcel) (*DetailResponse, error) {
	history, err := s.parcels.ListHistory(ctx, parcel.ID)
	if err != nil {
		return nil, err
	}

	points, err := s.parcels.ListTrackingPoints(ctx, parcel.ID, 0)
	if err != nil {
		return nil, err
	}

	resp := &DetailResponse{
		Parcel:   parcel,
		History:  history,
		Points:   points,
		Timeline: timeline.BuildTimeline(history, parcel.Status),
		Route:    timeline.BuildRoute(parcel, points),
	}

	if s.cache != nil {
		if latest, ok, err := s.cache.LatestFix(ctx, parcel.ID.String()); err == nil && ok {
			resp.Latest = &latest
		}
		if recent, err := s.cache.RecentFixes(ctx, parcel.ID.String()); err == nil {
			resp.Recent = recent
		}
	}

	return resp, nil
}

// UpdateStatusRequest is the transition payload posted by agents and
// dispatchers.
type UpdateStatusRequest struct {
	Status string  `json:"status" binding:"required"`
	Note   *string `json:"note"`
}

// UpdateStatus validates and applies a status transition, then fans the
// change out: a parcel:status event to the parcel room and a stored
// notification plus notification:user event to the parcel's customer.
func (s *Service) UpdateStatus(ctx context.Context, parcelID uuid.UUID, req UpdateStatusRequest, actor *model.AgentRef) (*model.Parcel, *model.StatusHistoryEntry, error) {
	target := model.ParcelStatus(req.Status)
	if req.Note != nil {
		clean := utils.SanitizeText(*req.Note)
		req.Note = &clean
	}

	parcel, entry, err := s.parcels.UpdateStatus(ctx, parcelID, target, req.Note, actor)
	if err != nil {
		return nil, nil, err
	}

	event := model.ParcelStatusEvent{
		ParcelID:      parcel.ID.String(),
		TrackingCode:  parcel.TrackingCode,
		Status:        parcel.Status,
		Note:          req.Note,
		UpdatedAt:     &parcel.UpdatedAt,
		DeliveredAt:   parcel.DeliveredAt,
		FailureReason: parcel.FailureReason,
	}

	if s.hub != nil {
		s.hub.Broadcast(realtime.RoomName(realtime.RoomParcel, event.ParcelID), model.EventParcelStatus, event)
	}

	s.notifyCustomer(ctx, parcel, req.Note)

	return parcel, entry, nil
}

func (s *Service) notifyCustomer(ctx context.Context, parcel *model.Parcel, note *string) {
	if s.notifs == nil {
		return
	}

	item := &notification.Item{
		Type:      "parcel_status",
		Title:     "Parcel " + parcel.TrackingCode + " is now " + string(parcel.Status),
		Body:      note,
		CreatedAt: time.Now(),
	}
	if err := s.notifs.Create(ctx, parcel.CustomerID, item); err != nil {
		s.log.Warn("failed to store status notification",
			zap.String("parcel_id", parcel.ID.String()), zap.Error(err))
		return
	}

	unread, err := s.notifs.UnreadCount(ctx, parcel.CustomerID)
	if err != nil {
		s.log.Warn("failed to count unread notifications", zap.Error(err))
		if s.hub != nil {
			s.hub.Broadcast(realtime.RoomName(realtime.RoomUser, parcel.CustomerID.String()),
				model.EventNotificationUser, notification.PushPayload{Notification: *item})
		}
		return
	}

	if s.hub != nil {
		s.hub.Broadcast(realtime.RoomName(realtime.RoomUser, parcel.CustomerID.String()),
			model.EventNotificationUser, notification.PushPayload{Notification: *item, UnreadCount: &unread})
	}
}

// ReportFixRequest is one GPS fix posted by an agent over REST.
type ReportFixRequest struct {
	ParcelID string   `json:"parcel_id" binding:"required,uuid" validate:"required,uuid"`
	Lat      float64  `json:"lat" binding:"latitude" validate:"latitude"`
	Lng      float64  `json:"lng" binding:"longitude" validate:"longitude"`
	Speed    *float64 `json:"speed" binding:"omitempty,gte=0" validate:"omitempty,gte=0"`
	Heading  *float64 `json:"heading" binding:"omitempty,gte=0,lt=360" validate:"omitempty,gte=0,lt=360"`
}

// ReportFix persists an agent-posted fix, refreshes the latest-fix
// cache, and pushes it to parcel room subscribers.
func (s *Service) ReportFix(ctx context.Context, agentID uuid.UUID, req ReportFixRequest) (*model.TrackingPoint, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, appErrors.ErrInvalidInput
	}

	parcelID, err := uuid.Parse(req.ParcelID)
	if err != nil {
		return nil, appErrors.ErrInvalidInput
	}

	point := &model.TrackingPoint{
		ParcelID:  parcelID,
		AgentID:   &agentID,
		Lat:       req.Lat,
		Lng:       req.Lng,
		Speed:     req.Speed,
		Heading:   req.Heading,
		CreatedAt: time.Now(),
	}
	if !point.HasValidCoords() {
		return nil, appErrors.ErrInvalidInput
	}

	if err := s.parcels.AppendTrackingPoint(ctx, point); err != nil {
		return nil, err
	}

	event := model.TrackingEvent{
		ParcelID:  parcelID.String(),
		AgentID:   agentID.String(),
		Lat:       point.Lat,
		Lng:       point.Lng,
		Speed:     point.Speed,
		Heading:   point.Heading,
		CreatedAt: point.CreatedAt,
	}

	if s.cache != nil {
		if err := s.cache.StoreLatestFix(ctx, event); err != nil {
			s.log.Debug("failed to cache latest fix", zap.Error(err))
		}
	}
	if s.hub != nil {
		s.hub.Broadcast(realtime.RoomName(realtime.RoomParcel, event.ParcelID), model.EventParcelTracking, event)
	}

	return point, nil
}
