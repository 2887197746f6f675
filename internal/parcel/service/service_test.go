package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier-sync/internal/notification"
	"courier-sync/internal/parcel/lifecycle"
	"courier-sync/internal/parcel/model"
	"courier-sync/internal/storage/postgres"
	appErrors "courier-sync/pkg/errors"
)

type fakeParcelStore struct {
	mu      sync.Mutex
	parcels map[uuid.UUID]*model.Parcel
	history map[uuid.UUID][]model.StatusHistoryEntry
	points  map[uuid.UUID][]model.TrackingPoint
}

func newFakeParcelStore() *fakeParcelStore {
	return &fakeParcelStore{
		parcels: make(map[uuid.UUID]*model.Parcel),
		history: make(map[uuid.UUID][]model.StatusHistoryEntry),
		points:  make(map[uuid.UUID][]model.TrackingPoint),
	}
}

func (s *fakeParcelStore) add(p *model.Parcel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parcels[p.ID] = p
	s.history[p.ID] = []model.StatusHistoryEntry{{
		ID:        uuid.NewString(),
		Source:    model.SourceServer,
		Status:    p.Status,
		CreatedAt: p.CreatedAt,
	}}
}

func (s *fakeParcelStore) GetByID(ctx context.Context, parcelID uuid.UUID) (*model.Parcel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parcels[parcelID]
	if !ok {
		return nil, appErrors.ErrParcelNotFound
	}
	copied := *p
	return &copied, nil
}

func (s *fakeParcelStore) GetByTrackingCode(ctx context.Context, code string) (*model.Parcel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.parcels {
		if p.TrackingCode == code {
			copied := *p
			return &copied, nil
		}
	}
	return nil, appErrors.ErrParcelNotFound
}

func (s *fakeParcelStore) List(ctx context.Context, filter postgres.ListFilter) ([]model.Parcel, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Parcel
	for _, p := range s.parcels {
		if filter.CustomerID != nil && p.CustomerID != *filter.CustomerID {
			continue
		}
		if filter.AgentID != nil && (p.Agent == nil || p.Agent.ID != *filter.AgentID) {
			continue
		}
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		out = append(out, *p)
	}
	return out, int64(len(out)), nil
}

func (s *fakeParcelStore) UpdateStatus(ctx context.Context, parcelID uuid.UUID, target model.ParcelStatus, note *string, actor *model.AgentRef) (*model.Parcel, *model.StatusHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.parcels[parcelID]
	if !ok {
		return nil, nil, appErrors.ErrParcelNotFound
	}
	noteText := ""
	if note != nil {
		noteText = *note
	}
	if err := lifecycle.ValidateTransition(p.Status, target, noteText); err != nil {
		return nil, nil, err
	}

	now := time.Now()
	p.Status = target
	p.UpdatedAt = now
	if target == model.StatusFailed {
		p.FailureReason = note
	} else {
		p.FailureReason = nil
	}
	if target == model.StatusDelivered {
		p.DeliveredAt = &now
	}

	entry := model.StatusHistoryEntry{
		ID:        uuid.NewString(),
		Source:    model.SourceServer,
		Status:    target,
		Note:      note,
		Actor:     actor,
		CreatedAt: now,
	}
	s.history[parcelID] = append(s.history[parcelID], entry)

	copied := *p
	return &copied, &entry, nil
}

func (s *fakeParcelStore) ListHistory(ctx context.Context, parcelID uuid.UUID) ([]model.StatusHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.StatusHistoryEntry(nil), s.history[parcelID]...), nil
}

func (s *fakeParcelStore) AppendTrackingPoint(ctx context.Context, point *model.TrackingPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	point.ID = uuid.NewString()
	s.points[point.ParcelID] = append(s.points[point.ParcelID], *point)
	return nil
}

func (s *fakeParcelStore) ListTrackingPoints(ctx context.Context, parcelID uuid.UUID, limit int) ([]model.TrackingPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.TrackingPoint(nil), s.points[parcelID]...), nil
}

type fakeNotifStore struct {
	mu         sync.Mutex
	items      map[uuid.UUID][]notification.Item
	pruneCalls int
}

func (s *fakeNotifStore) Create(ctx context.Context, userID uuid.UUID, item *notification.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items == nil {
		s.items = make(map[uuid.UUID][]notification.Item)
	}
	item.ID = uuid.NewString()
	s.items[userID] = append(s.items[userID], *item)
	return nil
}

func (s *fakeNotifStore) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, item := range s.items[userID] {
		if !item.IsRead {
			n++
		}
	}
	return n, nil
}

func (s *fakeNotifStore) PruneOlderThan(ctx context.Context, retention time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneCalls++
	return nil
}

func (s *fakeNotifStore) prunes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneCalls
}

type fakeFixCache struct {
	mu     sync.Mutex
	latest map[string]model.TrackingEvent
	recent map[string][]model.TrackingEvent
}

func (c *fakeFixCache) StoreLatestFix(ctx context.Context, event model.TrackingEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		c.latest = make(map[string]model.TrackingEvent)
		c.recent = make(map[string][]model.TrackingEvent)
	}
	c.latest[event.ParcelID] = event
	c.recent[event.ParcelID] = append([]model.TrackingEvent{event}, c.recent[event.ParcelID]...)
	return nil
}

func (c *fakeFixCache) LatestFix(ctx context.Context, parcelID string) (model.TrackingEvent, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	event, ok := c.latest[parcelID]
	return event, ok, nil
}

func (c *fakeFixCache) RecentFixes(ctx context.Context, parcelID string) ([]model.TrackingEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.TrackingEvent(nil), c.recent[parcelID]...), nil
}

type broadcastRecord struct {
	room    string
	event   string
	payload interface{}
}

type fakeHub struct {
	mu     sync.Mutex
	record []broadcastRecord
}

func (h *fakeHub) Broadcast(room, event string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record = append(h.record, broadcastRecord{room, event, payload})
}

func (h *fakeHub) byEvent(event string) []broadcastRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []broadcastRecord
	for _, r := range h.record {
		if r.event == event {
			out = append(out, r)
		}
	}
	return out
}

func seedParcel(store *fakeParcelStore, status model.ParcelStatus) *model.Parcel {
	agentID := uuid.New()
	p := &model.Parcel{
		ID:           uuid.New(),
		TrackingCode: "TRK-1001",
		Status:       status,
		CustomerID:   uuid.New(),
		Agent:        &model.AgentRef{ID: agentID, Name: "Agent"},
		CreatedAt:    time.Now().Add(-time.Hour),
		UpdatedAt:    time.Now().Add(-time.Hour),
	}
	store.add(p)
	return p
}

func TestUpdateStatus_BroadcastsAndNotifies(t *testing.T) {
	store := newFakeParcelStore()
	notifs := &fakeNotifStore{}
	hub := &fakeHub{}
	svc := NewService(store, notifs, nil, hub, nil)

	p := seedParcel(store, model.StatusAssigned)

	updated, entry, err := svc.UpdateStatus(context.Background(), p.ID,
		UpdateStatusRequest{Status: string(model.StatusPickedUp)}, p.Agent)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPickedUp, updated.Status)
	assert.Equal(t, model.StatusPickedUp, entry.Status)

	statusEvents := hub.byEvent(model.EventParcelStatus)
	require.Len(t, statusEvents, 1)
	assert.Equal(t, "parcel:"+p.ID.String(), statusEvents[0].room)

	notifEvents := hub.byEvent(model.EventNotificationUser)
	require.Len(t, notifEvents, 1)
	assert.Equal(t, "user:"+p.CustomerID.String(), notifEvents[0].room)

	push, ok := notifEvents[0].payload.(notification.PushPayload)
	require.True(t, ok)
	require.NotNil(t, push.UnreadCount)
	assert.Equal(t, 1, *push.UnreadCount)
}

func TestUpdateStatus_IllegalTransitionRejected(t *testing.T) {
	store := newFakeParcelStore()
	hub := &fakeHub{}
	svc := NewService(store, &fakeNotifStore{}, nil, hub, nil)

	p := seedParcel(store, model.StatusBooked)

	_, _, err := svc.UpdateStatus(context.Background(), p.ID,
		UpdateStatusRequest{Status: string(model.StatusDelivered)}, nil)
	require.Error(t, err)

	appErr, ok := appErrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, appErrors.CodeIllegalTransition, appErr.Code)
	assert.Empty(t, hub.byEvent(model.EventParcelStatus), "no broadcast on rejected transition")
}

func TestUpdateStatus_FailedRequiresNote(t *testing.T) {
	store := newFakeParcelStore()
	svc := NewService(store, &fakeNotifStore{}, nil, &fakeHub{}, nil)

	p := seedParcel(store, model.StatusPickedUp)

	_, _, err := svc.UpdateStatus(context.Background(), p.ID,
		UpdateStatusRequest{Status: string(model.StatusFailed)}, nil)
	require.Error(t, err)

	appErr, ok := appErrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, appErrors.CodeMissingRequiredField, appErr.Code)
}

func TestUpdateStatus_DeliveredSetsDeliveredAt(t *testing.T) {
	store := newFakeParcelStore()
	svc := NewService(store, &fakeNotifStore{}, nil, &fakeHub{}, nil)

	p := seedParcel(store, model.StatusInTransit)

	updated, _, err := svc.UpdateStatus(context.Background(), p.ID,
		UpdateStatusRequest{Status: string(model.StatusDelivered)}, nil)
	require.NoError(t, err)
	require.NotNil(t, updated.DeliveredAt)
}

func TestReportFix_PersistsCachesAndBroadcasts(t *testing.T) {
	store := newFakeParcelStore()
	cache := &fakeFixCache{}
	hub := &fakeHub{}
	svc := NewService(store, nil, cache, hub, nil)

	p := seedParcel(store, model.StatusInTransit)
	agentID := p.Agent.ID

	point, err := svc.ReportFix(context.Background(), agentID, ReportFixRequest{
		ParcelID: p.ID.String(),
		Lat:      23.78,
		Lng:      90.41,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, point.ID)

	cached, ok, err := cache.LatestFix(context.Background(), p.ID.String())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 23.78, cached.Lat)

	events := hub.byEvent(model.EventParcelTracking)
	require.Len(t, events, 1)
	assert.Equal(t, "parcel:"+p.ID.String(), events[0].room)
}

func TestReportFix_RejectsMalformedParcelID(t *testing.T) {
	svc := NewService(newFakeParcelStore(), nil, nil, nil, nil)

	_, err := svc.ReportFix(context.Background(), uuid.New(), ReportFixRequest{
		ParcelID: "nope", Lat: 1, Lng: 2,
	})
	require.ErrorIs(t, err, appErrors.ErrInvalidInput)
}

func TestGetDetail_BuildsTimelineAndRoute(t *testing.T) {
	store := newFakeParcelStore()
	svc := NewService(store, nil, &fakeFixCache{}, nil, nil)

	p := seedParcel(store, model.StatusInTransit)
	agentID := p.Agent.ID
	require.NoError(t, store.AppendTrackingPoint(context.Background(), &model.TrackingPoint{
		ParcelID: p.ID, AgentID: &agentID, Lat: 23.7, Lng: 90.4, CreatedAt: time.Now(),
	}))

	detail, err := svc.GetDetail(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Len(t, detail.History, 1)
	assert.Len(t, detail.Points, 1)
	assert.NotEmpty(t, detail.Timeline)
	assert.NotEmpty(t, detail.Route)
}

func TestGetDetail_IncludesCachedRecentFixes(t *testing.T) {
	store := newFakeParcelStore()
	cache := &fakeFixCache{}
	svc := NewService(store, nil, cache, &fakeHub{}, nil)

	p := seedParcel(store, model.StatusInTransit)
	agentID := p.Agent.ID

	for _, lat := range []float64{23.70, 23.71, 23.72} {
		_, err := svc.ReportFix(context.Background(), agentID, ReportFixRequest{
			ParcelID: p.ID.String(), Lat: lat, Lng: 90.4,
		})
		require.NoError(t, err)
	}

	detail, err := svc.GetDetail(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, detail.Recent, 3)
	assert.Equal(t, 23.72, detail.Recent[0].Lat, "newest fix first")
	require.NotNil(t, detail.Latest)
	assert.Equal(t, 23.72, detail.Latest.Lat)
}

func TestNotificationPruneJob_RunsAndStopsWithContext(t *testing.T) {
	notifs := &fakeNotifStore{}
	svc := NewService(newFakeParcelStore(), notifs, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.StartNotificationPruneJob(ctx, time.Hour, 30*24*time.Hour)
		close(done)
	}()

	// The first prune fires before the first tick.
	require.Eventually(t, func() bool { return notifs.prunes() >= 1 },
		time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("prune job did not stop on context cancel")
	}
}

func TestGetDetailByTrackingCode(t *testing.T) {
	store := newFakeParcelStore()
	svc := NewService(store, nil, nil, nil, nil)

	p := seedParcel(store, model.StatusBooked)

	detail, err := svc.GetDetailByTrackingCode(context.Background(), p.TrackingCode)
	require.NoError(t, err)
	assert.Equal(t, p.ID, detail.Parcel.ID)

	_, err = svc.GetDetailByTrackingCode(context.Background(), "TRK-MISSING")
	require.ErrorIs(t, err, appErrors.ErrParcelNotFound)
}

func TestListScoping(t *testing.T) {
	store := newFakeParcelStore()
	svc := NewService(store, nil, nil, nil, nil)

	p1 := seedParcel(store, model.StatusBooked)
	seedParcel(store, model.StatusBooked)

	mine, total, err := svc.ListForCustomer(context.Background(), p1.CustomerID, ListRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, mine, 1)
	assert.Equal(t, p1.ID, mine[0].ID)

	all, total, err := svc.ListAll(context.Background(), ListRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, all, 2)
}
