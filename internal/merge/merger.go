package merge

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"courier-sync/internal/parcel/model"
)

// RefetchFunc is invoked when an event references a parcel this view does
// not hold. The entity may be newly assigned to the view, so the caller
// must refetch the full list instead of dropping the event.
type RefetchFunc func(ev model.ParcelStatusEvent)

// Merger keeps a view's parcel collection consistent with the stream of
// realtime status events. A REST list fetch seeds the base collection;
// events mutate it in place. Events may arrive out of order, duplicated,
// or reference parcels unknown to this view.
type Merger struct {
	mu sync.Mutex

	order  []string                // parcel ids in list order
	byID   map[string]*model.Parcel
	byCode map[string]string // tracking code -> parcel id

	refetch RefetchFunc
	now     func() time.Time
	log     *zap.Logger
}

type Option func(*Merger)

// WithClock overrides the time source (used by the deliveredAt fallback).
func WithClock(now func() time.Time) Option {
	return func(m *Merger) { m.now = now }
}

func WithLogger(log *zap.Logger) Option {
	return func(m *Merger) { m.log = log }
}

func NewMerger(refetch RefetchFunc, opts ...Option) *Merger {
	m := &Merger{
		byID:    make(map[string]*model.Parcel),
		byCode:  make(map[string]string),
		refetch: refetch,
		now:     time.Now,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Reset replaces the held collection with an authoritative REST fetch.
func (m *Merger) Reset(parcels []model.Parcel) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.order = m.order[:0]
	m.byID = make(map[string]*model.Parcel, len(parcels))
	m.byCode = make(map[string]string, len(parcels))

	for i := range parcels {
		p := parcels[i]
		id := p.ID.String()
		if _, exists := m.byID[id]; exists {
			continue
		}
		m.order = append(m.order, id)
		m.byID[id] = &p
		if p.TrackingCode != "" {
			m.byCode[p.TrackingCode] = id
		}
	}
}

// Apply merges one status event into the collection. It returns true when
// the event changed held state. Re-applying the same event is a no-op.
// An event matching no held parcel triggers exactly one refetch callback.
func (m *Merger) Apply(ev model.ParcelStatusEvent) bool {
	m.mu.Lock()

	target := m.lookup(ev)
	if target == nil {
		m.mu.Unlock()
		m.log.Debug("status event for unknown parcel, refetching",
			zap.String("parcel_id", ev.ParcelID),
			zap.String("tracking_code", ev.TrackingCode),
		)
		if m.refetch != nil {
			m.refetch(ev)
		}
		return false
	}
	defer m.mu.Unlock()

	updated := *target
	updated.Status = ev.Status

	if ev.UpdatedAt != nil {
		updated.UpdatedAt = *ev.UpdatedAt
	}

	switch {
	case ev.DeliveredAt != nil:
		t := *ev.DeliveredAt
		updated.DeliveredAt = &t
	case ev.Status == model.StatusDelivered && target.DeliveredAt == nil:
		// The event source omitted deliveredAt; stamping now is a documented
		// fallback, flagged so the gap stays visible in logs.
		t := m.now()
		updated.DeliveredAt = &t
		m.log.Warn("delivered event without deliveredAt, falling back to current time",
			zap.String("parcel_id", ev.ParcelID),
		)
	}

	if ev.Status == model.StatusFailed {
		updated.FailureReason = ev.FailureReason
	} else {
		updated.FailureReason = nil
	}

	if parcelsEqual(target, &updated) {
		return false
	}

	*target = updated
	return true
}

// Remove drops a parcel from the view (admin delete is terminal).
func (m *Merger) Remove(parcelID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.byID[parcelID]
	if !ok {
		return false
	}
	delete(m.byID, parcelID)
	if p.TrackingCode != "" {
		delete(m.byCode, p.TrackingCode)
	}
	for i, id := range m.order {
		if id == parcelID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns a copy of the held parcel with the given id.
func (m *Merger) Get(parcelID string) (model.Parcel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.byID[parcelID]
	if !ok {
		return model.Parcel{}, false
	}
	return *p, true
}

// Parcels returns a snapshot of the collection in list order.
func (m *Merger) Parcels() []model.Parcel {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Parcel, 0, len(m.order))
	for _, id := range m.order {
		if p, ok := m.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out
}

// Len reports how many parcels the view currently holds.
func (m *Merger) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// lookup resolves an event to a held parcel: primary index by id,
// secondary by tracking code for sources that only carry the code.
func (m *Merger) lookup(ev model.ParcelStatusEvent) *model.Parcel {
	if ev.ParcelID != "" {
		if p, ok := m.byID[ev.ParcelID]; ok {
			return p
		}
	}
	if ev.TrackingCode != "" {
		if id, ok := m.byCode[ev.TrackingCode]; ok {
			return m.byID[id]
		}
	}
	return nil
}

func parcelsEqual(a, b *model.Parcel) bool {
	if a.Status != b.Status || !a.UpdatedAt.Equal(b.UpdatedAt) {
		return false
	}
	if !timePtrEqual(a.DeliveredAt, b.DeliveredAt) {
		return false
	}
	return strPtrEqual(a.FailureReason, b.FailureReason)
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
