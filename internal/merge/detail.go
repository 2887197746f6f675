package merge

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"courier-sync/internal/parcel/model"
)

// MaxLivePoints bounds the per-parcel tracking point ring kept in memory.
const MaxLivePoints = 50

const localIDPrefix = "live-"

// NewLocalEntryID synthesizes an id for a history entry created from a
// live-pushed event. The prefix keeps local ids lexically disjoint from
// server-issued UUIDs; matching additionally checks the Source tag.
func NewLocalEntryID(ts time.Time) string {
	return fmt.Sprintf("%s%d", localIDPrefix, ts.UnixMilli())
}

// IsLocalEntryID reports whether the id was synthesized client-side.
func IsLocalEntryID(id string) bool {
	return strings.HasPrefix(id, localIDPrefix)
}

// DetailView merges the status history and tracking points of a single
// parcel: a REST fetch seeds both sets, live events append optimistic
// entries, and a later authoritative refetch replaces (never merges with)
// the locally synthesized ones.
type DetailView struct {
	mu sync.Mutex

	history []model.StatusHistoryEntry
	points  []model.TrackingPoint

	now func() time.Time
}

func NewDetailView(opts ...DetailOption) *DetailView {
	v := &DetailView{now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

type DetailOption func(*DetailView)

func WithDetailClock(now func() time.Time) DetailOption {
	return func(v *DetailView) { v.now = now }
}

// SeedHistory replaces the full history with a server fetch, dropping any
// locally synthesized entries (the fetch is authoritative).
func (v *DetailView) SeedHistory(entries []model.StatusHistoryEntry) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.history = dedupeHistory(entries)
}

// SeedPoints replaces the tracking point ring with a server fetch.
func (v *DetailView) SeedPoints(points []model.TrackingPoint) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.points = v.points[:0]
	for _, p := range points {
		if !p.HasValidCoords() {
			continue
		}
		v.points = append(v.points, p)
	}
	v.capPoints()
}

// ApplyStatus appends an optimistic local history entry for a live status
// event. The entry carries a synthesized id and the local source tag.
func (v *DetailView) ApplyStatus(ev model.ParcelStatusEvent) model.StatusHistoryEntry {
	v.mu.Lock()
	defer v.mu.Unlock()

	ts := v.now()
	entry := model.StatusHistoryEntry{
		ID:        NewLocalEntryID(ts),
		Source:    model.SourceLocal,
		Status:    ev.Status,
		Note:      ev.Note,
		CreatedAt: ts,
	}
	v.history = append(v.history, entry)
	return entry
}

// ApplyTracking appends a live GPS fix, dropping fixes with invalid
// coordinates and keeping only the most recent MaxLivePoints.
func (v *DetailView) ApplyTracking(ev model.TrackingEvent) bool {
	point := model.TrackingPoint{
		Lat:       ev.Lat,
		Lng:       ev.Lng,
		Speed:     ev.Speed,
		Heading:   ev.Heading,
		CreatedAt: ev.CreatedAt,
	}
	if !point.HasValidCoords() {
		return false
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if point.CreatedAt.IsZero() {
		point.CreatedAt = v.now()
	}
	v.points = append(v.points, point)
	v.capPoints()
	return true
}

// History returns a snapshot of the merged history entries.
func (v *DetailView) History() []model.StatusHistoryEntry {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]model.StatusHistoryEntry, len(v.history))
	copy(out, v.history)
	return out
}

// Points returns a snapshot of the tracking point ring.
func (v *DetailView) Points() []model.TrackingPoint {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]model.TrackingPoint, len(v.points))
	copy(out, v.points)
	return out
}

func (v *DetailView) capPoints() {
	if len(v.points) > MaxLivePoints {
		v.points = v.points[len(v.points)-MaxLivePoints:]
	}
}

// dedupeHistory collapses entries sharing a server id to one, keeping the
// first occurrence. Local ids never collapse against server ids.
func dedupeHistory(entries []model.StatusHistoryEntry) []model.StatusHistoryEntry {
	seen := make(map[string]struct{}, len(entries))
	out := make([]model.StatusHistoryEntry, 0, len(entries))
	for _, e := range entries {
		if e.ID != "" && e.Source == model.SourceServer {
			if _, dup := seen[e.ID]; dup {
				continue
			}
			seen[e.ID] = struct{}{}
		}
		out = append(out, e)
	}
	return out
}
