package timeline

import (
	"math"
	"sort"
	"time"

	"courier-sync/internal/parcel/lifecycle"
	"courier-sync/internal/parcel/model"
)

// CoordEpsilon is the tolerance used when collapsing route endpoints that
// sit on top of an existing point (~0.1m at the equator).
const CoordEpsilon = 1e-6

// Entry is one row of the rendered delivery timeline.
type Entry struct {
	Status    model.ParcelStatus `json:"status"`
	Note      *string            `json:"note,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	// Completed marks entries at or before the parcel's current position in
	// the progress ordering; FAILED/CANCELLED entries are never completed.
	Completed bool `json:"completed"`
}

// BuildTimeline sorts the history ascending by creation time and computes
// the completed flag against the parcel's current status. History entries
// may arrive out of order; the output is always chronological.
func BuildTimeline(history []model.StatusHistoryEntry, currentStatus model.ParcelStatus) []Entry {
	chronological := make([]model.StatusHistoryEntry, len(history))
	copy(chronological, history)
	sort.SliceStable(chronological, func(i, j int) bool {
		return chronological[i].CreatedAt.Before(chronological[j].CreatedAt)
	})

	currentIndex := lifecycle.ProgressIndex(currentStatus)

	entries := make([]Entry, 0, len(chronological))
	for _, h := range chronological {
		entryIndex := lifecycle.ProgressIndex(h.Status)
		entries = append(entries, Entry{
			Status:    h.Status,
			Note:      h.Note,
			CreatedAt: h.CreatedAt,
			Completed: entryIndex != -1 && entryIndex <= currentIndex,
		})
	}
	return entries
}

// RoutePoint is one coordinate of the rendered route.
type RoutePoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// BuildRoute produces the chronological coordinate list for map display:
// live fixes sorted by time, with the pickup coordinate prepended and the
// delivery coordinate appended when they differ from the adjacent route
// endpoint. Degenerate routes of zero to two points are valid.
func BuildRoute(parcel *model.Parcel, points []model.TrackingPoint) []RoutePoint {
	valid := make([]model.TrackingPoint, 0, len(points))
	for _, p := range points {
		if p.HasValidCoords() {
			valid = append(valid, p)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].CreatedAt.Before(valid[j].CreatedAt)
	})

	route := make([]RoutePoint, 0, len(valid)+2)
	for _, p := range valid {
		route = append(route, RoutePoint{Lat: p.Lat, Lng: p.Lng})
	}

	if parcel != nil {
		if pickup := addressPoint(parcel.PickupAddress); pickup != nil {
			if len(route) == 0 || !samePoint(*pickup, route[0]) {
				route = append([]RoutePoint{*pickup}, route...)
			}
		}
		if delivery := addressPoint(parcel.DeliveryAddress); delivery != nil {
			if len(route) == 0 || !samePoint(*delivery, route[len(route)-1]) {
				route = append(route, *delivery)
			}
		}
	}

	return route
}

func addressPoint(addr *model.AddressSnapshot) *RoutePoint {
	if addr == nil || addr.Lat == nil || addr.Lng == nil {
		return nil
	}
	p := RoutePoint{Lat: *addr.Lat, Lng: *addr.Lng}
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return nil
	}
	return &p
}

func samePoint(a, b RoutePoint) bool {
	return math.Abs(a.Lat-b.Lat) <= CoordEpsilon && math.Abs(a.Lng-b.Lng) <= CoordEpsilon
}
