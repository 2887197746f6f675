package timeline

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier-sync/internal/parcel/model"
)

func entry(status model.ParcelStatus, at time.Time) model.StatusHistoryEntry {
	return model.StatusHistoryEntry{
		ID:        "e-" + string(status),
		Source:    model.SourceServer,
		Status:    status,
		CreatedAt: at,
	}
}

func TestBuildTimeline_SortsAscending(t *testing.T) {
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	// Out-of-order arrival must not corrupt the rendered order.
	history := []model.StatusHistoryEntry{
		entry(model.StatusInTransit, base.Add(2*time.Hour)),
		entry(model.StatusBooked, base),
		entry(model.StatusPickedUp, base.Add(time.Hour)),
	}

	got := BuildTimeline(history, model.StatusInTransit)
	require.Len(t, got, 3)
	assert.Equal(t, model.StatusBooked, got[0].Status)
	assert.Equal(t, model.StatusPickedUp, got[1].Status)
	assert.Equal(t, model.StatusInTransit, got[2].Status)
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].CreatedAt.Before(got[i-1].CreatedAt))
	}
}

func TestBuildTimeline_CompletedMonotonic(t *testing.T) {
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	history := []model.StatusHistoryEntry{
		entry(model.StatusBooked, base),
		entry(model.StatusAssigned, base.Add(time.Hour)),
		entry(model.StatusPickedUp, base.Add(2*time.Hour)),
		entry(model.StatusInTransit, base.Add(3*time.Hour)),
		entry(model.StatusDelivered, base.Add(4*time.Hour)),
	}

	got := BuildTimeline(history, model.StatusInTransit)
	completed := []bool{true, true, true, true, false}
	for i, e := range got {
		assert.Equal(t, completed[i], e.Completed, "entry %d (%s)", i, e.Status)
	}

	// Once false, never true again for progress-ordered statuses.
	seenIncomplete := false
	for _, e := range got {
		if !e.Completed {
			seenIncomplete = true
		}
		if seenIncomplete {
			assert.False(t, e.Completed)
		}
	}
}

func TestBuildTimeline_FailedNeverCompleted(t *testing.T) {
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	history := []model.StatusHistoryEntry{
		entry(model.StatusBooked, base),
		entry(model.StatusFailed, base.Add(time.Hour)),
		entry(model.StatusCancelled, base.Add(2*time.Hour)),
	}

	got := BuildTimeline(history, model.StatusDelivered)
	assert.True(t, got[0].Completed)
	assert.False(t, got[1].Completed)
	assert.False(t, got[2].Completed)
}

func TestBuildRoute_EpsilonCollapseAtBothEnds(t *testing.T) {
	eps := CoordEpsilon / 2
	pickupLat, pickupLng := 0.0, 0.0
	deliveryLat, deliveryLng := 1.0, 1.0
	parcel := &model.Parcel{
		PickupAddress:   &model.AddressSnapshot{Lat: &pickupLat, Lng: &pickupLng},
		DeliveryAddress: &model.AddressSnapshot{Lat: &deliveryLat, Lng: &deliveryLng},
	}
	points := []model.TrackingPoint{
		{Lat: 0 + eps, Lng: 0 + eps, CreatedAt: time.Unix(1, 0)},
		{Lat: 1, Lng: 1, CreatedAt: time.Unix(2, 0)},
	}

	route := BuildRoute(parcel, points)
	// Pickup collapses into the first fix, delivery into the last: 2 points.
	require.Len(t, route, 2)
	assert.InDelta(t, 0, route[0].Lat, CoordEpsilon)
	assert.InDelta(t, 1, route[1].Lat, CoordEpsilon)
}

func TestBuildRoute_PrependsAndAppendsDistinctEndpoints(t *testing.T) {
	pickupLat, pickupLng := 23.70, 90.35
	deliveryLat, deliveryLng := 23.82, 90.42
	parcel := &model.Parcel{
		PickupAddress:   &model.AddressSnapshot{Lat: &pickupLat, Lng: &pickupLng},
		DeliveryAddress: &model.AddressSnapshot{Lat: &deliveryLat, Lng: &deliveryLng},
	}
	points := []model.TrackingPoint{
		{Lat: 23.75, Lng: 90.38, CreatedAt: time.Unix(2, 0)},
		{Lat: 23.72, Lng: 90.36, CreatedAt: time.Unix(1, 0)},
	}

	route := BuildRoute(parcel, points)
	require.Len(t, route, 4)
	assert.Equal(t, pickupLat, route[0].Lat)
	// Fixes sorted chronologically between the endpoints.
	assert.Equal(t, 23.72, route[1].Lat)
	assert.Equal(t, 23.75, route[2].Lat)
	assert.Equal(t, deliveryLat, route[3].Lat)
}

func TestBuildRoute_DegenerateInputs(t *testing.T) {
	assert.Empty(t, BuildRoute(nil, nil))
	assert.Empty(t, BuildRoute(&model.Parcel{}, nil))

	pickupLat, pickupLng := 1.5, 2.5
	parcel := &model.Parcel{PickupAddress: &model.AddressSnapshot{Lat: &pickupLat, Lng: &pickupLng}}
	route := BuildRoute(parcel, nil)
	require.Len(t, route, 1)
	assert.Equal(t, 1.5, route[0].Lat)
}

func TestBuildRoute_DiscardsInvalidPoints(t *testing.T) {
	points := []model.TrackingPoint{
		{Lat: math.NaN(), Lng: 90.0, CreatedAt: time.Unix(1, 0)},
		{Lat: 23.7, Lng: math.Inf(-1), CreatedAt: time.Unix(2, 0)},
		{Lat: 23.7, Lng: 90.4, CreatedAt: time.Unix(3, 0)},
	}

	route := BuildRoute(nil, points)
	require.Len(t, route, 1)
	assert.Equal(t, 23.7, route[0].Lat)
}
