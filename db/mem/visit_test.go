package mem_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbt "fvm/db/db"
	"fvm/db/mem"
)

func newVisit() *dbt.VisitRecord {
	now := time.Now()
	return &dbt.VisitRecord{
		ID:             uuid.New(),
		BookingID:      uuid.New(),
		WorkerID:       uuid.New(),
		ClientID:       uuid.New(),
		Address:        "12 Harbor Street",
		Status:         dbt.VisitScheduled,
		ScheduledStart: now,
		ScheduledEnd:   now.Add(2 * time.Hour),
	}
}

func TestCreateAndGetVisit(t *testing.T) {
	store := mem.NewInMemoryVisitDBWrapper()

	rec := newVisit()
	require.NoError(t, store.CreateVisit(rec))

	got, err := store.GetVisit(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, dbt.VisitScheduled, got.Status)
	assert.Equal(t, rec.Address, got.Address)

	// duplicate IDs are rejected
	err = store.CreateVisit(rec)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = store.GetVisit(uuid.New())
	assert.ErrorIs(t, err, dbt.ErrNotFound)
}

func TestGetVisitReturnsCopy(t *testing.T) {
	store := mem.NewInMemoryVisitDBWrapper()

	rec := newVisit()
	require.NoError(t, store.CreateVisit(rec))

	got, err := store.GetVisit(rec.ID)
	require.NoError(t, err)
	got.Status = dbt.VisitCancelled

	again, err := store.GetVisit(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, dbt.VisitScheduled, again.Status)
}

func TestUpdateVisitGuarded(t *testing.T) {
	store := mem.NewInMemoryVisitDBWrapper()

	rec := newVisit()
	require.NoError(t, store.CreateVisit(rec))

	// allowed transition applies the mutation
	start := time.Now()
	updated, err := store.UpdateVisitGuarded(rec.ID,
		[]dbt.VisitStatus{dbt.VisitScheduled},
		func(r *dbt.VisitRecord) error {
			r.Status = dbt.VisitActive
			r.ActualStart = &start
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, dbt.VisitActive, updated.Status)
	require.NotNil(t, updated.ActualStart)

	// status now outside the allowed set
	_, err = store.UpdateVisitGuarded(rec.ID,
		[]dbt.VisitStatus{dbt.VisitScheduled},
		func(r *dbt.VisitRecord) error {
			r.Status = dbt.VisitCancelled
			return nil
		})
	assert.ErrorIs(t, err, dbt.ErrStatusConflict)

	got, err := store.GetVisit(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, dbt.VisitActive, got.Status)

	// a failing mutate leaves the record untouched
	boom := errors.New("boom")
	_, err = store.UpdateVisitGuarded(rec.ID,
		[]dbt.VisitStatus{dbt.VisitActive},
		func(r *dbt.VisitRecord) error {
			r.Status = dbt.VisitCompleted
			return boom
		})
	assert.ErrorIs(t, err, boom)

	got, err = store.GetVisit(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, dbt.VisitActive, got.Status)

	_, err = store.UpdateVisitGuarded(uuid.New(), []dbt.VisitStatus{dbt.VisitScheduled}, func(r *dbt.VisitRecord) error { return nil })
	assert.ErrorIs(t, err, dbt.ErrNotFound)
}

func TestAppendRoutePoint(t *testing.T) {
	store := mem.NewInMemoryVisitDBWrapper()

	rec := newVisit()
	require.NoError(t, store.CreateVisit(rec))

	pt := dbt.LocationPoint{Latitude: 25.03, Longitude: 121.56, Timestamp: time.Now()}

	// only active visits record route points
	err := store.AppendRoutePoint(rec.ID, pt, 0)
	assert.ErrorIs(t, err, dbt.ErrStatusConflict)

	_, err = store.UpdateVisitGuarded(rec.ID, []dbt.VisitStatus{dbt.VisitScheduled}, func(r *dbt.VisitRecord) error {
		r.Status = dbt.VisitActive
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, store.AppendRoutePoint(rec.ID, pt, 0))
	pt2 := pt
	pt2.Latitude += 0.001
	require.NoError(t, store.AppendRoutePoint(rec.ID, pt2, 111.0))

	points, err := store.GetRoutePoints(rec.ID)
	require.NoError(t, err)
	assert.Len(t, points, 2)

	got, err := store.GetVisit(rec.ID)
	require.NoError(t, err)
	assert.InDelta(t, 111.0, got.TotalDistance, 1e-9)
}

func TestSetGeofenceState(t *testing.T) {
	store := mem.NewInMemoryVisitDBWrapper()

	rec := newVisit()
	require.NoError(t, store.CreateVisit(rec))

	entered := time.Now()
	require.NoError(t, store.SetGeofenceState(rec.ID, dbt.GeofenceState{
		IsInside:  true,
		EnteredAt: &entered,
	}))

	got, err := store.GetVisit(rec.ID)
	require.NoError(t, err)
	assert.True(t, got.Geofence.IsInside)
	require.NotNil(t, got.Geofence.EnteredAt)
	assert.Nil(t, got.Geofence.ExitedAt)

	assert.ErrorIs(t, store.SetGeofenceState(uuid.New(), dbt.GeofenceState{}), dbt.ErrNotFound)
}

func TestVisitDataLoaderBatches(t *testing.T) {
	visits := mem.NewInMemoryVisitDBWrapper()
	bookings := mem.NewInMemoryBookingDBWrapper()

	rec := newVisit()
	require.NoError(t, visits.CreateVisit(rec))
	require.NoError(t, bookings.CreateBooking(&dbt.BookingRecord{
		ID:       rec.BookingID,
		ClientID: rec.ClientID,
		WorkerID: rec.WorkerID,
		Status:   dbt.BookingApproved,
	}))

	loader := dbt.NewVisitDataLoader(visits, bookings)
	ctx := context.Background()

	visitRec, err := loader.GetVisitList.Load(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, visitRec.ID)

	booking, err := loader.GetBookingList.Load(ctx, rec.BookingID)
	require.NoError(t, err)
	assert.Equal(t, dbt.BookingApproved, booking.Status)

	points, err := loader.GetRoutePointList.Load(ctx, rec.ID)
	require.NoError(t, err)
	assert.Empty(t, points)
}
