package pg

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	dbt "fvm/db/db"
)

// integration tests need a migrated postgres, pointed at by DATABASE_URL
func initTest(t *testing.T) (*gorm.DB, dbt.VisitDBWrapper, dbt.BookingDBWrapper) {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping postgres tests")
	}
	testDB, err := InitPostgresGORM(CreateDSN())
	require.NoError(t, err)
	t.Cleanup(func() {
		testDB.Exec("DELETE FROM route_points;")
		testDB.Exec("DELETE FROM visits;")
		testDB.Exec("DELETE FROM bookings;")
		CloseGORM(testDB)
	})
	return testDB, NewGORMVisitDBWrapper(testDB), NewGORMBookingDBWrapper(testDB)
}

func TestCreateDSNAppendsSchema(t *testing.T) {
	dsn := CreateDSN()
	assert.True(t, strings.Contains(dsn, "search_path=fvm"))
}

func seedVisit(t *testing.T, visits dbt.VisitDBWrapper, bookings dbt.BookingDBWrapper) *dbt.VisitRecord {
	t.Helper()
	booking := &dbt.BookingRecord{
		ID:            uuid.New(),
		ClientID:      uuid.New(),
		WorkerID:      uuid.New(),
		Status:        dbt.BookingApproved,
		PaymentStatus: dbt.PaymentPending,
		ScheduledDate: time.Now(),
		Price:         100,
		LastUpdated:   time.Now(),
	}
	require.NoError(t, bookings.CreateBooking(booking))

	rec := &dbt.VisitRecord{
		ID:             uuid.New(),
		BookingID:      booking.ID,
		WorkerID:       booking.WorkerID,
		ClientID:       booking.ClientID,
		Address:        "12 Harbor Street",
		Status:         dbt.VisitScheduled,
		ScheduledStart: time.Now(),
		ScheduledEnd:   time.Now().Add(2 * time.Hour),
	}
	require.NoError(t, visits.CreateVisit(rec))
	return rec
}

func TestCreateAndGetVisit(t *testing.T) {
	_, visits, bookings := initTest(t)
	rec := seedVisit(t, visits, bookings)

	got, err := visits.GetVisit(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, dbt.VisitScheduled, got.Status)
	assert.Equal(t, rec.Address, got.Address)

	_, err = visits.GetVisit(uuid.New())
	assert.ErrorIs(t, err, dbt.ErrNotFound)
}

func TestUpdateVisitGuarded(t *testing.T) {
	_, visits, bookings := initTest(t)
	rec := seedVisit(t, visits, bookings)

	start := time.Now()
	updated, err := visits.UpdateVisitGuarded(rec.ID,
		[]dbt.VisitStatus{dbt.VisitScheduled},
		func(r *dbt.VisitRecord) error {
			r.Status = dbt.VisitActive
			r.ActualStart = &start
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, dbt.VisitActive, updated.Status)
	require.NotNil(t, updated.ActualStart)

	_, err = visits.UpdateVisitGuarded(rec.ID,
		[]dbt.VisitStatus{dbt.VisitScheduled},
		func(r *dbt.VisitRecord) error {
			r.Status = dbt.VisitCompleted
			return nil
		})
	assert.ErrorIs(t, err, dbt.ErrStatusConflict)

	got, err := visits.GetVisit(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, dbt.VisitActive, got.Status)
}

func TestAppendRoutePoint(t *testing.T) {
	_, visits, bookings := initTest(t)
	rec := seedVisit(t, visits, bookings)

	pt := dbt.LocationPoint{Latitude: 25.0330, Longitude: 121.5654, Timestamp: time.Now()}
	assert.ErrorIs(t, visits.AppendRoutePoint(rec.ID, pt, 0), dbt.ErrStatusConflict)

	_, err := visits.UpdateVisitGuarded(rec.ID,
		[]dbt.VisitStatus{dbt.VisitScheduled},
		func(r *dbt.VisitRecord) error {
			r.Status = dbt.VisitActive
			return nil
		})
	require.NoError(t, err)

	require.NoError(t, visits.AppendRoutePoint(rec.ID, pt, 0))
	pt.Latitude += 0.001
	require.NoError(t, visits.AppendRoutePoint(rec.ID, pt, 111))

	points, err := visits.GetRoutePoints(rec.ID)
	require.NoError(t, err)
	assert.Len(t, points, 2)

	got, err := visits.GetVisit(rec.ID)
	require.NoError(t, err)
	assert.InDelta(t, 111, got.TotalDistance, 1e-6)
}

func TestBookingStatusUpdate(t *testing.T) {
	_, visits, bookings := initTest(t)
	rec := seedVisit(t, visits, bookings)

	at := time.Now()
	require.NoError(t, bookings.UpdateBookingStatus(rec.BookingID, dbt.BookingInProgress, at))

	got, err := bookings.GetBooking(rec.BookingID)
	require.NoError(t, err)
	assert.Equal(t, dbt.BookingInProgress, got.Status)
	// lifecycle writes leave payment fields alone
	assert.Equal(t, dbt.PaymentPending, got.PaymentStatus)
}

func TestSetGeofenceState(t *testing.T) {
	_, visits, bookings := initTest(t)
	rec := seedVisit(t, visits, bookings)

	entered := time.Now()
	require.NoError(t, visits.SetGeofenceState(rec.ID, dbt.GeofenceState{
		IsInside:  true,
		EnteredAt: &entered,
	}))

	got, err := visits.GetVisit(rec.ID)
	require.NoError(t, err)
	assert.True(t, got.Geofence.IsInside)
	require.NotNil(t, got.Geofence.EnteredAt)
}
