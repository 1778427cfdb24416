package tracking_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fvm/config"
	"fvm/db/db"
	"fvm/db/mem"
	"fvm/geocode"
	"fvm/live"
	"fvm/mq/goch"
	"fvm/mq/mq"
	"fvm/tracking"
)

const testAddress = "12 Harbor Street"

type controllerFixture struct {
	controller *tracking.Controller
	visits     db.VisitDBWrapper
	bookings   db.BookingDBWrapper
	queues     mq.VisitMessageQueueWrapper
	notifier   *spyDispatcher
	bookingID  uuid.UUID
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()
	visits := mem.NewInMemoryVisitDBWrapper()
	bookings := mem.NewInMemoryBookingDBWrapper()
	queues := goch.NewGoChanVisitMessageQueueWrapper()
	notifier := &spyDispatcher{}

	controller := tracking.NewController(config.DefaultTracking(), tracking.ControllerDeps{
		Visits:   visits,
		Bookings: bookings,
		Queues:   queues,
		Geocoder: geocode.Static{testAddress: testCenter},
		Live:     live.NewMemStore(),
		Notifier: notifier,
		Clock:    clockwork.NewRealClock(),
		Logger:   zap.NewNop(),
	})
	t.Cleanup(controller.Shutdown)

	bookingID := uuid.New()
	require.NoError(t, bookings.CreateBooking(&db.BookingRecord{
		ID:     bookingID,
		Status: db.BookingApproved,
	}))

	return &controllerFixture{
		controller: controller,
		visits:     visits,
		bookings:   bookings,
		queues:     queues,
		notifier:   notifier,
		bookingID:  bookingID,
	}
}

func (f *controllerFixture) createVisit(t *testing.T) *db.VisitRecord {
	t.Helper()
	rec, err := f.controller.Create(context.Background(), tracking.CreateVisitParams{
		BookingID:      f.bookingID,
		WorkerID:       uuid.New(),
		ClientID:       uuid.New(),
		Address:        testAddress,
		ScheduledStart: time.Now(),
		ScheduledEnd:   time.Now().Add(2 * time.Hour),
	})
	require.NoError(t, err)
	return rec
}

func TestControllerCreate(t *testing.T) {
	f := newControllerFixture(t)

	_, ch, err := f.queues.GetVisitWriteMessageQueue(mq.ActionCreate).Subscribe(mq.WildcardTopic)
	require.NoError(t, err)

	rec := f.createVisit(t)
	assert.Equal(t, db.VisitScheduled, rec.Status)
	assert.Nil(t, rec.ActualStart)

	msg, ok := receiveVisitMsg(ch, time.Second)
	require.True(t, ok)
	assert.Equal(t, rec.ID, msg.VisitID)
	assert.Equal(t, db.VisitScheduled, msg.Status)

	// unknown bookings are rejected
	_, err = f.controller.Create(context.Background(), tracking.CreateVisitParams{
		BookingID: uuid.New(),
		Address:   testAddress,
	})
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func receiveVisitMsg(ch <-chan mq.VisitWriteMessage, timeout time.Duration) (mq.VisitWriteMessage, bool) {
	select {
	case msg, ok := <-ch:
		return msg, ok
	case <-time.After(timeout):
		return mq.VisitWriteMessage{}, false
	}
}

func TestControllerStartLifecycle(t *testing.T) {
	f := newControllerFixture(t)
	rec := f.createVisit(t)
	ctx := context.Background()

	started, err := f.controller.Start(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, db.VisitActive, started.Status)
	require.NotNil(t, started.ActualStart)

	// starting an active visit is a no-op that keeps the original timestamp
	again, err := f.controller.Start(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, db.VisitActive, again.Status)
	assert.True(t, started.ActualStart.Equal(*again.ActualStart))

	stopped, err := f.controller.Stop(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, db.VisitCompleted, stopped.Status)
	require.NotNil(t, stopped.ActualEnd)

	// terminal states reject further transitions
	_, err = f.controller.Start(ctx, rec.ID)
	assert.ErrorIs(t, err, tracking.ErrInvalidTransition)
	_, err = f.controller.Stop(ctx, rec.ID)
	assert.ErrorIs(t, err, tracking.ErrInvalidTransition)
	_, err = f.controller.Cancel(ctx, rec.ID, "too late")
	assert.ErrorIs(t, err, tracking.ErrInvalidTransition)
}

func TestControllerStopRequiresActive(t *testing.T) {
	f := newControllerFixture(t)
	rec := f.createVisit(t)

	_, err := f.controller.Stop(context.Background(), rec.ID)
	assert.ErrorIs(t, err, tracking.ErrInvalidTransition)

	got, err := f.visits.GetVisit(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, db.VisitScheduled, got.Status)
}

func TestControllerCancelKeepsActualStart(t *testing.T) {
	f := newControllerFixture(t)
	rec := f.createVisit(t)
	ctx := context.Background()

	started, err := f.controller.Start(ctx, rec.ID)
	require.NoError(t, err)

	cancelled, err := f.controller.Cancel(ctx, rec.ID, "client rescheduled")
	require.NoError(t, err)
	assert.Equal(t, db.VisitCancelled, cancelled.Status)
	assert.Equal(t, "client rescheduled", cancelled.CancelReason)
	require.NotNil(t, cancelled.ActualStart)
	assert.True(t, started.ActualStart.Equal(*cancelled.ActualStart))
}

func TestControllerTrack(t *testing.T) {
	f := newControllerFixture(t)
	rec := f.createVisit(t)
	ctx := context.Background()

	require.NoError(t, f.controller.Track(ctx, rec.ID))
	assert.True(t, f.controller.Tracking(rec.ID))

	// tracking twice is a no-op
	require.NoError(t, f.controller.Track(ctx, rec.ID))

	require.NoError(t, f.controller.OfferFix(ctx, rec.ID, fixAt(500)))

	_, err := f.controller.Cancel(ctx, rec.ID, "")
	require.NoError(t, err)
	assert.False(t, f.controller.Tracking(rec.ID))
	assert.ErrorIs(t, f.controller.OfferFix(ctx, rec.ID, fixAt(500)), tracking.ErrNotTracking)
}

func TestControllerTrackFailsWithoutGeocode(t *testing.T) {
	f := newControllerFixture(t)
	rec, err := f.controller.Create(context.Background(), tracking.CreateVisitParams{
		BookingID:    f.bookingID,
		Address:      "nowhere to be found",
		ScheduledEnd: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	err = f.controller.Track(context.Background(), rec.ID)
	assert.ErrorIs(t, err, tracking.ErrGeocodingFailed)
	assert.False(t, f.controller.Tracking(rec.ID))
}

func TestControllerTrackRejectsFinishedVisit(t *testing.T) {
	f := newControllerFixture(t)
	rec := f.createVisit(t)
	ctx := context.Background()

	_, err := f.controller.Cancel(ctx, rec.ID, "")
	require.NoError(t, err)

	err = f.controller.Track(ctx, rec.ID)
	assert.ErrorIs(t, err, tracking.ErrInvalidTransition)
}

func TestControllerAutoCheckInFlow(t *testing.T) {
	f := newControllerFixture(t)
	rec := f.createVisit(t)
	ctx := context.Background()

	require.NoError(t, f.controller.Track(ctx, rec.ID))

	// an inaccurate fix near the destination triggers nothing
	badFix := fixAt(50)
	badFix.HorizontalAccuracy = 80
	require.NoError(t, f.controller.OfferFix(ctx, rec.ID, badFix))
	time.Sleep(150 * time.Millisecond)
	got, err := f.visits.GetVisit(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, db.VisitScheduled, got.Status)

	// an accurate fix inside the check-in radius starts the visit
	require.NoError(t, f.controller.OfferFix(ctx, rec.ID, fixAt(50)))
	require.Eventually(t, func() bool {
		got, err := f.visits.GetVisit(rec.ID)
		return err == nil && got.Status == db.VisitActive && got.AutoCheckedIn
	}, 2*time.Second, 10*time.Millisecond)

	got, err = f.visits.GetVisit(rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ActualStart)
	require.NotNil(t, got.CheckInFix)
	assert.LessOrEqual(t, got.CheckInDistance, 100.0)

	require.Eventually(t, func() bool {
		return len(f.notifier.Calls()) > 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Visit started", f.notifier.Calls()[0].Title)
}

func TestControllerStopFinalizesDistanceFromStore(t *testing.T) {
	f := newControllerFixture(t)
	rec := f.createVisit(t)
	ctx := context.Background()

	_, err := f.controller.Start(ctx, rec.ID)
	require.NoError(t, err)

	// points persisted by another process
	require.NoError(t, f.visits.AppendRoutePoint(rec.ID, fixAt(500), 0))
	require.NoError(t, f.visits.AppendRoutePoint(rec.ID, fixAt(300), 200))

	stopped, err := f.controller.Stop(ctx, rec.ID)
	require.NoError(t, err)
	assert.InDelta(t, 200, stopped.TotalDistance, 5)
}
