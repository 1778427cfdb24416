package statussync_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fvm/db/db"
	"fvm/db/mem"
	"fvm/mq/goch"
	"fvm/mq/mq"
	"fvm/statussync"
)

type spyDispatcher struct {
	mu     sync.Mutex
	titles []string
}

func (d *spyDispatcher) Dispatch(_ context.Context, _ uuid.UUID, title, _ string, _ map[string]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.titles = append(d.titles, title)
}

func (d *spyDispatcher) Titles() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.titles))
	copy(out, d.titles)
	return out
}

func TestMapStatus(t *testing.T) {
	cases := []struct {
		visit   db.VisitStatus
		booking db.BookingStatus
	}{
		{db.VisitScheduled, db.BookingApproved},
		{db.VisitActive, db.BookingInProgress},
		{db.VisitCompleted, db.BookingCompleted},
		{db.VisitCancelled, db.BookingCancelled},
	}
	for _, c := range cases {
		got, err := statussync.MapStatus(c.visit)
		require.NoError(t, err)
		assert.Equal(t, c.booking, got)
	}

	_, err := statussync.MapStatus(db.VisitStatus("garbage"))
	assert.Error(t, err)
}

type syncFixture struct {
	visits       db.VisitDBWrapper
	bookings     db.BookingDBWrapper
	queues       mq.VisitMessageQueueWrapper
	notifier     *spyDispatcher
	synchronizer *statussync.Synchronizer
	visit        *db.VisitRecord
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	visits := mem.NewInMemoryVisitDBWrapper()
	bookings := mem.NewInMemoryBookingDBWrapper()
	queues := goch.NewGoChanVisitMessageQueueWrapper()
	notifier := &spyDispatcher{}

	booking := &db.BookingRecord{
		ID:            uuid.New(),
		ClientID:      uuid.New(),
		Status:        db.BookingApproved,
		PaymentStatus: db.PaymentConfirmed,
		Price:         150,
	}
	require.NoError(t, bookings.CreateBooking(booking))

	visit := &db.VisitRecord{
		ID:        uuid.New(),
		BookingID: booking.ID,
		ClientID:  booking.ClientID,
		Status:    db.VisitScheduled,
		Address:   "somewhere",
	}
	require.NoError(t, visits.CreateVisit(visit))

	return &syncFixture{
		visits:   visits,
		bookings: bookings,
		queues:   queues,
		notifier: notifier,
		synchronizer: statussync.NewSynchronizer(visits, bookings, queues,
			notifier, clockwork.NewFakeClock(), zap.NewNop()),
		visit: visit,
	}
}

func (f *syncFixture) setVisitStatus(t *testing.T, status db.VisitStatus) {
	t.Helper()
	_, err := f.visits.UpdateVisitGuarded(f.visit.ID,
		[]db.VisitStatus{db.VisitScheduled, db.VisitActive, db.VisitCompleted, db.VisitCancelled},
		func(r *db.VisitRecord) error {
			r.Status = status
			return nil
		})
	require.NoError(t, err)
}

func TestSyncConvergedIsNoOp(t *testing.T) {
	f := newSyncFixture(t)

	_, ch, err := f.queues.GetBookingWriteMessageQueue(mq.ActionUpdate).Subscribe(mq.WildcardTopic)
	require.NoError(t, err)

	// Scheduled already maps to the booking's Approved
	require.NoError(t, f.synchronizer.Sync(context.Background(), f.visit.ID))

	booking, err := f.bookings.GetBooking(f.visit.BookingID)
	require.NoError(t, err)
	assert.Equal(t, db.BookingApproved, booking.Status)
	assert.True(t, booking.LastUpdated.IsZero(), "converged sync must not write")
	assert.Empty(t, f.notifier.Titles())

	select {
	case msg := <-ch:
		t.Fatalf("unexpected booking write event: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSyncActiveVisitMovesBookingInProgress(t *testing.T) {
	f := newSyncFixture(t)
	f.setVisitStatus(t, db.VisitActive)

	_, ch, err := f.queues.GetBookingWriteMessageQueue(mq.ActionUpdate).Subscribe(mq.WildcardTopic)
	require.NoError(t, err)

	require.NoError(t, f.synchronizer.Sync(context.Background(), f.visit.ID))

	booking, err := f.bookings.GetBooking(f.visit.BookingID)
	require.NoError(t, err)
	assert.Equal(t, db.BookingInProgress, booking.Status)
	// payment fields are untouched
	assert.Equal(t, db.PaymentConfirmed, booking.PaymentStatus)

	select {
	case msg := <-ch:
		assert.Equal(t, f.visit.BookingID, msg.BookingID)
		assert.Equal(t, db.BookingInProgress, msg.Status)
	case <-time.After(time.Second):
		t.Fatal("expected a booking write event")
	}

	assert.Equal(t, []string{"Booking in progress"}, f.notifier.Titles())

	// re-delivery of the same trigger converges silently
	require.NoError(t, f.synchronizer.Sync(context.Background(), f.visit.ID))
	assert.Equal(t, []string{"Booking in progress"}, f.notifier.Titles())
}

func TestSyncCompletedNotifies(t *testing.T) {
	f := newSyncFixture(t)
	f.setVisitStatus(t, db.VisitCompleted)

	require.NoError(t, f.synchronizer.Sync(context.Background(), f.visit.ID))

	booking, err := f.bookings.GetBooking(f.visit.BookingID)
	require.NoError(t, err)
	assert.Equal(t, db.BookingCompleted, booking.Status)
	assert.Equal(t, []string{"Booking completed"}, f.notifier.Titles())
}

func TestSyncCancelledDoesNotNotify(t *testing.T) {
	f := newSyncFixture(t)
	f.setVisitStatus(t, db.VisitCancelled)

	require.NoError(t, f.synchronizer.Sync(context.Background(), f.visit.ID))

	booking, err := f.bookings.GetBooking(f.visit.BookingID)
	require.NoError(t, err)
	assert.Equal(t, db.BookingCancelled, booking.Status)
	assert.Empty(t, f.notifier.Titles())
}

func TestSyncReReadsCurrentState(t *testing.T) {
	f := newSyncFixture(t)

	// the visit moved on after the trigger was published: the stale payload
	// must not matter because sync reads the record, not the message
	f.setVisitStatus(t, db.VisitActive)
	f.setVisitStatus(t, db.VisitCompleted)

	require.NoError(t, f.synchronizer.Sync(context.Background(), f.visit.ID))

	booking, err := f.bookings.GetBooking(f.visit.BookingID)
	require.NoError(t, err)
	assert.Equal(t, db.BookingCompleted, booking.Status)
}

func TestSyncUnknownVisit(t *testing.T) {
	f := newSyncFixture(t)
	err := f.synchronizer.Sync(context.Background(), uuid.New())
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestRunSyncsOnVisitWrites(t *testing.T) {
	f := newSyncFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.synchronizer.Run(ctx)
	}()

	// give the wildcard subscriptions a moment to attach
	time.Sleep(50 * time.Millisecond)

	f.setVisitStatus(t, db.VisitActive)
	require.NoError(t, f.queues.GetVisitWriteMessageQueue(mq.ActionUpdate).Publish(mq.VisitWriteMessage{
		VisitID:   f.visit.ID,
		BookingID: f.visit.BookingID,
		Status:    db.VisitActive,
	}))

	require.Eventually(t, func() bool {
		booking, err := f.bookings.GetBooking(f.visit.BookingID)
		return err == nil && booking.Status == db.BookingInProgress
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancel")
	}
}
