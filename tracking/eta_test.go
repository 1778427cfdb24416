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

	"fvm/db/db"
	"fvm/db/mem"
	"fvm/live"
	"fvm/tracking"
)

func newETAFixture(t *testing.T, alreadyNotified bool) (db.VisitDBWrapper, *db.VisitRecord, *live.MemStore, *spyDispatcher, *tracking.ETAEstimator) {
	t.Helper()
	store := mem.NewInMemoryVisitDBWrapper()
	rec := &db.VisitRecord{
		ID:        uuid.New(),
		BookingID: uuid.New(),
		ClientID:  uuid.New(),
		Status:    db.VisitScheduled,
		Address:   "center",
	}
	require.NoError(t, store.CreateVisit(rec))

	liveStore := live.NewMemStore()
	notifier := &spyDispatcher{}
	estimator := tracking.NewETAEstimator(rec.ID, rec.ClientID, testCenter,
		1.4, 240*time.Second, 300*time.Second, alreadyNotified,
		store, liveStore, notifier, clockwork.NewFakeClock(), zap.NewNop())
	return store, rec, liveStore, notifier, estimator
}

func TestETAPublishesSnapshotEveryFix(t *testing.T) {
	_, rec, liveStore, _, estimator := newETAFixture(t, false)

	estimator.OnFix(fixAt(700))
	snap, err := liveStore.GetSnapshot(context.Background(), rec.ID)
	require.NoError(t, err)
	// 700 m at 1.4 m/s is 500 s
	assert.InDelta(t, 500, snap.ETASeconds, 5)

	estimator.OnFix(fixAt(140))
	snap, err = liveStore.GetSnapshot(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.InDelta(t, 100, snap.ETASeconds, 5)
}

func TestETANotifiesOnceInsideWindow(t *testing.T) {
	store, rec, _, notifier, estimator := newETAFixture(t, false)

	// 700 m -> 500 s, above the window
	estimator.OnFix(fixAt(700))
	assert.Empty(t, notifier.Calls())

	// 392 m -> 280 s, inside (240, 300]
	estimator.OnFix(fixAt(392))
	calls := notifier.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, rec.ClientID, calls[0].UserID)
	assert.Equal(t, "Worker arriving soon", calls[0].Title)

	got, err := store.GetVisit(rec.ID)
	require.NoError(t, err)
	assert.True(t, got.ETANotificationSent)
	assert.InDelta(t, 392, got.ETATriggerDistance, 5)
	assert.InDelta(t, 280, got.ETATriggerSeconds, 5)

	// staying in the window does not re-fire
	estimator.OnFix(fixAt(380))
	assert.Len(t, notifier.Calls(), 1)
}

func TestETASkipsWindowWhenApproachFast(t *testing.T) {
	_, _, _, notifier, estimator := newETAFixture(t, false)

	// the estimate jumps straight past the window
	estimator.OnFix(fixAt(700))
	estimator.OnFix(fixAt(140))
	assert.Empty(t, notifier.Calls())
}

func TestETANeverRefiresAfterRestart(t *testing.T) {
	_, _, liveStore, notifier, estimator := newETAFixture(t, true)

	estimator.OnFix(fixAt(392))
	assert.Empty(t, notifier.Calls())

	// snapshots still flow
	_, err := liveStore.GetSnapshot(context.Background(), uuid.Nil)
	assert.Error(t, err)
}
