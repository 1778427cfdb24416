package tracking

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"go.uber.org/zap"

	"fvm/db/db"
	"fvm/live"
	"fvm/notify"
)

// ETAEstimator publishes an arrival estimate to the live store on every valid
// fix and fires the one-shot "arriving soon" notification when the estimate
// falls inside the configured window. The estimate is straight-line distance
// over the assumed travel speed.
type ETAEstimator struct {
	visitID  uuid.UUID
	clientID uuid.UUID
	center   orb.Point

	speedMPS   float64
	windowLow  time.Duration
	windowHigh time.Duration

	visits   db.VisitDBWrapper
	store    live.Store
	notifier notify.Dispatcher
	clock    clockwork.Clock
	logger   *zap.Logger

	notified atomic.Bool
}

func NewETAEstimator(visitID, clientID uuid.UUID, center orb.Point,
	speedMPS float64, windowLow, windowHigh time.Duration, alreadyNotified bool,
	visits db.VisitDBWrapper, store live.Store, notifier notify.Dispatcher,
	clock clockwork.Clock, logger *zap.Logger) *ETAEstimator {
	e := &ETAEstimator{
		visitID:    visitID,
		clientID:   clientID,
		center:     center,
		speedMPS:   speedMPS,
		windowLow:  windowLow,
		windowHigh: windowHigh,
		visits:     visits,
		store:      store,
		notifier:   notifier,
		clock:      clock,
		logger:     logger,
	}
	e.notified.Store(alreadyNotified)
	return e
}

// OnFix implements FixObserver.
func (e *ETAEstimator) OnFix(pt db.LocationPoint) {
	ctx := context.Background()

	d := geo.DistanceHaversine(e.center, pt.Point())
	etaSeconds := d / e.speedMPS

	if err := e.store.SetSnapshot(ctx, live.Snapshot{
		VisitID:    e.visitID,
		Fix:        pt,
		ETASeconds: etaSeconds,
		UpdatedAt:  e.clock.Now(),
	}); err != nil {
		e.logger.Warn("failed to publish live snapshot",
			zap.String("visit_id", e.visitID.String()), zap.Error(err))
	}

	if e.notified.Load() {
		return
	}
	eta := time.Duration(etaSeconds * float64(time.Second))
	if eta <= e.windowLow || eta > e.windowHigh {
		return
	}
	if !e.notified.CompareAndSwap(false, true) {
		return
	}

	if _, err := e.visits.UpdateVisitGuarded(e.visitID,
		[]db.VisitStatus{db.VisitScheduled, db.VisitActive},
		func(r *db.VisitRecord) error {
			r.ETANotificationSent = true
			r.ETATriggerDistance = d
			r.ETATriggerSeconds = etaSeconds
			return nil
		}); err != nil {
		e.logger.Warn("failed to persist eta trigger",
			zap.String("visit_id", e.visitID.String()), zap.Error(err))
	}

	e.notifier.Dispatch(ctx, e.clientID, "Worker arriving soon",
		"Your worker is about five minutes away.",
		map[string]string{"visit_id": e.visitID.String()})
}
