package tracking

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"go.uber.org/zap"

	"fvm/db/db"
	"fvm/ingest"
	"fvm/notify"
)

// VisitStarter transitions a visit to Active. Satisfied by Controller.
type VisitStarter interface {
	Start(ctx context.Context, visitID uuid.UUID) (*db.VisitRecord, error)
}

// AutoCheckInEngine starts the visit when a valid fix lands within the
// check-in radius of the destination. It fires at most once per visit: the
// fired flag is flipped with a compare-and-swap before any side effect, so a
// concurrent manual start and a re-entrant Disable during Start cannot race
// it into firing twice.
type AutoCheckInEngine struct {
	visitID  uuid.UUID
	clientID uuid.UUID
	center   orb.Point
	radiusM  float64

	visits   db.VisitDBWrapper
	starter  VisitStarter
	notifier notify.Dispatcher
	modes    ModeSetter
	logger   *zap.Logger

	fired atomic.Bool
}

func NewAutoCheckInEngine(visitID, clientID uuid.UUID, center orb.Point, radiusM float64,
	visits db.VisitDBWrapper, starter VisitStarter, notifier notify.Dispatcher,
	modes ModeSetter, logger *zap.Logger) *AutoCheckInEngine {
	return &AutoCheckInEngine{
		visitID:  visitID,
		clientID: clientID,
		center:   center,
		radiusM:  radiusM,
		visits:   visits,
		starter:  starter,
		notifier: notifier,
		modes:    modes,
		logger:   logger,
	}
}

// Disable permanently stops evaluation. Called when the visit leaves the
// Scheduled state through any path.
func (e *AutoCheckInEngine) Disable() {
	e.fired.Store(true)
}

// OnFix implements FixObserver.
func (e *AutoCheckInEngine) OnFix(pt db.LocationPoint) {
	if e.fired.Load() {
		return
	}
	d := geo.DistanceHaversine(e.center, pt.Point())
	if d > e.radiusM {
		return
	}
	if !e.fired.CompareAndSwap(false, true) {
		return
	}

	ctx := context.Background()
	rec, err := e.starter.Start(ctx, e.visitID)
	if err != nil {
		e.logger.Warn("auto check-in could not start visit",
			zap.String("visit_id", e.visitID.String()), zap.Error(err))
		return
	}

	if _, err := e.visits.UpdateVisitGuarded(e.visitID, []db.VisitStatus{db.VisitActive}, func(r *db.VisitRecord) error {
		fix := pt
		r.AutoCheckedIn = true
		r.CheckInFix = &fix
		r.CheckInDistance = d
		return nil
	}); err != nil {
		e.logger.Warn("failed to persist auto check-in",
			zap.String("visit_id", e.visitID.String()), zap.Error(err))
	}

	e.logger.Info("auto check-in",
		zap.String("visit_id", e.visitID.String()),
		zap.Float64("distance_m", d))

	e.notifier.Dispatch(ctx, e.clientID, "Visit started",
		"Your worker has arrived and the visit has started.",
		map[string]string{
			"visit_id":   e.visitID.String(),
			"booking_id": rec.BookingID.String(),
		})
	e.modes.SetMode(ingest.ModeBatteryEfficient)
}
