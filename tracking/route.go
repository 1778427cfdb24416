package tracking

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb/geo"
	"go.uber.org/zap"

	"fvm/db/db"
)

// RouteTracker persists the traveled path while the visit is Active: at most
// one point per configured interval regardless of how fast fixes arrive, each
// append also accumulating the haversine leg distance. The in-memory list
// mirrors what was persisted so the final total distance can be recomputed at
// stop time without a store round trip.
type RouteTracker struct {
	visitID  uuid.UUID
	interval time.Duration

	visits db.VisitDBWrapper
	clock  clockwork.Clock
	logger *zap.Logger

	mu          sync.Mutex
	active      bool
	lastPersist time.Time
	points      []db.LocationPoint
}

func NewRouteTracker(visitID uuid.UUID, interval time.Duration,
	visits db.VisitDBWrapper, clock clockwork.Clock, logger *zap.Logger) *RouteTracker {
	return &RouteTracker{
		visitID:  visitID,
		interval: interval,
		visits:   visits,
		clock:    clock,
		logger:   logger,
	}
}

// Activate starts recording. seed is the already-persisted route, present
// when tracking resumes for a visit that is already Active.
func (t *RouteTracker) Activate(seed []db.LocationPoint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active {
		return
	}
	t.active = true
	t.points = append(t.points[:0], seed...)
	if n := len(seed); n > 0 {
		t.lastPersist = seed[n-1].Timestamp
	}
}

func (t *RouteTracker) Deactivate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = false
}

// OnFix implements FixObserver.
func (t *RouteTracker) OnFix(pt db.LocationPoint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return
	}
	now := t.clock.Now()
	if !t.lastPersist.IsZero() && now.Sub(t.lastPersist) < t.interval {
		return
	}

	var leg float64
	if n := len(t.points); n > 0 {
		leg = geo.DistanceHaversine(t.points[n-1].Point(), pt.Point())
	}
	if err := t.visits.AppendRoutePoint(t.visitID, pt, leg); err != nil {
		t.logger.Warn("failed to persist route point",
			zap.String("visit_id", t.visitID.String()), zap.Error(err))
		return
	}
	t.points = append(t.points, pt)
	t.lastPersist = now
}

// Recording reports whether the tracker has been activated.
func (t *RouteTracker) Recording() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// TotalDistance sums the pairwise leg distances of the recorded route.
func (t *RouteTracker) TotalDistance() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return sumLegs(t.points)
}

func sumLegs(points []db.LocationPoint) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += geo.DistanceHaversine(points[i-1].Point(), points[i].Point())
	}
	return total
}
