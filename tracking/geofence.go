package tracking

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"go.uber.org/zap"

	"fvm/db/db"
	"fvm/ingest"
)

// RegionObserver is notified on geofence boundary crossings.
type RegionObserver interface {
	OnRegionEnter(pt db.LocationPoint)
	OnRegionExit(pt db.LocationPoint)
}

// GeofenceMonitor watches a circular region around the destination. Crossing
// into the region switches the device to high accuracy sampling, crossing out
// switches it back; both crossings are persisted on the visit record. The
// boundary test is strict: distance < radius counts as inside.
type GeofenceMonitor struct {
	visitID uuid.UUID
	center  orb.Point
	radiusM float64

	visits db.VisitDBWrapper
	modes  ModeSetter
	clock  clockwork.Clock
	logger *zap.Logger

	observers []RegionObserver

	armed bool
	state db.GeofenceState
}

func NewGeofenceMonitor(visitID uuid.UUID, center orb.Point, radiusM float64,
	visits db.VisitDBWrapper, modes ModeSetter, clock clockwork.Clock, logger *zap.Logger) *GeofenceMonitor {
	return &GeofenceMonitor{
		visitID: visitID,
		center:  center,
		radiusM: radiusM,
		visits:  visits,
		modes:   modes,
		clock:   clock,
		logger:  logger,
	}
}

// ObserveRegion registers observers. Must be called before the sampler runs.
func (m *GeofenceMonitor) ObserveRegion(obs ...RegionObserver) {
	m.observers = append(m.observers, obs...)
}

// Arm registers the destination region. A center outside valid coordinate
// ranges cannot be monitored and returns ErrRegionMonitoring; the caller
// degrades to a session without proximity features.
func (m *GeofenceMonitor) Arm(initial db.GeofenceState) error {
	lon, lat := m.center.Lon(), m.center.Lat()
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return ErrRegionMonitoring
	}
	if m.radiusM <= 0 {
		return ErrRegionMonitoring
	}
	m.state = initial
	m.armed = true
	return nil
}

// OnFix implements FixObserver. Runs on the sampler goroutine.
func (m *GeofenceMonitor) OnFix(pt db.LocationPoint) {
	if !m.armed {
		return
	}
	inside := geo.DistanceHaversine(m.center, pt.Point()) < m.radiusM
	if inside == m.state.IsInside {
		return
	}

	now := m.clock.Now()
	m.state.IsInside = inside
	if inside {
		m.state.EnteredAt = timePtr(now)
	} else {
		m.state.ExitedAt = timePtr(now)
	}

	if err := m.visits.SetGeofenceState(m.visitID, m.state); err != nil {
		m.logger.Warn("failed to persist geofence state",
			zap.String("visit_id", m.visitID.String()), zap.Error(err))
	}

	if inside {
		m.logger.Info("geofence entered", zap.String("visit_id", m.visitID.String()))
		m.modes.SetMode(ingest.ModeHighAccuracy)
		for _, o := range m.observers {
			o.OnRegionEnter(pt)
		}
	} else {
		m.logger.Info("geofence exited", zap.String("visit_id", m.visitID.String()))
		m.modes.SetMode(ingest.ModeBatteryEfficient)
		for _, o := range m.observers {
			o.OnRegionExit(pt)
		}
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
