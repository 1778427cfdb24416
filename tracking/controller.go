package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"fvm/config"
	"fvm/db/db"
	"fvm/geocode"
	"fvm/ingest"
	"fvm/live"
	"fvm/mq/mq"
	"fvm/notify"
)

// ControllerDeps bundles the collaborators of the Controller. MQTT is
// optional: when nil, fixes arrive only through the HTTP push path.
type ControllerDeps struct {
	Visits   db.VisitDBWrapper
	Bookings db.BookingDBWrapper
	Queues   mq.VisitMessageQueueWrapper
	Geocoder geocode.Geocoder
	Live     live.Store
	Notifier notify.Dispatcher
	MQTT     *ingest.MQTTClient
	Clock    clockwork.Clock
	Logger   *zap.Logger
}

// Controller owns the visit lifecycle and the per-visit tracking sessions.
// Lifecycle writes go through guarded store updates, so invalid transitions
// leave the record untouched no matter how calls interleave.
type Controller struct {
	cfg  config.Tracking
	deps ControllerDeps

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

func NewController(cfg config.Tracking, deps ControllerDeps) *Controller {
	return &Controller{
		cfg:      cfg,
		deps:     deps,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// CreateVisitParams are the caller-supplied fields of a new visit.
type CreateVisitParams struct {
	BookingID      uuid.UUID
	WorkerID       uuid.UUID
	ClientID       uuid.UUID
	Address        string
	ScheduledStart time.Time
	ScheduledEnd   time.Time
}

// Create persists a new Scheduled visit and announces it.
func (c *Controller) Create(ctx context.Context, params CreateVisitParams) (*db.VisitRecord, error) {
	if _, err := c.deps.Bookings.GetBooking(params.BookingID); err != nil {
		return nil, fmt.Errorf("booking %s: %w", params.BookingID, err)
	}

	rec := &db.VisitRecord{
		ID:             uuid.New(),
		BookingID:      params.BookingID,
		WorkerID:       params.WorkerID,
		ClientID:       params.ClientID,
		Address:        params.Address,
		Status:         db.VisitScheduled,
		ScheduledStart: params.ScheduledStart,
		ScheduledEnd:   params.ScheduledEnd,
	}
	if err := c.deps.Visits.CreateVisit(rec); err != nil {
		return nil, err
	}
	c.publish(mq.ActionCreate, rec)
	return rec, nil
}

// Track starts the tracking session for a Scheduled or Active visit. The
// destination address is resolved exactly once, here; a geocoding failure
// aborts with ErrGeocodingFailed and no session. A region monitoring failure
// only degrades the session: route and ETA still run, geofence and auto
// check-in do not. Calling Track again while a session runs is a no-op.
func (c *Controller) Track(ctx context.Context, visitID uuid.UUID) error {
	rec, err := c.deps.Visits.GetVisit(visitID)
	if err != nil {
		return err
	}
	if !db.StatusIn(rec.Status, []db.VisitStatus{db.VisitScheduled, db.VisitActive}) {
		return fmt.Errorf("track %s visit: %w", rec.Status, ErrInvalidTransition)
	}

	c.mu.Lock()
	if _, ok := c.sessions[visitID]; ok {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	center, err := c.deps.Geocoder.ResolveAddress(ctx, rec.Address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGeocodingFailed, err)
	}

	logger := c.deps.Logger.With(zap.String("visit_id", visitID.String()))
	source := ingest.NewPushSource(32)
	sampler := NewSampler(source, c.cfg.MinAccuracyM, logger)
	route := NewRouteTracker(visitID, c.cfg.RouteInterval, c.deps.Visits, c.deps.Clock, logger)
	eta := NewETAEstimator(visitID, rec.ClientID, center,
		c.cfg.WalkingSpeedMPS, c.cfg.ETAWindowLow, c.cfg.ETAWindowHigh, rec.ETANotificationSent,
		c.deps.Visits, c.deps.Live, c.deps.Notifier, c.deps.Clock, logger)

	observers := []FixObserver{eta, route}

	geofence := NewGeofenceMonitor(visitID, center, c.cfg.GeofenceRadiusM,
		c.deps.Visits, sampler, c.deps.Clock, logger)
	var checkin *AutoCheckInEngine
	if err := geofence.Arm(rec.Geofence); err != nil {
		logger.Warn("region monitoring unavailable, tracking without proximity features",
			zap.Error(err))
	} else {
		checkin = NewAutoCheckInEngine(visitID, rec.ClientID, center, c.cfg.CheckInRadiusM,
			c.deps.Visits, c, c.deps.Notifier, sampler, logger)
		observers = append(observers, geofence, checkin)
	}
	sampler.Observe(observers...)

	runCtx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		visitID: visitID,
		source:  source,
		sampler: sampler,
		checkin: checkin,
		route:   route,
		cancel:  cancel,
		done:    make(chan struct{}),
		logger:  logger,
	}

	if c.deps.MQTT != nil {
		feeder, err := ingest.AttachMQTTFeeder(c.deps.MQTT, visitID, source, logger)
		if err != nil {
			cancel()
			_ = source.Close()
			return err
		}
		sess.feeder = feeder
	}

	if rec.Status == db.VisitActive {
		seed, err := c.deps.Visits.GetRoutePoints(visitID)
		if err != nil {
			logger.Warn("failed to load persisted route", zap.Error(err))
		}
		sess.EnterVisitMode(seed)
	}

	c.mu.Lock()
	if _, ok := c.sessions[visitID]; ok {
		c.mu.Unlock()
		cancel()
		if sess.feeder != nil {
			_ = sess.feeder.Detach()
		}
		_ = source.Close()
		return nil
	}
	c.sessions[visitID] = sess
	c.mu.Unlock()

	go sess.run(runCtx)
	logger.Info("tracking session started", zap.String("address", rec.Address))
	return nil
}

// Start transitions Scheduled to Active and stamps actualStart with server
// time. Starting an already Active visit is an idempotent no-op returning the
// current record; any other status is ErrInvalidTransition with no write.
func (c *Controller) Start(ctx context.Context, visitID uuid.UUID) (*db.VisitRecord, error) {
	var already bool
	rec, err := c.deps.Visits.UpdateVisitGuarded(visitID,
		[]db.VisitStatus{db.VisitScheduled, db.VisitActive},
		func(r *db.VisitRecord) error {
			if r.Status == db.VisitActive {
				already = true
				return nil
			}
			r.Status = db.VisitActive
			r.ActualStart = timePtr(c.deps.Clock.Now())
			return nil
		})
	if err != nil {
		return nil, mapConflict(err)
	}
	if already {
		return rec, nil
	}

	c.publish(mq.ActionUpdate, rec)
	if sess := c.session(visitID); sess != nil {
		sess.EnterVisitMode(nil)
	}
	return rec, nil
}

// Stop transitions Active to Completed, stamps actualEnd and finalizes the
// total distance from the recorded route. The session, when present, is torn
// down synchronously after the status write succeeds.
func (c *Controller) Stop(ctx context.Context, visitID uuid.UUID) (*db.VisitRecord, error) {
	sess := c.session(visitID)

	total, err := c.finalDistance(visitID, sess)
	if err != nil {
		return nil, err
	}

	rec, err := c.deps.Visits.UpdateVisitGuarded(visitID,
		[]db.VisitStatus{db.VisitActive},
		func(r *db.VisitRecord) error {
			r.Status = db.VisitCompleted
			r.ActualEnd = timePtr(c.deps.Clock.Now())
			r.TotalDistance = total
			return nil
		})
	if err != nil {
		return nil, mapConflict(err)
	}

	c.publish(mq.ActionUpdate, rec)
	c.teardown(visitID)
	return rec, nil
}

// Cancel moves a Scheduled or Active visit to Cancelled. actualStart, when
// already set, survives the cancellation.
func (c *Controller) Cancel(ctx context.Context, visitID uuid.UUID, reason string) (*db.VisitRecord, error) {
	rec, err := c.deps.Visits.UpdateVisitGuarded(visitID,
		[]db.VisitStatus{db.VisitScheduled, db.VisitActive},
		func(r *db.VisitRecord) error {
			r.Status = db.VisitCancelled
			r.CancelReason = reason
			return nil
		})
	if err != nil {
		return nil, mapConflict(err)
	}

	c.publish(mq.ActionUpdate, rec)
	c.teardown(visitID)
	return rec, nil
}

// OfferFix feeds a device fix into the visit's running session.
func (c *Controller) OfferFix(ctx context.Context, visitID uuid.UUID, pt db.LocationPoint) error {
	sess := c.session(visitID)
	if sess == nil {
		return ErrNotTracking
	}
	return sess.Offer(pt)
}

// Tracking reports whether a session is running for the visit.
func (c *Controller) Tracking(visitID uuid.UUID) bool {
	return c.session(visitID) != nil
}

// Shutdown closes every running session.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	sessions := make([]*Session, 0, len(c.sessions))
	for id, sess := range c.sessions {
		sessions = append(sessions, sess)
		delete(c.sessions, id)
	}
	c.mu.Unlock()

	for _, sess := range sessions {
		if err := sess.Close(); err != nil {
			c.deps.Logger.Warn("failed to close tracking session",
				zap.String("visit_id", sess.visitID.String()), zap.Error(err))
		}
	}
}

func (c *Controller) session(visitID uuid.UUID) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[visitID]
}

func (c *Controller) teardown(visitID uuid.UUID) {
	c.mu.Lock()
	sess := c.sessions[visitID]
	delete(c.sessions, visitID)
	c.mu.Unlock()
	if sess == nil {
		return
	}
	if err := sess.Close(); err != nil {
		c.deps.Logger.Warn("failed to close tracking session",
			zap.String("visit_id", visitID.String()), zap.Error(err))
	}
}

// finalDistance prefers the session's in-memory route, which always mirrors
// the persisted one, and falls back to a store read when no session ran in
// this process.
func (c *Controller) finalDistance(visitID uuid.UUID, sess *Session) (float64, error) {
	if sess != nil && sess.route.Recording() {
		return sess.route.TotalDistance(), nil
	}
	points, err := c.deps.Visits.GetRoutePoints(visitID)
	if err != nil {
		return 0, err
	}
	return sumLegs(points), nil
}

// publish announces a visit write. Failures are logged, never propagated: the
// store write already happened and the synchronizer re-derives from current
// state on the next trigger.
func (c *Controller) publish(action mq.Action, rec *db.VisitRecord) {
	queue := c.deps.Queues.GetVisitWriteMessageQueue(action)
	if err := queue.Publish(mq.VisitWriteMessage{
		VisitID:   rec.ID,
		BookingID: rec.BookingID,
		Status:    rec.Status,
	}); err != nil {
		c.deps.Logger.Warn("failed to publish visit write",
			zap.String("visit_id", rec.ID.String()), zap.Error(err))
	}
}

func mapConflict(err error) error {
	if errors.Is(err, db.ErrStatusConflict) {
		return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}
	return err
}
