package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"fvm/db/db"
	"fvm/live"
	"fvm/mq/mq"
	"fvm/tracking"
)

// Handler carries the service dependencies of the REST routes.
type Handler struct {
	controller *tracking.Controller
	visits     db.VisitDBWrapper
	bookings   db.BookingDBWrapper
	live       live.Store
	queues     mq.VisitMessageQueueWrapper
	clock      clockwork.Clock
	logger     *zap.Logger
}

type geofenceView struct {
	IsInside  bool       `json:"isInside"`
	EnteredAt *time.Time `json:"enteredAt,omitempty"`
	ExitedAt  *time.Time `json:"exitedAt,omitempty"`
}

type visitView struct {
	ID        uuid.UUID `json:"id"`
	BookingID uuid.UUID `json:"bookingId"`
	WorkerID  uuid.UUID `json:"workerId"`
	ClientID  uuid.UUID `json:"clientId"`

	Address string `json:"address"`
	Status  string `json:"status"`

	ScheduledStart time.Time  `json:"scheduledStart"`
	ScheduledEnd   time.Time  `json:"scheduledEnd"`
	ActualStart    *time.Time `json:"actualStart,omitempty"`
	ActualEnd      *time.Time `json:"actualEnd,omitempty"`

	TotalDistanceM float64 `json:"totalDistanceM"`

	AutoCheckedIn   bool    `json:"autoCheckedIn"`
	CheckInDistance float64 `json:"checkInDistanceM,omitempty"`

	Geofence geofenceView `json:"geofence"`

	ETANotificationSent bool   `json:"etaNotificationSent"`
	CancelReason        string `json:"cancelReason,omitempty"`

	Tracking bool `json:"tracking"`
}

type bookingView struct {
	ID            uuid.UUID `json:"id"`
	ClientID      uuid.UUID `json:"clientId"`
	WorkerID      uuid.UUID `json:"workerId"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"paymentStatus"`
	ScheduledDate time.Time `json:"scheduledDate"`
	Price         float64   `json:"price"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

type routePointView struct {
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	Altitude           float64   `json:"altitude"`
	HorizontalAccuracy float64   `json:"horizontalAccuracy"`
	Speed              float64   `json:"speed"`
	Course             float64   `json:"course"`
	RecordedAt         time.Time `json:"recordedAt"`
}

func (h *Handler) visitToView(rec *db.VisitRecord) visitView {
	return visitView{
		ID:              rec.ID,
		BookingID:       rec.BookingID,
		WorkerID:        rec.WorkerID,
		ClientID:        rec.ClientID,
		Address:         rec.Address,
		Status:          string(rec.Status),
		ScheduledStart:  rec.ScheduledStart,
		ScheduledEnd:    rec.ScheduledEnd,
		ActualStart:     rec.ActualStart,
		ActualEnd:       rec.ActualEnd,
		TotalDistanceM:  rec.TotalDistance,
		AutoCheckedIn:   rec.AutoCheckedIn,
		CheckInDistance: rec.CheckInDistance,
		Geofence: geofenceView{
			IsInside:  rec.Geofence.IsInside,
			EnteredAt: rec.Geofence.EnteredAt,
			ExitedAt:  rec.Geofence.ExitedAt,
		},
		ETANotificationSent: rec.ETANotificationSent,
		CancelReason:        rec.CancelReason,
		Tracking:            h.controller.Tracking(rec.ID),
	}
}

func bookingToView(rec *db.BookingRecord) bookingView {
	return bookingView{
		ID:            rec.ID,
		ClientID:      rec.ClientID,
		WorkerID:      rec.WorkerID,
		Status:        string(rec.Status),
		PaymentStatus: string(rec.PaymentStatus),
		ScheduledDate: rec.ScheduledDate,
		Price:         rec.Price,
		LastUpdated:   rec.LastUpdated,
	}
}

func routePointsToViews(points []db.LocationPoint) []routePointView {
	views := make([]routePointView, 0, len(points))
	for _, pt := range points {
		views = append(views, routePointView{
			Latitude:           pt.Latitude,
			Longitude:          pt.Longitude,
			Altitude:           pt.Altitude,
			HorizontalAccuracy: pt.HorizontalAccuracy,
			Speed:              pt.Speed,
			Course:             pt.Course,
			RecordedAt:         pt.Timestamp,
		})
	}
	return views
}

// abortWithError maps domain errors onto HTTP statuses.
func abortWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, tracking.ErrInvalidTransition), errors.Is(err, tracking.ErrNotTracking):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, tracking.ErrGeocodingFailed):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

type createVisitRequest struct {
	BookingID      uuid.UUID `json:"bookingId" binding:"required"`
	WorkerID       uuid.UUID `json:"workerId" binding:"required"`
	ClientID       uuid.UUID `json:"clientId" binding:"required"`
	Address        string    `json:"address" binding:"required"`
	ScheduledStart time.Time `json:"scheduledStart" binding:"required"`
	ScheduledEnd   time.Time `json:"scheduledEnd" binding:"required"`
}

func (h *Handler) createVisit(c *gin.Context) {
	var req createVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.controller.Create(c.Request.Context(), tracking.CreateVisitParams{
		BookingID:      req.BookingID,
		WorkerID:       req.WorkerID,
		ClientID:       req.ClientID,
		Address:        req.Address,
		ScheduledStart: req.ScheduledStart,
		ScheduledEnd:   req.ScheduledEnd,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.visitToView(rec))
}

type visitListItem struct {
	visitView
	Booking    *bookingView `json:"booking,omitempty"`
	RoutePoint int          `json:"routePointCount"`
}

func (h *Handler) listVisits(c *gin.Context) {
	recs, err := h.visits.ListVisits()
	if err != nil {
		abortWithError(c, err)
		return
	}

	loader := c.MustGet(string(db.DataLoaderKeyVisitData)).(*db.VisitDataLoader)
	ctx := c.Request.Context()

	items := make([]visitListItem, 0, len(recs))
	for _, rec := range recs {
		item := visitListItem{visitView: h.visitToView(rec)}
		if booking, err := loader.GetBookingList.Load(ctx, rec.BookingID); err == nil {
			view := bookingToView(booking)
			item.Booking = &view
		}
		if points, err := loader.GetRoutePointList.Load(ctx, rec.ID); err == nil {
			item.RoutePoint = len(points)
		}
		items = append(items, item)
	}
	c.JSON(http.StatusOK, gin.H{"visits": items})
}

func (h *Handler) getVisit(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rec, err := h.visits.GetVisit(id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.visitToView(rec))
}

func (h *Handler) trackVisit(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.controller.Track(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tracking": true})
}

func (h *Handler) startVisit(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rec, err := h.controller.Start(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.visitToView(rec))
}

func (h *Handler) stopVisit(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rec, err := h.controller.Stop(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.visitToView(rec))
}

type cancelVisitRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancelVisit(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	// an absent body cancels without a reason
	var req cancelVisitRequest
	_ = c.ShouldBindJSON(&req)
	rec, err := h.controller.Cancel(c.Request.Context(), id, req.Reason)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.visitToView(rec))
}

type offerFixRequest struct {
	Latitude           float64    `json:"latitude" binding:"required"`
	Longitude          float64    `json:"longitude" binding:"required"`
	Altitude           float64    `json:"altitude"`
	HorizontalAccuracy float64    `json:"horizontalAccuracy"`
	Speed              float64    `json:"speed"`
	Course             float64    `json:"course"`
	RecordedAt         *time.Time `json:"recordedAt"`
}

func (h *Handler) offerFix(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req offerFixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	recordedAt := h.clock.Now()
	if req.RecordedAt != nil {
		recordedAt = *req.RecordedAt
	}
	err := h.controller.OfferFix(c.Request.Context(), id, db.LocationPoint{
		Latitude:           req.Latitude,
		Longitude:          req.Longitude,
		Altitude:           req.Altitude,
		HorizontalAccuracy: req.HorizontalAccuracy,
		Speed:              req.Speed,
		Course:             req.Course,
		Timestamp:          recordedAt,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

func (h *Handler) getRoute(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rec, err := h.visits.GetVisit(id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	points, err := h.visits.GetRoutePoints(id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"visitId":        id,
		"totalDistanceM": rec.TotalDistance,
		"points":         routePointsToViews(points),
	})
}

func (h *Handler) getProgress(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rec, err := h.visits.GetVisit(id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	info := tracking.Progress(rec, h.clock.Now())
	c.JSON(http.StatusOK, gin.H{
		"visitId":          id,
		"status":           string(rec.Status),
		"elapsedSeconds":   info.Elapsed.Seconds(),
		"remainingSeconds": info.Remaining.Seconds(),
	})
}

func (h *Handler) getLive(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	snap, err := h.live.GetSnapshot(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, live.ErrNoSnapshot) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no live data"})
			return
		}
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

type createBookingRequest struct {
	ClientID      uuid.UUID `json:"clientId" binding:"required"`
	WorkerID      uuid.UUID `json:"workerId" binding:"required"`
	ScheduledDate time.Time `json:"scheduledDate" binding:"required"`
	Price         float64   `json:"price"`
}

func (h *Handler) createBooking(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec := &db.BookingRecord{
		ID:            uuid.New(),
		ClientID:      req.ClientID,
		WorkerID:      req.WorkerID,
		Status:        db.BookingApproved,
		PaymentStatus: db.PaymentPending,
		ScheduledDate: req.ScheduledDate,
		Price:         req.Price,
		LastUpdated:   h.clock.Now(),
	}
	if err := h.bookings.CreateBooking(rec); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bookingToView(rec))
}

func (h *Handler) getBooking(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rec, err := h.bookings.GetBooking(id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookingToView(rec))
}
