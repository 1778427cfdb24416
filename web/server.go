package web

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"fvm/db/db"
	"fvm/live"
	"fvm/mq/mq"
	"fvm/tracking"
)

// Deps are the service components the HTTP layer exposes.
type Deps struct {
	Controller *tracking.Controller
	Visits     db.VisitDBWrapper
	Bookings   db.BookingDBWrapper
	Live       live.Store
	Queues     mq.VisitMessageQueueWrapper
	Clock      clockwork.Clock
	Logger     *zap.Logger
}

// NewRouter builds the gin engine with all routes and middlewares attached.
func NewRouter(deps Deps) *gin.Engine {
	h := &Handler{
		controller: deps.Controller,
		visits:     deps.Visits,
		bookings:   deps.Bookings,
		live:       deps.Live,
		queues:     deps.Queues,
		clock:      deps.Clock,
		logger:     deps.Logger,
	}

	r := gin.New()
	setupMiddlewares(r, deps.Visits, deps.Bookings)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.POST("/visits", h.createVisit)
		api.GET("/visits", h.listVisits)
		api.GET("/visits/:id", h.getVisit)
		api.POST("/visits/:id/track", h.trackVisit)
		api.POST("/visits/:id/start", h.startVisit)
		api.POST("/visits/:id/stop", h.stopVisit)
		api.POST("/visits/:id/cancel", h.cancelVisit)
		api.POST("/visits/:id/fixes", h.offerFix)
		api.GET("/visits/:id/route", h.getRoute)
		api.GET("/visits/:id/progress", h.getProgress)
		api.GET("/visits/:id/live", h.getLive)
		api.GET("/visits/:id/ws", h.visitFeed)

		api.POST("/bookings", h.createBooking)
		api.GET("/bookings/:id", h.getBooking)
	}
	return r
}

// Serve runs the HTTP server on the given port, blocking until it exits.
func Serve(port int, deps Deps) error {
	r := NewRouter(deps)
	return r.Run(fmt.Sprintf(":%d", port))
}
