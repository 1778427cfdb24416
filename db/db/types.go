package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

// VisitStatus is the closed set of lifecycle states of a visit. Transitions
// only follow Scheduled->Active->Completed or {Scheduled,Active}->Cancelled.
type VisitStatus string

const (
	VisitScheduled VisitStatus = "scheduled"
	VisitActive    VisitStatus = "active"
	VisitCompleted VisitStatus = "completed"
	VisitCancelled VisitStatus = "cancelled"
)

// BookingStatus mirrors VisitStatus through the synchronizer's mapping table.
// It is never written for lifecycle purposes by anything else.
type BookingStatus string

const (
	BookingApproved   BookingStatus = "approved"
	BookingInProgress BookingStatus = "in_progress"
	BookingCompleted  BookingStatus = "completed"
	BookingCancelled  BookingStatus = "cancelled"
)

// PaymentStatus is owned by the payment collaborator. This module only reads it.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// LocationPoint is an immutable device position sample.
type LocationPoint struct {
	Latitude           float64
	Longitude          float64
	Altitude           float64
	HorizontalAccuracy float64
	Speed              float64
	Course             float64
	Timestamp          time.Time
}

// Point returns the sample as an orb point (lon, lat order).
func (p LocationPoint) Point() orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}

// GeofenceState tracks entry/exit of the destination region for one visit.
type GeofenceState struct {
	IsInside  bool
	EnteredAt *time.Time
	ExitedAt  *time.Time
}

// VisitRecord is the authoritative record of one scheduled dispatch.
// ActualStart/ActualEnd always carry server-assigned timestamps, never the
// device clock.
type VisitRecord struct {
	ID        uuid.UUID
	BookingID uuid.UUID
	WorkerID  uuid.UUID
	ClientID  uuid.UUID

	Address string
	Status  VisitStatus

	ScheduledStart time.Time
	ScheduledEnd   time.Time
	ActualStart    *time.Time
	ActualEnd      *time.Time

	// TotalDistance accumulates haversine leg distances in meters and never
	// decreases.
	TotalDistance float64

	AutoCheckedIn   bool
	CheckInFix      *LocationPoint
	CheckInDistance float64

	Geofence GeofenceState

	ETANotificationSent bool
	ETATriggerDistance  float64
	ETATriggerSeconds   float64

	CancelReason string
}

// BookingRecord is the independently owned record consumed by billing and
// scheduling views. Only Status and LastUpdated are written by this module;
// payment fields belong to the payment collaborator.
type BookingRecord struct {
	ID            uuid.UUID
	ClientID      uuid.UUID
	WorkerID      uuid.UUID
	Status        BookingStatus
	PaymentStatus PaymentStatus
	ScheduledDate time.Time
	Price         float64
	LastUpdated   time.Time
}
