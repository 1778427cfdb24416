package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no record exists for the given id.
	ErrNotFound = errors.New("record not found")
	// ErrStatusConflict is returned by guarded updates when the current visit
	// status is outside the allowed set. The store is left untouched.
	ErrStatusConflict = errors.New("visit status outside allowed set")
)

// VisitDBWrapper is the store contract for visit records. Implementations
// must make UpdateVisitGuarded atomic with respect to the read-then-write so
// two concurrent transitions for the same visit cannot race.
type VisitDBWrapper interface {
	// Create / Read
	CreateVisit(rec *VisitRecord) error
	GetVisit(id uuid.UUID) (*VisitRecord, error)
	ListVisits() ([]*VisitRecord, error)
	GetRoutePoints(id uuid.UUID) ([]LocationPoint, error)
	// Update
	// UpdateVisitGuarded loads the current record, verifies its status is in
	// allowed, applies mutate and persists the result, all under a per-visit
	// lock. Returns ErrStatusConflict without side effects otherwise.
	UpdateVisitGuarded(id uuid.UUID, allowed []VisitStatus, mutate func(rec *VisitRecord) error) (*VisitRecord, error)
	// AppendRoutePoint appends pt to the visit's route and adds legDistance to
	// TotalDistance in one write. Only Active visits accept route points.
	AppendRoutePoint(id uuid.UUID, pt LocationPoint, legDistance float64) error
	SetGeofenceState(id uuid.UUID, state GeofenceState) error
	// Data Loader
	DataLoaderGetVisitList(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*VisitRecord, error)
	DataLoaderGetRoutePointList(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]LocationPoint, error)
}

// BookingDBWrapper is the store contract for booking records. Lifecycle
// writes are limited to the status and lastUpdated fields; pricing and
// payment fields are owned elsewhere.
type BookingDBWrapper interface {
	CreateBooking(rec *BookingRecord) error
	GetBooking(id uuid.UUID) (*BookingRecord, error)
	// UpdateBookingStatus is idempotent: writing the already-current status is
	// a valid no-op for the caller.
	UpdateBookingStatus(id uuid.UUID, status BookingStatus, at time.Time) error
	// Data Loader
	DataLoaderGetBookingList(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*BookingRecord, error)
}

// StatusIn reports whether s is one of the allowed statuses.
func StatusIn(s VisitStatus, allowed []VisitStatus) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}
