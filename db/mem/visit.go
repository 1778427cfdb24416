package mem

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	dbt "fvm/db/db"
)

// inMemoryVisitDBWrapper is a map-backed implementation of dbt.VisitDBWrapper
// used in development and tests. The single mutex makes guarded updates
// trivially atomic.
type inMemoryVisitDBWrapper struct {
	visits map[uuid.UUID]*dbt.VisitRecord
	routes map[uuid.UUID][]dbt.LocationPoint

	mu sync.RWMutex
}

// NewInMemoryVisitDBWrapper creates and returns a new in-memory visit store.
func NewInMemoryVisitDBWrapper() dbt.VisitDBWrapper {
	return &inMemoryVisitDBWrapper{
		visits: make(map[uuid.UUID]*dbt.VisitRecord),
		routes: make(map[uuid.UUID][]dbt.LocationPoint),
	}
}

func (db *inMemoryVisitDBWrapper) CreateVisit(rec *dbt.VisitRecord) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.visits[rec.ID]; exists {
		return fmt.Errorf("visit with ID %s already exists", rec.ID)
	}

	// Store a copy to prevent external modification of the original pointer.
	recCopy := copyVisit(rec)
	db.visits[rec.ID] = recCopy
	db.routes[rec.ID] = []dbt.LocationPoint{}
	return nil
}

func (db *inMemoryVisitDBWrapper) GetVisit(id uuid.UUID) (*dbt.VisitRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rec, exists := db.visits[id]
	if !exists {
		return nil, fmt.Errorf("visit %s: %w", id, dbt.ErrNotFound)
	}
	return copyVisit(rec), nil
}

func (db *inMemoryVisitDBWrapper) ListVisits() ([]*dbt.VisitRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]*dbt.VisitRecord, 0, len(db.visits))
	for _, rec := range db.visits {
		out = append(out, copyVisit(rec))
	}
	return out, nil
}

func (db *inMemoryVisitDBWrapper) UpdateVisitGuarded(id uuid.UUID, allowed []dbt.VisitStatus, mutate func(rec *dbt.VisitRecord) error) (*dbt.VisitRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rec, exists := db.visits[id]
	if !exists {
		return nil, fmt.Errorf("visit %s: %w", id, dbt.ErrNotFound)
	}
	if !dbt.StatusIn(rec.Status, allowed) {
		return nil, fmt.Errorf("visit %s is %s: %w", id, rec.Status, dbt.ErrStatusConflict)
	}

	// Mutate a copy so a failing mutate leaves the stored record untouched.
	next := copyVisit(rec)
	if err := mutate(next); err != nil {
		return nil, err
	}
	db.visits[id] = next
	return copyVisit(next), nil
}

func (db *inMemoryVisitDBWrapper) AppendRoutePoint(id uuid.UUID, pt dbt.LocationPoint, legDistance float64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	rec, exists := db.visits[id]
	if !exists {
		return fmt.Errorf("visit %s: %w", id, dbt.ErrNotFound)
	}
	if rec.Status != dbt.VisitActive {
		return fmt.Errorf("visit %s is %s, route points need an active visit: %w", id, rec.Status, dbt.ErrStatusConflict)
	}

	db.routes[id] = append(db.routes[id], pt)
	rec.TotalDistance += legDistance
	return nil
}

func (db *inMemoryVisitDBWrapper) GetRoutePoints(id uuid.UUID) ([]dbt.LocationPoint, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	pts, exists := db.routes[id]
	if !exists {
		return nil, fmt.Errorf("visit %s: %w", id, dbt.ErrNotFound)
	}
	ptsCopy := make([]dbt.LocationPoint, len(pts))
	copy(ptsCopy, pts)
	return ptsCopy, nil
}

func (db *inMemoryVisitDBWrapper) SetGeofenceState(id uuid.UUID, state dbt.GeofenceState) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	rec, exists := db.visits[id]
	if !exists {
		return fmt.Errorf("visit %s: %w", id, dbt.ErrNotFound)
	}
	rec.Geofence = copyGeofence(state)
	return nil
}

func (db *inMemoryVisitDBWrapper) DataLoaderGetVisitList(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*dbt.VisitRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	result := make(map[uuid.UUID]*dbt.VisitRecord, len(ids))
	for _, id := range ids {
		if rec, exists := db.visits[id]; exists {
			result[id] = copyVisit(rec)
		}
	}
	return result, nil
}

func (db *inMemoryVisitDBWrapper) DataLoaderGetRoutePointList(_ context.Context, ids []uuid.UUID) (map[uuid.UUID][]dbt.LocationPoint, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	result := make(map[uuid.UUID][]dbt.LocationPoint, len(ids))
	for _, id := range ids {
		if pts, exists := db.routes[id]; exists {
			ptsCopy := make([]dbt.LocationPoint, len(pts))
			copy(ptsCopy, pts)
			result[id] = ptsCopy
		}
	}
	return result, nil
}

func copyVisit(rec *dbt.VisitRecord) *dbt.VisitRecord {
	recCopy := *rec
	recCopy.ActualStart = copyTimePtr(rec.ActualStart)
	recCopy.ActualEnd = copyTimePtr(rec.ActualEnd)
	recCopy.Geofence = copyGeofence(rec.Geofence)
	if rec.CheckInFix != nil {
		fix := *rec.CheckInFix
		recCopy.CheckInFix = &fix
	}
	return &recCopy
}

func copyGeofence(state dbt.GeofenceState) dbt.GeofenceState {
	return dbt.GeofenceState{
		IsInside:  state.IsInside,
		EnteredAt: copyTimePtr(state.EnteredAt),
		ExitedAt:  copyTimePtr(state.ExitedAt),
	}
}

func copyTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	tCopy := *t
	return &tCopy
}
