// Package live keeps the most recent accuracy-valid fix and ETA estimate per
// visit for UI consumers. It is a cache, not a record: losing it costs
// nothing but a few seconds of staleness.
package live

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"fvm/db/db"
)

// ErrNoSnapshot is returned when no live data exists for a visit.
var ErrNoSnapshot = errors.New("no live snapshot")

// Snapshot is the latest observed state of one tracked visit.
type Snapshot struct {
	VisitID    uuid.UUID        `json:"visit_id"`
	Fix        db.LocationPoint `json:"fix"`
	ETASeconds float64          `json:"eta_seconds"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

type Store interface {
	SetSnapshot(ctx context.Context, snap Snapshot) error
	GetSnapshot(ctx context.Context, visitID uuid.UUID) (*Snapshot, error)
}

// MemStore is the in-process store for development and tests.
type MemStore struct {
	mu        sync.RWMutex
	snapshots map[uuid.UUID]Snapshot
}

func NewMemStore() *MemStore {
	return &MemStore{
		snapshots: make(map[uuid.UUID]Snapshot),
	}
}

func (s *MemStore) SetSnapshot(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.VisitID] = snap
	return nil
}

func (s *MemStore) GetSnapshot(_ context.Context, visitID uuid.UUID) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[visitID]
	if !ok {
		return nil, ErrNoSnapshot
	}
	return &snap, nil
}
