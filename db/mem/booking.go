package mem

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	dbt "fvm/db/db"
)

// inMemoryBookingDBWrapper is a map-backed implementation of
// dbt.BookingDBWrapper.
type inMemoryBookingDBWrapper struct {
	bookings map[uuid.UUID]*dbt.BookingRecord

	mu sync.RWMutex
}

// NewInMemoryBookingDBWrapper creates and returns a new in-memory booking store.
func NewInMemoryBookingDBWrapper() dbt.BookingDBWrapper {
	return &inMemoryBookingDBWrapper{
		bookings: make(map[uuid.UUID]*dbt.BookingRecord),
	}
}

func (db *inMemoryBookingDBWrapper) CreateBooking(rec *dbt.BookingRecord) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.bookings[rec.ID]; exists {
		return fmt.Errorf("booking with ID %s already exists", rec.ID)
	}
	recCopy := *rec
	db.bookings[rec.ID] = &recCopy
	return nil
}

func (db *inMemoryBookingDBWrapper) GetBooking(id uuid.UUID) (*dbt.BookingRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rec, exists := db.bookings[id]
	if !exists {
		return nil, fmt.Errorf("booking %s: %w", id, dbt.ErrNotFound)
	}
	recCopy := *rec
	return &recCopy, nil
}

func (db *inMemoryBookingDBWrapper) UpdateBookingStatus(id uuid.UUID, status dbt.BookingStatus, at time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	rec, exists := db.bookings[id]
	if !exists {
		return fmt.Errorf("booking %s: %w", id, dbt.ErrNotFound)
	}
	rec.Status = status
	rec.LastUpdated = at
	return nil
}

func (db *inMemoryBookingDBWrapper) DataLoaderGetBookingList(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*dbt.BookingRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	result := make(map[uuid.UUID]*dbt.BookingRecord, len(ids))
	for _, id := range ids {
		if rec, exists := db.bookings[id]; exists {
			recCopy := *rec
			result[id] = &recCopy
		}
	}
	return result, nil
}
