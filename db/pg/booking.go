package pg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbt "fvm/db/db"
)

// GORMBookingDBWrapper is a GORM-based PostgreSQL implementation of
// dbt.BookingDBWrapper.
type GORMBookingDBWrapper struct {
	db *gorm.DB
}

// NewGORMBookingDBWrapper creates and returns a new instance of GORMBookingDBWrapper.
func NewGORMBookingDBWrapper(db *gorm.DB) dbt.BookingDBWrapper {
	return &GORMBookingDBWrapper{
		db: db,
	}
}

func (pgdb *GORMBookingDBWrapper) CreateBooking(rec *dbt.BookingRecord) error {
	model := bookingRecordToModel(rec)
	result := pgdb.db.Create(&model)
	if result.Error != nil {
		if strings.Contains(result.Error.Error(), "duplicate key value violates unique constraint") {
			return fmt.Errorf("booking with ID %s already exists: %w", rec.ID, result.Error)
		}
		return fmt.Errorf("failed to create booking: %w", result.Error)
	}
	return nil
}

func (pgdb *GORMBookingDBWrapper) GetBooking(id uuid.UUID) (*dbt.BookingRecord, error) {
	var model BookingModel
	result := pgdb.db.First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("booking %s: %w", id, dbt.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get booking %s: %w", id, result.Error)
	}
	return bookingModelToRecord(&model), nil
}

// UpdateBookingStatus writes only status and last_updated. Payment and price
// columns stay untouched so the payment collaborator never conflicts with us.
func (pgdb *GORMBookingDBWrapper) UpdateBookingStatus(id uuid.UUID, status dbt.BookingStatus, at time.Time) error {
	result := pgdb.db.Model(&BookingModel{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       string(status),
		"last_updated": at,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update booking %s status: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("booking %s: %w", id, dbt.ErrNotFound)
	}
	return nil
}

func (pgdb *GORMBookingDBWrapper) DataLoaderGetBookingList(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*dbt.BookingRecord, error) {
	var models []BookingModel
	result := pgdb.db.WithContext(ctx).Where("id IN ?", ids).Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to batch-load bookings: %w", result.Error)
	}
	out := make(map[uuid.UUID]*dbt.BookingRecord, len(models))
	for i := range models {
		out[models[i].ID] = bookingModelToRecord(&models[i])
	}
	return out, nil
}

func bookingRecordToModel(rec *dbt.BookingRecord) BookingModel {
	return BookingModel{
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

func bookingModelToRecord(model *BookingModel) *dbt.BookingRecord {
	return &dbt.BookingRecord{
		ID:            model.ID,
		ClientID:      model.ClientID,
		WorkerID:      model.WorkerID,
		Status:        dbt.BookingStatus(model.Status),
		PaymentStatus: dbt.PaymentStatus(model.PaymentStatus),
		ScheduledDate: model.ScheduledDate,
		Price:         model.Price,
		LastUpdated:   model.LastUpdated,
	}
}
