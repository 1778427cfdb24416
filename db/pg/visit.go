package pg

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbt "fvm/db/db"
)

// GORMVisitDBWrapper is a GORM-based PostgreSQL implementation of
// dbt.VisitDBWrapper. Guarded updates take a row lock so the
// read-check-write of a status transition is atomic.
type GORMVisitDBWrapper struct {
	db *gorm.DB
}

// NewGORMVisitDBWrapper creates and returns a new instance of GORMVisitDBWrapper.
func NewGORMVisitDBWrapper(db *gorm.DB) dbt.VisitDBWrapper {
	return &GORMVisitDBWrapper{
		db: db,
	}
}

func (pgdb *GORMVisitDBWrapper) CreateVisit(rec *dbt.VisitRecord) error {
	model := visitRecordToModel(rec)
	result := pgdb.db.Create(&model)
	if result.Error != nil {
		if strings.Contains(result.Error.Error(), "duplicate key value violates unique constraint") {
			return fmt.Errorf("visit with ID %s already exists: %w", rec.ID, result.Error)
		}
		return fmt.Errorf("failed to create visit: %w", result.Error)
	}
	return nil
}

func (pgdb *GORMVisitDBWrapper) GetVisit(id uuid.UUID) (*dbt.VisitRecord, error) {
	var model VisitModel
	result := pgdb.db.First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("visit %s: %w", id, dbt.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get visit %s: %w", id, result.Error)
	}
	return visitModelToRecord(&model), nil
}

func (pgdb *GORMVisitDBWrapper) ListVisits() ([]*dbt.VisitRecord, error) {
	var models []VisitModel
	result := pgdb.db.Order("scheduled_start").Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list visits: %w", result.Error)
	}
	records := make([]*dbt.VisitRecord, 0, len(models))
	for i := range models {
		records = append(records, visitModelToRecord(&models[i]))
	}
	return records, nil
}

func (pgdb *GORMVisitDBWrapper) UpdateVisitGuarded(id uuid.UUID, allowed []dbt.VisitStatus, mutate func(rec *dbt.VisitRecord) error) (*dbt.VisitRecord, error) {
	var out *dbt.VisitRecord
	err := pgdb.db.Transaction(func(tx *gorm.DB) error {
		var model VisitModel
		result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, "id = ?", id)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("visit %s: %w", id, dbt.ErrNotFound)
			}
			return fmt.Errorf("failed to lock visit %s: %w", id, result.Error)
		}

		rec := visitModelToRecord(&model)
		if !dbt.StatusIn(rec.Status, allowed) {
			return fmt.Errorf("visit %s is %s: %w", id, rec.Status, dbt.ErrStatusConflict)
		}
		if err := mutate(rec); err != nil {
			return err
		}

		next := visitRecordToModel(rec)
		next.CreatedAt = model.CreatedAt
		if err := tx.Model(&VisitModel{ID: id}).Select("*").Omit("created_at").Updates(&next).Error; err != nil {
			return fmt.Errorf("failed to update visit %s: %w", id, err)
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (pgdb *GORMVisitDBWrapper) AppendRoutePoint(id uuid.UUID, pt dbt.LocationPoint, legDistance float64) error {
	return pgdb.db.Transaction(func(tx *gorm.DB) error {
		var model VisitModel
		result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id", "status").First(&model, "id = ?", id)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("visit %s: %w", id, dbt.ErrNotFound)
			}
			return fmt.Errorf("failed to lock visit %s: %w", id, result.Error)
		}
		if dbt.VisitStatus(model.Status) != dbt.VisitActive {
			return fmt.Errorf("visit %s is %s, route points need an active visit: %w", id, model.Status, dbt.ErrStatusConflict)
		}

		point := RoutePointModel{
			VisitID:            id,
			Latitude:           pt.Latitude,
			Longitude:          pt.Longitude,
			Altitude:           pt.Altitude,
			HorizontalAccuracy: pt.HorizontalAccuracy,
			Speed:              pt.Speed,
			Course:             pt.Course,
			RecordedAt:         pt.Timestamp,
		}
		if err := tx.Create(&point).Error; err != nil {
			return fmt.Errorf("failed to append route point for visit %s: %w", id, err)
		}
		if err := tx.Model(&VisitModel{}).Where("id = ?", id).
			Update("total_distance", gorm.Expr("total_distance + ?", legDistance)).Error; err != nil {
			return fmt.Errorf("failed to accumulate distance for visit %s: %w", id, err)
		}
		return nil
	})
}

func (pgdb *GORMVisitDBWrapper) GetRoutePoints(id uuid.UUID) ([]dbt.LocationPoint, error) {
	var models []RoutePointModel
	result := pgdb.db.Where("visit_id = ?", id).Order("id").Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get route points for visit %s: %w", id, result.Error)
	}
	points := make([]dbt.LocationPoint, 0, len(models))
	for _, m := range models {
		points = append(points, routePointModelToPoint(&m))
	}
	return points, nil
}

func (pgdb *GORMVisitDBWrapper) SetGeofenceState(id uuid.UUID, state dbt.GeofenceState) error {
	result := pgdb.db.Model(&VisitModel{}).Where("id = ?", id).Updates(map[string]interface{}{
		"geofence_inside":     state.IsInside,
		"geofence_entered_at": state.EnteredAt,
		"geofence_exited_at":  state.ExitedAt,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to set geofence state for visit %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("visit %s: %w", id, dbt.ErrNotFound)
	}
	return nil
}

func (pgdb *GORMVisitDBWrapper) DataLoaderGetVisitList(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*dbt.VisitRecord, error) {
	var models []VisitModel
	result := pgdb.db.WithContext(ctx).Where("id IN ?", ids).Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to batch-load visits: %w", result.Error)
	}
	out := make(map[uuid.UUID]*dbt.VisitRecord, len(models))
	for i := range models {
		out[models[i].ID] = visitModelToRecord(&models[i])
	}
	return out, nil
}

func (pgdb *GORMVisitDBWrapper) DataLoaderGetRoutePointList(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]dbt.LocationPoint, error) {
	var models []RoutePointModel
	result := pgdb.db.WithContext(ctx).Where("visit_id IN ?", ids).Order("id").Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to batch-load route points: %w", result.Error)
	}
	out := make(map[uuid.UUID][]dbt.LocationPoint, len(ids))
	for _, id := range ids {
		out[id] = []dbt.LocationPoint{}
	}
	for _, m := range models {
		out[m.VisitID] = append(out[m.VisitID], routePointModelToPoint(&m))
	}
	return out, nil
}

func visitRecordToModel(rec *dbt.VisitRecord) VisitModel {
	model := VisitModel{
		ID:                rec.ID,
		BookingID:         rec.BookingID,
		WorkerID:          rec.WorkerID,
		ClientID:          rec.ClientID,
		Address:           rec.Address,
		Status:            string(rec.Status),
		ScheduledStart:    rec.ScheduledStart,
		ScheduledEnd:      rec.ScheduledEnd,
		ActualStart:       rec.ActualStart,
		ActualEnd:         rec.ActualEnd,
		TotalDistance:     rec.TotalDistance,
		AutoCheckedIn:     rec.AutoCheckedIn,
		CheckInDistance:   rec.CheckInDistance,
		GeofenceInside:    rec.Geofence.IsInside,
		GeofenceEnteredAt: rec.Geofence.EnteredAt,
		GeofenceExitedAt:  rec.Geofence.ExitedAt,
		ETANotified:       rec.ETANotificationSent,
		ETADistance:       rec.ETATriggerDistance,
		ETASeconds:        rec.ETATriggerSeconds,
		CancelReason:      rec.CancelReason,
	}
	if rec.CheckInFix != nil {
		lat, lon, acc, at := rec.CheckInFix.Latitude, rec.CheckInFix.Longitude, rec.CheckInFix.HorizontalAccuracy, rec.CheckInFix.Timestamp
		model.CheckInLatitude = &lat
		model.CheckInLongitude = &lon
		model.CheckInAccuracy = &acc
		model.CheckInAt = &at
	}
	return model
}

func visitModelToRecord(model *VisitModel) *dbt.VisitRecord {
	rec := &dbt.VisitRecord{
		ID:              model.ID,
		BookingID:       model.BookingID,
		WorkerID:        model.WorkerID,
		ClientID:        model.ClientID,
		Address:         model.Address,
		Status:          dbt.VisitStatus(model.Status),
		ScheduledStart:  model.ScheduledStart,
		ScheduledEnd:    model.ScheduledEnd,
		ActualStart:     model.ActualStart,
		ActualEnd:       model.ActualEnd,
		TotalDistance:   model.TotalDistance,
		AutoCheckedIn:   model.AutoCheckedIn,
		CheckInDistance: model.CheckInDistance,
		Geofence: dbt.GeofenceState{
			IsInside:  model.GeofenceInside,
			EnteredAt: model.GeofenceEnteredAt,
			ExitedAt:  model.GeofenceExitedAt,
		},
		ETANotificationSent: model.ETANotified,
		ETATriggerDistance:  model.ETADistance,
		ETATriggerSeconds:   model.ETASeconds,
		CancelReason:        model.CancelReason,
	}
	if model.CheckInLatitude != nil && model.CheckInLongitude != nil {
		fix := dbt.LocationPoint{
			Latitude:  *model.CheckInLatitude,
			Longitude: *model.CheckInLongitude,
		}
		if model.CheckInAccuracy != nil {
			fix.HorizontalAccuracy = *model.CheckInAccuracy
		}
		if model.CheckInAt != nil {
			fix.Timestamp = *model.CheckInAt
		}
		rec.CheckInFix = &fix
	}
	return rec
}

func routePointModelToPoint(m *RoutePointModel) dbt.LocationPoint {
	return dbt.LocationPoint{
		Latitude:           m.Latitude,
		Longitude:          m.Longitude,
		Altitude:           m.Altitude,
		HorizontalAccuracy: m.HorizontalAccuracy,
		Speed:              m.Speed,
		Course:             m.Course,
		Timestamp:          m.RecordedAt,
	}
}
