package pg

import (
	"time"

	"github.com/google/uuid"
)

type VisitModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	BookingID uuid.UUID `gorm:"type:uuid;not null;index"`
	WorkerID  uuid.UUID `gorm:"type:uuid;not null;index"`
	ClientID  uuid.UUID `gorm:"type:uuid;not null"`

	Address string `gorm:"size:512;not null"`
	Status  string `gorm:"size:32;not null;index"`

	ScheduledStart time.Time  `gorm:"not null"`
	ScheduledEnd   time.Time  `gorm:"not null"`
	ActualStart    *time.Time `gorm:""`
	ActualEnd      *time.Time `gorm:""`

	TotalDistance float64 `gorm:"not null;default:0"`

	AutoCheckedIn    bool       `gorm:"not null;default:false"`
	CheckInLatitude  *float64
	CheckInLongitude *float64
	CheckInAccuracy  *float64
	CheckInAt        *time.Time
	CheckInDistance  float64    `gorm:"not null;default:0"`

	GeofenceInside    bool       `gorm:"not null;default:false"`
	GeofenceEnteredAt *time.Time
	GeofenceExitedAt  *time.Time

	ETANotified bool    `gorm:"column:eta_notified;not null;default:false"`
	ETADistance float64 `gorm:"column:eta_distance;not null;default:0"`
	ETASeconds  float64 `gorm:"column:eta_seconds;not null;default:0"`

	CancelReason string `gorm:"size:512"`

	// meta data
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for VisitModel.
func (VisitModel) TableName() string {
	return "visits"
}

type RoutePointModel struct {
	ID      uint64    `gorm:"primaryKey;autoIncrement"`
	VisitID uuid.UUID `gorm:"type:uuid;not null;index:idx_route_points_visit_id"`

	Latitude           float64   `gorm:"not null"`
	Longitude          float64   `gorm:"not null"`
	Altitude           float64   `gorm:"not null;default:0"`
	HorizontalAccuracy float64   `gorm:"not null;default:0"`
	Speed              float64   `gorm:"not null;default:0"`
	Course             float64   `gorm:"not null;default:0"`
	RecordedAt         time.Time `gorm:"not null"`

	// meta data
	CreatedAt time.Time
}

// TableName returns the table name for RoutePointModel.
func (RoutePointModel) TableName() string {
	return "route_points"
}

type BookingModel struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	ClientID uuid.UUID `gorm:"type:uuid;not null;index"`
	WorkerID uuid.UUID `gorm:"type:uuid;not null;index"`

	Status        string    `gorm:"size:32;not null;index"`
	PaymentStatus string    `gorm:"size:32;not null"`
	ScheduledDate time.Time `gorm:"not null"`
	Price         float64   `gorm:"type:numeric(10,2);not null"`
	LastUpdated   time.Time `gorm:"not null"`

	// meta data
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for BookingModel.
func (BookingModel) TableName() string {
	return "bookings"
}
