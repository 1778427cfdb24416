package tracking

import "errors"

var (
	// ErrInvalidTransition is returned when a lifecycle operation is applied to
	// a visit whose current status does not allow it. The record is unchanged.
	ErrInvalidTransition = errors.New("invalid visit status transition")
	// ErrGeocodingFailed is returned by Track when the destination address
	// cannot be resolved. No tracking session is created.
	ErrGeocodingFailed = errors.New("destination geocoding failed")
	// ErrRegionMonitoring means the destination region could not be registered.
	// Tracking continues without geofence entry/exit and auto check-in.
	ErrRegionMonitoring = errors.New("region monitoring unavailable")
	// ErrNotTracking is returned when a fix is offered for a visit that has no
	// running tracking session.
	ErrNotTracking = errors.New("visit has no tracking session")
)
