package config

import (
	"os"
	"strconv"
	"time"
)

// AppName is used as the postgres schema name and as the service name in logs.
const AppName = "fvm"

// Tracking holds the externally tunable constants of the visit tracking core.
// Defaults match the product contract; every value can be overridden per
// deployment through the environment.
type Tracking struct {
	// GeofenceRadiusM is the radius of the circular destination region in meters.
	GeofenceRadiusM float64
	// CheckInRadiusM is the auto check-in trigger radius in meters.
	CheckInRadiusM float64
	// MinAccuracyM is the worst acceptable horizontal accuracy in meters.
	// Fixes above it are dropped and trigger nothing.
	MinAccuracyM float64
	// RouteInterval is the minimum spacing between two persisted route points.
	RouteInterval time.Duration
	// ETAWindowLow/ETAWindowHigh bound the half-open (low, high] window that
	// fires the one-shot "arriving soon" notification.
	ETAWindowLow  time.Duration
	ETAWindowHigh time.Duration
	// WalkingSpeedMPS is the assumed travel speed for ETA estimates.
	WalkingSpeedMPS float64
}

func DefaultTracking() Tracking {
	return Tracking{
		GeofenceRadiusM: 200,
		CheckInRadiusM:  100,
		MinAccuracyM:    50,
		RouteInterval:   30 * time.Second,
		ETAWindowLow:    240 * time.Second,
		ETAWindowHigh:   300 * time.Second,
		WalkingSpeedMPS: 1.4,
	}
}

// TrackingFromEnv returns the defaults with any FVM_* overrides applied.
func TrackingFromEnv() Tracking {
	cfg := DefaultTracking()
	cfg.GeofenceRadiusM = envFloat("FVM_GEOFENCE_RADIUS_M", cfg.GeofenceRadiusM)
	cfg.CheckInRadiusM = envFloat("FVM_CHECKIN_RADIUS_M", cfg.CheckInRadiusM)
	cfg.MinAccuracyM = envFloat("FVM_MIN_ACCURACY_M", cfg.MinAccuracyM)
	cfg.RouteInterval = envDuration("FVM_ROUTE_INTERVAL", cfg.RouteInterval)
	cfg.ETAWindowLow = envDuration("FVM_ETA_WINDOW_LOW", cfg.ETAWindowLow)
	cfg.ETAWindowHigh = envDuration("FVM_ETA_WINDOW_HIGH", cfg.ETAWindowHigh)
	cfg.WalkingSpeedMPS = envFloat("FVM_WALKING_SPEED_MPS", cfg.WalkingSpeedMPS)
	return cfg
}

// RedisAddr returns the redis address for the live location store, empty when
// the in-memory store should be used instead.
func RedisAddr() string {
	return os.Getenv("REDIS_ADDR")
}

// MQTTBroker returns the broker URL for device fix ingestion, empty when only
// the HTTP push path is wanted.
func MQTTBroker() string {
	return os.Getenv("MQTT_BROKER")
}

// NominatimURL returns the geocoding endpoint base URL.
func NominatimURL() string {
	if url := os.Getenv("NOMINATIM_URL"); url != "" {
		return url
	}
	return "https://nominatim.openstreetmap.org"
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
