// Package tracking implements the per-visit location pipeline: sampling,
// geofencing, auto check-in, ETA estimation and route recording, coordinated
// by a Controller that owns the visit lifecycle.
package tracking

import (
	"context"

	"go.uber.org/zap"

	"fvm/db/db"
	"fvm/ingest"
)

// FixObserver receives every accuracy-valid fix of one visit, in order, on
// the sampler goroutine. OnFix must not block.
type FixObserver interface {
	OnFix(pt db.LocationPoint)
}

// ModeSetter forwards accuracy mode hints towards the device.
type ModeSetter interface {
	SetMode(mode ingest.AccuracyMode)
}

// Sampler consumes a fix source, drops samples whose horizontal accuracy is
// worse than the configured bound, and fans the rest out to its observers.
// A dropped fix triggers nothing downstream.
type Sampler struct {
	source       ingest.FixSource
	minAccuracyM float64
	observers    []FixObserver
	logger       *zap.Logger
}

func NewSampler(source ingest.FixSource, minAccuracyM float64, logger *zap.Logger) *Sampler {
	return &Sampler{
		source:       source,
		minAccuracyM: minAccuracyM,
		logger:       logger,
	}
}

// Observe registers observers. Must be called before Run.
func (s *Sampler) Observe(obs ...FixObserver) {
	s.observers = append(s.observers, obs...)
}

func (s *Sampler) SetMode(mode ingest.AccuracyMode) {
	s.source.SetMode(mode)
}

// Run pumps the source until it closes or ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case pt, ok := <-s.source.Fixes():
			if !ok {
				return
			}
			if pt.HorizontalAccuracy > s.minAccuracyM {
				s.logger.Debug("drop low accuracy fix",
					zap.Float64("accuracy_m", pt.HorizontalAccuracy),
					zap.Float64("min_accuracy_m", s.minAccuracyM))
				continue
			}
			for _, o := range s.observers {
				o.OnFix(pt)
			}
		}
	}
}
