// Package ingest turns device location reports into in-process fix streams.
// One source exists per tracked visit; the sampler owns its lifecycle.
package ingest

import (
	"errors"
	"sync"

	"fvm/db/db"
)

// AccuracyMode is the sampling profile requested from the device. High
// accuracy is used near the destination for proximity detection, battery
// efficient everywhere else.
type AccuracyMode int

const (
	ModeBatteryEfficient AccuracyMode = iota
	ModeHighAccuracy
)

func (m AccuracyMode) String() string {
	if m == ModeHighAccuracy {
		return "high_accuracy"
	}
	return "battery_efficient"
}

var ErrSourceClosed = errors.New("fix source is closed")

// FixSource is a stream of raw device fixes plus a mode hint channel back to
// the device aide. Close must be safe to call more than once and causes
// Fixes to stop delivering.
type FixSource interface {
	Fixes() <-chan db.LocationPoint
	SetMode(mode AccuracyMode)
	Close() error
}

// ModeHook is invoked whenever the requested accuracy mode changes, letting a
// transport (MQTT feeder, test probe) forward the hint to the device.
type ModeHook func(mode AccuracyMode)

// PushSource is a FixSource fed by Offer calls, from the HTTP fix endpoint or
// an attached MQTT feeder.
type PushSource struct {
	ch chan db.LocationPoint

	mu     sync.Mutex
	mode   AccuracyMode
	hooks  []ModeHook
	closed bool
}

// NewPushSource creates a push-fed source. The buffer absorbs bursts from
// devices that upload batched fixes after a connectivity gap.
func NewPushSource(buffer int) *PushSource {
	return &PushSource{
		ch:   make(chan db.LocationPoint, buffer),
		mode: ModeBatteryEfficient,
	}
}

// Offer hands a fix to the stream. A full buffer drops the fix: location
// samples are superseded by the next one anyway.
func (s *PushSource) Offer(pt db.LocationPoint) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSourceClosed
	}
	s.mu.Unlock()

	select {
	case s.ch <- pt:
		return nil
	default:
		return nil
	}
}

func (s *PushSource) Fixes() <-chan db.LocationPoint {
	return s.ch
}

func (s *PushSource) SetMode(mode AccuracyMode) {
	s.mu.Lock()
	if s.closed || s.mode == mode {
		s.mu.Unlock()
		return
	}
	s.mode = mode
	hooks := make([]ModeHook, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	for _, hook := range hooks {
		hook(mode)
	}
}

// Mode returns the currently requested accuracy mode.
func (s *PushSource) Mode() AccuracyMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// OnModeChange registers a hook for mode transitions.
func (s *PushSource) OnModeChange(hook ModeHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

func (s *PushSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.ch)
	return nil
}
