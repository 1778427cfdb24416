package tracking_test

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"fvm/db/db"
	"fvm/ingest"
)

// destination shared by the tracking tests.
var testCenter = orb.Point{121.5654, 25.0330}

// fixAt returns an accuracy-valid fix at roughly the given distance north of
// the test center.
func fixAt(distanceM float64) db.LocationPoint {
	pt := db.LocationPoint{
		Latitude:           testCenter.Lat() + distanceM/111194.9,
		Longitude:          testCenter.Lon(),
		HorizontalAccuracy: 10,
	}
	// nudge until the haversine distance is on the intended side
	for geo.DistanceHaversine(testCenter, pt.Point()) > distanceM {
		pt.Latitude -= 1e-7
	}
	return pt
}

type dispatchCall struct {
	UserID   uuid.UUID
	Title    string
	Metadata map[string]string
}

// spyDispatcher records dispatched notifications.
type spyDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
}

func (d *spyDispatcher) Dispatch(_ context.Context, userID uuid.UUID, title, _ string, metadata map[string]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{UserID: userID, Title: title, Metadata: metadata})
}

func (d *spyDispatcher) Calls() []dispatchCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]dispatchCall, len(d.calls))
	copy(out, d.calls)
	return out
}

// spyModeSetter records requested accuracy modes.
type spyModeSetter struct {
	mu    sync.Mutex
	modes []ingest.AccuracyMode
}

func (s *spyModeSetter) SetMode(mode ingest.AccuracyMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modes = append(s.modes, mode)
}

func (s *spyModeSetter) Modes() []ingest.AccuracyMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ingest.AccuracyMode, len(s.modes))
	copy(out, s.modes)
	return out
}
