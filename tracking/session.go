package tracking

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fvm/db/db"
	"fvm/ingest"
)

// Session is the running tracking pipeline of one visit. Sessions are
// independent: each owns its fix source and sampler goroutine, so a slow or
// failing visit never stalls another.
type Session struct {
	visitID uuid.UUID

	source  *ingest.PushSource
	feeder  *ingest.MQTTFeeder
	sampler *Sampler
	checkin *AutoCheckInEngine
	route   *RouteTracker

	cancel context.CancelFunc
	done   chan struct{}
	logger *zap.Logger
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	s.sampler.Run(ctx)
}

// Offer feeds a fix through the HTTP push path.
func (s *Session) Offer(pt db.LocationPoint) error {
	return s.source.Offer(pt)
}

// EnterVisitMode switches the session from pre-arrival tracking to in-visit
// tracking: auto check-in stops evaluating and route recording begins. seed
// carries already-persisted route points when resuming an Active visit.
func (s *Session) EnterVisitMode(seed []db.LocationPoint) {
	if s.checkin != nil {
		s.checkin.Disable()
	}
	s.route.Activate(seed)
}

// Close tears the session down synchronously: when it returns the sampler
// goroutine has exited and no further fix can cause a write.
func (s *Session) Close() error {
	s.cancel()
	if s.feeder != nil {
		if err := s.feeder.Detach(); err != nil {
			s.logger.Warn("failed to detach mqtt feeder",
				zap.String("visit_id", s.visitID.String()), zap.Error(err))
		}
	}
	if err := s.source.Close(); err != nil {
		return err
	}
	<-s.done
	return nil
}
