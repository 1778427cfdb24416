// Package statussync keeps booking records eventually consistent with their
// visit record. The booking status is a materialized view of the visit
// status: every visit write triggers a re-derivation from current state, so
// redundant, reordered or lost triggers all converge on the same result.
package statussync

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/r3labs/diff/v3"
	"go.uber.org/zap"

	"fvm/db/db"
	"fvm/mq/mq"
	"fvm/notify"
)

// MapStatus projects a visit status onto the booking status domain. The
// mapping is total over the known statuses; anything else is a corrupt
// record and an error.
func MapStatus(s db.VisitStatus) (db.BookingStatus, error) {
	switch s {
	case db.VisitScheduled:
		return db.BookingApproved, nil
	case db.VisitActive:
		return db.BookingInProgress, nil
	case db.VisitCompleted:
		return db.BookingCompleted, nil
	case db.VisitCancelled:
		return db.BookingCancelled, nil
	default:
		return "", fmt.Errorf("unmapped visit status %q", s)
	}
}

// bookingView is the slice of the booking record this synchronizer owns.
type bookingView struct {
	Status db.BookingStatus
}

type Synchronizer struct {
	visits   db.VisitDBWrapper
	bookings db.BookingDBWrapper
	queues   mq.VisitMessageQueueWrapper
	notifier notify.Dispatcher
	clock    clockwork.Clock
	logger   *zap.Logger
}

func NewSynchronizer(visits db.VisitDBWrapper, bookings db.BookingDBWrapper,
	queues mq.VisitMessageQueueWrapper, notifier notify.Dispatcher,
	clock clockwork.Clock, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{
		visits:   visits,
		bookings: bookings,
		queues:   queues,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
	}
}

// Run subscribes to every visit write and syncs on each trigger until ctx is
// cancelled. The message payload only names the visit: Sync re-reads the
// record, so a stale payload can never regress the booking.
func (s *Synchronizer) Run(ctx context.Context) error {
	type sub struct {
		queue mq.VisitWriteMessageQueue
		id    uuid.UUID
		ch    <-chan mq.VisitWriteMessage
	}

	subs := make([]sub, 0, 2)
	for _, action := range []mq.Action{mq.ActionCreate, mq.ActionUpdate} {
		queue := s.queues.GetVisitWriteMessageQueue(action)
		id, ch, err := queue.Subscribe(mq.WildcardTopic)
		if err != nil {
			for _, sb := range subs {
				_ = sb.queue.DeSubscribe(sb.id)
			}
			return fmt.Errorf("failed to subscribe to visit writes: %w", err)
		}
		subs = append(subs, sub{queue: queue, id: id, ch: ch})
	}
	defer func() {
		for _, sb := range subs {
			if err := sb.queue.DeSubscribe(sb.id); err != nil {
				s.logger.Warn("failed to desubscribe", zap.Error(err))
			}
		}
	}()

	merged := make(chan mq.VisitWriteMessage)
	for _, sb := range subs {
		go func(ch <-chan mq.VisitWriteMessage) {
			for msg := range ch {
				select {
				case merged <- msg:
				case <-ctx.Done():
					return
				}
			}
		}(sb.ch)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-merged:
			if err := s.Sync(ctx, msg.VisitID); err != nil {
				s.logger.Warn("booking sync failed",
					zap.String("visit_id", msg.VisitID.String()), zap.Error(err))
			}
		}
	}
}

// Sync re-derives the booking status for one visit from the current records.
// It is idempotent and safe under overlapping invocations: a converged
// booking produces no write, no event and no notification.
func (s *Synchronizer) Sync(ctx context.Context, visitID uuid.UUID) error {
	visit, err := s.visits.GetVisit(visitID)
	if err != nil {
		return fmt.Errorf("read visit: %w", err)
	}
	want, err := MapStatus(visit.Status)
	if err != nil {
		return err
	}

	booking, err := s.bookings.GetBooking(visit.BookingID)
	if err != nil {
		return fmt.Errorf("read booking: %w", err)
	}

	changes, err := diff.Diff(bookingView{Status: booking.Status}, bookingView{Status: want})
	if err != nil {
		return fmt.Errorf("diff booking view: %w", err)
	}
	if len(changes) == 0 {
		return nil
	}

	now := s.clock.Now()
	if err := s.bookings.UpdateBookingStatus(visit.BookingID, want, now); err != nil {
		s.logger.Warn("booking status write failed, awaiting next trigger",
			zap.String("booking_id", visit.BookingID.String()), zap.Error(err))
		return nil
	}

	s.logger.Info("booking status synced",
		zap.String("booking_id", visit.BookingID.String()),
		zap.String("from", string(booking.Status)),
		zap.String("to", string(want)))

	queue := s.queues.GetBookingWriteMessageQueue(mq.ActionUpdate)
	if err := queue.Publish(mq.BookingWriteMessage{
		BookingID: visit.BookingID,
		Status:    want,
	}); err != nil {
		s.logger.Warn("failed to publish booking write",
			zap.String("booking_id", visit.BookingID.String()), zap.Error(err))
	}

	s.notifyTransition(ctx, visit, want)
	return nil
}

// notifyTransition tells the client about the milestones they care about.
// It fires only when the booking actually changed, so each converged state
// notifies at most once.
func (s *Synchronizer) notifyTransition(ctx context.Context, visit *db.VisitRecord, status db.BookingStatus) {
	var title, body string
	switch status {
	case db.BookingInProgress:
		title, body = "Booking in progress", "Your booking is now in progress."
	case db.BookingCompleted:
		title, body = "Booking completed", "Your booking has been completed."
	default:
		return
	}
	s.notifier.Dispatch(ctx, visit.ClientID, title, body, map[string]string{
		"booking_id": visit.BookingID.String(),
		"visit_id":   visit.ID.String(),
	})
}
