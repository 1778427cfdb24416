// Package notify carries the dispatch contract to the push-notification
// collaborator. Dispatch is fire-and-forget: implementations log failures and
// never propagate them, so a broken notification path cannot block a state
// transition.
package notify

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, userID uuid.UUID, title, body string, metadata map[string]string)
}

// ZapDispatcher writes dispatch requests to the structured log. It stands in
// for the real delivery transport, which is owned by another service; the
// contract (and the at-most-once triggering discipline of its callers) is
// what matters here.
type ZapDispatcher struct {
	log *zap.Logger
}

func NewZapDispatcher(log *zap.Logger) *ZapDispatcher {
	return &ZapDispatcher{log: log}
}

func (d *ZapDispatcher) Dispatch(_ context.Context, userID uuid.UUID, title, body string, metadata map[string]string) {
	fields := []zap.Field{
		zap.String("user_id", userID.String()),
		zap.String("title", title),
		zap.String("body", body),
	}
	for k, v := range metadata {
		fields = append(fields, zap.String(k, v))
	}
	d.log.Info("notification dispatched", fields...)
}
