package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fvm/live"
	"fvm/mq/mq"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// allow all origins for WebSocket connections
		// should only in dev
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// feedEvent is one message on the per-visit WebSocket feed. Exactly one of
// Visit/Snapshot is set, discriminated by Type.
type feedEvent struct {
	Type     string                `json:"type"`
	Visit    *mq.VisitWriteMessage `json:"visit,omitempty"`
	Snapshot *live.Snapshot        `json:"snapshot,omitempty"`
}

// visitFeed streams status writes and periodic live snapshots for one visit
// until the client disconnects.
func (h *Handler) visitFeed(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events := make(chan feedEvent, 8)
	mq.SubscribeProcessor(id, ctx, h.queues.GetVisitWriteMessageQueue(mq.ActionUpdate),
		func(msg mq.VisitWriteMessage) (feedEvent, bool, error) {
			m := msg
			return feedEvent{Type: "visit", Visit: &m}, false, nil
		}, events)

	// reads only exist to observe the close handshake
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			snap, err := h.live.GetSnapshot(ctx, id)
			if err != nil {
				if !errors.Is(err, live.ErrNoSnapshot) {
					h.logger.Warn("failed to read live snapshot", zap.Error(err))
				}
				continue
			}
			if err := conn.WriteJSON(feedEvent{Type: "snapshot", Snapshot: snap}); err != nil {
				return
			}
		}
	}
}
