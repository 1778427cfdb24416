package mq

import (
	"context"
	"log"

	"github.com/google/uuid"
)

// Subscriber is any queue that can be subscribed and de-subscribed. M is the
// message type it carries.
type Subscriber[M any] interface {
	Subscribe(uuid.UUID) (uuid.UUID, <-chan M, error)
	DeSubscribe(id uuid.UUID) error
}

// SubscribeProcessor subscribes to service for topicId, pumps every message
// through transformFunc and forwards the result to outputStream until ctx is
// cancelled or the subscription channel closes. transformFunc returning
// skip=true drops the message; an error drops it with a log line. The
// subscription is released and outputStream closed on exit.
func SubscribeProcessor[S Subscriber[M], M any, O any](
	topicId uuid.UUID,
	ctx context.Context,
	service S,
	transformFunc func(msg M) (O, bool, error),
	outputStream chan<- O,
) {
	go func() {
		uid, inputCh, err := service.Subscribe(topicId)
		if err != nil {
			close(outputStream)
			return
		}

		defer func() {
			if err := service.DeSubscribe(uid); err != nil {
				log.Printf("error de-subscribing %s: %v", uid, err)
			}
			close(outputStream)
		}()

		for {
			select {
			case msg, ok := <-inputCh:
				if !ok {
					// parent closed channel
					return
				}

				output, skip, err := transformFunc(msg)
				if err != nil {
					log.Printf("error transforming message for subscription %s: %v, skipping", uid, err)
					continue
				}
				if skip {
					continue
				}

				select {
				case outputStream <- output:
				case <-ctx.Done():
					return
				}

			case <-ctx.Done():
				return
			}
		}
	}()
}
