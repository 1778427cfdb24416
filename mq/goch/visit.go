package goch

import (
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"fvm/mq/mq"
)

// --- Error Definitions ---

type QueueError string

func (e QueueError) Error() string {
	return string(e)
}

const (
	ErrQueueStopped QueueError = "message queue is stopped"
)

// fanOutQueueCore fans published messages out to every matching subscriber.
// A subscriber with the wildcard topic receives everything; otherwise only
// messages whose topic matches. Slow subscribers are skipped rather than
// blocking the publisher.
type fanOutQueueCore[M mq.TopicProvider] struct {
	bufferSize int

	mu          sync.RWMutex
	stopped     bool
	subscribers map[uuid.UUID]*fanOutSubscriber[M]
}

type fanOutSubscriber[M any] struct {
	topic uuid.UUID
	ch    chan M
}

func newFanOutQueueCore[M mq.TopicProvider](bufferSize int) *fanOutQueueCore[M] {
	return &fanOutQueueCore[M]{
		bufferSize:  bufferSize,
		subscribers: make(map[uuid.UUID]*fanOutSubscriber[M]),
	}
}

func (c *fanOutQueueCore[M]) Publish(msg M) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.stopped {
		return ErrQueueStopped
	}

	topic := msg.GetTopic()
	for id, sub := range c.subscribers {
		if sub.topic != mq.WildcardTopic && sub.topic != topic {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			// Do not let one stalled consumer hold up the rest.
			log.Printf("goch: subscriber %s is not keeping up, dropping message", id)
		}
	}
	return nil
}

func (c *fanOutQueueCore[M]) Subscribe(topic uuid.UUID) (uuid.UUID, <-chan M, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return uuid.Nil, nil, ErrQueueStopped
	}

	id := uuid.New()
	sub := &fanOutSubscriber[M]{
		topic: topic,
		ch:    make(chan M, c.bufferSize),
	}
	c.subscribers[id] = sub
	return id, sub.ch, nil
}

func (c *fanOutQueueCore[M]) DeSubscribe(id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subscribers[id]
	if !ok {
		return fmt.Errorf("subscriber with ID %s not found", id)
	}
	delete(c.subscribers, id)
	close(sub.ch)
	return nil
}

func (c *fanOutQueueCore[M]) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	c.stopped = true
	for id, sub := range c.subscribers {
		delete(c.subscribers, id)
		close(sub.ch)
	}
}

// ChannelVisitWriteMessageQueue implements mq.VisitWriteMessageQueue with an
// in-process fan-out, the default for single-node deployments and tests.
type ChannelVisitWriteMessageQueue struct {
	action mq.Action
	core   *fanOutQueueCore[mq.VisitWriteMessage]
}

// NewChannelVisitWriteMessageQueue creates a new in-process visit write queue.
// bufferSize determines the capacity of each subscriber channel.
func NewChannelVisitWriteMessageQueue(action mq.Action, bufferSize int) *ChannelVisitWriteMessageQueue {
	return &ChannelVisitWriteMessageQueue{
		action: action,
		core:   newFanOutQueueCore[mq.VisitWriteMessage](bufferSize),
	}
}

func (q *ChannelVisitWriteMessageQueue) GetAction() mq.Action {
	return q.action
}

func (q *ChannelVisitWriteMessageQueue) Publish(msg mq.VisitWriteMessage) error {
	return q.core.Publish(msg)
}

func (q *ChannelVisitWriteMessageQueue) Subscribe(topic uuid.UUID) (uuid.UUID, <-chan mq.VisitWriteMessage, error) {
	return q.core.Subscribe(topic)
}

func (q *ChannelVisitWriteMessageQueue) DeSubscribe(id uuid.UUID) error {
	return q.core.DeSubscribe(id)
}

// ChannelBookingWriteMessageQueue implements mq.BookingWriteMessageQueue with
// the same in-process fan-out.
type ChannelBookingWriteMessageQueue struct {
	action mq.Action
	core   *fanOutQueueCore[mq.BookingWriteMessage]
}

func NewChannelBookingWriteMessageQueue(action mq.Action, bufferSize int) *ChannelBookingWriteMessageQueue {
	return &ChannelBookingWriteMessageQueue{
		action: action,
		core:   newFanOutQueueCore[mq.BookingWriteMessage](bufferSize),
	}
}

func (q *ChannelBookingWriteMessageQueue) GetAction() mq.Action {
	return q.action
}

func (q *ChannelBookingWriteMessageQueue) Publish(msg mq.BookingWriteMessage) error {
	return q.core.Publish(msg)
}

func (q *ChannelBookingWriteMessageQueue) Subscribe(topic uuid.UUID) (uuid.UUID, <-chan mq.BookingWriteMessage, error) {
	return q.core.Subscribe(topic)
}

func (q *ChannelBookingWriteMessageQueue) DeSubscribe(id uuid.UUID) error {
	return q.core.DeSubscribe(id)
}

// GoChanVisitMessageQueueWrapper bundles the per-action queues behind
// mq.VisitMessageQueueWrapper.
type GoChanVisitMessageQueueWrapper struct {
	VisitMQArray   [mq.ActionCnt]mq.VisitWriteMessageQueue
	BookingMQArray [mq.ActionCnt]mq.BookingWriteMessageQueue
}

func (wrapper *GoChanVisitMessageQueueWrapper) GetVisitWriteMessageQueue(action mq.Action) mq.VisitWriteMessageQueue {
	if action < 0 || action >= mq.ActionCnt {
		return nil
	}
	return wrapper.VisitMQArray[action]
}

func (wrapper *GoChanVisitMessageQueueWrapper) GetBookingWriteMessageQueue(action mq.Action) mq.BookingWriteMessageQueue {
	if action < 0 || action >= mq.ActionCnt {
		return nil
	}
	return wrapper.BookingMQArray[action]
}

// NewGoChanVisitMessageQueueWrapper creates the full in-process queue set.
// Subscriber channels are buffered so a burst of rapid status writes does not
// drop triggers before the synchronizer drains them.
func NewGoChanVisitMessageQueueWrapper() mq.VisitMessageQueueWrapper {
	wrapper := GoChanVisitMessageQueueWrapper{}
	wrapper.VisitMQArray[mq.ActionCreate] = NewChannelVisitWriteMessageQueue(mq.ActionCreate, 16)
	wrapper.VisitMQArray[mq.ActionUpdate] = NewChannelVisitWriteMessageQueue(mq.ActionUpdate, 16)
	wrapper.BookingMQArray[mq.ActionCreate] = NewChannelBookingWriteMessageQueue(mq.ActionCreate, 16)
	wrapper.BookingMQArray[mq.ActionUpdate] = NewChannelBookingWriteMessageQueue(mq.ActionUpdate, 16)
	return &wrapper
}
