package mq

import "github.com/google/uuid"

// TopicProvider is anything that can name the topic it belongs to.
type TopicProvider interface {
	GetTopic() uuid.UUID
}

// WildcardTopic subscribes to writes for every visit/booking. The status
// synchronizer uses it; UI feeds subscribe with a concrete id instead.
var WildcardTopic = uuid.Nil

type VisitMessageQueueWrapper interface {
	GetVisitWriteMessageQueue(action Action) VisitWriteMessageQueue
	GetBookingWriteMessageQueue(action Action) BookingWriteMessageQueue
}

type VisitWriteMessageQueue interface {
	GetAction() Action
	Publish(msg VisitWriteMessage) error
	Subscribe(topic uuid.UUID) (uuid.UUID, <-chan VisitWriteMessage, error)
	DeSubscribe(id uuid.UUID) error
}

type BookingWriteMessageQueue interface {
	GetAction() Action
	Publish(msg BookingWriteMessage) error
	Subscribe(topic uuid.UUID) (uuid.UUID, <-chan BookingWriteMessage, error)
	DeSubscribe(id uuid.UUID) error
}
