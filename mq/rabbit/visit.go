package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"fvm/mq/mq"
)

const (
	// All visit lifecycle events go through this exchange.
	exchangeName = "visit_events_exchange"
)

const (
	visitCreateRoutingKey   = "visit.create"
	visitUpdateRoutingKey   = "visit.update"
	bookingCreateRoutingKey = "booking.create"
	bookingUpdateRoutingKey = "booking.update"
)

func getRoutingKey(action mq.Action, msgType string) string {
	switch msgType {
	case "visit":
		switch action {
		case mq.ActionCreate:
			return visitCreateRoutingKey
		case mq.ActionUpdate:
			return visitUpdateRoutingKey
		}
	case "booking":
		switch action {
		case mq.ActionCreate:
			return bookingCreateRoutingKey
		case mq.ActionUpdate:
			return bookingUpdateRoutingKey
		}
	}
	return ""
}

// DeclareQueueAndExchange sets up the topic exchange, a durable queue and the
// binding between them.
func DeclareQueueAndExchange(ch *amqp091.Channel, queueName, exchange, routingKey string) error {
	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	if _, err := ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	if err := ch.QueueBind(queueName, routingKey, exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", queueName, err)
	}
	return nil
}

// rabbitQueueCore carries the shared publish/consume plumbing of both message
// types. Topic filtering happens consumer-side: RabbitMQ routes by action,
// the consumer goroutine drops messages for other visits.
type rabbitQueueCore[M mq.TopicProvider] struct {
	action     mq.Action
	conn       *amqp091.Connection
	channel    *amqp091.Channel
	queueName  string
	routingKey string

	mu        sync.RWMutex
	consumers map[uuid.UUID]chan M
}

func newRabbitQueueCore[M mq.TopicProvider](action mq.Action, conn *amqp091.Connection, msgType string) (*rabbitQueueCore[M], error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	queueName := fmt.Sprintf("%s_write_%d_queue", msgType, action)
	routingKey := getRoutingKey(action, msgType)

	if err := DeclareQueueAndExchange(ch, queueName, exchangeName, routingKey); err != nil {
		ch.Close()
		return nil, err
	}

	return &rabbitQueueCore[M]{
		action:     action,
		conn:       conn,
		channel:    ch,
		queueName:  queueName,
		routingKey: routingKey,
		consumers:  make(map[uuid.UUID]chan M),
	}, nil
}

func (q *rabbitQueueCore[M]) GetAction() mq.Action {
	return q.action
}

func (q *rabbitQueueCore[M]) Publish(msg M) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = q.channel.PublishWithContext(ctx,
		exchangeName, // exchange
		q.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Body:        body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (q *rabbitQueueCore[M]) Subscribe(topic uuid.UUID) (uuid.UUID, <-chan M, error) {
	msgs, err := q.channel.Consume(
		q.queueName, // queue
		"",          // consumer
		true,        // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("failed to register a consumer: %w", err)
	}

	subscriberID := uuid.New()
	outputChan := make(chan M)

	q.mu.Lock()
	q.consumers[subscriberID] = outputChan
	q.mu.Unlock()

	go func() {
		defer func() {
			q.mu.Lock()
			if ch, ok := q.consumers[subscriberID]; ok {
				close(ch)
				delete(q.consumers, subscriberID)
			}
			q.mu.Unlock()
		}()

		for d := range msgs {
			var msg M
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				log.Printf("failed to unmarshal message on %s: %v", q.queueName, err)
				continue
			}
			if topic != mq.WildcardTopic && msg.GetTopic() != topic {
				continue
			}

			q.mu.RLock()
			ch, ok := q.consumers[subscriberID]
			if !ok {
				// Consumer was unsubscribed while the message was in flight.
				q.mu.RUnlock()
				return
			}
			select {
			case ch <- msg:
			case <-time.After(1 * time.Second): // prevent blocking indefinitely
				log.Printf("timeout sending message to consumer %s, skipping", subscriberID)
			}
			q.mu.RUnlock()
		}
	}()

	return subscriberID, outputChan, nil
}

func (q *rabbitQueueCore[M]) DeSubscribe(subscriberID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if ch, ok := q.consumers[subscriberID]; ok {
		delete(q.consumers, subscriberID)
		close(ch)
		return nil
	}
	return fmt.Errorf("consumer with ID %s not found for queue %s", subscriberID, q.queueName)
}

// RabbitVisitMessageQueueWrapper implements mq.VisitMessageQueueWrapper on a
// shared RabbitMQ connection.
type RabbitVisitMessageQueueWrapper struct {
	visitMQArray   [mq.ActionCnt]mq.VisitWriteMessageQueue
	bookingMQArray [mq.ActionCnt]mq.BookingWriteMessageQueue
}

func (wrapper *RabbitVisitMessageQueueWrapper) GetVisitWriteMessageQueue(action mq.Action) mq.VisitWriteMessageQueue {
	if action < 0 || action >= mq.ActionCnt {
		return nil
	}
	return wrapper.visitMQArray[action]
}

func (wrapper *RabbitVisitMessageQueueWrapper) GetBookingWriteMessageQueue(action mq.Action) mq.BookingWriteMessageQueue {
	if action < 0 || action >= mq.ActionCnt {
		return nil
	}
	return wrapper.bookingMQArray[action]
}

// NewRabbitVisitMessageQueueWrapper declares every queue the service needs on
// conn and returns the assembled wrapper.
func NewRabbitVisitMessageQueueWrapper(conn *amqp091.Connection) (mq.VisitMessageQueueWrapper, error) {
	wrapper := RabbitVisitMessageQueueWrapper{}

	for _, action := range []mq.Action{mq.ActionCreate, mq.ActionUpdate} {
		visitQ, err := newRabbitQueueCore[mq.VisitWriteMessage](action, conn, "visit")
		if err != nil {
			return nil, fmt.Errorf("failed to create visit queue for action %d: %w", action, err)
		}
		wrapper.visitMQArray[action] = visitQ

		bookingQ, err := newRabbitQueueCore[mq.BookingWriteMessage](action, conn, "booking")
		if err != nil {
			return nil, fmt.Errorf("failed to create booking queue for action %d: %w", action, err)
		}
		wrapper.bookingMQArray[action] = bookingQ
	}

	return &wrapper, nil
}
