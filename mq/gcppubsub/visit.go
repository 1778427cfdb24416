package gcppubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"reflect"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"

	"fvm/mq/mq"
)

const (
	visitIDAttribute = "visitId"
)

// subscriptionInfo holds details about an active Pub/Sub subscription.
type subscriptionInfo struct {
	gcpSubscription *pubsub.Subscription
	cancel          context.CancelFunc
}

// GenericPubSubService provides a generic implementation for GCP Pub/Sub
// operations over one topic.
type GenericPubSubService[M mq.TopicProvider] struct {
	action              mq.Action
	client              *pubsub.Client
	topic               *pubsub.Topic
	activeSubscriptions map[uuid.UUID]*subscriptionInfo
	subscriptionsMutex  sync.Mutex
	ctx                 context.Context
}

// NewGenericPubSubService creates a generic service for a specific message
// type, creating the underlying topic when it does not exist yet.
func NewGenericPubSubService[M mq.TopicProvider](ctx context.Context, client *pubsub.Client, action mq.Action, topicID string) (*GenericPubSubService[M], error) {
	if client == nil {
		return nil, fmt.Errorf("GCP Pub/Sub client is nil")
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existence of topic %s: %w", topicID, err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			return nil, fmt.Errorf("failed to create topic %s: %w", topicID, err)
		}
		log.Printf("Created Pub/Sub topic: %s", topicID)
	}

	return &GenericPubSubService[M]{
		action:              action,
		client:              client,
		topic:               topic,
		activeSubscriptions: make(map[uuid.UUID]*subscriptionInfo),
		ctx:                 ctx,
	}, nil
}

func (s *GenericPubSubService[M]) GetAction() mq.Action {
	return s.action
}

// Publish sends a message to the topic with the visit id as an attribute so
// per-visit subscriptions can filter server-side.
func (s *GenericPubSubService[M]) Publish(msg M) error {
	typeName := reflect.TypeOf(msg).Name()
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", typeName, err)
	}

	pubsubMsg := &pubsub.Message{
		Data: body,
		Attributes: map[string]string{
			visitIDAttribute: msg.GetTopic().String(),
		},
	}

	result := s.topic.Publish(s.ctx, pubsubMsg)
	if _, err = result.Get(s.ctx); err != nil {
		return fmt.Errorf("failed to publish %s to topic %s: %w", typeName, s.topic.ID(), err)
	}
	return nil
}

// Subscribe creates a new subscription on GCP and starts listening. The
// wildcard topic creates an unfiltered subscription (the synchronizer's
// mode); a concrete id filters on the visitId attribute.
func (s *GenericPubSubService[M]) Subscribe(topic uuid.UUID) (uuid.UUID, <-chan M, error) {
	subscriptionID := uuid.New()
	typeName := reflect.TypeOf(*new(M)).Name()

	gcpSubName := fmt.Sprintf("sub-%s-%s", typeName, subscriptionID.String())

	config := pubsub.SubscriptionConfig{
		Topic:            s.topic,
		ExpirationPolicy: 24 * time.Hour,
		AckDeadline:      10 * time.Second,
	}
	if topic != mq.WildcardTopic {
		config.Filter = fmt.Sprintf("attributes.%s = \"%s\"", visitIDAttribute, topic.String())
	}

	gcpSub, err := s.client.CreateSubscription(s.ctx, gcpSubName, config)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("failed to create GCP subscription %s for %s: %w", gcpSubName, typeName, err)
	}

	msgChan := make(chan M, 5)
	receiveCtx, cancel := context.WithCancel(s.ctx)

	s.subscriptionsMutex.Lock()
	s.activeSubscriptions[subscriptionID] = &subscriptionInfo{
		gcpSubscription: gcpSub,
		cancel:          cancel,
	}
	s.subscriptionsMutex.Unlock()

	go func() {
		defer close(msgChan)

		err := gcpSub.Receive(receiveCtx, func(ctx context.Context, m *pubsub.Message) {
			var msg M
			if err := json.Unmarshal(m.Data, &msg); err != nil {
				log.Printf("failed to unmarshal %s: %v", typeName, err)
				m.Ack()
				return
			}
			m.Ack()

			select {
			case msgChan <- msg:
			case <-ctx.Done():
			}
		})
		if err != nil && receiveCtx.Err() == nil {
			log.Printf("Receive for subscription %s ended with error: %v", gcpSubName, err)
		}

		// Best-effort cleanup of the server-side subscription.
		deleteCtx, deleteCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer deleteCancel()
		if err := gcpSub.Delete(deleteCtx); err != nil {
			log.Printf("failed to delete GCP subscription %s: %v", gcpSubName, err)
		}
	}()

	return subscriptionID, msgChan, nil
}

// DeSubscribe stops the receiver goroutine for the given internal id.
func (s *GenericPubSubService[M]) DeSubscribe(subscriberID uuid.UUID) error {
	s.subscriptionsMutex.Lock()
	defer s.subscriptionsMutex.Unlock()

	info, ok := s.activeSubscriptions[subscriberID]
	if !ok {
		return fmt.Errorf("subscription with ID %s not found", subscriberID)
	}
	info.cancel()
	delete(s.activeSubscriptions, subscriberID)
	return nil
}

// PubSubVisitMessageQueueWrapper implements mq.VisitMessageQueueWrapper on
// top of GCP Pub/Sub, one topic per message type and action.
type PubSubVisitMessageQueueWrapper struct {
	visitMQArray   [mq.ActionCnt]mq.VisitWriteMessageQueue
	bookingMQArray [mq.ActionCnt]mq.BookingWriteMessageQueue
}

func (wrapper *PubSubVisitMessageQueueWrapper) GetVisitWriteMessageQueue(action mq.Action) mq.VisitWriteMessageQueue {
	if action < 0 || action >= mq.ActionCnt {
		return nil
	}
	return wrapper.visitMQArray[action]
}

func (wrapper *PubSubVisitMessageQueueWrapper) GetBookingWriteMessageQueue(action mq.Action) mq.BookingWriteMessageQueue {
	if action < 0 || action >= mq.ActionCnt {
		return nil
	}
	return wrapper.bookingMQArray[action]
}

// NewPubSubVisitMessageQueueWrapper creates services for every queue the
// service needs.
func NewPubSubVisitMessageQueueWrapper(ctx context.Context, client *pubsub.Client) (mq.VisitMessageQueueWrapper, error) {
	wrapper := PubSubVisitMessageQueueWrapper{}

	actionNames := map[mq.Action]string{
		mq.ActionCreate: "create",
		mq.ActionUpdate: "update",
	}

	for action, name := range actionNames {
		visitSvc, err := NewGenericPubSubService[mq.VisitWriteMessage](ctx, client, action, fmt.Sprintf("visit-write-%s", name))
		if err != nil {
			return nil, err
		}
		wrapper.visitMQArray[action] = visitSvc

		bookingSvc, err := NewGenericPubSubService[mq.BookingWriteMessage](ctx, client, action, fmt.Sprintf("booking-write-%s", name))
		if err != nil {
			return nil, err
		}
		wrapper.bookingMQArray[action] = bookingSvc
	}

	return &wrapper, nil
}
