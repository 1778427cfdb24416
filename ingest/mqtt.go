package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"fvm/db/db"
)

// MQTTClient is a thin wrapper over the paho client so feeders share one
// broker connection.
type MQTTClient struct {
	client mqtt.Client
}

func NewMQTTClient(broker, clientID string) (*MQTTClient, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return &MQTTClient{client: client}, nil
}

func (c *MQTTClient) Disconnect() {
	c.client.Disconnect(250)
}

// fixPayload is the wire format devices publish on visits/<id>/fixes.
type fixPayload struct {
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	Altitude           float64   `json:"altitude"`
	HorizontalAccuracy float64   `json:"horizontalAccuracy"`
	Speed              float64   `json:"speed"`
	Course             float64   `json:"course"`
	RecordedAt         time.Time `json:"recordedAt"`
}

type modePayload struct {
	Mode string `json:"mode"`
}

// MQTTFeeder bridges a visit's device topics onto a PushSource: inbound fixes
// from visits/<id>/fixes, outbound accuracy hints to visits/<id>/mode.
type MQTTFeeder struct {
	client  *MQTTClient
	visitID uuid.UUID
	source  *PushSource
	logger  *zap.Logger
}

func AttachMQTTFeeder(client *MQTTClient, visitID uuid.UUID, source *PushSource, logger *zap.Logger) (*MQTTFeeder, error) {
	f := &MQTTFeeder{
		client:  client,
		visitID: visitID,
		source:  source,
		logger:  logger,
	}

	token := client.client.Subscribe(f.fixTopic(), 1, func(_ mqtt.Client, msg mqtt.Message) {
		var payload fixPayload
		if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
			logger.Warn("drop malformed fix payload",
				zap.String("topic", msg.Topic()), zap.Error(err))
			return
		}
		recordedAt := payload.RecordedAt
		if recordedAt.IsZero() {
			recordedAt = time.Now()
		}
		_ = source.Offer(db.LocationPoint{
			Latitude:           payload.Latitude,
			Longitude:          payload.Longitude,
			Altitude:           payload.Altitude,
			HorizontalAccuracy: payload.HorizontalAccuracy,
			Speed:              payload.Speed,
			Course:             payload.Course,
			Timestamp:          recordedAt,
		})
	})
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", f.fixTopic(), token.Error())
	}

	source.OnModeChange(f.publishMode)
	return f, nil
}

func (f *MQTTFeeder) fixTopic() string {
	return fmt.Sprintf("visits/%s/fixes", f.visitID)
}

func (f *MQTTFeeder) modeTopic() string {
	return fmt.Sprintf("visits/%s/mode", f.visitID)
}

func (f *MQTTFeeder) publishMode(mode AccuracyMode) {
	body, _ := json.Marshal(modePayload{Mode: mode.String()})
	token := f.client.client.Publish(f.modeTopic(), 1, true, body)
	token.Wait()
	if err := token.Error(); err != nil {
		f.logger.Warn("failed to publish mode hint",
			zap.String("topic", f.modeTopic()), zap.Error(err))
	}
}

// Detach unsubscribes the feeder's fix topic. The source is left open so the
// session can drain it.
func (f *MQTTFeeder) Detach() error {
	token := f.client.client.Unsubscribe(f.fixTopic())
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}
	return nil
}
