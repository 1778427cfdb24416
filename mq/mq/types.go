package mq

import (
	"fvm/db/db"

	"github.com/google/uuid"
)

// Mode selects the queue backend at startup.
type Mode string

const (
	ModeGoChan    Mode = "go_chan"
	ModeRabbitMQ  Mode = "rabbitmq"
	ModeGCPPubSub Mode = "gcp_pub_sub"
)

type Action int

const (
	ActionCreate Action = iota
	ActionUpdate
	ActionCnt
)

// VisitWriteMessage announces that a visit record was written. Status is the
// value at publish time and is informational only: handlers must re-read the
// current record, never apply the payload, so redundant or out-of-order
// deliveries converge.
type VisitWriteMessage struct {
	VisitID   uuid.UUID
	BookingID uuid.UUID
	Status    db.VisitStatus
}

func (m VisitWriteMessage) GetTopic() uuid.UUID {
	return m.VisitID
}

// BookingWriteMessage announces that the synchronizer wrote a booking status.
type BookingWriteMessage struct {
	BookingID uuid.UUID
	Status    db.BookingStatus
}

func (m BookingWriteMessage) GetTopic() uuid.UUID {
	return m.BookingID
}
