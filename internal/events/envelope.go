// Package events publishes chat domain events to RabbitMQ.
package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	TypeMessageCreated = "message.created"
	KeyMessageCreated  = "chat.message.created"
)

type Meta struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
}

type Envelope struct {
	Meta    Meta `json:"meta"`
	Payload any  `json:"payload"`
}

func NewEnvelope(eventType string, payload any) Envelope {
	return Envelope{
		Meta: Meta{
			ID:         uuid.NewString(),
			Type:       eventType,
			OccurredAt: time.Now().UTC(),
		},
		Payload: payload,
	}
}
