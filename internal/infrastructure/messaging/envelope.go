package messaging

import (
	"time"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
)

// envelope is the pub/sub wire form of an event.
type envelope struct {
	InstanceID  string           `json:"instance_id"`
	EventType   shared.EventType `json:"event_type"`
	AggregateID string           `json:"aggregate_id"`
	OccurredAt  time.Time        `json:"occurred_at"`
	Payload     map[string]any   `json:"payload"`
}

func newEnvelope(instanceID string, e shared.Event) envelope {
	return envelope{
		InstanceID:  instanceID,
		EventType:   e.EventType(),
		AggregateID: e.AggregateID(),
		OccurredAt:  e.OccurredAt(),
		Payload:     e.Payload(),
	}
}

func (e envelope) event() shared.Event {
	return remoteEvent{e}
}

// remoteEvent is an event received from another process. Handlers read its
// fields through Payload.
type remoteEvent struct {
	env envelope
}

func (e remoteEvent) EventType() shared.EventType { return e.env.EventType }
func (e remoteEvent) AggregateID() string         { return e.env.AggregateID }
func (e remoteEvent) OccurredAt() time.Time       { return e.env.OccurredAt }
func (e remoteEvent) Payload() map[string]any     { return e.env.Payload }
