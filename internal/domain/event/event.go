package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is a fact emitted after a ledger mutation has committed.
type Event struct {
	ID       string                 `json:"id"`
	Type     Type                   `json:"type"`
	BranchID int64                  `json:"branch_id"`
	EntityID int64                  `json:"entity_id"`
	ActorID  int64                  `json:"actor_id"`
	Payload  map[string]interface{} `json:"payload"`
	Time     time.Time              `json:"time"`
}

// New creates an event with a fresh ID. ActorID is zero for system actions.
func New(eventType Type, branchID, entityID, actorID int64, at time.Time) *Event {
	return &Event{
		ID:       uuid.NewString(),
		Type:     eventType,
		BranchID: branchID,
		EntityID: entityID,
		ActorID:  actorID,
		Payload:  map[string]interface{}{},
		Time:     at,
	}
}

// With returns a copy of the event with an extra payload entry.
func (e *Event) With(key string, value interface{}) *Event {
	payload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		payload[k] = v
	}
	payload[key] = value

	cp := *e
	cp.Payload = payload
	return &cp
}

// PayloadString retrieves a string value from the payload
func (e *Event) PayloadString(key string) string {
	if s, ok := e.Payload[key].(string); ok {
		return s
	}
	return ""
}
