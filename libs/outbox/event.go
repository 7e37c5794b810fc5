package outbox

import (
	"encoding/json"
	"fmt"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	BusinessID    string
	Payload       []byte
}

// NewEvent marshals payload as the JSON body of an event.
func NewEvent(aggregateType, aggregateID, eventType, businessID string, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		BusinessID:    businessID,
		Payload:       body,
	}, nil
}
