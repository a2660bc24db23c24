package persistence

import (
	"time"
)

// NewEvent builds a lifecycle event for a model write.
func NewEvent(
	eventType PersistenceEventType,
	operation string,
	collectionName string,
	model any,
	input any,
	halting bool,
) PersistenceEvent {
	var collection *string
	if collectionName != "" {
		collection = &collectionName
	}

	return PersistenceEvent{
		Type:       eventType,
		Timestamp:  time.Now().UnixMilli(),
		Operation:  operation,
		Collection: collection,
		Halting:    halting,
		Model:      model,
		Input:      input,
	}
}
