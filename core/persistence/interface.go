package persistence

import (
	"context"
)

// PersistenceEventType names a model lifecycle event.
type PersistenceEventType string

const (
	ModelSaving    PersistenceEventType = "model:saving"
	ModelSaved     PersistenceEventType = "model:saved"
	ModelInserting PersistenceEventType = "model:inserting"
	ModelInserted  PersistenceEventType = "model:inserted"
	ModelUpdating  PersistenceEventType = "model:updating"
	ModelUpdated   PersistenceEventType = "model:updated"
	ModelDeleting  PersistenceEventType = "model:deleting"
	ModelDeleted   PersistenceEventType = "model:deleted"
	ModelRestoring PersistenceEventType = "model:restoring"
	ModelRestored  PersistenceEventType = "model:restored"
)

// PersistenceEvent is delivered to listeners and subscribers.
type PersistenceEvent struct {
	Type       PersistenceEventType `json:"type"`                 // The type of event (e.g., 'model:saving').
	Timestamp  int64                `json:"timestamp"`            // Timestamp when the event occurred (Unix milliseconds).
	Operation  string               `json:"operation"`            // The operation being performed (e.g., 'save', 'delete').
	Collection *string              `json:"collection,omitempty"` // Name of the collection affected (if applicable).
	Halting    bool                 `json:"halting"`              // Whether a listener error cancels the operation.
	Model      any                  `json:"-"`                    // The model instance being written.
	Input      any                  `json:"input,omitempty"`      // Write payload (if applicable).
	Error      *string              `json:"error,omitempty"`      // Error message if the operation failed.
	Context    map[string]any       `json:"context,omitempty"`    // Additional context or metadata specific to the operation.
}

// EventCallbackFunction handles an event. Returning an error from a halting
// event's listener cancels the operation.
type EventCallbackFunction func(ctx context.Context, event PersistenceEvent) error

// SubscriptionInfo describes a subscription configuration.
type SubscriptionInfo struct {
	Id          *string              `json:"id,omitempty"`          // Subscription identifier.
	Event       PersistenceEventType `json:"event"`                 // The event subscribed to.
	Label       *string              `json:"label,omitempty"`       // Optional short identifier.
	Description *string              `json:"description,omitempty"` // Optional description.
	Unsubscribe func()               `json:"-"`
}

// RegisterSubscriptionOptions configures an asynchronous observer.
type RegisterSubscriptionOptions struct {
	Event       PersistenceEventType  `json:"event"`
	Label       *string               `json:"label,omitempty"`
	Description *string               `json:"description,omitempty"`
	Callback    EventCallbackFunction `json:"-"`
}
